// Package cmd - quote command
package cmd

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"freightquote/core/output"
	"freightquote/core/pricing"
	"freightquote/core/types"
)

var quoteOpts struct {
	tenant          string
	mode            string
	basis           string
	origin          string
	destination     string
	weight          string
	volume          string
	declaredValue   string
	addons          []string
	plan            string
	displayCurrency string
	format          string
}

// quoteCmd prices one shipment
var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Price a shipment",
	Long: `Price a shipment for a tenant and print the quote.

Examples:
  freightquote quote --tenant platform --mode air --origin Guangzhou --destination Abidjan --weight 20
  freightquote quote --tenant acme --mode sea --basis per_m3 --origin Shanghai --destination Lagos --volume 3.5
  freightquote quote --tenant platform --mode air --origin Guangzhou --destination Abidjan --weight 5 \
      --declared-value 250000 --addon insurance=1 --addon pickup=2 --display-currency EUR --format json`,
	RunE: runQuote,
}

func init() {
	f := quoteCmd.Flags()
	f.StringVar(&quoteOpts.tenant, "tenant", "", "tenant ID (required)")
	f.StringVar(&quoteOpts.mode, "mode", "", "transport mode: air, sea or road (required)")
	f.StringVar(&quoteOpts.basis, "basis", "per_kg", "rate basis: per_kg or per_m3")
	f.StringVar(&quoteOpts.origin, "origin", "", "origin city or country (required)")
	f.StringVar(&quoteOpts.destination, "destination", "", "destination city or country (required)")
	f.StringVar(&quoteOpts.weight, "weight", "", "weight in kg")
	f.StringVar(&quoteOpts.volume, "volume", "", "volume in m3")
	f.StringVar(&quoteOpts.declaredValue, "declared-value", "", "declared cargo value in the card currency")
	f.StringArrayVar(&quoteOpts.addons, "addon", nil, "add-on as id=quantity (repeatable)")
	f.StringVar(&quoteOpts.plan, "plan", "", "plan ID to price alongside the quote")
	f.StringVar(&quoteOpts.displayCurrency, "display-currency", "", "also show totals in this currency")
	f.StringVarP(&quoteOpts.format, "format", "f", "cli", "output format (cli, json)")
	for _, name := range []string{"tenant", "mode", "origin", "destination"} {
		_ = quoteCmd.MarkFlagRequired(name)
	}
	rootCmd.AddCommand(quoteCmd)
}

func buildQuoteRequest() (*pricing.Request, error) {
	mode, err := types.ParseMode(quoteOpts.mode)
	if err != nil {
		return nil, err
	}
	basis, err := types.ParseBasis(quoteOpts.basis)
	if err != nil {
		return nil, err
	}
	req := &pricing.Request{
		TenantID:    types.TenantID(quoteOpts.tenant),
		Mode:        mode,
		Basis:       basis,
		Origin:      quoteOpts.origin,
		Destination: quoteOpts.destination,
		PlanID:      quoteOpts.plan,
	}
	if req.WeightKg, err = types.ParseDecimal(quoteOpts.weight); err != nil {
		return nil, fmt.Errorf("--weight: %w", err)
	}
	if req.VolumeM3, err = types.ParseDecimal(quoteOpts.volume); err != nil {
		return nil, fmt.Errorf("--volume: %w", err)
	}
	if req.DeclaredValue, err = types.ParseDecimal(quoteOpts.declaredValue); err != nil {
		return nil, fmt.Errorf("--declared-value: %w", err)
	}
	if quoteOpts.displayCurrency != "" {
		if req.DisplayCurrency, err = types.ParseCurrency(quoteOpts.displayCurrency); err != nil {
			return nil, fmt.Errorf("--display-currency: %w", err)
		}
	}
	if req.Addons, err = parseAddons(quoteOpts.addons); err != nil {
		return nil, err
	}
	return req, nil
}

// parseAddons reads id=quantity pairs; a bare id means quantity 1
func parseAddons(specs []string) ([]types.AddonSelection, error) {
	out := make([]types.AddonSelection, 0, len(specs))
	for _, spec := range specs {
		id, qty, found := strings.Cut(spec, "=")
		sel := types.AddonSelection{AddonID: strings.TrimSpace(id), Quantity: decimal.NewFromInt(1)}
		if found {
			q, err := decimal.NewFromString(strings.TrimSpace(qty))
			if err != nil {
				return nil, fmt.Errorf("--addon %q: quantity is not a number", spec)
			}
			sel.Quantity = q
		}
		if sel.AddonID == "" {
			return nil, fmt.Errorf("--addon %q: missing add-on id", spec)
		}
		out = append(out, sel)
	}
	return out, nil
}

func runQuote(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(quoteOpts.format)
	if err != nil {
		return err
	}
	req, err := buildQuoteRequest()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.Calculator.Calculate(ctx, req)
	if err != nil {
		return err
	}
	return output.New(format).Quote(cmd.OutOrStdout(), result)
}
