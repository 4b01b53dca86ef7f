// Package cmd - fx commands
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"freightquote/adapters/fxsource"
	"freightquote/core/output"
	"freightquote/core/types"
	"freightquote/internal/config"
	"freightquote/internal/errors"
)

var fxConvertOpts struct {
	amount string
	from   string
	to     string
	format string
}

// fxCmd groups currency conversion commands
var fxCmd = &cobra.Command{
	Use:   "fx",
	Short: "Currency conversion",
}

var fxConvertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert an amount between currencies",
	Long: `Convert an amount using the configured rate source.

Examples:
  freightquote fx convert --amount 100 --from USD --to XOF
  freightquote fx convert --amount 23718 --from XOF --to EUR --format json`,
	RunE: runFXConvert,
}

var fxRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch exchange rates from the configured source",
	RunE:  runFXRefresh,
}

var fxPublishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Write the static rate table to Redis",
	Long: `Write fx.static_rates from the config file into the Redis hash read by
the redis rate source. Servers pick the table up on their next refresh.`,
	RunE: runFXPublish,
}

func init() {
	f := fxConvertCmd.Flags()
	f.StringVar(&fxConvertOpts.amount, "amount", "", "amount to convert (required)")
	f.StringVar(&fxConvertOpts.from, "from", "", "source currency (required)")
	f.StringVar(&fxConvertOpts.to, "to", "", "target currency (required)")
	f.StringVarP(&fxConvertOpts.format, "format", "f", "cli", "output format (cli, json)")
	for _, name := range []string{"amount", "from", "to"} {
		_ = fxConvertCmd.MarkFlagRequired(name)
	}

	fxCmd.AddCommand(fxConvertCmd)
	fxCmd.AddCommand(fxRefreshCmd)
	fxCmd.AddCommand(fxPublishCmd)
	rootCmd.AddCommand(fxCmd)
}

func runFXConvert(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(fxConvertOpts.format)
	if err != nil {
		return err
	}
	amount, err := types.ParseDecimal(fxConvertOpts.amount)
	if err != nil {
		return errors.Input("--amount is not a number")
	}
	from, err := types.ParseCurrency(fxConvertOpts.from)
	if err != nil {
		return err
	}
	to, err := types.ParseCurrency(fxConvertOpts.to)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	conv, err := a.FX.Convert(ctx, amount, from, to)
	if err != nil {
		return err
	}
	return output.New(format).Conversion(cmd.OutOrStdout(), types.Money{Amount: amount, Currency: from}, conv)
}

func runFXRefresh(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	table, err := a.FX.Refresh(ctx)
	if err != nil {
		return err
	}
	return output.New(output.FormatCLI).RateTable(cmd.OutOrStdout(), table)
}

func runFXPublish(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	static, err := fxsource.NewStatic(cfg.FX.ReferenceCurrency, cfg.FX.StaticRates, time.Now())
	if err != nil {
		return errors.Config("invalid static exchange rates", err)
	}
	ctx := cmd.Context()
	table, err := static.FetchRates(ctx)
	if err != nil {
		return err
	}

	client := fxsource.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer client.Close()
	target := fxsource.NewRedis(client, cfg.FX.RedisKeyPrefix, table.Reference)
	if err := target.Publish(ctx, table); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Published %d rates to %s\n", len(table.Rates), target.Key())
	return nil
}
