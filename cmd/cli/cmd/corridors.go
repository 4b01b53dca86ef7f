// Package cmd - corridors command
package cmd

import (
	"github.com/spf13/cobra"

	"freightquote/core/output"
	"freightquote/core/types"
)

var corridorsOpts struct {
	tenant string
	mode   string
	format string
}

// corridorsCmd lists quotable corridors
var corridorsCmd = &cobra.Command{
	Use:   "corridors",
	Short: "List the corridors a tenant can quote",
	Long: `List the active rate cards a tenant can quote, including corridors
priced from the platform owner's cards.

Examples:
  freightquote corridors --tenant platform
  freightquote corridors --tenant acme --mode sea --format json`,
	RunE: runCorridors,
}

func init() {
	corridorsCmd.Flags().StringVar(&corridorsOpts.tenant, "tenant", "", "tenant ID (required)")
	corridorsCmd.Flags().StringVar(&corridorsOpts.mode, "mode", "", "only list this transport mode")
	corridorsCmd.Flags().StringVarP(&corridorsOpts.format, "format", "f", "cli", "output format (cli, json)")
	_ = corridorsCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(corridorsCmd)
}

func runCorridors(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(corridorsOpts.format)
	if err != nil {
		return err
	}
	var mode types.Mode
	if corridorsOpts.mode != "" {
		if mode, err = types.ParseMode(corridorsOpts.mode); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	tenant := types.TenantID(corridorsOpts.tenant)
	matches, err := a.Calculator.Corridors(ctx, tenant, mode)
	if err != nil {
		return err
	}
	return output.New(format).Corridors(cmd.OutOrStdout(), tenant, matches)
}
