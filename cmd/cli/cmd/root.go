// Package cmd provides the CLI commands for freightquote.
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"freightquote/internal/app"
	"freightquote/internal/config"
	"freightquote/internal/logging"
)

// Version is set at build time
var Version = "0.1.0"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "freightquote",
	Short: "Price shipments across tenants, corridors and currencies",
	Long: `freightquote computes deterministic, tax-inclusive shipping quotes.

Rate cards, surcharges, add-ons and plans come from an HCL pricing file or
a Postgres database; exchange rates come from a static table, an HTTP feed
or Redis.

Examples:
  freightquote config init
  freightquote quote --tenant platform --mode air --origin Guangzhou --destination Abidjan --weight 20
  freightquote corridors --tenant acme --mode sea
  freightquote fx convert --amount 100 --from USD --to XOF
  freightquote serve`,
	SilenceUsage: true,
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.freightquote/config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".freightquote.json"
	}
	return filepath.Join(home, ".freightquote", "config.json")
}

func initConfig() {
	config.LoadDotEnv()

	path := cfgFile
	if path == "" {
		path = defaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	config.Set(cfg)

	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := logging.Initialize(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
	}
}

// openApp wires the engine from the loaded configuration
func openApp(ctx context.Context) (*app.App, error) {
	return app.New(ctx, config.Get(), logging.Logger)
}

// versionCmd prints version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "freightquote version %s\n", Version)
	},
}
