// Package cmd - config command
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"freightquote/adapters/hclconfig"
	"freightquote/internal/config"
)

var forceInit bool

// configCmd manages configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// configInitCmd writes a default config and an example pricing file
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration and example pricing file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		path := cfgFile
		if path == "" {
			path = defaultConfigPath()
		}
		if err := writeIfAbsent(path, nil, func() error { return cfg.Save(path) }); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "config:  %s\n", path)

		pricing := cfg.Pricing.ConfigPath
		if err := writeIfAbsent(pricing, hclconfig.Example, nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pricing: %s\n", pricing)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "overwrite existing files")
	configCmd.AddCommand(configInitCmd)
}

// writeIfAbsent writes data (or runs write) unless path exists and --force is unset
func writeIfAbsent(path string, data []byte, write func() error) error {
	if _, err := os.Stat(path); err == nil && !forceInit {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if write != nil {
		return write()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
