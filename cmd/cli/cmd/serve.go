// Package cmd - serve command
package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"freightquote/api"
)

var serveAddr string

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the quote HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		cfg := a.Config.Server
		addr := cfg.Address
		if serveAddr != "" {
			addr = serveAddr
		}
		a.Logger.Info("starting server", zap.String("addr", addr), zap.String("version", Version))

		srv := api.NewServer(a.Calculator, a.FX, api.WithLogger(a.Logger), api.WithVersion(Version))
		return srv.Run(ctx, addr,
			time.Duration(cfg.ReadTimeoutSeconds)*time.Second,
			time.Duration(cfg.WriteTimeoutSeconds)*time.Second)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.address)")
	rootCmd.AddCommand(serveCmd)
}
