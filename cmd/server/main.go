// Package main - Entry point for the freightquote API server
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"freightquote/api"
	"freightquote/internal/app"
	"freightquote/internal/config"
	"freightquote/internal/logging"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "Path to config file")
	addr := flag.String("addr", "", "Server address (overrides server.address)")
	flag.Parse()

	if err := run(*configPath, *addr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, addr string) error {
	config.LoadDotEnv()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Address = addr
	}
	if err := logging.Initialize(cfg.Logging); err != nil {
		return err
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logging.Logger)
	if err != nil {
		return err
	}
	defer a.Close()

	logging.Logger.Info("freightquote server starting",
		zap.String("version", version),
		zap.String("addr", cfg.Server.Address))

	srv := api.NewServer(a.Calculator, a.FX, api.WithLogger(a.Logger), api.WithVersion(version))
	return srv.Run(ctx, cfg.Server.Address,
		time.Duration(cfg.Server.ReadTimeoutSeconds)*time.Second,
		time.Duration(cfg.Server.WriteTimeoutSeconds)*time.Second)
}
