// Package main wires together the API service binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pwa-discovery/internal/config"
	"github.com/JakeFAU/pwa-discovery/internal/server"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if port, convErr := strconv.Atoi(os.Getenv("PORT")); convErr == nil && port > 0 {
		cfg.Server.Port = port
	}

	ctx := context.Background()
	app, err := server.Build(ctx, &cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build failed: %v\n", err)
		os.Exit(1)
	}

	runErr := app.Run(ctx)
	if runErr != nil {
		app.Logger().Error("http server error", zap.Error(runErr))
	}

	closeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := app.Close(closeCtx); err != nil {
		app.Logger().Warn("close failed", zap.Error(err))
	}
	app.Logger().Info("shutdown complete")
	if runErr != nil {
		cancel()
		os.Exit(1)
	}
}
