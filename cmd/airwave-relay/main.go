// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

// Airwave-relay is the signaling server. It owns the channel registry,
// persists channels, grants, and audio configurations in SQLite, and
// routes negotiation traffic between stations over websockets. Audio
// never passes through it.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/perety/airwave/lib/config"
	"github.com/perety/airwave/policy"
	"github.com/perety/airwave/registry"
	"github.com/perety/airwave/relay"
	"github.com/perety/airwave/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		listenAddr string
		debug      bool
	)
	pflag.StringVar(&configPath, "config", "", "configuration file (defaults to $AIRWAVE_CONFIG)")
	pflag.StringVar(&listenAddr, "listen", "", "listen address, overrides the configuration")
	pflag.BoolVar(&debug, "debug", false, "enable debug logging")
	pflag.Parse()

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Relay.ListenAddr = listenAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.Relay.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	channels, err := db.Channels(ctx)
	if err != nil {
		return err
	}
	logger.Info("channels loaded", "count", len(channels))

	resolver := policy.NewResolver(db, db)
	reg := registry.New(registry.Config{
		Channels:        channels,
		Resolver:        resolver,
		Audit:           db.Audit,
		DefaultCapacity: cfg.Relay.DefaultCapacity,
		Logger:          logger,
	})

	metrics := relay.NewMetrics()
	hub := relay.NewHub(reg, metrics, logger)
	go hub.Run()
	defer hub.Stop()

	server := &http.Server{
		Addr:        cfg.Relay.ListenAddr,
		Handler:     relay.NewServer(hub, metrics, db, cfg.Relay.PingInterval, logger).Handler(),
		ReadTimeout: 30 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("relay listening", "addr", cfg.Relay.ListenAddr)
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}
