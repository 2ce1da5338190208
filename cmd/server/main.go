// Relay - Real-time Messaging for the OpenLancer Marketplace
// Copyright 2026 OpenLancer Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlancer/relay

// Command server runs the Relay messaging server: the websocket socket core,
// the companion REST surface, and the BadgerDB conversation store, all under
// a suture supervision tree.
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

	"github.com/openlancer/relay/internal/api"
	"github.com/openlancer/relay/internal/auth"
	"github.com/openlancer/relay/internal/chat"
	"github.com/openlancer/relay/internal/config"
	"github.com/openlancer/relay/internal/logging"
	"github.com/openlancer/relay/internal/presence"
	"github.com/openlancer/relay/internal/store"
	"github.com/openlancer/relay/internal/supervisor"
	"github.com/openlancer/relay/internal/supervisor/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	badgerStore, err := store.Open(cfg.Store.Path, cfg.Store.InMemory)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := badgerStore.Close(); err != nil {
			logging.Error().Err(err).Msg("close store")
		}
	}()
	st := store.NewBreakerStore(badgerStore, cfg.Store.OpTimeout)

	manager, err := auth.NewManager(cfg.Security.JWTSecret, cfg.Security.TokenTimeout)
	if err != nil {
		return fmt.Errorf("init credential verifier: %w", err)
	}
	authn := auth.NewJWTAuthenticator(manager)

	tracker := presence.NewTracker()
	hub := chat.NewHub()
	typing := chat.NewTypingRelay(hub, st, cfg.Chat.TypingTimeout)
	chatRouter := chat.NewRouter(chat.Config{
		MaxMessageBytes: cfg.Chat.MaxMessageBytes,
		SendBuffer:      cfg.Chat.SendBuffer,
		EventRate:       cfg.Chat.EventRate,
		EventBurst:      cfg.Chat.EventBurst,
		TypingTimeout:   cfg.Chat.TypingTimeout,
	}, hub, tracker, st, typing)

	handler := api.NewHandler(cfg, st, authn, chatRouter, hub, tracker)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.NewRouter(handler, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	tree := supervisor.NewTree(slog.Default(), treeCfg)
	tree.AddDataService(store.NewGCService(badgerStore.DB(), cfg.Store.GCInterval))
	tree.AddMessagingService(hub)
	tree.AddMessagingService(typing)
	tree.AddAPIService(services.NewHTTPServerService(httpServer, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Bool("store_in_memory", cfg.Store.InMemory).
		Msg("relay server starting")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("service did not stop within timeout")
		}
	}

	logging.Info().Msg("relay server stopped")
	return nil
}
