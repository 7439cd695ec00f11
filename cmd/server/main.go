// Gatehouse - Multi-Tenant SaaS API Gateway
// Copyright 2026 Gatehouse Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatehouse-io/gatehouse

// Command server runs the Gatehouse gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/api"
	"github.com/gatehouse-io/gatehouse/internal/auth"
	"github.com/gatehouse-io/gatehouse/internal/authz"
	"github.com/gatehouse-io/gatehouse/internal/cache"
	"github.com/gatehouse-io/gatehouse/internal/config"
	"github.com/gatehouse-io/gatehouse/internal/entitlement"
	"github.com/gatehouse-io/gatehouse/internal/gateway"
	"github.com/gatehouse-io/gatehouse/internal/idempotency"
	"github.com/gatehouse-io/gatehouse/internal/logging"
	"github.com/gatehouse-io/gatehouse/internal/models"
	"github.com/gatehouse-io/gatehouse/internal/quota"
	"github.com/gatehouse-io/gatehouse/internal/ratelimit"
	"github.com/gatehouse-io/gatehouse/internal/store"
	"github.com/gatehouse-io/gatehouse/internal/tenant"
)

// defaultActions maps entitlement-gated actions to their minimum tier.
// Routes not listed here are ungated.
var defaultActions = map[string]entitlement.Tier{
	"generations.create": entitlement.TierFree,
	"exports.create":     entitlement.TierPro,
	"sso.configure":      entitlement.TierEnterprise,
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	logger := logging.Logger()

	// The relational business store (users, memberships, subscriptions) is
	// an external system; the in-process memory store stands in for it.
	// Pipeline state (counters, idempotency records, service keys) runs on
	// the configured backend.
	relational := store.NewMemory()

	var keyStore store.ServiceKeyStore = relational
	var counterStore store.CounterStore = relational
	var idemStore store.IdempotencyStore = relational
	var ready func() error
	var closeStore func() error
	if cfg.Store.Backend == "badger" {
		bdg, err := store.OpenBadger(cfg.Store.Path)
		if err != nil {
			logging.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("failed to open badger store")
		}
		keyStore, counterStore, idemStore = bdg, bdg, bdg
		ready = bdg.Ping
		closeStore = bdg.Close

		// Value-log GC on a timer keeps the store from growing unbounded.
		go func() {
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				if err := bdg.RunGC(); err != nil {
					logger.Debug().Err(err).Msg("badger gc pass skipped")
				}
			}
		}()
	}

	sessions, err := auth.NewSessionManager(cfg.Security.SessionSecret, cfg.Security.SessionTimeout)
	if err != nil {
		logging.Fatal().Err(err).Msg("invalid session configuration")
	}
	keys := auth.NewServiceKeyManager(keyStore, cfg.Security.ServiceKeyBcryptCost, logger)

	authenticator := auth.NewMultiAuthenticator(
		auth.NewServiceKeyAuthenticator(keys),
		auth.NewSessionAuthenticator(sessions),
	)

	planCache := cache.NewLRU[*models.EffectivePlan](cfg.Entitlement.CacheSize, cfg.Entitlement.CacheTTL)
	gate := entitlement.NewGate(relational, planCache, defaultActions, logger)
	meter := quota.NewMeter(counterStore, logger)

	pipeline := gateway.NewPipeline(
		authenticator,
		tenant.NewResolver(relational),
		authz.NewGuard(relational),
		gate,
		ratelimit.NewLimiter(counterStore),
		meter,
		idempotency.NewManager(idemStore, cfg.Idempotency.TTL, logger),
		logger,
	)

	router := api.NewRouter(pipeline, keys, gate, meter, cfg, ready)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("store", cfg.Store.Backend).
			Msg("gatehouse listening")
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if closeStore != nil {
		if err := closeStore(); err != nil {
			logger.Error().Err(err).Msg("store close failed")
		}
	}
	logger.Info().Msg("gatehouse stopped")
}
