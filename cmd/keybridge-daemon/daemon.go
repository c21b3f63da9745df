// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/keybridge/daemon"
	"github.com/bureau-foundation/keybridge/lib/audit"
	"github.com/bureau-foundation/keybridge/lib/clock"
	"github.com/bureau-foundation/keybridge/lib/config"
	"github.com/bureau-foundation/keybridge/lib/consent"
	"github.com/bureau-foundation/keybridge/lib/credstore"
	"github.com/bureau-foundation/keybridge/lib/custody"
	"github.com/bureau-foundation/keybridge/lib/ratelimit"
	"github.com/bureau-foundation/keybridge/lib/service"
	"github.com/bureau-foundation/keybridge/lib/version"
)

// rateLimitIdleTTL is how long an origin's bucket survives without
// requests.
const rateLimitIdleTTL = 10 * time.Minute

// assembly is a fully wired daemon: credential store, audit log,
// consent gate, custodian, API server, and loopback listener.
type assembly struct {
	store     credstore.Store
	auditLog  *audit.Log
	gate      *consent.Gate
	custodian *custody.Custodian
	metrics   *daemon.Metrics
	http      *service.HTTPServer
	logger    *slog.Logger
}

func assemble(cfg *config.Config, prompter consent.Prompter, clk clock.Clock, logger *slog.Logger) (*assembly, error) {
	mode, err := cfg.ConsentMode()
	if err != nil {
		return nil, err
	}
	trusted, err := cfg.TrustedOrigins()
	if err != nil {
		return nil, err
	}
	if mode == consent.ModeNever {
		logger.Warn("consent mode is never: every request will be approved without asking")
	}

	store, err := credstore.Open(cfg.CredentialStoreOptions())
	if err != nil {
		return nil, err
	}
	auditLog, err := audit.Open(cfg.Daemon.Audit.Path, cfg.Daemon.Audit.MaxBytes, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	result := &assembly{store: store, auditLog: auditLog, logger: logger}
	result.metrics = daemon.NewMetrics(func() bool {
		return result.custodian != nil && result.custodian.Status().HasKeys
	})
	result.gate = consent.NewGate(consent.GateConfig{
		Mode:           mode,
		Deadline:       cfg.Daemon.Consent.Deadline,
		PromptGenerate: cfg.Daemon.Consent.PromptGenerate,
		TrustedOrigins: trusted,
		Prompter:       prompter,
		Audit:          result.metrics.AuditSink(auditLog),
		Clock:          clk,
		Logger:         logger,
	})

	result.custodian, err = custody.New(custody.Config{
		Store:  store,
		Gate:   result.gate,
		Clock:  clk,
		Logger: logger,
	})
	if err != nil {
		result.Close()
		return nil, err
	}

	server := daemon.NewServer(daemon.ServerConfig{
		Custodian:   result.custodian,
		RateLimiter: ratelimit.New(cfg.Daemon.RateLimit.PerSecond, cfg.Daemon.RateLimit.Burst, rateLimitIdleTTL),
		Metrics:     result.metrics,
		Version:     version.Short(),
		Clock:       clk,
		Logger:      logger,
	})
	result.http, err = service.NewHTTPServer(service.HTTPServerConfig{
		Listen:          cfg.Daemon.Listen,
		Handler:         server.Handler(),
		ShutdownTimeout: cfg.Daemon.ShutdownTimeout,
		Logger:          logger,
	})
	if err != nil {
		result.Close()
		return nil, fmt.Errorf("daemon.listen: %w", err)
	}

	status := result.custodian.Status()
	logger.Info("keybridge daemon configured",
		"version", version.Info(),
		"environment", cfg.Environment,
		"listen", cfg.Daemon.Listen,
		"credential_store", cfg.Daemon.CredentialStore.Backend,
		"consent_mode", mode,
		"has_keys", status.HasKeys,
		"fingerprint", status.Fingerprint,
		"audit_log", auditLog.Path(),
	)
	return result, nil
}

// Serve runs the API until ctx is cancelled.
func (a *assembly) Serve(ctx context.Context) error {
	return a.http.Serve(ctx)
}

// Close releases the key, the audit log, and the credential store.
func (a *assembly) Close() error {
	var errs []error
	if a.custodian != nil {
		errs = append(errs, a.custodian.Close())
	}
	errs = append(errs, a.auditLog.Close(), a.store.Close())
	return errors.Join(errs...)
}
