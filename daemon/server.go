// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/bureau-foundation/keybridge/lib/clock"
	"github.com/bureau-foundation/keybridge/lib/custody"
	"github.com/bureau-foundation/keybridge/lib/identity"
	"github.com/bureau-foundation/keybridge/lib/ratelimit"
	"github.com/bureau-foundation/keybridge/lib/schema"
)

// Custodian is the key-custody surface the API adapts.
// *custody.Custodian implements it.
type Custodian interface {
	Status() custody.Status
	PublicKey() (identity.Identity, error)
	Generate(ctx context.Context, origin string) (identity.Identity, error)
	Sign(ctx context.Context, content []byte, origin string) (custody.SignResult, error)
	ImportKey(ctx context.Context, privateKey, publicKey []byte, source string) (identity.Identity, error)
	DeleteKeys(ctx context.Context, origin string) error
}

// ServerConfig configures a Server.
type ServerConfig struct {
	// Custodian holds the key. Required.
	Custodian Custodian

	// RateLimiter bounds consent-gated calls per origin. Nil disables
	// limiting.
	RateLimiter *ratelimit.Limiter

	// Metrics receives request counters. Nil disables /metrics.
	Metrics *Metrics

	// Version is reported by GET /status.
	Version string

	// Clock drives uptime and rate limiting. Required.
	Clock clock.Clock

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// Server is the daemon API. Construct with NewServer and serve
// Handler() through a loopback listener.
type Server struct {
	custodian   Custodian
	rateLimiter *ratelimit.Limiter
	metrics     *Metrics
	version     string
	clock       clock.Clock
	logger      *slog.Logger
	startedAt   time.Time
	handler     http.Handler
}

// NewServer creates the API server. Panics if Custodian, Clock, or
// Logger is nil.
func NewServer(config ServerConfig) *Server {
	if config.Custodian == nil {
		panic("daemon.NewServer: Custodian is required")
	}
	if config.Clock == nil {
		panic("daemon.NewServer: Clock is required")
	}
	if config.Logger == nil {
		panic("daemon.NewServer: Logger is required")
	}

	server := &Server{
		custodian:   config.Custodian,
		rateLimiter: config.RateLimiter,
		metrics:     config.Metrics,
		version:     config.Version,
		clock:       config.Clock,
		logger:      config.Logger,
		startedAt:   config.Clock.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+schema.PathStatus, server.handleStatus)
	mux.HandleFunc("GET "+schema.PathPublicKey, server.handlePublicKey)
	mux.HandleFunc("POST "+schema.PathGenerate, server.handleGenerate)
	mux.HandleFunc("POST "+schema.PathSign, server.handleSign)
	mux.HandleFunc("POST "+schema.PathImportKey, server.handleImportKey)
	mux.HandleFunc("DELETE "+schema.PathKeys, server.handleDeleteKeys)
	if config.Metrics != nil {
		mux.Handle("GET "+schema.PathMetrics, config.Metrics.Handler())
	}

	server.handler = withCORS(server.instrument(mux))
	return server
}

// Handler returns the root handler, CORS and instrumentation included.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// withCORS allows any origin and answers preflight requests with 204.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		header := writer.Header()
		header.Set("Access-Control-Allow-Origin", "*")
		header.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		header.Set("Access-Control-Allow-Headers", "Content-Type")
		header.Set("Access-Control-Max-Age", "600")
		if request.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(writer, request)
	})
}

// statusRecorder captures the response status for instrumentation.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(data []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(data)
}

// instrument records per-route counts and latency. The route label is
// the matched mux pattern, so unknown paths collapse into one series.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		start := s.clock.Now()
		recorder := &statusRecorder{ResponseWriter: writer}
		next.ServeHTTP(recorder, request)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		route := request.Pattern
		if route == "" {
			route = "unmatched"
		}
		if s.metrics != nil {
			s.metrics.observeRequest(route, status, s.clock.Now().Sub(start))
		}
		s.logger.Debug("request",
			"method", request.Method,
			"route", route,
			"status", status,
		)
	})
}
