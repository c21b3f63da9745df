// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
)

// ErrNotLoopback is returned when a listen address would expose the
// server beyond the local host.
var ErrNotLoopback = errors.New("service: listen address is not a loopback address")

// HTTPServer serves HTTP on a loopback TCP listener described by a
// multiaddr (for example /ip4/127.0.0.1/tcp/7823). The server manages
// listener lifecycle and graceful shutdown; the caller provides the
// http.Handler.
//
// Serve(ctx) blocks until the context is cancelled and active requests
// drain. Request contexts derive from the Serve context, so handlers
// blocked on a human decision observe shutdown and return.
type HTTPServer struct {
	listen  multiaddr.Multiaddr
	handler http.Handler
	logger  *slog.Logger

	// shutdownTimeout is the maximum time to wait for active
	// requests to complete after the context is cancelled.
	shutdownTimeout time.Duration

	// ready is closed after the listener is bound and the server
	// is accepting connections.
	ready chan struct{}

	// addr and boundMultiaddr are the resolved listen address,
	// available after ready is closed.
	addr           net.Addr
	boundMultiaddr multiaddr.Multiaddr
}

// HTTPServerConfig configures an HTTPServer.
type HTTPServerConfig struct {
	// Listen is the multiaddr to bind (e.g. "/ip4/127.0.0.1/tcp/7823",
	// "/ip6/::1/tcp/0"). Must be loopback. Required.
	Listen string

	// Handler is the HTTP handler for incoming requests. Required.
	Handler http.Handler

	// ShutdownTimeout is the maximum time to wait for in-flight
	// requests to complete during graceful shutdown. Defaults to
	// 10 seconds if zero.
	ShutdownTimeout time.Duration

	// Logger is the structured logger. Required.
	Logger *slog.Logger
}

// ParseLoopback parses a listen multiaddr and rejects anything that is
// not an IPv4 or IPv6 loopback TCP address.
func ParseLoopback(listen string) (multiaddr.Multiaddr, error) {
	address, err := multiaddr.NewMultiaddr(listen)
	if err != nil {
		return nil, fmt.Errorf("service: parsing listen address %q: %w", listen, err)
	}
	if !manet.IsIPLoopback(address) {
		return nil, fmt.Errorf("%w: %s", ErrNotLoopback, address)
	}
	if _, err := address.ValueForProtocol(multiaddr.P_TCP); err != nil {
		return nil, fmt.Errorf("service: listen address %s has no tcp component", address)
	}
	return address, nil
}

// NewHTTPServer creates a server that will listen on the configured
// multiaddr. Missing required fields panic; an invalid or non-loopback
// address is returned as an error. Call Serve to start accepting
// connections.
func NewHTTPServer(config HTTPServerConfig) (*HTTPServer, error) {
	if config.Listen == "" {
		panic("service.HTTPServer: Listen is required")
	}
	if config.Handler == nil {
		panic("service.HTTPServer: Handler is required")
	}
	if config.Logger == nil {
		panic("service.HTTPServer: Logger is required")
	}

	listen, err := ParseLoopback(config.Listen)
	if err != nil {
		return nil, err
	}

	timeout := config.ShutdownTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &HTTPServer{
		listen:          listen,
		handler:         config.Handler,
		logger:          config.Logger,
		shutdownTimeout: timeout,
		ready:           make(chan struct{}),
	}, nil
}

// Ready returns a channel that is closed once the server is bound
// and accepting connections.
func (s *HTTPServer) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the resolved listen address. Only valid after Ready()
// is closed. With a tcp/0 multiaddr the resolved address contains the
// OS-assigned port.
func (s *HTTPServer) Addr() net.Addr {
	return s.addr
}

// Multiaddr returns the resolved listen address as a multiaddr. Only
// valid after Ready() is closed.
func (s *HTTPServer) Multiaddr() multiaddr.Multiaddr {
	return s.boundMultiaddr
}

// URL returns the base URL clients use to reach the server. Only valid
// after Ready() is closed.
func (s *HTTPServer) URL() string {
	return "http://" + s.addr.String()
}

// Serve starts accepting HTTP connections. Blocks until ctx is
// cancelled, then performs graceful shutdown: stops accepting new
// connections and waits up to ShutdownTimeout for active requests
// to complete.
func (s *HTTPServer) Serve(ctx context.Context) error {
	listener, err := manet.Listen(s.listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.listen, err)
	}
	s.boundMultiaddr = listener.Multiaddr()
	netListener := manet.NetListener(listener)
	s.addr = netListener.Addr()
	close(s.ready)

	server := &http.Server{
		Handler: s.handler,

		// No WriteTimeout: sign and import hold the response open
		// while a human decides, bounded by the consent deadline.
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,

		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	s.logger.Info("http server listening", "address", s.addr.String(), "multiaddr", s.boundMultiaddr.String())

	serveDone := make(chan error, 1)
	go func() {
		if err := server.Serve(netListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
	case err := <-serveDone:
		if err != nil {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("http server shutdown error", "error", err)
		return fmt.Errorf("http server shutdown: %w", err)
	}

	s.logger.Info("http server stopped")
	return nil
}
