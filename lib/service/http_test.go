// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/keybridge/lib/testutil"
)

func TestParseLoopback(t *testing.T) {
	tests := []struct {
		listen  string
		wantErr bool
	}{
		{"/ip4/127.0.0.1/tcp/7823", false},
		{"/ip4/127.0.0.2/tcp/0", false},
		{"/ip6/::1/tcp/7823", false},
		{"/ip4/0.0.0.0/tcp/7823", true},
		{"/ip4/192.168.1.10/tcp/7823", true},
		{"/ip4/127.0.0.1/udp/7823", true},
		{"127.0.0.1:7823", true},
	}

	for _, test := range tests {
		t.Run(test.listen, func(t *testing.T) {
			_, err := ParseLoopback(test.listen)
			if test.wantErr {
				if err == nil {
					t.Fatal("ParseLoopback() = nil error, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLoopback() = %v", err)
			}
		})
	}

	if _, err := ParseLoopback("/ip4/10.0.0.1/tcp/1"); !errors.Is(err, ErrNotLoopback) {
		t.Errorf("error = %v, want ErrNotLoopback", err)
	}
}

func TestNewHTTPServerRejectsPublicAddress(t *testing.T) {
	handler := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	_, err := NewHTTPServer(HTTPServerConfig{
		Listen:  "/ip4/0.0.0.0/tcp/0",
		Handler: handler,
		Logger:  testutil.Logger(t),
	})
	if !errors.Is(err, ErrNotLoopback) {
		t.Fatalf("NewHTTPServer error = %v, want ErrNotLoopback", err)
	}
}

func TestHTTPServerLifecycle(t *testing.T) {
	handler := http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusOK)
		fmt.Fprintf(writer, "ok")
	})

	server, err := NewHTTPServer(HTTPServerConfig{
		Listen:          "/ip4/127.0.0.1/tcp/0",
		Handler:         handler,
		ShutdownTimeout: 2 * time.Second,
		Logger:          testutil.Logger(t),
	})
	if err != nil {
		t.Fatalf("NewHTTPServer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.Serve(ctx)
	}()

	select {
	case <-server.Ready():
	case <-t.Context().Done():
		t.Fatal("server did not become ready before test deadline")
	}

	if !strings.HasPrefix(server.Multiaddr().String(), "/ip4/127.0.0.1/tcp/") {
		t.Errorf("Multiaddr() = %s", server.Multiaddr())
	}
	if strings.HasSuffix(server.Multiaddr().String(), "/tcp/0") {
		t.Errorf("Multiaddr() = %s, want resolved port", server.Multiaddr())
	}

	response, err := http.Get(server.URL() + "/test")
	if err != nil {
		t.Fatalf("GET /test: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Errorf("GET /test status = %d, want 200", response.StatusCode)
	}
	responseBody, _ := io.ReadAll(response.Body)
	if string(responseBody) != "ok" {
		t.Errorf("GET /test body = %q, want %q", responseBody, "ok")
	}

	cancel()

	select {
	case err := <-serveDone:
		if err != nil {
			t.Errorf("Serve() = %v, want nil", err)
		}
	case <-t.Context().Done():
		t.Fatal("server did not shut down before test deadline")
	}
}

func TestHTTPServerCancelsBlockedHandlers(t *testing.T) {
	entered := make(chan struct{})
	handler := http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		close(entered)
		<-request.Context().Done()
		writer.WriteHeader(http.StatusForbidden)
	})

	server, err := NewHTTPServer(HTTPServerConfig{
		Listen:          "/ip4/127.0.0.1/tcp/0",
		Handler:         handler,
		ShutdownTimeout: 5 * time.Second,
		Logger:          testutil.Logger(t),
	})
	if err != nil {
		t.Fatalf("NewHTTPServer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveDone := make(chan error, 1)
	go func() { serveDone <- server.Serve(ctx) }()
	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "server ready")

	go func() {
		response, err := http.Get(server.URL() + "/block")
		if err == nil {
			response.Body.Close()
		}
	}()
	testutil.RequireClosed(t, entered, 5*time.Second, "handler entered")

	cancel()
	if err := testutil.RequireReceive[error](t, serveDone, 5*time.Second, "serve returned"); err != nil {
		t.Errorf("Serve() = %v, want nil", err)
	}
}

func TestHTTPServerPanicsOnMissingConfig(t *testing.T) {
	logger := testutil.Logger(t)
	handler := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	tests := []struct {
		name   string
		config HTTPServerConfig
	}{
		{
			name:   "missing_listen",
			config: HTTPServerConfig{Handler: handler, Logger: logger},
		},
		{
			name:   "missing_handler",
			config: HTTPServerConfig{Listen: "/ip4/127.0.0.1/tcp/0", Logger: logger},
		},
		{
			name:   "missing_logger",
			config: HTTPServerConfig{Listen: "/ip4/127.0.0.1/tcp/0", Handler: handler},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if r := recover(); r == nil {
					t.Error("NewHTTPServer did not panic")
				}
			}()
			NewHTTPServer(tt.config)
		})
	}
}
