/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/relaycast/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		HTTPBind:    "127.0.0.1",
		HTTPPort:    0,
		DBBackend:   config.DatabaseSQLite,
		DBDSN:       ":memory:",
		OSCBind:     "127.0.0.1",
		OSCPort:     0,
	}
}

func TestNew_WiresHealthzAndMetrics(t *testing.T) {
	srv, err := New(testConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer srv.Close()

	req := httptest.NewRequest("GET", "/healthz", nil)
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)
	if rr.Code != 200 {
		t.Fatalf("GET /healthz = %d, want 200", rr.Code)
	}

	req = httptest.NewRequest("GET", "/metrics", nil)
	rr = httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)
	if rr.Code != 200 {
		t.Fatalf("GET /metrics = %d, want 200", rr.Code)
	}
}

func TestNew_RoomsAPIIsMounted(t *testing.T) {
	srv, err := New(testConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer srv.Close()

	req := httptest.NewRequest("GET", "/api/rooms", nil)
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)
	if rr.Code != 200 {
		t.Fatalf("GET /api/rooms = %d, want 200, body=%s", rr.Code, rr.Body.String())
	}
}

func TestClose_IsIdempotentAfterFailedBind(t *testing.T) {
	cfg := testConfig()
	srv, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
}
