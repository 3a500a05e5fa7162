/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import "testing"

func TestLoadAppliesDefaultsWithNoEnvironmentSet(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTPBind != "127.0.0.1" || cfg.HTTPPort != 8000 {
		t.Fatalf("got bind=%q port=%d, want 127.0.0.1:8000 per spec.md §6's CLI defaults", cfg.HTTPBind, cfg.HTTPPort)
	}
	if cfg.DBBackend != DatabaseSQLite {
		t.Fatalf("got backend=%q, want sqlite default", cfg.DBBackend)
	}
}

func TestLoadReadsWebRTCAndOSCSettings(t *testing.T) {
	t.Setenv("RELAYCAST_STUN_URL", "stun:stun.example.com:3478")
	t.Setenv("RELAYCAST_OSC_PORT", "9100")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.WebRTCSTUNURL != "stun:stun.example.com:3478" {
		t.Fatalf("unexpected STUN URL: %q", cfg.WebRTCSTUNURL)
	}
	if cfg.OSCPort != 9100 {
		t.Fatalf("got OSC port %d, want 9100", cfg.OSCPort)
	}
}

func TestLoadReportsLegacyEnvWarnings(t *testing.T) {
	t.Setenv("GRIMNIR_JWT_SIGNING_KEY", "legacy")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.LegacyEnvWarnings) == 0 {
		t.Fatal("expected legacy env warnings")
	}
}

func TestLoadRejectsUnsupportedDatabaseBackend(t *testing.T) {
	t.Setenv("RELAYCAST_DB_BACKEND", "mongodb")
	if _, err := Load(); err == nil {
		t.Fatal("expected an error for an unsupported database backend")
	}
}

func TestLoadProductionRequiresTurnCredentialsWhenTurnConfigured(t *testing.T) {
	t.Setenv("RELAYCAST_ENV", "production")
	t.Setenv("RELAYCAST_JWT_SIGNING_KEY", "supersecret")
	t.Setenv("RELAYCAST_TURN_URL", "turn:turn.example.com:3478")
	t.Setenv("RELAYCAST_TURN_USERNAME", "")
	t.Setenv("RELAYCAST_TURN_PASSWORD", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected production config load to fail when TURN credentials are missing")
	}

	t.Setenv("RELAYCAST_TURN_USERNAME", "user")
	t.Setenv("RELAYCAST_TURN_PASSWORD", "pass")
	if _, err := Load(); err != nil {
		t.Fatalf("expected production config load with TURN creds to succeed: %v", err)
	}
}

func TestLoadProductionRequiresJWTSigningKey(t *testing.T) {
	t.Setenv("RELAYCAST_ENV", "production")
	t.Setenv("RELAYCAST_JWT_SIGNING_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected production config load to fail without a JWT signing key")
	}
}
