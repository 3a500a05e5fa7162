/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package config reads process-level configuration from environment
// variables, following the teacher's getEnvAny/getEnvIntAny lookup
// pattern (first-match-wins across a list of legacy/canonical keys) but
// trimmed to relaycast's own domain: the HTTP/WebSocket API, WebRTC ICE,
// the OSC gateway, dispatcher persistence, and the optional NATS/Redis
// cross-instance concerns.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DatabaseBackend selects the GORM driver backing internal/dispatchstore.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment
// variables. CLI flags (see cmd/relaycast) take precedence over these
// when both are set, per spec.md §6's `--host`/`--port` contract.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int

	// Dispatcher persistence (internal/dispatchstore). Dispatcher
	// definitions may be persisted; rooms themselves never are.
	DBBackend DatabaseBackend
	DBDSN     string

	// WebRTC ICE configuration (internal/rtcsession).
	WebRTCSTUNURL      string
	WebRTCTURNURL      string
	WebRTCTURNUsername string
	WebRTCTURNPassword string
	ICEGatherTimeout   time.Duration

	// OSC control channel (internal/oscgateway).
	OSCBind string
	OSCPort int

	// Cross-instance event fan-out (internal/eventbus).
	NATSEnabled bool
	NATSURL     string
	NATSToken   string

	// Advisory dispatcher reservation (internal/dispatch.ReservationStore).
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Auth for the admin-gated API surface (internal/api).
	JWTSigningKey string

	// Observability (internal/telemetry).
	MetricsBind       string
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	InstanceID        string
	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the
// result. Unlike the core server (spec.md §6.5: "no environment variables
// required for the core"), Load never fails on missing WebRTC/NATS/Redis
// settings — those concerns are all optional or have safe defaults; it
// only fails when DBDSN is set without a supported DBBackend, since that
// combination can never produce a working dispatcher store.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"RELAYCAST_ENV"}, "development"),
		HTTPBind:    getEnvAny([]string{"RELAYCAST_HTTP_BIND"}, "127.0.0.1"),
		HTTPPort:    getEnvIntAny([]string{"RELAYCAST_HTTP_PORT"}, 8000),

		DBBackend: DatabaseBackend(getEnvAny([]string{"RELAYCAST_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:     getEnvAny([]string{"RELAYCAST_DB_DSN"}, "relaycast.db"),

		WebRTCSTUNURL:      getEnvAny([]string{"RELAYCAST_STUN_URL"}, "stun:stun.l.google.com:19302"),
		WebRTCTURNURL:      getEnvAny([]string{"RELAYCAST_TURN_URL"}, ""),
		WebRTCTURNUsername: getEnvAny([]string{"RELAYCAST_TURN_USERNAME"}, ""),
		WebRTCTURNPassword: getEnvAny([]string{"RELAYCAST_TURN_PASSWORD"}, ""),
		ICEGatherTimeout:   time.Duration(getEnvIntAny([]string{"RELAYCAST_ICE_GATHER_TIMEOUT_SECONDS"}, 5)) * time.Second,

		OSCBind: getEnvAny([]string{"RELAYCAST_OSC_BIND"}, "127.0.0.1"),
		OSCPort: getEnvIntAny([]string{"RELAYCAST_OSC_PORT"}, 9001),

		NATSEnabled: getEnvBoolAny([]string{"RELAYCAST_NATS_ENABLED"}, false),
		NATSURL:     getEnvAny([]string{"RELAYCAST_NATS_URL"}, "nats://localhost:4222"),
		NATSToken:   getEnvAny([]string{"RELAYCAST_NATS_TOKEN"}, ""),

		RedisAddr:     getEnvAny([]string{"RELAYCAST_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword: getEnvAny([]string{"RELAYCAST_REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"RELAYCAST_REDIS_DB"}, 0),

		JWTSigningKey: getEnvAny([]string{"RELAYCAST_JWT_SIGNING_KEY"}, ""),

		MetricsBind:       getEnvAny([]string{"RELAYCAST_METRICS_BIND"}, "127.0.0.1:9090"),
		TracingEnabled:    getEnvBoolAny([]string{"RELAYCAST_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"RELAYCAST_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"RELAYCAST_TRACING_SAMPLE_RATE"}, 1.0),

		InstanceID: getEnvAny([]string{"RELAYCAST_INSTANCE_ID"}, ""),
	}

	switch cfg.DBBackend {
	case DatabasePostgres, DatabaseMySQL, DatabaseSQLite:
	default:
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if strings.EqualFold(cfg.Environment, "production") {
		if cfg.WebRTCTURNURL != "" && (cfg.WebRTCTURNUsername == "" || cfg.WebRTCTURNPassword == "") {
			return nil, fmt.Errorf("RELAYCAST_TURN_USERNAME and RELAYCAST_TURN_PASSWORD are required when TURN is configured in production")
		}
		if cfg.JWTSigningKey == "" {
			return nil, fmt.Errorf("RELAYCAST_JWT_SIGNING_KEY must be set in production")
		}
	}

	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()
	return cfg, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"GRIMNIR_ENV":             "use RELAYCAST_ENV",
		"GRIMNIR_HTTP_BIND":       "use RELAYCAST_HTTP_BIND",
		"GRIMNIR_HTTP_PORT":       "use RELAYCAST_HTTP_PORT",
		"GRIMNIR_JWT_SIGNING_KEY": "use RELAYCAST_JWT_SIGNING_KEY",
		"GRIMNIR_TRACING_ENABLED": "use RELAYCAST_TRACING_ENABLED",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// getEnvAny returns the first non-empty environment variable value from
// keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value
// from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value
// from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value
// from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
