/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server wires relaycast's HTTP API, OSC gateway, and supporting
// services into one process. Grounded on the teacher's internal/server
// chi/middleware/DeferClose/background-worker shape, rebuilt to wire this
// domain's own components (registry, dispatch, room, eventbus,
// oscgateway) instead of the teacher's station-management stack.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/relaycast/internal/api"
	"github.com/friendsincode/relaycast/internal/config"
	"github.com/friendsincode/relaycast/internal/db"
	"github.com/friendsincode/relaycast/internal/dispatch"
	"github.com/friendsincode/relaycast/internal/dispatchstore"
	"github.com/friendsincode/relaycast/internal/events"
	"github.com/friendsincode/relaycast/internal/eventbus"
	"github.com/friendsincode/relaycast/internal/oscgateway"
	"github.com/friendsincode/relaycast/internal/registry"
	"github.com/friendsincode/relaycast/internal/relaytypes"
	"github.com/friendsincode/relaycast/internal/rtcsession"
	"github.com/friendsincode/relaycast/internal/telemetry"
)

// Server bundles the HTTP API, the OSC gateway, and every service they
// share.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db          *gorm.DB
	bus         *events.Bus
	registry    *registry.Registry
	dispatchers *dispatch.Manager
	store       *dispatchstore.Store
	api         *api.API
	oscGateway  *oscgateway.Gateway
	oscListener net.Listener
	tracer      *telemetry.TracerProvider

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires every dependency.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("relaycast-api"))
	router.Use(telemetry.MetricsMiddleware)
	// Skip the request timeout for the room events WebSocket feed, which is
	// a deliberately long-lived connection.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		bus:    events.NewBus(),
	}

	if err := srv.initDependencies(); err != nil {
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:         addr,
		Handler:      srv.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // the events feed is a long-lived streaming connection
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

func (s *Server) initDependencies() error {
	s.registry = registry.New(s.bus)
	s.dispatchers = dispatch.NewManager(s.bus)

	database, err := db.Connect(s.cfg)
	if err != nil {
		return fmt.Errorf("connect dispatcher store database: %w", err)
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	s.store = dispatchstore.New(database)
	if err := s.store.Migrate(); err != nil {
		return fmt.Errorf("migrate dispatcher store: %w", err)
	}
	if err := s.restoreDispatchers(); err != nil {
		return fmt.Errorf("restore persisted dispatchers: %w", err)
	}

	if s.cfg.TracingEnabled {
		tp, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
			ServiceName:  "relaycast",
			OTLPEndpoint: s.cfg.OTLPEndpoint,
			Enabled:      s.cfg.TracingEnabled,
			SampleRate:   s.cfg.TracingSampleRate,
		}, s.logger)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		s.tracer = tp
		s.DeferClose(func() error { return tp.Shutdown(context.Background()) })
	}

	if s.cfg.NATSEnabled {
		nodeID := eventbus.GenerateNodeID()
		natsCfg := eventbus.DefaultConfig()
		natsCfg.URL = s.cfg.NATSURL
		natsCfg.Token = s.cfg.NATSToken
		natsBus, err := eventbus.New(natsCfg, s.bus, nodeID, s.logger)
		if err != nil {
			return fmt.Errorf("connect NATS event bus: %w", err)
		}
		s.DeferClose(natsBus.Close)
		s.logger.Info().Str("node_id", nodeID).Msg("cross-instance event fan-out enabled via NATS")
	}

	ice := rtcsession.ICEConfig{
		STUNServer:    s.cfg.WebRTCSTUNURL,
		TURNServer:    s.cfg.WebRTCTURNURL,
		TURNUsername:  s.cfg.WebRTCTURNUsername,
		TURNPassword:  s.cfg.WebRTCTURNPassword,
		GatherTimeout: s.cfg.ICEGatherTimeout,
	}

	s.api = api.New(s.registry, s.dispatchers, s.bus, ice, []byte(s.cfg.JWTSigningKey), s.logger)
	s.oscGateway = oscgateway.New(s.dispatchers, s.bus, s.logger)

	return nil
}

// restoreDispatchers loads every persisted dispatcher definition from the
// store and recreates it in the in-memory manager, so an operator's
// dispatchers survive a process restart (SPEC_FULL §11; spec.md itself
// has no persisted state).
func (s *Server) restoreDispatchers() error {
	records, err := s.store.LoadAll()
	if err != nil {
		return err
	}
	for _, rec := range records {
		// The store only ever hashes an admin password; a restored
		// dispatcher's in-memory AdminPassword is intentionally left
		// blank, matching internal/dispatchstore's ledger entry: password
		// verification for a restored dispatcher happens against the
		// store, not the in-memory Dispatcher, which is out of scope for
		// this pass (see DESIGN.md).
		kind := relaytypes.RoomKind(rec.Kind)
		if _, err := s.dispatchers.Create(rec.Name, "", rec.Pattern, kind, dispatch.Policy(rec.Policy), time.Duration(rec.TimeoutSeconds)*time.Second, rec.ReturnRoomPrefix, rec.AddRandomPostfix); err != nil {
			s.logger.Warn().Err(err).Str("dispatcher", rec.Name).Msg("failed to restore persisted dispatcher")
		}
	}
	return nil
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeferClose registers a cleanup hook run in reverse order by Close.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	addr := fmt.Sprintf("%s:%d", s.cfg.OSCBind, s.cfg.OSCPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.logger.Error().Err(err).Str("addr", addr).Msg("OSC gateway failed to bind, control channel disabled")
	} else {
		s.oscListener = ln
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			if err := s.oscGateway.Serve(ctx, ln); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, net.ErrClosed) {
				s.logger.Error().Err(err).Msg("OSC gateway exited")
			}
		}()
		s.logger.Info().Str("addr", addr).Msg("OSC gateway listening")
	}

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.UpdateConnectionMetrics(s.db)
			}
		}
	}()
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	if s.oscListener != nil {
		_ = s.oscListener.Close()
	}
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.router.Handle("/metrics", telemetry.Handler())

	s.api.Routes(s.router)
}
