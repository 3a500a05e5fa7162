/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api implements the HTTP/WebSocket boundary of spec.md §6: the
// createRoom/joinRoom/replaceSender mutations, a dispatcher-backed
// redirect view, and a push feed of RoomEvents. Grounded on the teacher's
// internal/api/api.go chi wiring (API struct, New constructor, Routes
// method, authMiddleware helper) but rebuilt for this domain — none of
// the teacher's station/schedule/media handlers apply here (see
// DESIGN.md's "internal/api — teacher collision" entry).
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/relaycast/internal/auth"
	"github.com/friendsincode/relaycast/internal/dispatch"
	"github.com/friendsincode/relaycast/internal/events"
	"github.com/friendsincode/relaycast/internal/registry"
	"github.com/friendsincode/relaycast/internal/relaytypes"
	"github.com/friendsincode/relaycast/internal/room"
	"github.com/friendsincode/relaycast/internal/rtcsession"
)

// API exposes relaycast's HTTP handlers.
type API struct {
	registry    *registry.Registry
	dispatchers *dispatch.Manager
	bus         *events.Bus
	ice         rtcsession.ICEConfig
	jwtSecret   []byte
	logger      zerolog.Logger
}

// New creates the API router wrapper.
func New(reg *registry.Registry, dispatchers *dispatch.Manager, bus *events.Bus, ice rtcsession.ICEConfig, jwtSecret []byte, logger zerolog.Logger) *API {
	return &API{
		registry:    reg,
		dispatchers: dispatchers,
		bus:         bus,
		ice:         ice,
		jwtSecret:   jwtSecret,
		logger:      logger.With().Str("component", "api").Logger(),
	}
}

// Routes registers every handler on r per spec.md §6's HTTP/API surface,
// plus the SPEC_FULL.md §11 additions (room listing, event feed,
// dispatcher redirect view).
func (a *API) Routes(r chi.Router) {
	r.Route("/api/rooms", func(r chi.Router) {
		r.Get("/", a.handleListRooms)
		r.Get("/ws", a.handleRoomEventsWS)

		r.Route("/{kind}", func(r chi.Router) {
			r.Post("/", a.handleCreateRoom)
			r.Route("/{name}", func(r chi.Router) {
				r.Post("/join", a.handleJoinRoom)
				r.Post("/replace-sender", a.handleReplaceSender)
			})
		})
	})

	r.Get("/d/{dispatcher}", a.handleDispatcherView)

	r.Route("/api/dispatchers", func(r chi.Router) {
		r.Use(auth.Middleware(a.jwtSecret))
		r.Post("/{name}", a.handleCreateDispatcher)
		r.Delete("/{name}", a.handleDeleteDispatcher)
	})
}

func parseKind(raw string) (relaytypes.RoomKind, bool) {
	kind := relaytypes.RoomKind(raw)
	return kind, kind.Valid()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type createRoomRequest struct {
	Name     string `json:"name"`
	OfferB64 string `json:"offer"`
	Password string `json:"password,omitempty"`
}

type createRoomResponse struct {
	AnswerB64 string `json:"answer"`
	Password  string `json:"password"`
}

// handleCreateRoom implements spec.md §6's createRoom(name, offer,
// roomType) mutation.
func (a *API) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKind(chi.URLParam(r, "kind"))
	if !ok {
		writeError(w, http.StatusBadRequest, errInvalidRoomKind)
		return
	}

	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var (
		reply *room.CreationReply
		err   error
	)
	if kind == relaytypes.KindAudio {
		_, reply, err = room.CreateAudio(r.Context(), a.registry, a.bus, a.ice, a.logger, req.Name, req.OfferB64, req.Password)
	} else {
		_, reply, err = room.CreateData(r.Context(), a.registry, a.bus, a.ice, a.logger, req.Name, kind, req.OfferB64, req.Password)
	}
	if err != nil {
		writeRoomError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createRoomResponse{AnswerB64: reply.AnswerB64, Password: reply.Password})
}

type joinRoomRequest struct {
	OfferB64 string `json:"offer"`
}

type joinRoomResponse struct {
	AnswerB64 string `json:"answer"`
}

// handleJoinRoom implements spec.md §6's joinRoom(name, offer, roomType).
func (a *API) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKind(chi.URLParam(r, "kind"))
	if !ok {
		writeError(w, http.StatusBadRequest, errInvalidRoomKind)
		return
	}
	name := chi.URLParam(r, "name")

	handle, ok := a.registry.Get(kind, name)
	if !ok {
		writeError(w, http.StatusNotFound, errRoomNotFound)
		return
	}
	rm, ok := handle.(*room.Room)
	if !ok {
		writeError(w, http.StatusInternalServerError, errRoomNotFound)
		return
	}

	var req joinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	answer, err := rm.Join(r.Context(), req.OfferB64)
	if err != nil {
		writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, joinRoomResponse{AnswerB64: answer})
}

type replaceSenderRequest struct {
	OfferB64 string `json:"offer"`
	Password string `json:"password,omitempty"`
}

// handleReplaceSender implements spec.md §6's replaceSender(name, offer,
// password, roomType).
func (a *API) handleReplaceSender(w http.ResponseWriter, r *http.Request) {
	kind, ok := parseKind(chi.URLParam(r, "kind"))
	if !ok {
		writeError(w, http.StatusBadRequest, errInvalidRoomKind)
		return
	}
	name := chi.URLParam(r, "name")

	handle, ok := a.registry.Get(kind, name)
	if !ok {
		writeError(w, http.StatusNotFound, errRoomNotFound)
		return
	}
	rm, ok := handle.(*room.Room)
	if !ok {
		writeError(w, http.StatusInternalServerError, errRoomNotFound)
		return
	}

	var req replaceSenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	answer, err := rm.ReplaceSender(r.Context(), req.OfferB64, req.Password)
	if err != nil {
		writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, joinRoomResponse{AnswerB64: answer})
}

// handleListRooms returns a snapshot across every kind (SPEC_FULL §11).
func (a *API) handleListRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.registry.FullRoomList())
}

// handleDispatcherView implements the redirect view from
// original_source/src/server/views.rs::dispatcher_view: resolve a room via
// the named dispatcher's ChooseRoom and redirect the caller to its join
// page, per spec.md §4.6 ("the caller constructs the external URL; if
// add_random_postfix, append -XXXX").
func (a *API) handleDispatcherView(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "dispatcher")
	d, ok := a.dispatchers.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, errDispatcherNotFound)
		return
	}

	snapshot := a.registry.List(d.Kind)
	sel, err := d.ChooseRoom(snapshot)
	if err != nil {
		writeRoomError(w, err)
		return
	}

	roomName := sel.RoomName
	if d.AddRandomPostfix {
		postfix, err := dispatch.RandomPostfix()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		roomName += "-" + postfix
	}

	uri := "/s/" + roomName
	if sel.ReturnRoomPrefix != "" {
		uri += "?returnRoomPrefix=" + sel.ReturnRoomPrefix
	}
	http.Redirect(w, r, uri, http.StatusFound)
}

type createDispatcherRequest struct {
	AdminPassword    string `json:"admin_password"`
	Pattern          string `json:"pattern"`
	Kind             string `json:"kind"`
	Policy           string `json:"policy"`
	TimeoutSeconds   int    `json:"timeout_seconds"`
	ReturnRoomPrefix string `json:"return_room_prefix,omitempty"`
	AddRandomPostfix bool   `json:"add_random_postfix,omitempty"`
}

// handleCreateDispatcher is an HTTP-gated equivalent of internal/oscgateway's
// /createDispatcher handler (SPEC_FULL §11), for operators who prefer not to
// open an OSC connection. Gated behind auth.Middleware since a dispatcher's
// admin_password is itself a secret this endpoint could otherwise leak.
func (a *API) handleCreateDispatcher(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req createDispatcherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	kind, ok := parseKind(req.Kind)
	if !ok {
		writeError(w, http.StatusBadRequest, errInvalidRoomKind)
		return
	}
	policy := dispatch.Policy(req.Policy)
	switch policy {
	case dispatch.Random, dispatch.NextFreeAlphabetical, dispatch.NextFreeRandom:
	default:
		writeError(w, http.StatusBadRequest, errInvalidDispatcherPolicy)
		return
	}

	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	d, err := a.dispatchers.Create(name, req.AdminPassword, req.Pattern, kind, policy, timeout, req.ReturnRoomPrefix, req.AddRandomPostfix)
	if err != nil {
		writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"name": d.Name})
}

// handleDeleteDispatcher removes a dispatcher definition.
func (a *API) handleDeleteDispatcher(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := a.dispatchers.Get(name); !ok {
		writeError(w, http.StatusNotFound, errDispatcherNotFound)
		return
	}
	a.dispatchers.Delete(name)
	w.WriteHeader(http.StatusNoContent)
}
