/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/relaycast/internal/events"
)

// wsEvent is the wire shape of a pushed RoomEvent, matching
// internal/oscgateway's address mapping in spirit but as JSON rather than
// OSC: a synthetic Init carrying the full room list is always sent first
// (spec.md §4.7 / SPEC_FULL §11), then every subsequent event as it's
// published.
type wsEvent struct {
	Kind       string `json:"kind"`
	Name       string `json:"name,omitempty"`
	Count      int    `json:"count,omitempty"`
	Dispatcher string `json:"dispatcher,omitempty"`
	Rooms      any    `json:"rooms,omitempty"`
}

func toWSEvent(ev events.RoomEvent) wsEvent {
	out := wsEvent{Kind: string(ev.Kind), Name: ev.Name, Count: ev.Count, Dispatcher: ev.Dispatcher}
	if ev.Kind == events.Init {
		out.Rooms = ev.Rooms
	}
	return out
}

// handleRoomEventsWS streams RoomEvents to a subscriber as JSON text
// frames. Per spec.md §4.7, a late subscriber gets no history — only a
// synthetic Init with the current full room list, then live events from
// here forward.
func (a *API) handleRoomEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("room events websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	ctx := r.Context()
	sub := a.bus.Subscribe()

	init := events.RoomEvent{Kind: events.Init, Rooms: a.registry.FullRoomList()}
	if err := a.writeEvent(ctx, conn, init); err != nil {
		return
	}

	for {
		ev, ok := sub.Recv(ctx)
		if !ok {
			conn.Close(ws.StatusNormalClosure, "context done")
			return
		}
		if err := a.writeEvent(ctx, conn, ev); err != nil {
			conn.Close(ws.StatusInternalError, "write failed")
			return
		}
	}
}

func (a *API) writeEvent(ctx context.Context, conn *ws.Conn, ev events.RoomEvent) error {
	data, err := json.Marshal(toWSEvent(ev))
	if err != nil {
		return err
	}
	return conn.Write(ctx, ws.MessageText, data)
}
