/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/friendsincode/relaycast/internal/events"
	"github.com/friendsincode/relaycast/internal/relayerr"
	"github.com/friendsincode/relaycast/internal/relaytypes"
)

type stubHandle struct {
	summary relaytypes.RoomSummary
}

func (s stubHandle) Summary() relaytypes.RoomSummary { return s.summary }

func TestInsertRejectsDuplicateWithinSameKind(t *testing.T) {
	r := New(events.NewBus())
	h := stubHandle{relaytypes.RoomSummary{Name: "room1", Kind: relaytypes.KindAudio}}

	if err := r.Insert(relaytypes.KindAudio, "room1", h); err != nil {
		t.Fatalf("first insert should succeed, got %v", err)
	}
	err := r.Insert(relaytypes.KindAudio, "room1", h)
	if !errors.Is(err, relayerr.Duplicate) {
		t.Fatalf("expected relayerr.Duplicate, got %v", err)
	}
}

func TestSameNameAllowedAcrossDifferentKinds(t *testing.T) {
	r := New(events.NewBus())
	h := stubHandle{relaytypes.RoomSummary{Name: "room1"}}

	if err := r.Insert(relaytypes.KindAudio, "room1", h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Insert(relaytypes.KindFloat, "room1", h); err != nil {
		t.Fatalf("same name in a different kind must be allowed, got %v", err)
	}
}

func TestInsertPublishesRoomCreatedBeforeReturning(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe()
	r := New(bus)

	if err := r.Insert(relaytypes.KindAudio, "room1", stubHandle{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, ok := sub.Recv(ctx)
	if !ok || ev.Kind != events.RoomCreated || ev.Name != "room1" {
		t.Fatalf("got %+v ok=%v, want RoomCreated(room1)", ev, ok)
	}
}

func TestRemovePublishesRoomDeleted(t *testing.T) {
	bus := events.NewBus()
	r := New(bus)
	_ = r.Insert(relaytypes.KindAudio, "room1", stubHandle{})
	sub := bus.Subscribe()

	r.Remove(relaytypes.KindAudio, "room1")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, ok := sub.Recv(ctx)
	if !ok || ev.Kind != events.RoomDeleted || ev.Name != "room1" {
		t.Fatalf("got %+v ok=%v, want RoomDeleted(room1)", ev, ok)
	}
	if r.Contains(relaytypes.KindAudio, "room1") {
		t.Fatal("expected room1 to be gone after Remove")
	}
}

func TestListReflectsCurrentMembership(t *testing.T) {
	r := New(events.NewBus())
	_ = r.Insert(relaytypes.KindFloat, "a", stubHandle{relaytypes.RoomSummary{Name: "a"}})
	_ = r.Insert(relaytypes.KindFloat, "b", stubHandle{relaytypes.RoomSummary{Name: "b"}})

	names := map[string]bool{}
	for _, s := range r.List(relaytypes.KindFloat) {
		names[s.Name] = true
	}
	if !names["a"] || !names["b"] || len(names) != 2 {
		t.Fatalf("got %v, want exactly {a,b}", names)
	}
}
