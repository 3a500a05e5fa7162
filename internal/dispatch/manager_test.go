/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/friendsincode/relaycast/internal/events"
	"github.com/friendsincode/relaycast/internal/relayerr"
	"github.com/friendsincode/relaycast/internal/relaytypes"
)

func TestManagerCreatePublishesDispatcherCreated(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe()
	m := NewManager(bus)

	if _, err := m.Create("d1", "pw", ".*", relaytypes.KindAudio, Random, 0, "", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, ok := sub.Recv(ctx)
	if !ok || ev.Kind != events.DispatcherCreated || ev.Dispatcher != "d1" {
		t.Fatalf("got %+v ok=%v, want DispatcherCreated(d1)", ev, ok)
	}
}

func TestManagerCreateRejectsDuplicateName(t *testing.T) {
	m := NewManager(events.NewBus())
	if _, err := m.Create("d1", "", ".*", relaytypes.KindAudio, Random, 0, "", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := m.Create("d1", "", ".*", relaytypes.KindAudio, Random, 0, "", false)
	if !errors.Is(err, relayerr.Duplicate) {
		t.Fatalf("got %v, want relayerr.Duplicate", err)
	}
}

func TestManagerGetReturnsFalseWhenAbsent(t *testing.T) {
	m := NewManager(events.NewBus())
	if _, ok := m.Get("missing"); ok {
		t.Fatal("expected Get to report absence for an unknown dispatcher")
	}
}
