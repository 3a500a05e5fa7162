/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package room

import (
	"context"
	"errors"
	"testing"

	"github.com/friendsincode/relaycast/internal/datachannel"
	"github.com/friendsincode/relaycast/internal/events"
	"github.com/friendsincode/relaycast/internal/registry"
	"github.com/friendsincode/relaycast/internal/relayerr"
	"github.com/friendsincode/relaycast/internal/relaytypes"
)

func testRoom() *Room {
	return &Room{
		name:     "room1",
		kind:     relaytypes.KindChat,
		meta:     datachannel.NewPair(datachannel.KindString),
		registry: registry.New(events.NewBus()),
	}
}

func TestGeneratePasswordIsEightAlphanumericChars(t *testing.T) {
	p, err := generatePassword()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p) != 8 {
		t.Fatalf("got length %d, want 8", len(p))
	}
	for _, r := range p {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			t.Fatalf("password %q contains non-alphanumeric rune %q", p, r)
		}
	}
}

func TestResolvePasswordGeneratesWhenEmpty(t *testing.T) {
	plaintext, hash, err := resolvePassword("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plaintext == "" {
		t.Fatal("expected a generated plaintext password when none supplied")
	}
	if len(hash) == 0 {
		t.Fatal("expected a non-empty bcrypt hash")
	}
}

func TestResolvePasswordKeepsSupplied(t *testing.T) {
	plaintext, _, err := resolvePassword("operator-chosen")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plaintext != "operator-chosen" {
		t.Fatalf("got %q, want the supplied password preserved", plaintext)
	}
}

func TestCheckPasswordRejectsMismatch(t *testing.T) {
	_, hash, err := resolvePassword("correct-horse")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := &Room{passwordHash: hash}

	if err := r.checkPassword("correct-horse"); err != nil {
		t.Fatalf("expected the correct password to be accepted, got %v", err)
	}
	if err := r.checkPassword("wrong"); !errors.Is(err, relayerr.AuthError) {
		t.Fatalf("got %v, want relayerr.AuthError for a mismatched password", err)
	}
}

// TestReplaceSenderUnsupportedForDataRooms matches the todo!() in the
// original Rust source's data-room replace_sender dispatch.
func TestReplaceSenderUnsupportedForDataRooms(t *testing.T) {
	r := &Room{kind: relaytypes.KindChat}
	_, err := r.ReplaceSender(context.Background(), "irrelevant", "irrelevant")
	if !errors.Is(err, relayerr.UnsupportedOperation) {
		t.Fatalf("got %v, want relayerr.UnsupportedOperation", err)
	}
}

func TestIncrementDecrementListenersNeverGoesNegative(t *testing.T) {
	r := testRoom()
	r.decrementListeners()
	if r.numListeners != 0 {
		t.Fatalf("got %d, want num_listeners to stay >= 0 per spec.md invariant 1", r.numListeners)
	}

	r.incrementListeners()
	r.incrementListeners()
	r.decrementListeners()
	if r.numListeners != 1 {
		t.Fatalf("got %d, want 1", r.numListeners)
	}
}
