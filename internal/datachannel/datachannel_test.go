/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package datachannel

import (
	"context"
	"testing"
	"time"
)

func TestFloatRoundTrip(t *testing.T) {
	want := float32(3.14159)
	raw := EncodeFloat(want)
	if len(raw) != 4 {
		t.Fatalf("expected 4-byte frame, got %d", len(raw))
	}
	got, err := DecodeFloat(raw)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if got != want {
		t.Fatalf("got %v, want %v (bit-exact round trip per spec)", got, want)
	}
}

func TestDecodeFloatRejectsWrongLength(t *testing.T) {
	if _, err := DecodeFloat([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for malformed float frame")
	}
}

func TestPublishFloatDropsMalformedFrame(t *testing.T) {
	p := NewPair(KindFloat)
	sub := p.Inbound.Subscribe()

	PublishFloat(p.Inbound, []byte{0, 1}) // malformed, must be dropped silently
	PublishFloat(p.Inbound, EncodeFloat(1.5))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	item, ok := sub.Recv(ctx)
	if !ok {
		t.Fatal("expected the well-formed frame to be delivered")
	}
	if item.Value.Float != 1.5 {
		t.Fatalf("got %v, want only the well-formed frame delivered", item.Value)
	}
}

func TestPublishStringCarriesRawUTF8(t *testing.T) {
	p := NewPair(KindString)
	sub := p.Outbound.Subscribe()
	PublishString(p.Outbound, EncodeString("Number of listeners: 1"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	item, ok := sub.Recv(ctx)
	if !ok || item.Value.String != "Number of listeners: 1" {
		t.Fatalf("got %+v ok=%v", item, ok)
	}
}

func TestPublishRawDropsMismatchedKind(t *testing.T) {
	p := NewPair(KindString)
	sub := p.Inbound.Subscribe()

	// This channel only accepts KindString; a close-kind publish must be
	// dropped rather than forwarded as-is.
	PublishRaw(p.Inbound, KindClose, nil)
	PublishRaw(p.Inbound, KindString, EncodeString("hello"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	item, ok := sub.Recv(ctx)
	if !ok || item.Value.String != "hello" {
		t.Fatalf("expected only the string frame delivered, got %+v ok=%v", item, ok)
	}
}
