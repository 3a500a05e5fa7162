/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package datachannel implements the typed data-channel fan-out (C2): one
// application-level channel fronted by three broadcast streams (inbound,
// outbound, close), with the wire encodings spec.md §4.2 defines for each
// payload kind.
package datachannel

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/friendsincode/relaycast/internal/fanout"
)

// Kind is the payload type a channel carries.
type Kind int

const (
	// KindFloat carries 4-byte big-endian IEEE-754 float32 samples.
	KindFloat Kind = iota
	// KindString carries raw UTF-8 text, including meta/status messages.
	KindString
	// KindClose carries no payload; it is only ever used for the close
	// broadcast stream.
	KindClose
)

const (
	inboundCapacity  = 1024
	outboundCapacity = 1024
	closeCapacity    = 1
)

// Frame is a decoded payload plus the raw bytes it came from, so a listener
// that only needs to forward bytes verbatim (e.g. a text meta fan-out) need
// not re-encode.
type Frame struct {
	Float  float32
	String string
	Raw    []byte
}

// EncodeFloat produces the 4-byte big-endian wire form of an f32 sample.
func EncodeFloat(v float32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, math.Float32bits(v))
	return buf
}

// DecodeFloat parses a 4-byte big-endian f32 sample.
func DecodeFloat(b []byte) (float32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("datachannel: float frame must be 4 bytes, got %d", len(b))
	}
	return math.Float32frombits(binary.BigEndian.Uint32(b)), nil
}

// EncodeString produces the raw UTF-8 wire form of a text payload.
func EncodeString(s string) []byte {
	return []byte(s)
}

// Pair is a DataChannelPair (spec.md §3): inbound messages came from the
// broadcaster, outbound messages are sent to connected listeners, and close
// signals every dependent task to exit.
type Pair struct {
	Kind     Kind
	Inbound  *fanout.Channel[Frame]
	Outbound *fanout.Channel[Frame]
	Close    *fanout.Channel[struct{}]
}

// NewPair creates a DataChannelPair with spec.md §4.2's fixed capacities.
func NewPair(kind Kind) *Pair {
	return &Pair{
		Kind:     kind,
		Inbound:  fanout.New[Frame](inboundCapacity),
		Outbound: fanout.New[Frame](outboundCapacity),
		Close:    fanout.New[struct{}](closeCapacity),
	}
}

// PublishFloat decodes a raw wire frame as a float and publishes it to ch.
// A frame that doesn't match the channel's declared kind is dropped and
// logged, never forwarded — decoding never blocks the sender.
func PublishFloat(ch *fanout.Channel[Frame], raw []byte) {
	v, err := DecodeFloat(raw)
	if err != nil {
		log.Warn().Err(err).Msg("datachannel: dropping malformed float frame")
		return
	}
	ch.Publish(Frame{Float: v, Raw: raw})
}

// PublishString publishes a raw UTF-8 payload as a string frame.
func PublishString(ch *fanout.Channel[Frame], raw []byte) {
	ch.Publish(Frame{String: string(raw), Raw: raw})
}

// PublishRaw publishes raw bytes, decoding according to kind. Unknown kinds
// are dropped with a warning rather than forwarded undecoded, matching
// spec.md §4.2's "decoding rejects payloads not matching the channel's
// declared type" requirement.
func PublishRaw(ch *fanout.Channel[Frame], kind Kind, raw []byte) {
	switch kind {
	case KindFloat:
		PublishFloat(ch, raw)
	case KindString:
		PublishString(ch, raw)
	default:
		log.Warn().Int("kind", int(kind)).Msg("datachannel: dropping frame for unsupported channel kind")
	}
}

// SignalClose broadcasts the close signal exactly once; callers may call it
// more than once, only the first publish matters since dependent tasks only
// need to observe it fire.
func (p *Pair) SignalClose() {
	p.Close.Publish(struct{}{})
}
