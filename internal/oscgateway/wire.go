/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package oscgateway implements the C8 OSC control channel: a raw TCP
// listener speaking OSC 1.0 messages framed with a 4-byte big-endian
// length prefix, used by external tooling to provision dispatchers and
// to receive a best-effort push feed of room lifecycle events.
//
// No OSC library appears anywhere in the retrieved example corpus, so the
// wire format is hand-rolled against encoding/binary rather than reaching
// for a stdlib-only shortcut for convenience — there is simply no
// third-party OSC codec available to wire in here.
package oscgateway

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/friendsincode/relaycast/internal/relayerr"
)

// ArgKind tags the type of a single OSC argument. Only the two kinds this
// gateway's message vocabulary actually uses are supported.
type ArgKind byte

const (
	ArgString ArgKind = 's'
	ArgInt    ArgKind = 'i'
)

// Arg is a single typed OSC argument.
type Arg struct {
	Kind ArgKind
	Str  string
	Int  int32
}

// StringArg builds a string-typed argument.
func StringArg(s string) Arg { return Arg{Kind: ArgString, Str: s} }

// IntArg builds an int32-typed argument.
func IntArg(i int32) Arg { return Arg{Kind: ArgInt, Int: i} }

// Message is a single OSC message: an address pattern plus a typed
// argument list. This gateway never sends or receives OSC bundles.
type Message struct {
	Address string
	Args    []Arg
}

func pad4(n int) int {
	rem := n % 4
	if rem == 0 {
		return n
	}
	return n + (4 - rem)
}

func appendPaddedString(buf []byte, s string) []byte {
	buf = append(buf, s...)
	buf = append(buf, 0)
	for len(buf)%4 != 0 {
		buf = append(buf, 0)
	}
	return buf
}

// Encode serializes m into the OSC 1.0 binary message format (address,
// comma-prefixed type-tag string, then each argument, each field padded
// to a 4-byte boundary with trailing NUL bytes).
func Encode(m Message) []byte {
	buf := appendPaddedString(nil, m.Address)

	tags := make([]byte, 0, len(m.Args)+1)
	tags = append(tags, ',')
	for _, a := range m.Args {
		tags = append(tags, byte(a.Kind))
	}
	buf = appendPaddedString(buf, string(tags))

	for _, a := range m.Args {
		switch a.Kind {
		case ArgString:
			buf = appendPaddedString(buf, a.Str)
		case ArgInt:
			var tmp [4]byte
			binary.BigEndian.PutUint32(tmp[:], uint32(a.Int))
			buf = append(buf, tmp[:]...)
		}
	}
	return buf
}

func readPaddedString(b []byte) (string, []byte, error) {
	end := -1
	for i, c := range b {
		if c == 0 {
			end = i
			break
		}
	}
	if end < 0 {
		return "", nil, fmt.Errorf("oscgateway: decode: %w: unterminated string", relayerr.InvalidOscMessage)
	}
	s := string(b[:end])
	consumed := pad4(end + 1)
	if consumed > len(b) {
		return "", nil, fmt.Errorf("oscgateway: decode: %w: truncated padding", relayerr.InvalidOscMessage)
	}
	return s, b[consumed:], nil
}

// Decode parses a single OSC message from b. b must contain exactly one
// encoded message (no trailing bytes, no bundle wrapper).
func Decode(b []byte) (Message, error) {
	addr, rest, err := readPaddedString(b)
	if err != nil {
		return Message{}, err
	}
	tags, rest, err := readPaddedString(rest)
	if err != nil {
		return Message{}, err
	}
	if len(tags) == 0 || tags[0] != ',' {
		return Message{}, fmt.Errorf("oscgateway: decode: %w: missing type tag prefix", relayerr.InvalidOscMessage)
	}

	msg := Message{Address: addr}
	for _, tag := range tags[1:] {
		switch ArgKind(tag) {
		case ArgString:
			s, r, err := readPaddedString(rest)
			if err != nil {
				return Message{}, err
			}
			msg.Args = append(msg.Args, StringArg(s))
			rest = r
		case ArgInt:
			if len(rest) < 4 {
				return Message{}, fmt.Errorf("oscgateway: decode: %w: truncated int arg", relayerr.InvalidOscMessage)
			}
			msg.Args = append(msg.Args, IntArg(int32(binary.BigEndian.Uint32(rest[:4]))))
			rest = rest[4:]
		default:
			return Message{}, fmt.Errorf("oscgateway: decode: %w: unsupported type tag %q", relayerr.InvalidOscMessage, tag)
		}
	}
	return msg, nil
}

// WriteFramed writes m to w prefixed by its 4-byte big-endian length, the
// framing original_source's OscDecoder/OscEncoder use over raw TCP.
func WriteFramed(w io.Writer, m Message) error {
	body := Encode(m)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("oscgateway: write frame length: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("oscgateway: write frame body: %w", err)
	}
	return nil
}

// ReadFramed reads one length-prefixed OSC message from r.
func ReadFramed(r io.Reader) (Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Message{}, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Message{}, fmt.Errorf("oscgateway: read frame body: %w", err)
	}
	return Decode(body)
}
