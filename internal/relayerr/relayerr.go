/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package relayerr defines the sentinel error types shared across the relay
// engine so callers can distinguish failure modes with errors.Is/errors.As
// instead of matching on string text.
package relayerr

import "errors"

// Sentinel errors returned by the core relay packages. Wrap with
// fmt.Errorf("...: %w", err) to add context; callers match with errors.Is.
var (
	// SdpDecodeError is returned when an offer/answer cannot be decoded from
	// its base64-JSON wire form.
	SdpDecodeError = errors.New("relayerr: malformed SDP payload")

	// NegotiationError is returned when pion rejects an offer/answer during
	// SetRemoteDescription/SetLocalDescription/CreateAnswer.
	NegotiationError = errors.New("relayerr: negotiation failed")

	// IceTimeout is returned when ICE gathering does not complete within the
	// configured deadline.
	IceTimeout = errors.New("relayerr: ICE gathering timed out")

	// Duplicate is returned when a room, dispatcher, or subscriber already
	// exists under the requested name.
	Duplicate = errors.New("relayerr: already exists")

	// NotReady is returned when an operation is attempted before its
	// prerequisite state has been reached (e.g. replacing a sender before
	// any sender has ever connected).
	NotReady = errors.New("relayerr: not ready")

	// NotFound is returned when a named room or dispatcher does not exist.
	NotFound = errors.New("relayerr: not found")

	// AuthError is returned when a supplied admin password or bearer token
	// does not match the room or dispatcher's credential.
	AuthError = errors.New("relayerr: authentication failed")

	// ChannelClosed is returned when an operation is attempted on a data
	// channel or broadcast channel that has already been closed.
	ChannelClosed = errors.New("relayerr: channel closed")

	// UnsupportedOperation is returned for operations that are structurally
	// invalid for a given room kind, such as replace_sender on a data room.
	UnsupportedOperation = errors.New("relayerr: unsupported operation for this room kind")

	// DecodeFrame is returned when a typed data channel payload cannot be
	// decoded into its expected wire shape.
	DecodeFrame = errors.New("relayerr: could not decode frame")

	// InvalidOscMessage is returned when an inbound OSC message does not
	// match any known address pattern or has the wrong argument shape.
	InvalidOscMessage = errors.New("relayerr: invalid OSC message")

	// NoRoomAvailable is returned by dispatcher selection when no room
	// matches the policy's criteria (e.g. NextFreeAlphabetical with no
	// empty room, even if non-empty rooms exist).
	NoRoomAvailable = errors.New("relayerr: no room available")
)
