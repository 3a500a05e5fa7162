/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package audiorelay implements the audio relay (C3): an RTP pump from one
// remote track into one shared local track, with strict sequence-number
// rewriting across sender replacement. Unlike the teacher's broadcaster,
// which detects discontinuities and shifts timestamps, this package follows
// spec.md §4.3's simpler contract exactly: sequence numbers are always
// exactly one greater than the previously written packet, modulo 2^16, and
// timestamp continuity is left to the codec.
package audiorelay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/friendsincode/relaycast/internal/fanout"
	"github.com/friendsincode/relaycast/internal/telemetry"
)

// Relay is the AudioRelay value from spec.md §3: a watched option of the
// shared local track, a reset signal that cancels the active ingress pump,
// and the last sequence number published so a replacement pump can resume
// continuity.
type Relay struct {
	mu        sync.Mutex
	track     *webrtc.TrackLocalStaticRTP
	hasTrack  bool
	trackSema chan struct{} // closed once track becomes Some(t)

	reset *fanout.Channel[struct{}]

	lastSeq  uint16
	seqKnown bool
	logger   zerolog.Logger

	pumpDone chan struct{} // closed when the active Pump call returns; nil if none has run yet

	roomName string
}

// New creates an AudioRelay with no local track yet (shared_local_track
// starts None per spec.md §3). roomName labels the relay's RTP metrics.
func New(logger zerolog.Logger, roomName string) *Relay {
	return &Relay{
		trackSema: make(chan struct{}),
		reset:     fanout.New[struct{}](1),
		logger:    logger.With().Str("component", "audiorelay").Logger(),
		roomName:  roomName,
	}
}

// Track returns the current shared local track, or ok=false if no sender
// has ever connected (spec.md §4.3 listener join: "if None, fails NotReady").
func (r *Relay) Track() (*webrtc.TrackLocalStaticRTP, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.track, r.hasTrack
}

// WaitForTrack blocks until shared_local_track transitions to Some(t), or
// ctx is done.
func (r *Relay) WaitForTrack(ctx context.Context) (*webrtc.TrackLocalStaticRTP, error) {
	r.mu.Lock()
	if r.hasTrack {
		t := r.track
		r.mu.Unlock()
		return t, nil
	}
	sema := r.trackSema
	r.mu.Unlock()

	select {
	case <-sema:
		r.mu.Lock()
		t := r.track
		r.mu.Unlock()
		return t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Relay) setTrack(t *webrtc.TrackLocalStaticRTP) {
	r.mu.Lock()
	r.track = t
	wasSet := r.hasTrack
	r.hasTrack = true
	sema := r.trackSema
	r.mu.Unlock()
	if !wasSet {
		close(sema)
	}
}

// Pump runs the ingress pump algorithm of spec.md §4.3:
//  1. remote is the broadcaster's first audio track (already awaited by the
//     caller via rtcsession.Session.WaitForAudioTrack).
//  2. a local track is created copying the remote codec capability and
//     published as shared_local_track.
//  3. loop: read_rtp, publish header.sequence_number on last_seq, write_rtp.
//  4. exit when reset fires or the remote read fails.
//
// rewriteFrom, when non-nil, makes Pump a replacement pump: every incoming
// packet's sequence number is overwritten with a continuously incrementing
// counter starting at *rewriteFrom, matching spec.md §4.3's exact
// "s' = (s + 1) mod 2^16" replacement algorithm. When nil, this is the
// room's original ingress pump and packets are written through unchanged —
// the source is assumed to already produce a monotonic sequence.
func (r *Relay) Pump(ctx context.Context, remote *webrtc.TrackRemote, rewriteFrom *uint16) error {
	local, err := webrtc.NewTrackLocalStaticRTP(remote.Codec().RTPCodecCapability, "audio", "relaycast")
	if err != nil {
		return fmt.Errorf("create local track: %w", err)
	}
	r.setTrack(local)

	done := make(chan struct{})
	r.mu.Lock()
	r.pumpDone = done
	r.mu.Unlock()
	defer close(done)

	resetSub := r.reset.Subscribe()
	defer resetSub.Unsubscribe()

	resetCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		resetSub.Recv(resetCtx)
		cancel()
	}()

	var next uint16
	rewriting := rewriteFrom != nil
	if rewriting {
		next = *rewriteFrom
	}

	for {
		if resetCtx.Err() != nil {
			return nil
		}

		packet, _, err := remote.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if resetCtx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read rtp: %w", err)
		}

		if rewriting {
			packet.SequenceNumber = next
			next = NextSeq(next)
		}

		r.mu.Lock()
		r.lastSeq = packet.SequenceNumber
		r.seqKnown = true
		r.mu.Unlock()

		telemetry.RTPPacketsTotal.WithLabelValues(r.roomName).Inc()
		telemetry.RTPBytesTotal.WithLabelValues(r.roomName).Add(float64(len(packet.Payload)))

		if err := local.WriteRTP(packet); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			r.logger.Debug().Err(err).Msg("track write error")
		}
	}
}

// LastSeq returns the last sequence number published, and whether any
// packet has ever been written (seqKnown).
func (r *Relay) LastSeq() (uint16, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSeq, r.seqKnown
}

// SignalReset terminates the active ingress pump. Sender replacement and
// room shutdown both use this to cancel the previous pump per spec.md §4.3
// and §5.
func (r *Relay) SignalReset() {
	r.reset.Publish(struct{}{})
}

// AwaitPumpExit blocks until the most recently started Pump call has
// returned, or ctx is done. Sender replacement calls this after SignalReset
// so LastSeq reflects the old pump's true last write, not a value made
// stale by the old pump still running while the replacement negotiates
// (spec.md §4.3: "awaits its exit" before reading s).
func (r *Relay) AwaitPumpExit(ctx context.Context) {
	r.mu.Lock()
	done := r.pumpDone
	r.mu.Unlock()
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// NextSeq computes s' = (s + 1) mod 2^16 for sender replacement.
func NextSeq(s uint16) uint16 {
	return s + 1
}
