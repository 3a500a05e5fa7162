/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package room implements the broadcast room (C4): the tagged union over
// DataRoom and AudioRoom, the listener-count watch protocol, and the
// create/join/replace_sender/close operations of spec.md §4.4. Room-kind
// polymorphism follows spec.md's Design Notes: a single Room type dispatches
// on a kind tag rather than using inheritance.
package room

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/friendsincode/relaycast/internal/audiorelay"
	"github.com/friendsincode/relaycast/internal/datachannel"
	"github.com/friendsincode/relaycast/internal/events"
	"github.com/friendsincode/relaycast/internal/fanout"
	"github.com/friendsincode/relaycast/internal/registry"
	"github.com/friendsincode/relaycast/internal/relayerr"
	"github.com/friendsincode/relaycast/internal/relaytypes"
	"github.com/friendsincode/relaycast/internal/rtcsession"
	"github.com/friendsincode/relaycast/internal/telemetry"
)

const generatedPasswordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CreationReply is returned from create_data/create_audio: the SDP answer,
// plus the admin password — auto-generated when the caller didn't supply
// one (SPEC_FULL §11, not in spec.md's operation list but present in
// original_source's room creation path).
type CreationReply struct {
	AnswerB64 string
	Password  string
}

// Room is the BroadcastRoom value from spec.md §3/§9: one struct, kind
// tag, and kind-specific dispatch for join/replace_sender — not a pair of
// unrelated types.
type Room struct {
	id   uuid.UUID
	name string
	kind relaytypes.RoomKind

	passwordHash []byte

	registry *registry.Registry
	bus      *events.Bus
	ice      rtcsession.ICEConfig
	logger   zerolog.Logger

	broadcasterSession *rtcsession.Session
	meta               *datachannel.Pair

	// Data rooms only.
	body *datachannel.Pair

	// Audio rooms only.
	relay *audiorelay.Relay

	mu           sync.Mutex
	numListeners int
	closed       bool
	closeCh      *fanout.Channel[struct{}]
}

// Summary implements registry.Handle.
func (r *Room) Summary() relaytypes.RoomSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return relaytypes.RoomSummary{
		ID:           r.id.String(),
		Name:         r.name,
		Kind:         r.kind,
		NumListeners: r.numListeners,
	}
}

func generatePassword() (string, error) {
	out := make([]byte, 8)
	for i := range out {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(generatedPasswordAlphabet))))
		if err != nil {
			return "", fmt.Errorf("room: generate password: %w", err)
		}
		out[i] = generatedPasswordAlphabet[idx.Int64()]
	}
	return string(out), nil
}

func resolvePassword(supplied string) (plaintext string, hash []byte, err error) {
	if supplied == "" {
		supplied, err = generatePassword()
		if err != nil {
			return "", nil, err
		}
	}
	hash, err = bcrypt.GenerateFromPassword([]byte(supplied), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("room: hash admin password: %w", err)
	}
	return supplied, hash, nil
}

func (r *Room) checkPassword(candidate string) error {
	if err := bcrypt.CompareHashAndPassword(r.passwordHash, []byte(candidate)); err != nil {
		return relayerr.AuthError
	}
	return nil
}

// CreateData implements create_data(name, offer, kind, password) per
// spec.md §4.4. kind must be Float or Chat.
func CreateData(ctx context.Context, reg *registry.Registry, bus *events.Bus, ice rtcsession.ICEConfig, logger zerolog.Logger, name string, kind relaytypes.RoomKind, offerB64, password string) (*Room, *CreationReply, error) {
	if !kind.IsDataRoom() {
		return nil, nil, fmt.Errorf("room: CreateData requires a data room kind, got %s", kind)
	}

	plaintext, hash, err := resolvePassword(password)
	if err != nil {
		return nil, nil, err
	}

	sess, err := rtcsession.Build(ice, logger)
	if err != nil {
		return nil, nil, err
	}

	bodyKind := datachannel.KindFloat
	if kind == relaytypes.KindChat {
		bodyKind = datachannel.KindString
	}
	body, err := sess.RegisterChannel("body", bodyKind)
	if err != nil {
		sess.Close()
		return nil, nil, err
	}
	meta, err := sess.RegisterChannel("meta", datachannel.KindString)
	if err != nil {
		sess.Close()
		return nil, nil, err
	}

	answer, err := sess.RespondToOffer(ctx, offerB64)
	if err != nil {
		sess.Close()
		return nil, nil, err
	}

	rm := &Room{
		id:                 uuid.New(),
		name:               name,
		kind:               kind,
		passwordHash:       hash,
		registry:           reg,
		bus:                bus,
		ice:                ice,
		logger:             logger.With().Str("component", "room").Str("room", name).Logger(),
		broadcasterSession: sess,
		meta:               meta,
		body:               body,
		closeCh:            fanout.New[struct{}](1),
	}

	if err := reg.Insert(kind, name, rm); err != nil {
		sess.Close()
		return nil, nil, err
	}

	go rm.runDataForwarder()

	return rm, &CreationReply{AnswerB64: answer, Password: plaintext}, nil
}

// CreateAudio implements create_audio(name, offer, password) per spec.md
// §4.4. Per spec.md §4.3's ingress-pump algorithm, listen_for_remote_track
// is awaited before the session's SDP answer is computed via
// WaitForAudioTrack, matching original_source's ordering of calling
// listen_for_remote_audio_track() before respond_to_offer returns.
func CreateAudio(ctx context.Context, reg *registry.Registry, bus *events.Bus, ice rtcsession.ICEConfig, logger zerolog.Logger, name string, offerB64, password string) (*Room, *CreationReply, error) {
	plaintext, hash, err := resolvePassword(password)
	if err != nil {
		return nil, nil, err
	}

	sess, err := rtcsession.Build(ice, logger)
	if err != nil {
		return nil, nil, err
	}
	meta, err := sess.RegisterChannel("meta", datachannel.KindString)
	if err != nil {
		sess.Close()
		return nil, nil, err
	}

	answer, err := sess.RespondToOffer(ctx, offerB64)
	if err != nil {
		sess.Close()
		return nil, nil, err
	}

	rm := &Room{
		id:                 uuid.New(),
		name:               name,
		kind:               relaytypes.KindAudio,
		passwordHash:       hash,
		registry:           reg,
		bus:                bus,
		ice:                ice,
		logger:             logger.With().Str("component", "room").Str("room", name).Logger(),
		broadcasterSession: sess,
		meta:               meta,
		relay:              audiorelay.New(logger, name),
		closeCh:            fanout.New[struct{}](1),
	}

	if err := reg.Insert(relaytypes.KindAudio, name, rm); err != nil {
		sess.Close()
		return nil, nil, err
	}

	go rm.runIngressPump(ctx, sess, nil)

	return rm, &CreationReply{AnswerB64: answer, Password: plaintext}, nil
}

// runDataForwarder is the create_data background task: forwards every
// message the broadcaster sends (body.Inbound) to every listener
// (body.Outbound), and mirrors listener-count changes onto the meta
// channel, until the room closes.
func (r *Room) runDataForwarder() {
	inSub := r.body.Inbound.Subscribe()
	defer inSub.Unsubscribe()
	closeSub := r.closeCh.Subscribe()
	defer closeSub.Unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		closeSub.Recv(ctx)
		cancel()
	}()

	for {
		item, ok := inSub.Recv(ctx)
		if !ok {
			return
		}
		r.body.Outbound.Publish(item.Value)
	}
}

// runIngressPump drives the audio ingress pump per spec.md §4.3. rewriteFrom
// is non-nil only when this is a replacement pump.
func (r *Room) runIngressPump(ctx context.Context, sess *rtcsession.Session, rewriteFrom *uint16) {
	track, err := sess.WaitForAudioTrack(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("ingress pump: no audio track announced")
		return
	}
	if err := r.relay.Pump(ctx, track, rewriteFrom); err != nil {
		r.logger.Warn().Err(err).Msg("ingress pump exited")
	}
}

// Join implements join(offer) per spec.md §4.4/§4.3. For data rooms the
// listener's own data channel pair shares the room's body/meta Pair
// objects so inbound/outbound fan-out is the single forwarder above; for
// audio rooms the listener attaches the current shared_local_track.
func (r *Room) Join(ctx context.Context, offerB64 string) (string, error) {
	switch {
	case r.kind.IsDataRoom():
		return r.joinData(ctx, offerB64)
	default:
		return r.joinAudio(ctx, offerB64)
	}
}

func (r *Room) joinData(ctx context.Context, offerB64 string) (string, error) {
	sess, err := rtcsession.Build(r.ice, r.logger)
	if err != nil {
		return "", err
	}

	bodyKind := datachannel.KindFloat
	if r.kind == relaytypes.KindChat {
		bodyKind = datachannel.KindString
	}
	if err := sess.AttachSharedChannel("body", bodyKind, r.body); err != nil {
		sess.Close()
		return "", err
	}
	if err := sess.AttachSharedChannel("meta", datachannel.KindString, r.meta); err != nil {
		sess.Close()
		return "", err
	}

	answer, err := sess.RespondToOffer(ctx, offerB64)
	if err != nil {
		sess.Close()
		return "", err
	}

	r.incrementListeners()
	go r.superviseListenerLifecycle(sess)

	return answer, nil
}

func (r *Room) joinAudio(ctx context.Context, offerB64 string) (string, error) {
	track, ok := r.relay.Track()
	if !ok {
		return "", relayerr.NotReady
	}

	sess, err := rtcsession.Build(r.ice, r.logger)
	if err != nil {
		return "", err
	}
	if err := sess.AddLocalTrack(track); err != nil {
		sess.Close()
		return "", err
	}

	answer, err := sess.RespondToOffer(ctx, offerB64)
	if err != nil {
		sess.Close()
		return "", err
	}

	go r.superviseAudioListener(sess)

	return answer, nil
}

// superviseListenerLifecycle decrements the listener counter exactly once,
// on the first terminal state the session reaches, per spec.md §8's
// "every successful join is matched by exactly one decrement" invariant.
func (r *Room) superviseListenerLifecycle(sess *rtcsession.Session) {
	for st := range sess.Events() {
		if isTerminal(st) {
			r.decrementListeners()
			sess.Close()
			return
		}
	}
}

// superviseAudioListener implements spec.md §4.3's audio listener
// supervisor: increment on ICE Connected, decrement and close on
// Disconnected/Failed/Closed. Per the DESIGN.md Open Question decision,
// this also treats Closed as a decrement trigger so a listener that never
// reaches Connected (e.g. negotiation abandoned) can't leak a dangling
// increment — Connected is the only state that ever increments, so the
// counter only ever goes up once per session.
func (r *Room) superviseAudioListener(sess *rtcsession.Session) {
	incremented := false
	for st := range sess.Events() {
		if st == rtcsession.StateConnected && !incremented {
			incremented = true
			r.incrementListeners()
		}
		if isTerminal(st) {
			if incremented {
				r.decrementListeners()
			}
			sess.Close()
			return
		}
	}
}

func isTerminal(st rtcsession.State) bool {
	switch st {
	case rtcsession.StateDisconnected, rtcsession.StateFailed, rtcsession.StateClosed:
		return true
	default:
		return false
	}
}

func (r *Room) incrementListeners() {
	r.mu.Lock()
	r.numListeners++
	n := r.numListeners
	r.mu.Unlock()
	r.announceListenerCount(n)
}

func (r *Room) decrementListeners() {
	r.mu.Lock()
	if r.numListeners > 0 {
		r.numListeners--
	}
	n := r.numListeners
	r.mu.Unlock()
	r.announceListenerCount(n)
}

func (r *Room) announceListenerCount(n int) {
	msg := fmt.Sprintf("Number of listeners: %d", n)
	r.meta.Outbound.Publish(datachannel.Frame{String: msg, Raw: datachannel.EncodeString(msg)})
	r.registry.PublishUserCount(r.name, n)
	telemetry.RoomListeners.WithLabelValues(r.name).Set(float64(n))
}

// ReplaceSender implements replace_sender(offer, password) per spec.md
// §4.3/§4.4. Unsupported for data rooms, matching the todo!() in the
// original source.
func (r *Room) ReplaceSender(ctx context.Context, offerB64, password string) (string, error) {
	if r.kind.IsDataRoom() {
		return "", relayerr.UnsupportedOperation
	}
	if err := r.checkPassword(password); err != nil {
		return "", err
	}

	sess, err := rtcsession.Build(r.ice, r.logger)
	if err != nil {
		return "", err
	}
	answer, err := sess.RespondToOffer(ctx, offerB64)
	if err != nil {
		sess.Close()
		return "", err
	}

	// Signal the prior pump to exit and await its actual exit before reading
	// LastSeq, so the replacement rewrite base reflects the old pump's true
	// last write rather than a value made stale while RespondToOffer was
	// blocked negotiating (spec.md §4.3: "awaits its exit... reads the last
	// published sequence number s").
	r.relay.SignalReset()
	r.relay.AwaitPumpExit(ctx)

	prevLast, known := r.relay.LastSeq()
	var rewriteFrom *uint16
	if known {
		next := audiorelay.NextSeq(prevLast)
		rewriteFrom = &next
	}

	oldSess := r.broadcasterSession
	r.mu.Lock()
	r.broadcasterSession = sess
	r.mu.Unlock()

	oldSess.Close()
	go r.runIngressPump(ctx, sess, rewriteFrom)

	return answer, nil
}

// Close triggers close on every owned channel pair and the peer session,
// signals the audio relay's reset (if any), and removes the room from the
// registry. Deleting a room must signal close on every channel pair so
// dependent tasks exit cleanly (spec.md §3 Lifecycle).
func (r *Room) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.closeCh.Publish(struct{}{})
	if r.meta != nil {
		r.meta.SignalClose()
	}
	if r.body != nil {
		r.body.SignalClose()
	}
	if r.relay != nil {
		r.relay.SignalReset()
	}
	r.broadcasterSession.Close()
	r.registry.Remove(r.kind, r.name)
}

// AdvisoryTimeoutDefault is used by dispatchers created without an explicit
// timeout; it has no bearing on room selection correctness (spec.md §4.6).
const AdvisoryTimeoutDefault = 30 * time.Second
