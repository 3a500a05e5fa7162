/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package rtcsession implements the per-peer WebRTC session (C1): one
// PeerConnection, its registered data channels, and the lifecycle event
// stream downstream tasks use to trigger cleanup.
package rtcsession

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/friendsincode/relaycast/internal/datachannel"
	"github.com/friendsincode/relaycast/internal/relayerr"
)

// ICEConfig mirrors the teacher's broadcaster Config for STUN/TURN wiring.
type ICEConfig struct {
	STUNServer      string
	TURNServer      string
	TURNUsername    string
	TURNPassword    string
	GatherTimeout   time.Duration // 0 means no cap (spec allows a configured cap)
}

func (c ICEConfig) iceServers() []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if c.STUNServer != "" {
		servers = append(servers, webrtc.ICEServer{URLs: []string{c.STUNServer}})
	}
	if c.TURNServer != "" {
		turn := webrtc.ICEServer{URLs: []string{c.TURNServer}}
		if c.TURNUsername != "" {
			turn.Username = c.TURNUsername
			turn.Credential = c.TURNPassword
			turn.CredentialType = webrtc.ICECredentialTypePassword
		}
		servers = append(servers, turn)
	}
	return servers
}

// State is the peer session lifecycle per spec.md §4.1:
// New -> Negotiating -> Connected -> (Disconnected | Failed) -> Closed.
type State int

const (
	StateNew State = iota
	StateNegotiating
	StateConnected
	StateDisconnected
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// sdpEnvelope is the base64-JSON wire shape exchanged with the external
// API boundary per spec.md §6: offers/answers are base64-encoded JSON of
// the SDP object.
type sdpEnvelope = webrtc.SessionDescription

// newAPI builds a pion API with the default Opus codec and interceptor
// registry, matching the teacher's NewBroadcaster construction.
func newAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register opus codec: %w", err)
	}

	i := &interceptor.Registry{}
	pli, err := intervalpli.NewReceiverInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create pli interceptor: %w", err)
	}
	i.Add(pli)
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	return webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i)), nil
}

// Session is a PeerSession (spec.md §3/§4.1).
type Session struct {
	mu       sync.Mutex
	pc       *webrtc.PeerConnection
	ice      ICEConfig
	channels map[string]*datachannel.Pair
	state    State
	events   chan State
	logger   zerolog.Logger
	closed   bool

	remoteTrack     chan *webrtc.TrackRemote
	remoteTrackOnce sync.Once
}

// Build constructs a new peer connection pre-registered with the default
// Opus codec and ICE configuration, per spec.md §4.1 "build()".
func Build(ice ICEConfig, logger zerolog.Logger) (*Session, error) {
	api, err := newAPI()
	if err != nil {
		return nil, err
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: ice.iceServers()})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	s := &Session{
		pc:          pc,
		ice:         ice,
		channels:    make(map[string]*datachannel.Pair),
		state:       StateNew,
		events:      make(chan State, 8),
		logger:      logger.With().Str("component", "rtcsession").Logger(),
		remoteTrack: make(chan *webrtc.TrackRemote, 1),
	}

	pc.OnConnectionStateChange(func(cs webrtc.PeerConnectionState) {
		switch cs {
		case webrtc.PeerConnectionStateConnected:
			s.setState(StateConnected)
		case webrtc.PeerConnectionStateDisconnected:
			s.setState(StateDisconnected)
		case webrtc.PeerConnectionStateFailed:
			s.setState(StateFailed)
		case webrtc.PeerConnectionStateClosed:
			s.setState(StateClosed)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.remoteTrackOnce.Do(func() {
			s.remoteTrack <- track
		})
	})

	return s, nil
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	select {
	case s.events <- st:
	default:
		// Slow consumer: the latest state still wins on next Events() read
		// since downstream tasks only care about reaching a terminal state.
	}
}

// Events exposes the lifecycle transition stream per spec.md §4.1.
func (s *Session) Events() <-chan State {
	return s.events
}

// RegisterChannel creates a negotiated application-identified data channel
// slot backed by a freshly created DataChannelPair. May be called any
// number of times before RespondToOffer.
func (s *Session) RegisterChannel(name string, kind datachannel.Kind) (*datachannel.Pair, error) {
	pair := datachannel.NewPair(kind)
	if err := s.attach(name, kind, pair); err != nil {
		return nil, err
	}
	return pair, nil
}

// AttachSharedChannel wires a negotiated data channel slot to an existing
// DataChannelPair instead of creating a new one — used by listener
// sessions joining a room's data channel, where every peer (broadcaster
// and every listener) shares the same inbound/outbound/close streams.
func (s *Session) AttachSharedChannel(name string, kind datachannel.Kind, pair *datachannel.Pair) error {
	return s.attach(name, kind, pair)
}

func (s *Session) attach(name string, kind datachannel.Kind, pair *datachannel.Pair) error {
	negotiated := true
	dc, err := s.pc.CreateDataChannel(name, &webrtc.DataChannelInit{Negotiated: &negotiated})
	if err != nil {
		return fmt.Errorf("create data channel %q: %w", name, err)
	}

	dc.OnOpen(func() {
		go s.pumpOutbound(dc, pair)
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		datachannel.PublishRaw(pair.Inbound, kind, msg.Data)
	})
	dc.OnClose(func() {
		pair.SignalClose()
	})

	s.mu.Lock()
	s.channels[name] = pair
	s.mu.Unlock()

	return nil
}

func (s *Session) pumpOutbound(dc *webrtc.DataChannel, pair *datachannel.Pair) {
	sub := pair.Outbound.Subscribe()
	defer sub.Unsubscribe()
	closeSub := pair.Close.Subscribe()
	defer closeSub.Unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		closeSub.Recv(ctx)
		cancel()
	}()

	for {
		item, ok := sub.Recv(ctx)
		if !ok {
			return
		}
		if len(item.Value.Raw) > 0 {
			if err := dc.Send(item.Value.Raw); err != nil {
				s.logger.Debug().Err(err).Msg("data channel send failed")
				return
			}
		}
	}
}

// RespondToOffer decodes a base64-JSON SDP offer, negotiates an answer, and
// blocks until ICE gathering completes (trickle ICE is disabled per
// spec.md §4.1), returning the base64-JSON answer.
func (s *Session) RespondToOffer(ctx context.Context, offerB64 string) (string, error) {
	s.setState(StateNegotiating)

	var offer sdpEnvelope
	raw, err := base64.StdEncoding.DecodeString(offerB64)
	if err != nil {
		return "", fmt.Errorf("%w: %v", relayerr.SdpDecodeError, err)
	}
	if err := json.Unmarshal(raw, &offer); err != nil {
		return "", fmt.Errorf("%w: %v", relayerr.SdpDecodeError, err)
	}

	if err := s.pc.SetRemoteDescription(offer); err != nil {
		return "", fmt.Errorf("%w: %v", relayerr.NegotiationError, err)
	}

	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", relayerr.NegotiationError, err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(s.pc)

	if err := s.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("%w: %v", relayerr.NegotiationError, err)
	}

	waitCtx := ctx
	var cancel context.CancelFunc
	if s.ice.GatherTimeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, s.ice.GatherTimeout)
		defer cancel()
	}

	select {
	case <-gatherComplete:
	case <-waitCtx.Done():
		return "", relayerr.IceTimeout
	}

	encoded, err := json.Marshal(s.pc.LocalDescription())
	if err != nil {
		return "", fmt.Errorf("%w: %v", relayerr.SdpDecodeError, err)
	}

	return base64.StdEncoding.EncodeToString(encoded), nil
}

// WaitForAudioTrack resolves when the broadcaster's first audio track is
// announced (audio rooms only).
func (s *Session) WaitForAudioTrack(ctx context.Context) (*webrtc.TrackRemote, error) {
	select {
	case t := <-s.remoteTrack:
		return t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AddLocalTrack attaches a shared local track as an outgoing stream for a
// listener session.
func (s *Session) AddLocalTrack(track *webrtc.TrackLocalStaticRTP) error {
	if _, err := s.pc.AddTrack(track); err != nil {
		return fmt.Errorf("add local track: %w", err)
	}
	return nil
}

// PeerConnection exposes the underlying connection for components (the
// audio relay's ICE-state supervisor) that need direct access.
func (s *Session) PeerConnection() *webrtc.PeerConnection {
	return s.pc
}

// Close triggers close on all owned channel pairs and closes the peer
// connection. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pairs := make([]*datachannel.Pair, 0, len(s.channels))
	for _, p := range s.channels {
		pairs = append(pairs, p)
	}
	s.mu.Unlock()

	for _, p := range pairs {
		p.SignalClose()
	}
	s.setState(StateClosed)
	return s.pc.Close()
}
