/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package oscgateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/relaycast/internal/dispatch"
	"github.com/friendsincode/relaycast/internal/events"
	"github.com/friendsincode/relaycast/internal/relayerr"
	"github.com/friendsincode/relaycast/internal/relaytypes"
)

const pingInterval = 10 * time.Second

// createDispatcherInput is the parsed /createDispatcher payload, mirroring
// original_source's RoomDispatcherInput. Every /createDispatcher OSC
// message dispatches an audio-room dispatcher using the Random policy —
// original_source's TryFrom<OscMessage> for RoomDispatcherInput hardcodes
// both, and nothing in spec.md's OSC section asks for the other policies
// to be reachable over this channel.
type createDispatcherInput struct {
	Name             string
	AdminPassword    string
	Pattern          string
	TimeoutSeconds   int32
	ReturnRoomPrefix string
}

func parseCreateDispatcher(m Message) (createDispatcherInput, error) {
	if len(m.Args) != 5 {
		return createDispatcherInput{}, fmt.Errorf("oscgateway: %w: /createDispatcher wants 5 args, got %d", relayerr.InvalidOscMessage, len(m.Args))
	}
	for i, want := range []ArgKind{ArgString, ArgString, ArgString, ArgInt, ArgString} {
		if m.Args[i].Kind != want {
			return createDispatcherInput{}, fmt.Errorf("oscgateway: %w: /createDispatcher arg %d has wrong type", relayerr.InvalidOscMessage, i)
		}
	}
	return createDispatcherInput{
		Name:             m.Args[0].Str,
		AdminPassword:    m.Args[1].Str,
		Pattern:          m.Args[2].Str,
		TimeoutSeconds:   m.Args[3].Int,
		ReturnRoomPrefix: m.Args[4].Str,
	}, nil
}

func replyMessage(text string) Message {
	return Message{Address: "/reply", Args: []Arg{StringArg(text)}}
}

func errorMessage(text string) Message {
	return Message{Address: "/error", Args: []Arg{StringArg(text)}}
}

// EventToOSC translates a RoomEvent into its OSC wire form, following
// original_source's SteckerServerEvent::into_osc_packet address mapping
// exactly. Events with no OSC equivalent (DispatcherDeleted,
// DispatcherReset, Init) report ok=false, same as the Rust match's
// catch-all arm returning None.
func EventToOSC(ev events.RoomEvent) (Message, bool) {
	switch ev.Kind {
	case events.RoomCreated:
		return Message{Address: "/room/created", Args: []Arg{StringArg(ev.Name)}}, true
	case events.RoomDeleted:
		return Message{Address: "/room/deleted", Args: []Arg{StringArg(ev.Name)}}, true
	case events.RoomUserCount:
		return Message{Address: "/room/update", Args: []Arg{StringArg(ev.Name)}}, true
	case events.DispatcherCreated:
		return Message{Address: "/dispatcher/created", Args: []Arg{StringArg(ev.Dispatcher)}}, true
	default:
		return Message{}, false
	}
}

// Gateway accepts OSC-over-TCP connections and serves the /createDispatcher
// provisioning call plus a best-effort push feed of room events.
type Gateway struct {
	manager *dispatch.Manager
	bus     *events.Bus
	logger  zerolog.Logger
}

// New builds a Gateway that creates dispatchers in manager and relays
// events published on bus to every connected OSC client.
func New(manager *dispatch.Manager, bus *events.Bus, logger zerolog.Logger) *Gateway {
	return &Gateway{manager: manager, bus: bus, logger: logger.With().Str("component", "oscgateway").Logger()}
}

// Serve accepts connections on ln until ctx is canceled or ln.Accept fails.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("oscgateway: accept: %w", err)
		}
		go g.handleClient(ctx, conn)
	}
}

// handleClient mirrors original_source's handle_osc_client: a reader task,
// a writer task, and a ping/event-relay task, all sharing a single
// close signal so any one of them finishing tears down the rest.
func (g *Gateway) handleClient(parentCtx context.Context, conn net.Conn) {
	addr := conn.RemoteAddr().String()
	logger := g.logger.With().Str("remote_addr", addr).Logger()
	defer conn.Close()

	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	outgoing := make(chan Message, 16)
	sub := g.bus.Subscribe()
	defer sub.Close()

	go g.readLoop(ctx, cancel, conn, outgoing, logger)
	go g.pingLoop(ctx, cancel, sub, outgoing, logger)

	g.writeLoop(ctx, conn, outgoing, logger)
	logger.Debug().Msg("osc connection closed")
}

func (g *Gateway) readLoop(ctx context.Context, cancel context.CancelFunc, conn net.Conn, outgoing chan<- Message, logger zerolog.Logger) {
	defer cancel()
	for {
		msg, err := ReadFramed(conn)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				logger.Debug().Err(err).Msg("osc read failed")
			}
			return
		}

		reply, ok := g.process(msg)
		if !ok {
			continue
		}
		select {
		case outgoing <- reply:
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gateway) process(msg Message) (Message, bool) {
	if msg.Address != "/createDispatcher" {
		return Message{}, false
	}

	input, err := parseCreateDispatcher(msg)
	if err != nil {
		return errorMessage("Invalid create dispatcher message"), true
	}

	timeout := time.Duration(input.TimeoutSeconds) * time.Second
	if _, err := g.manager.Create(input.Name, input.AdminPassword, input.Pattern, relaytypes.KindAudio, dispatch.Random, timeout, input.ReturnRoomPrefix, false); err != nil {
		return errorMessage("Error at creating dispatcher"), true
	}
	return replyMessage("Created dispatcher"), true
}

func (g *Gateway) pingLoop(ctx context.Context, cancel context.CancelFunc, sub *events.Subscription, outgoing chan<- Message, logger zerolog.Logger) {
	defer cancel()

	eventsCh := make(chan events.RoomEvent)
	go func() {
		defer close(eventsCh)
		for {
			ev, ok := sub.Recv(ctx)
			if !ok {
				return
			}
			select {
			case eventsCh <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case outgoing <- (Message{Address: "/ping"}):
			case <-ctx.Done():
				return
			}
		case ev, ok := <-eventsCh:
			if !ok {
				return
			}
			msg, ok := EventToOSC(ev)
			if !ok {
				continue
			}
			select {
			case outgoing <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (g *Gateway) writeLoop(ctx context.Context, conn net.Conn, outgoing <-chan Message, logger zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-outgoing:
			if err := WriteFramed(conn, msg); err != nil {
				logger.Debug().Err(err).Msg("osc write failed")
				return
			}
		}
	}
}
