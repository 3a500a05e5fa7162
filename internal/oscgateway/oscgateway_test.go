/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package oscgateway

import (
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/relaycast/internal/dispatch"
	"github.com/friendsincode/relaycast/internal/events"
	"github.com/friendsincode/relaycast/internal/relaytypes"
)

func TestProcessCreateDispatcherSucceeds(t *testing.T) {
	mgr := dispatch.NewManager(events.NewBus())
	g := New(mgr, events.NewBus(), zerolog.Nop())

	msg := Message{
		Address: "/createDispatcher",
		Args: []Arg{
			StringArg("main"),
			StringArg("pw"),
			StringArg("^live-.*$"),
			IntArg(30),
			StringArg("prefix-"),
		},
	}
	reply, ok := g.process(msg)
	if !ok {
		t.Fatal("expected a reply message")
	}
	if reply.Address != "/reply" {
		t.Fatalf("address=%q, want /reply", reply.Address)
	}
	d, found := mgr.Get("main")
	if !found {
		t.Fatal("dispatcher was not created")
	}
	if d.Kind != relaytypes.KindAudio || d.Policy != dispatch.Random {
		t.Fatalf("got kind=%q policy=%q, want audio/random per original_source's hardcoded TryFrom", d.Kind, d.Policy)
	}
}

func TestProcessCreateDispatcherInvalidArgsReturnsError(t *testing.T) {
	mgr := dispatch.NewManager(events.NewBus())
	g := New(mgr, events.NewBus(), zerolog.Nop())

	reply, ok := g.process(Message{Address: "/createDispatcher", Args: []Arg{StringArg("too-few")}})
	if !ok || reply.Address != "/error" {
		t.Fatalf("got %+v ok=%v, want /error reply", reply, ok)
	}
}

func TestProcessUnknownAddressIgnored(t *testing.T) {
	mgr := dispatch.NewManager(events.NewBus())
	g := New(mgr, events.NewBus(), zerolog.Nop())

	if _, ok := g.process(Message{Address: "/unknown"}); ok {
		t.Fatal("expected no reply for an unrecognized address")
	}
}

func TestEventToOSCMapsKnownKinds(t *testing.T) {
	cases := []struct {
		ev   events.RoomEvent
		addr string
		args []Arg
	}{
		{events.RoomEvent{Kind: events.RoomCreated, Name: "r1"}, "/room/created", []Arg{StringArg("r1")}},
		{events.RoomEvent{Kind: events.RoomDeleted, Name: "r1"}, "/room/deleted", []Arg{StringArg("r1")}},
		{events.RoomEvent{Kind: events.RoomUserCount, Name: "r1", Count: 2}, "/room/update", []Arg{StringArg("r1")}},
		{events.RoomEvent{Kind: events.DispatcherCreated, Dispatcher: "d1"}, "/dispatcher/created", []Arg{StringArg("d1")}},
	}
	for _, tt := range cases {
		msg, ok := EventToOSC(tt.ev)
		if !ok {
			t.Fatalf("%v: expected a translated message", tt.ev)
		}
		if msg.Address != tt.addr {
			t.Fatalf("%v: address=%q, want %q", tt.ev, msg.Address, tt.addr)
		}
		if !reflect.DeepEqual(msg.Args, tt.args) {
			t.Fatalf("%v: args=%v, want %v", tt.ev, msg.Args, tt.args)
		}
	}
}

func TestEventToOSCDropsUntranslatedKinds(t *testing.T) {
	for _, kind := range []events.Kind{events.DispatcherDeleted, events.DispatcherReset, events.Init} {
		if _, ok := EventToOSC(events.RoomEvent{Kind: kind}); ok {
			t.Fatalf("kind %q: expected no OSC translation", kind)
		}
	}
}

func TestParseCreateDispatcherRejectsWrongArgType(t *testing.T) {
	_, err := parseCreateDispatcher(Message{
		Address: "/createDispatcher",
		Args: []Arg{
			StringArg("name"), StringArg("pw"), StringArg("pattern"), StringArg("not-an-int"), StringArg(""),
		},
	})
	if err == nil {
		t.Fatal("expected an error for a wrong argument type")
	}
}
