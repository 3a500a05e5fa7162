/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package fanout

import (
	"context"
	"testing"
	"time"
)

func TestOrderedDeliveryNoLag(t *testing.T) {
	ch := New[int](8)
	sub := ch.Subscribe()

	for _, v := range []int{1, 2, 3} {
		ch.Publish(v)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for _, want := range []int{1, 2, 3} {
		item, ok := sub.Recv(ctx)
		if !ok {
			t.Fatalf("expected item, channel reported closed")
		}
		if item.Value != want || item.Lagged != 0 {
			t.Fatalf("got %+v, want value=%d lagged=0", item, want)
		}
	}
}

func TestLateSubscriberSeesNoHistory(t *testing.T) {
	ch := New[int](8)
	ch.Publish(1)
	sub := ch.Subscribe()
	ch.Publish(2)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	item, ok := sub.Recv(ctx)
	if !ok || item.Value != 2 {
		t.Fatalf("expected to only see post-subscribe value, got %+v ok=%v", item, ok)
	}
}

func TestLaggingSubscriberDropsOldestAndReportsLag(t *testing.T) {
	ch := New[int](2)
	sub := ch.Subscribe()

	for i := 0; i < 5; i++ {
		ch.Publish(i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// Capacity 2: publishing 0..4 fills [0,1], drops 0 for 2 -> [1,2],
	// drops 1 for 3 -> [2,3], drops 2 for 4 -> [3,4].
	first, ok := sub.Recv(ctx)
	if !ok {
		t.Fatal("expected an item")
	}
	if first.Value != 3 {
		t.Fatalf("expected oldest surviving value 3, got %d", first.Value)
	}
	if first.Lagged == 0 {
		t.Fatalf("expected a nonzero lag report, got %+v", first)
	}

	second, ok := sub.Recv(ctx)
	if !ok || second.Value != 4 {
		t.Fatalf("expected value 4 next, got %+v ok=%v", second, ok)
	}
	if second.Lagged != 0 {
		t.Fatalf("expected lag to reset after being reported once, got %d", second.Lagged)
	}
}

func TestCloseDrainsThenReportsClosed(t *testing.T) {
	ch := New[string](4)
	sub := ch.Subscribe()
	ch.Publish("a")
	ch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	item, ok := sub.Recv(ctx)
	if !ok || item.Value != "a" {
		t.Fatalf("expected buffered item before close signal, got %+v ok=%v", item, ok)
	}

	_, ok = sub.Recv(ctx)
	if ok {
		t.Fatal("expected closed channel to report ok=false after draining")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	ch := New[int](4)
	sub := ch.Subscribe()
	sub.Unsubscribe()
	ch.Publish(1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, ok := sub.Recv(ctx); ok {
		t.Fatal("expected no delivery after unsubscribe")
	}
	if n := ch.Subscribers(); n != 0 {
		t.Fatalf("expected 0 subscribers after unsubscribe, got %d", n)
	}
}
