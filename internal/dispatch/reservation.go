/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReservationStore backs the dispatcher's advisory timeout watch (spec.md
// §4.6: "bound how long selected rooms remain reserved before being
// reclaimed by another dispatch; timeout is advisory and does not affect
// selection correctness") across multiple relaycast instances. The
// teacher's own internal/eventbus/redis.go never wired a real Redis
// client; this package gives go-redis/v9 a genuine concern instead.
type ReservationStore struct {
	client *redis.Client
}

// NewReservationStore connects to addr. The connection is lazy: go-redis
// only dials on first command, so this never blocks or fails at startup.
func NewReservationStore(addr, password string, db int) *ReservationStore {
	return &ReservationStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

func reservationKey(dispatcherName, roomName string) string {
	return fmt.Sprintf("relaycast:reservation:%s:%s", dispatcherName, roomName)
}

// Reserve advisory-locks roomName for dispatcherName for ttl. It is a hint,
// not an authoritative selection constraint — ChooseRoom never consults it.
func (s *ReservationStore) Reserve(ctx context.Context, dispatcherName, roomName string, ttl time.Duration) error {
	if err := s.client.Set(ctx, reservationKey(dispatcherName, roomName), time.Now().UTC().Format(time.RFC3339), ttl).Err(); err != nil {
		return fmt.Errorf("dispatch: reserve %s/%s: %w", dispatcherName, roomName, err)
	}
	return nil
}

// IsReserved reports whether roomName currently has a live advisory
// reservation under dispatcherName.
func (s *ReservationStore) IsReserved(ctx context.Context, dispatcherName, roomName string) (bool, error) {
	n, err := s.client.Exists(ctx, reservationKey(dispatcherName, roomName)).Result()
	if err != nil {
		return false, fmt.Errorf("dispatch: check reservation %s/%s: %w", dispatcherName, roomName, err)
	}
	return n > 0, nil
}

// Release clears a reservation early, e.g. when the listener disconnects
// before the TTL expires.
func (s *ReservationStore) Release(ctx context.Context, dispatcherName, roomName string) error {
	if err := s.client.Del(ctx, reservationKey(dispatcherName, roomName)).Err(); err != nil {
		return fmt.Errorf("dispatch: release reservation %s/%s: %w", dispatcherName, roomName, err)
	}
	return nil
}

// Close releases the underlying Redis client.
func (s *ReservationStore) Close() error {
	return s.client.Close()
}
