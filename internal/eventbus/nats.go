/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus provides an optional cross-instance fan-out of the
// in-process RoomEvent bus (internal/events) over NATS JetStream, so
// multiple relaycast processes behind a load balancer observe the same
// room lifecycle events. It always publishes locally first and falls back
// to pure in-memory delivery via a failure-counted circuit breaker when
// NATS is unreachable — adapted from the teacher's
// internal/eventbus/nats.go, generalized from its generic Payload/EventType
// shape to this project's typed events.RoomEvent.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/friendsincode/relaycast/internal/events"
)

const subject = "relaycast.events"

// NATSBus fans RoomEvents out to every relaycast instance sharing a NATS
// deployment, while always delivering locally via the in-process bus too.
type NATSBus struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	logger zerolog.Logger
	local  *events.Bus
	nodeID string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	useFallback bool
	failCount   int
	maxFails    int
}

// Config configures the NATS connection and JetStream stream.
type Config struct {
	URL           string
	Token         string
	StreamName    string
	Durable       string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
	MaxFailures   int
}

// DefaultConfig returns sensible defaults for a local/dev NATS deployment.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		StreamName:    "RELAYCAST_EVENTS",
		Durable:       "relaycast-consumer",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
		MaxFailures:   5,
	}
}

// GenerateNodeID creates a unique node identifier for self-echo
// suppression across instances sharing the same NATS stream.
func GenerateNodeID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8])
}

// New connects to NATS and wires a JetStream consumer for subject. On any
// connection/stream failure it logs a warning and returns a NATSBus that
// behaves as a pure in-memory bus (the circuit breaker starts tripped).
func New(cfg Config, local *events.Bus, nodeID string, logger zerolog.Logger) (*NATSBus, error) {
	ctx, cancel := context.WithCancel(context.Background())
	logger = logger.With().Str("component", "eventbus").Logger()

	fallback := func(reason error) (*NATSBus, error) {
		logger.Warn().Err(reason).Msg("NATS unavailable, using in-memory fallback only")
		cancel()
		return &NATSBus{
			logger:      logger,
			local:       local,
			nodeID:      nodeID,
			useFallback: true,
			maxFails:    cfg.MaxFailures,
			ctx:         context.Background(),
		}, nil
	}

	opts := []nats.Option{
		nats.Name(fmt.Sprintf("relaycast-%s", nodeID)),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return fallback(err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return fallback(err)
	}

	if err := createOrUpdateStream(ctx, js, cfg.StreamName); err != nil {
		conn.Close()
		return fallback(err)
	}

	nb := &NATSBus{
		conn:     conn,
		js:       js,
		logger:   logger,
		local:    local,
		nodeID:   nodeID,
		maxFails: cfg.MaxFailures,
		ctx:      ctx,
		cancel:   cancel,
	}

	consumerName := fmt.Sprintf("%s-%s", cfg.Durable, nodeID)
	consumer, err := js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		conn.Close()
		cancel()
		return fallback(err)
	}

	nb.wg.Add(1)
	go nb.receiveMessages(consumer)

	logger.Info().Str("url", cfg.URL).Str("stream", cfg.StreamName).Msg("NATS event bus initialized")
	return nb, nil
}

func createOrUpdateStream(ctx context.Context, js jetstream.JetStream, streamName string) error {
	cfg := jetstream.StreamConfig{
		Name:        streamName,
		Subjects:    []string{subject},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "relaycast room event bus",
	}

	if _, err := js.Stream(ctx, streamName); err != nil {
		if _, err := js.CreateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		return nil
	}
	if _, err := js.UpdateStream(ctx, cfg); err != nil {
		return fmt.Errorf("update stream: %w", err)
	}
	return nil
}

type wireEvent struct {
	Event     events.RoomEvent `json:"event"`
	NodeID    string            `json:"node_id"`
	MessageID string            `json:"message_id"`
}

// Publish delivers ev to local subscribers first, then (circuit permitting)
// to every other instance over NATS.
func (nb *NATSBus) Publish(ev events.RoomEvent) {
	nb.local.Publish(ev)

	nb.mu.Lock()
	useFallback := nb.useFallback
	nb.mu.Unlock()
	if useFallback {
		return
	}

	data, err := json.Marshal(wireEvent{Event: ev, NodeID: nb.nodeID, MessageID: uuid.New().String()})
	if err != nil {
		nb.logger.Error().Err(err).Msg("failed to marshal event for NATS")
		return
	}

	ctx, cancel := context.WithTimeout(nb.ctx, 2*time.Second)
	defer cancel()
	if _, err := nb.js.Publish(ctx, subject, data); err != nil {
		nb.logger.Error().Err(err).Msg("failed to publish event to NATS")
		nb.handleFailure()
		return
	}

	nb.mu.Lock()
	nb.failCount = 0
	nb.mu.Unlock()
}

func (nb *NATSBus) receiveMessages(consumer jetstream.Consumer) {
	defer nb.wg.Done()

	msgs, err := consumer.Messages()
	if err != nil {
		nb.logger.Error().Err(err).Msg("failed to consume NATS messages")
		nb.handleFailure()
		return
	}
	defer msgs.Stop()

	for {
		select {
		case <-nb.ctx.Done():
			return
		default:
		}

		msg, err := msgs.Next()
		if err != nil {
			if err == jetstream.ErrMsgIteratorClosed {
				return
			}
			continue
		}

		var we wireEvent
		if err := json.Unmarshal(msg.Data(), &we); err != nil {
			nb.logger.Error().Err(err).Msg("failed to unmarshal NATS event")
			msg.Nak()
			continue
		}

		if we.NodeID == nb.nodeID {
			msg.Ack()
			continue
		}

		nb.local.Publish(we.Event)
		msg.Ack()
	}
}

func (nb *NATSBus) handleFailure() {
	nb.mu.Lock()
	defer nb.mu.Unlock()

	nb.failCount++
	if nb.failCount >= nb.maxFails && !nb.useFallback {
		nb.logger.Warn().Int("fail_count", nb.failCount).Msg("NATS failure threshold reached, switching to in-memory fallback")
		nb.useFallback = true
		if nb.conn != nil {
			nb.conn.Close()
		}
	}
}

// Close releases NATS resources.
func (nb *NATSBus) Close() error {
	if nb.cancel != nil {
		nb.cancel()
	}
	nb.wg.Wait()
	if nb.conn != nil {
		nb.conn.Close()
	}
	return nil
}
