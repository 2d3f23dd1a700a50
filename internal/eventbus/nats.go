// Package eventbus publishes client-joined/client-left notifications onto
// an embedded NATS server, giving operators and tests an independently
// subscribable audit trail of registry membership changes. Core NATS
// pub/sub only: membership events are fire-and-forget, not a work queue,
// so JetStream's durability is not needed here.
package eventbus

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/ford-prefect/gst-sync-server/internal/registry"
)

const (
	// SubjectJoined carries a JSON-encoded registry.ClientSession whenever
	// a client joins.
	SubjectJoined = "sync.client.joined"
	// SubjectLeft carries a JSON-encoded registry.ClientSession whenever a
	// client leaves.
	SubjectLeft = "sync.client.left"
)

// Bus wraps an embedded NATS server and a connection to it.
type Bus struct {
	embedded *server.Server
	conn     *nats.Conn
}

// New starts an embedded, in-process NATS server and connects to it. The
// server listens only on the loopback interface: this bus is an internal
// implementation detail of one sync-server process, not a shared broker.
func New() (*Bus, error) {
	storeDir, err := os.MkdirTemp("", "gst-sync-server-nats")
	if err != nil {
		return nil, fmt.Errorf("create nats store dir: %w", err)
	}

	opts := &server.Options{
		Host:        "127.0.0.1",
		Port:        server.RANDOM_PORT,
		StoreDir:    storeDir,
		NoLog:       true,
		NoSigs:      true,
		AllowNonTLS: true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded nats server: %w", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(4 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded nats server did not become ready")
	}

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("connect to embedded nats: %w", err)
	}

	log.Info().Str("url", ns.ClientURL()).Msg("embedded nats event bus ready")

	return &Bus{embedded: ns, conn: nc}, nil
}

// PublishJoined implements registry.EventPublisher.
func (b *Bus) PublishJoined(s registry.ClientSession) {
	b.publish(SubjectJoined, s)
}

// PublishLeft implements registry.EventPublisher.
func (b *Bus) PublishLeft(s registry.ClientSession) {
	b.publish(SubjectLeft, s)
}

func (b *Bus) publish(subject string, s registry.ClientSession) {
	data, err := json.Marshal(s)
	if err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("failed to marshal client session for event bus")
		return
	}
	if err := b.conn.Publish(subject, data); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("failed to publish registry event")
	}
}

// Subscribe registers handler for either SubjectJoined or SubjectLeft.
func (b *Bus) Subscribe(subject string, handler func(registry.ClientSession)) error {
	_, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		var s registry.ClientSession
		if err := json.Unmarshal(msg.Data, &s); err != nil {
			log.Warn().Err(err).Msg("failed to unmarshal registry event")
			return
		}
		handler(s)
	})
	return err
}

// Close tears down the connection and embedded server.
func (b *Bus) Close() {
	b.conn.Close()
	b.embedded.Shutdown()
}
