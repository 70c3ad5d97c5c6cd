package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// Publisher is the part of a NATS connection the sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes events as JSON to <subject>.<event type>.
type NATSSink struct {
	pub     Publisher
	conn    *nats.Conn
	subject string
}

// NewNATSSink connects to url and publishes below subject.
func NewNATSSink(url, subject string) (*NATSSink, error) {
	conn, err := nats.Connect(url,
		nats.Name("dropsync"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	slog.Info("NATS event sink connected", "url", url, "subject", subject)
	return &NATSSink{pub: conn, conn: conn, subject: subject}, nil
}

// NewNATSSinkWithPublisher wraps an existing publisher.
func NewNATSSinkWithPublisher(pub Publisher, subject string) *NATSSink {
	return &NATSSink{pub: pub, subject: subject}
}

func (s *NATSSink) Emit(_ context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := s.pub.Publish(s.subject+"."+string(e.Type), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close drains the connection when the sink owns one.
func (s *NATSSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}
