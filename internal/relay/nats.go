package relay

import (
	"context"
	"fmt"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/config"
)

// Publisher is the part of *nats.Conn the relay uses.
type Publisher interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSSink publishes events on a NATS subject.
type NATSSink struct {
	conn    Publisher
	subject string
}

// ConnectNATS connects to cfg.URL, reconnecting forever in the background.
func ConnectNATS(cfg config.NATSRelayConfig) (*NATSSink, error) {
	nc, err := natsgo.Connect(cfg.URL,
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
		natsgo.Name("forage-launch"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", cfg.URL, err)
	}
	return NewNATSWithConn(nc, cfg.Subject), nil
}

// NewNATSWithConn wraps an existing connection.
func NewNATSWithConn(conn Publisher, subject string) *NATSSink {
	return &NATSSink{conn: conn, subject: subject}
}

func (s *NATSSink) Name() string {
	return "nats"
}

func (s *NATSSink) Send(ctx context.Context, payload []byte) error {
	if err := s.conn.Publish(s.subject, payload); err != nil {
		return fmt.Errorf("publish to %s: %w", s.subject, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (s *NATSSink) Close() error {
	return s.conn.Drain()
}
