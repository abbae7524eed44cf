package relay

import (
	"context"
	"fmt"
	"strings"

	"github.com/nsqio/go-nsq"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/logging"
)

// Producer is the part of *nsq.Producer the relay uses.
type Producer interface {
	Publish(topic string, body []byte) error
	Stop()
}

// NSQSink publishes events to an nsqd topic.
type NSQSink struct {
	producer Producer
	topic    string
}

// NewNSQ creates a producer for cfg.Addr. nsqd is contacted lazily on the
// first publish.
func NewNSQ(cfg config.NSQRelayConfig) (*NSQSink, error) {
	producer, err := nsq.NewProducer(cfg.Addr, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create nsq producer for %s: %w", cfg.Addr, err)
	}
	producer.SetLogger(nsqLogger{}, nsq.LogLevelWarning)
	return NewNSQWithProducer(producer, cfg.Topic), nil
}

// NewNSQWithProducer wraps an existing producer.
func NewNSQWithProducer(p Producer, topic string) *NSQSink {
	return &NSQSink{producer: p, topic: topic}
}

func (s *NSQSink) Name() string {
	return "nsq"
}

func (s *NSQSink) Send(ctx context.Context, payload []byte) error {
	if err := s.producer.Publish(s.topic, payload); err != nil {
		return fmt.Errorf("publish to %s: %w", s.topic, err)
	}
	return nil
}

func (s *NSQSink) Close() error {
	s.producer.Stop()
	return nil
}

// nsqLogger routes go-nsq's log lines into slog.
type nsqLogger struct{}

func (nsqLogger) Output(calldepth int, s string) error {
	logging.Debug("nsq", "msg", strings.TrimSpace(s))
	return nil
}
