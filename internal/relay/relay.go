// Package relay forwards tunnel events from the broadcaster to message
// brokers. Each relay is an ordinary broadcast observer.
package relay

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/broadcast"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/config"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/logging"
)

// Sink is a broadcast sink backed by a broker connection.
type Sink interface {
	broadcast.Sink
	io.Closer
	Name() string
}

const (
	sendTimeout    = 10 * time.Second
	defaultBackoff = 5 * time.Second
)

// tolerant keeps a relay subscribed across broker hiccups: failures are
// logged and the event is dropped. After a failure, events arriving within
// backoff are dropped without touching the broker so the observer queue
// keeps draining while the broker is down. Send is only called from the
// observer's delivery goroutine.
type tolerant struct {
	sink    Sink
	logger  *slog.Logger
	backoff time.Duration
	until   time.Time
}

func (t *tolerant) Send(ctx context.Context, payload []byte) error {
	if time.Now().Before(t.until) {
		t.logger.Debug("relay backing off, event dropped", "relay", t.sink.Name())
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := t.sink.Send(ctx, payload); err != nil {
		t.logger.Warn("relay publish failed", "relay", t.sink.Name(), "error", err)
		t.until = time.Now().Add(t.backoff)
	}
	return nil
}

// Attach subscribes sink to b. Broker errors never remove the observer.
func Attach(b *broadcast.Broadcaster, sink Sink, logger *slog.Logger) *broadcast.Observer {
	return attach(b, sink, logger, defaultBackoff)
}

func attach(b *broadcast.Broadcaster, sink Sink, logger *slog.Logger, backoff time.Duration) *broadcast.Observer {
	if logger == nil {
		logger = logging.Logger
	}
	obs := b.Subscribe(&tolerant{sink: sink, logger: logger, backoff: backoff})
	logger.Info("relay attached", "relay", sink.Name(), "observer", obs.ID())
	return obs
}

// FromConfig connects every relay with an address in cfg. On error the
// relays opened so far are closed.
func FromConfig(cfg config.RelayConfig) ([]Sink, error) {
	var sinks []Sink
	fail := func(err error) ([]Sink, error) {
		for _, s := range sinks {
			s.Close()
		}
		return nil, err
	}

	if cfg.Redis.Addr != "" {
		s, err := DialRedis(cfg.Redis)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if cfg.NSQ.Addr != "" {
		s, err := NewNSQ(cfg.NSQ)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if cfg.NATS.URL != "" {
		s, err := ConnectNATS(cfg.NATS)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}
