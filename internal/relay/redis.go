package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/config"
)

const redisIOTimeout = 5 * time.Second

// RedisSink publishes events on a pub/sub channel and keeps the latest one
// under a key so late readers can catch up.
type RedisSink struct {
	dial    func() (redis.Conn, error)
	channel string
	lastKey string
	ttl     time.Duration

	mu   sync.Mutex
	conn redis.Conn
}

// NewRedis creates a RedisSink that connects through dial on first use and
// again after a failed command.
func NewRedis(dial func() (redis.Conn, error), cfg config.RedisRelayConfig) *RedisSink {
	return &RedisSink{
		dial:    dial,
		channel: cfg.Channel,
		lastKey: cfg.LastKey,
		ttl:     cfg.TTL,
	}
}

// DialRedis connects to cfg.Addr.
func DialRedis(cfg config.RedisRelayConfig) (*RedisSink, error) {
	dial := func() (redis.Conn, error) {
		return redis.Dial("tcp", cfg.Addr,
			redis.DialConnectTimeout(5*time.Second),
			redis.DialReadTimeout(redisIOTimeout),
			redis.DialWriteTimeout(redisIOTimeout),
			redis.DialKeepAlive(time.Minute),
		)
	}
	s := NewRedis(dial, cfg)
	conn, err := dial()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	s.conn = conn
	return s, nil
}

func (s *RedisSink) Name() string {
	return "redis"
}

// Send publishes payload and stores it under the last-event key.
func (s *RedisSink) Send(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		conn, err := s.dial()
		if err != nil {
			return err
		}
		s.conn = conn
	}

	err := s.do(ctx, payload)
	if err != nil {
		s.conn.Close()
		s.conn = nil
	}
	return err
}

func (s *RedisSink) do(ctx context.Context, payload []byte) error {
	if _, err := redis.DoContext(s.conn, ctx, "PUBLISH", s.channel, payload); err != nil {
		return fmt.Errorf("publish to %s: %w", s.channel, err)
	}
	if s.lastKey == "" {
		return nil
	}
	args := []interface{}{s.lastKey, payload}
	if s.ttl > 0 {
		args = append(args, "EX", ttlSeconds(s.ttl))
	}
	if _, err := redis.DoContext(s.conn, ctx, "SET", args...); err != nil {
		return fmt.Errorf("set %s: %w", s.lastKey, err)
	}
	return nil
}

// ttlSeconds rounds d up to whole seconds; EX 0 is rejected by redis.
func ttlSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}

func (s *RedisSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
