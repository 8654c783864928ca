package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	listenRetryMin = time.Second
	listenRetryMax = 30 * time.Second
)

// Pattern matches every sync channel of a chain.
func Pattern(chainID uint64) string {
	return fmt.Sprintf("govwatch:%d:*.synced", chainID)
}

// subscription is the part of *redis.PubSub the listener uses.
type subscription interface {
	Receive(ctx context.Context) (interface{}, error)
	Channel(opts ...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

// RedisListener receives sync notifications published by other processes.
type RedisListener struct {
	subscribe func(ctx context.Context, pattern string) subscription
	closer    func() error
	logger    *zap.Logger
	retryMin  time.Duration
}

// NewRedisListener connects to addr and verifies the connection.
func NewRedisListener(ctx context.Context, addr string, logger *zap.Logger) (*RedisListener, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		PoolSize:    2,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}

	return &RedisListener{
		subscribe: func(ctx context.Context, pattern string) subscription {
			return rdb.PSubscribe(ctx, pattern)
		},
		closer:   rdb.Close,
		logger:   logger,
		retryMin: listenRetryMin,
	}, nil
}

// Run delivers every notification of chainID to handle until ctx is done.
// A dropped subscription is re-established with growing delays.
func (l *RedisListener) Run(ctx context.Context, chainID uint64, handle func(SyncNotification)) error {
	pattern := Pattern(chainID)
	delay := l.retryMin
	for {
		received, err := l.listen(ctx, pattern, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if received {
			delay = l.retryMin
		}
		l.logger.Warn("redis subscription lost",
			zap.String("pattern", pattern),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
		if delay > listenRetryMax {
			delay = listenRetryMax
		}
	}
}

// listen runs one subscription. It reports whether any message arrived.
func (l *RedisListener) listen(ctx context.Context, pattern string, handle func(SyncNotification)) (bool, error) {
	sub := l.subscribe(ctx, pattern)
	defer func() {
		if err := sub.Close(); err != nil {
			l.logger.Debug("close redis subscription", zap.Error(err))
		}
	}()

	receiveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	_, err := sub.Receive(receiveCtx)
	cancel()
	if err != nil {
		return false, fmt.Errorf("confirm subscription: %w", err)
	}
	l.logger.Info("subscribed to sync notifications", zap.String("pattern", pattern))

	var received bool
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return received, ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return received, fmt.Errorf("channel closed")
			}
			received = true
			var n SyncNotification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				l.logger.Warn("decode sync notification",
					zap.String("channel", msg.Channel),
					zap.Error(err),
				)
				continue
			}
			handle(n)
		}
	}
}

// Close closes the Redis connection.
func (l *RedisListener) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer()
}
