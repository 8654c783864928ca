package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisNotifier publishes notifications on Redis Pub/Sub.
type RedisNotifier struct {
	client publisher
	closer func() error
	logger *zap.Logger
}

// NewRedisNotifier connects to addr and verifies the connection.
func NewRedisNotifier(ctx context.Context, addr string, logger *zap.Logger) (*RedisNotifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     4,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}

	logger.Info("connected to redis", zap.String("addr", addr))
	return &RedisNotifier{client: rdb, closer: rdb.Close, logger: logger}, nil
}

// SyncCompleted publishes n unless it carries no ids. Failures are logged.
func (r *RedisNotifier) SyncCompleted(ctx context.Context, n SyncNotification) {
	if len(n.IDs) == 0 {
		return
	}
	payload, err := json.Marshal(n)
	if err != nil {
		r.logger.Warn("encode sync notification", zap.Error(err))
		return
	}
	channel := Channel(n.ChainID, n.Event)
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		r.logger.Warn("failed to publish sync notification",
			zap.String("channel", channel),
			zap.Error(err),
		)
	}
}

// Close closes the Redis connection.
func (r *RedisNotifier) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}
