// Package bookkeeping holds the side effects that surround automation runs:
// usage metering, webhook registration and test-run history.
package bookkeeping

import (
	"context"
	"fmt"
	"log/slog"

	redis "github.com/redis/go-redis/v9"
)

// CounterAutomationRuns is incremented once per production dispatch.
const CounterAutomationRuns = "automationRuns"

const usageKeyPrefix = "usage:"

// UsageMeter increments per-account usage counters. Increments are at-least-once:
// a retried delivery of the same event counts again.
type UsageMeter interface {
	Increment(ctx context.Context, accountKey, counter string, amount int64) error
}

// LogUsageMeter only logs increments. It is used when no quota store is configured.
type LogUsageMeter struct {
	logger *slog.Logger
}

func NewLogUsageMeter(logger *slog.Logger) *LogUsageMeter {
	return &LogUsageMeter{logger: logger.With("module", "usage_meter")}
}

func (m *LogUsageMeter) Increment(ctx context.Context, accountKey, counter string, amount int64) error {
	m.logger.DebugContext(ctx, "Usage incremented", "account", accountKey, "counter", counter, "amount", amount)

	return nil
}

// RedisUsageMeter keeps one hash per account, one field per counter.
type RedisUsageMeter struct {
	client redis.UniversalClient
	logger *slog.Logger
}

func NewRedisUsageMeter(client redis.UniversalClient, logger *slog.Logger) *RedisUsageMeter {
	return &RedisUsageMeter{client: client, logger: logger.With("module", "usage_meter")}
}

// NewRedisUsageMeterFromURL connects to the redis server at url and verifies it responds.
func NewRedisUsageMeterFromURL(ctx context.Context, url string, logger *slog.Logger) (*RedisUsageMeter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	return NewRedisUsageMeter(client, logger), nil
}

func (m *RedisUsageMeter) Increment(ctx context.Context, accountKey, counter string, amount int64) error {
	total, err := m.client.HIncrBy(ctx, usageKeyPrefix+accountKey, counter, amount).Result()
	if err != nil {
		return fmt.Errorf("failed to increment %s for %s: %w", counter, accountKey, err)
	}

	m.logger.DebugContext(ctx, "Usage incremented", "account", accountKey, "counter", counter, "total", total)

	return nil
}

func (m *RedisUsageMeter) Close() error {
	return m.client.Close()
}
