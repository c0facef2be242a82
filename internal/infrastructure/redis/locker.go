// Package redis provides the cross-process allocation lock
package redis

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/bsm/redislock"
	goredis "github.com/redis/go-redis/v9"

	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/pkg/errors"
	"github.com/wms-platform/warehouse-core/pkg/logging"
	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

// Config holds Redis connection and lock settings
type Config struct {
	Addr     string
	Password string
	DB       int
	// LockTTL bounds how long a crashed holder blocks an item
	LockTTL time.Duration
	// RetryInterval is the polling interval while waiting for a held lock
	RetryInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Addr:          "localhost:6379",
		LockTTL:       30 * time.Second,
		RetryInterval: 50 * time.Millisecond,
	}
}

// NewClient connects and pings Redis
func NewClient(ctx context.Context, cfg *Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Locker implements domain.AllocationLocker with one redislock key per item
type Locker struct {
	client   *redislock.Client
	ttl      time.Duration
	interval time.Duration
	logger   *logging.Logger
}

// NewLocker creates a Locker over client
func NewLocker(client redislock.RedisClient, cfg *Config, logger *logging.Logger) *Locker {
	return &Locker{
		client:   redislock.New(client),
		ttl:      cfg.LockTTL,
		interval: cfg.RetryInterval,
		logger:   logger.WithComponent("allocation-lock"),
	}
}

// Lock obtains every item key in sorted order, waiting until ctx is done.
// Keys already obtained are released when a later one cannot be.
func (l *Locker) Lock(ctx context.Context, tc tenant.Context, itemIDs []string) (func(), error) {
	keys := lockKeys(tc, itemIDs)
	held := make([]*redislock.Lock, 0, len(keys))

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Release(releaseCtx); err != nil && err != redislock.ErrLockNotHeld {
				l.logger.WithError(err).Warn("Failed to release allocation lock", "key", held[i].Key())
			}
		}
	}

	opts := &redislock.Options{RetryStrategy: redislock.LinearBackoff(l.interval)}
	for _, key := range keys {
		lock, err := l.client.Obtain(ctx, key, l.ttl, opts)
		if err != nil {
			release()
			if err == redislock.ErrNotObtained || ctx.Err() != nil {
				return nil, errors.ErrServiceUnavailable("allocation lock").
					WithDetail("lockKey", key).Wrap(err)
			}
			return nil, fmt.Errorf("failed to obtain allocation lock %s: %w", key, err)
		}
		held = append(held, lock)
	}
	return release, nil
}

func lockKeys(tc tenant.Context, itemIDs []string) []string {
	keys := make([]string, 0, len(itemIDs))
	for _, id := range itemIDs {
		keys = append(keys, fmt.Sprintf("wms:alloc:%s:%s:%s", tc.TenantID, tc.FacilityID, id))
	}
	slices.Sort(keys)
	return slices.Compact(keys)
}

var _ domain.AllocationLocker = (*Locker)(nil)
