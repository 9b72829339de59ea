package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"

	"github.com/warp/site-ledger/ledger"
	"github.com/warp/site-ledger/logging"
)

const (
	DefaultTTL       = 30 * time.Second
	defaultPrefix    = "site-ledger:lock:"
	defaultRetryWait = 50 * time.Millisecond
)

// Redis obtains one redislock per key. Obtain retries with linear backoff
// until ctx is done; the TTL bounds how long a crashed holder blocks others.
type Redis struct {
	client *redislock.Client
	TTL    time.Duration
	Prefix string
	Logger *logging.Logger
}

func NewRedis(client redislock.RedisClient, logger *logging.Logger) *Redis {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Redis{
		client: redislock.New(client),
		TTL:    DefaultTTL,
		Prefix: defaultPrefix,
		Logger: logger,
	}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	opts := &redislock.Options{RetryStrategy: redislock.LinearBackoff(defaultRetryWait)}
	l, err := r.client.Obtain(ctx, r.Prefix+key, r.TTL, opts)
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil, fmt.Errorf("%w: %s", ledger.ErrLockNotObtained, key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}

	return func() {
		// The caller's ctx may already be done; release must still go out.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			r.Logger.Warn("failed to release redis lock", "key", key, "error", err)
		}
	}, nil
}
