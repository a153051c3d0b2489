package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const (
	defaultExpiry = 15 * time.Second
	defaultTries  = 8
)

// Locker serializes work on a key across processes. The returned release func
// must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// Noop is a Locker that never blocks. Correctness then rests on storage
// constraints alone.
type Noop struct{}

func (Noop) Lock(context.Context, string) (func(), error) {
	return func() {}, nil
}

// RedisLocker implements Locker with a redsync mutex per key.
type RedisLocker struct {
	rs     *redsync.Redsync
	prefix string
	expiry time.Duration
	tries  int
}

// Option configures a RedisLocker.
type Option func(*RedisLocker)

// WithExpiry sets how long a lock is held before it expires on its own.
func WithExpiry(d time.Duration) Option {
	return func(l *RedisLocker) { l.expiry = d }
}

// WithTries sets how many acquisition attempts are made before giving up.
func WithTries(n int) Option {
	return func(l *RedisLocker) { l.tries = n }
}

// NewRedisLocker creates a Locker backed by rdb. Keys are namespaced with prefix.
func NewRedisLocker(rdb *redis.Client, prefix string, opts ...Option) *RedisLocker {
	l := &RedisLocker{
		rs:     redsync.New(goredis.NewPool(rdb)),
		prefix: prefix,
		expiry: defaultExpiry,
		tries:  defaultTries,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	name := l.prefix + key
	mutex := l.rs.NewMutex(
		name,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(l.tries),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return func() {
		// The caller's context may already be done; release on a fresh one.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := mutex.UnlockContext(unlockCtx); err != nil {
			log.Warnf("[Lock] Failed to unlock %s: %v", name, err)
		}
	}, nil
}
