package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// unlockScript deletes the key only if it still holds our token, so an
// expired lock re-taken by another instance is never released by us.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker is a Locker shared by every instance pointed at the same Redis.
// Locks are SET NX with an owner token and expire after TTL.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
	wait   time.Duration
	logger zerolog.Logger
}

type RedisOption func(*RedisLocker)

func WithTTL(d time.Duration) RedisOption        { return func(l *RedisLocker) { l.ttl = d } }
func WithRetryEvery(d time.Duration) RedisOption { return func(l *RedisLocker) { l.retry = d } }
func WithMaxWait(d time.Duration) RedisOption    { return func(l *RedisLocker) { l.wait = d } }

func NewRedisLocker(client *redis.Client, prefix string, logger zerolog.Logger, opts ...RedisOption) *RedisLocker {
	l := &RedisLocker{
		client: client,
		prefix: prefix,
		ttl:    10 * time.Second,
		retry:  25 * time.Millisecond,
		wait:   5 * time.Second,
		logger: logger,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *RedisLocker) key(k string) string {
	return l.prefix + ":lock:" + k
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	rk := l.key(key)
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(waitCtx, rk, token, l.ttl).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			l.logger.Error().Err(err).Str("key", rk).Msg("redis lock setnx failed")
			return nil, fmt.Errorf("acquire %s: %w", rk, err)
		}
		if ok {
			l.logger.Debug().Str("key", rk).Msg("redis lock acquired")
			return func() { l.unlock(rk, token) }, nil
		}

		select {
		case <-waitCtx.Done():
			l.logger.Warn().Str("key", rk).Dur("waited", l.wait).Msg("redis lock not acquired")
			return nil, errors.Join(ErrNotAcquired, waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) unlock(rk, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	n, err := unlockScript.Run(ctx, l.client, []string{rk}, token).Int()
	if err != nil {
		l.logger.Error().Err(err).Str("key", rk).Msg("redis lock release failed")
		return
	}
	if n == 0 {
		l.logger.Warn().Str("key", rk).Msg("redis lock expired before release")
	}
}

// Ping reports whether Redis is reachable. Used by the health endpoint.
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
