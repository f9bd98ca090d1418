package push

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker guards a scheduler tick across processes. TryLock returns ok=false
// when another holder owns the lock.
type Locker interface {
	TryLock(ctx context.Context) (unlock func(), ok bool, err error)
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a SET NX PX lock. The TTL bounds how long a crashed holder
// blocks other instances.
type RedisLocker struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisLocker(client redis.Cmdable, key string, ttl time.Duration, logger *slog.Logger) *RedisLocker {
	return &RedisLocker{client: client, key: key, ttl: ttl, logger: logger.With("component", "tick_lock")}
}

func (l *RedisLocker) TryLock(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire tick lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	unlock := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		n, err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Int64()
		switch {
		case err != nil:
			l.logger.Warn("release tick lock failed, held until ttl", "key", l.key, "ttl", l.ttl, "error", err)
		case n == 0:
			l.logger.Warn("tick lock expired before release", "key", l.key, "ttl", l.ttl)
		}
	}
	return unlock, true, nil
}

// NewRedisClient connects to addr and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            addr,
		Password:        password,
		DB:              db,
		MaxRetries:      5,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		PoolSize:        5,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
