package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/diagnosis/expo-appointments/internal/http/response"
	"github.com/diagnosis/expo-appointments/pkg/logger"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// LockStore hands out short-lived exclusive locks. Acquire returns ok=false when the key is held.
type LockStore interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type RedisLocks struct {
	client *redis.Client
}

func NewRedisLocks(client *redis.Client) *RedisLocks {
	return &RedisLocks{client: client}
}

func (l *RedisLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			logger.Warn("failed to release booking lock", "key", key, "error", err)
		}
	}
	return release, true, nil
}

// MemoryLocks is the single-process variant; cache.Add is atomic.
type MemoryLocks struct {
	c *cache.Cache
}

func NewMemoryLocks() *MemoryLocks {
	return &MemoryLocks{c: cache.New(time.Minute, 2*time.Minute)}
}

func (l *MemoryLocks) Acquire(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if err := l.c.Add(key, struct{}{}, ttl); err != nil {
		return nil, false, nil
	}
	return func() { l.c.Delete(key) }, true, nil
}

// FallbackLocks uses primary and switches to fallback for a call when primary errors.
type FallbackLocks struct {
	Primary  LockStore
	Fallback LockStore
}

func (l FallbackLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	release, ok, err := l.Primary.Acquire(ctx, key, ttl)
	if err == nil {
		return release, ok, nil
	}
	logger.WarnContext(ctx, "lock store unavailable, using in-process locks", "error", err)
	return l.Fallback.Acquire(ctx, key, ttl)
}

// SessionGuard allows a single in-flight request per client session. It is
// advisory: lock store failures let the request through.
func SessionGuard(store LockStore, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := Claims(r)
			if c == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := "booking-inflight:" + c.SessionID()
			release, ok, err := store.Acquire(r.Context(), key, ttl)
			if err != nil {
				logger.WarnContext(r.Context(), "session guard skipped", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				response.Conflict(w, "A booking request for this session is already in progress", response.CodeBookingInFlight)
				return
			}
			defer release()
			next.ServeHTTP(w, r)
		})
	}
}
