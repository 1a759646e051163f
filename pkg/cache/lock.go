package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker grants short-lived exclusive leases on string keys.
//
// A lease expires on its own after ttl even when release is never called,
// which lets callers use TryLock as a debounce window.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX and a compare-and-delete release.
type RedisLocker struct {
	client *redis.Client
	prefix string
}

// NewRedisLocker builds a RedisLocker namespacing keys with prefix.
func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix}
}

// TryLock attempts to acquire key without blocking.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	full := l.prefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis lock %s: %w", full, err)
	}
	if !ok {
		return func() {}, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{full}, token).Err()
	}
	return release, true, nil
}

// LocalLocker is the in-process Locker used when Redis is disabled.
type LocalLocker struct {
	mu     sync.Mutex
	leases map[string]localLease
	now    func() time.Time
}

type localLease struct {
	token   uint64
	expires time.Time
}

// NewLocalLocker builds an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{leases: make(map[string]localLease), now: time.Now}
}

var localTokens uint64

// TryLock attempts to acquire key without blocking.
func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if lease, ok := l.leases[key]; ok && now.Before(lease.expires) {
		return func() {}, false, nil
	}

	token := atomic.AddUint64(&localTokens, 1)
	l.leases[key] = localLease{token: token, expires: now.Add(ttl)}
	l.sweep(now)

	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if lease, ok := l.leases[key]; ok && lease.token == token {
			delete(l.leases, key)
		}
	}
	return release, true, nil
}

func (l *LocalLocker) sweep(now time.Time) {
	if len(l.leases) < 1024 {
		return
	}
	for key, lease := range l.leases {
		if !now.Before(lease.expires) {
			delete(l.leases, key)
		}
	}
}
