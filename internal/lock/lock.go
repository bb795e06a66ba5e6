// Package lock provides named mutual exclusion across workers and processes.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired means another holder owns the key
var ErrNotAcquired = errors.New("lock held by another owner")

// Locker hands out expiring named locks. The token returned by TryLock must
// be presented to Unlock so a holder never releases a lock it lost to expiry.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// RedisLocker implements Locker with SET NX PX and a compare-and-delete script
type RedisLocker struct {
	cli    *redis.Client
	prefix string
}

func NewRedisLocker(cli *redis.Client, prefix string) *RedisLocker {
	return &RedisLocker{cli: cli, prefix: prefix}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := l.cli.SetNX(ctx, l.prefix+key, token, ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotAcquired
	}
	return token, nil
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := luaUnlock.Run(ctx, l.cli, []string{l.prefix + key}, token).Result()
	return err
}

type localEntry struct {
	token   string
	expires time.Time
}

// LocalLocker is the in-process Locker used when Redis is not configured
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]localEntry
	now   func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]localEntry), now: time.Now}
}

func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, ok := l.locks[key]; ok && now.Before(e.expires) {
		return "", ErrNotAcquired
	}
	token := uuid.NewString()
	l.locks[key] = localEntry{token: token, expires: now.Add(ttl)}
	return token, nil
}

func (l *LocalLocker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.locks[key]; ok && e.token == token {
		delete(l.locks, key)
	}
	return nil
}

// Wait retries TryLock every interval until it succeeds or ctx ends.
func Wait(ctx context.Context, l Locker, key string, ttl, interval time.Duration) (string, error) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	for {
		token, err := l.TryLock(ctx, key, ttl)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, ErrNotAcquired) {
			return "", err
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}
	}
}

// Run executes fn while holding key. It returns ErrNotAcquired without
// calling fn when the key is taken.
func Run(ctx context.Context, l Locker, key string, ttl time.Duration, fn func(context.Context) error) error {
	token, err := l.TryLock(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer func() {
		// release with a fresh context so a cancelled caller still unlocks
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.Unlock(ctx, key, token)
	}()
	return fn(ctx)
}
