// Package lockservice daje nazwaną blokadę "jeden import naraz".
// Niezależna od bazy: backend plikowy (domyślny, jeden host) albo Redis
// (kilka instancji za load balancerem).
package lockservice

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/bartek5186/onec2www/internal/exchange"
	"github.com/go-redis/redis/v8"
)

// ErrLockHeld – blokada zajęta, import już trwa gdzie indziej.
var ErrLockHeld = errors.New("lockservice: lock held")

type Locker interface {
	// Acquire blokuje nazwę na czas trwania operacji. ErrLockHeld gdy
	// zajęta i nie zwolniła się w zadanym czasie.
	Acquire(ctx context.Context, name string, wait time.Duration) error
	Release(ctx context.Context, name string) error
}

// --- backend plikowy (FileLock z pakietu exchange) ---

type fileLocker struct {
	dir string
}

func NewFileLocker(dir string) Locker {
	return &fileLocker{dir: dir}
}

func (l *fileLocker) Acquire(_ context.Context, name string, wait time.Duration) error {
	fl := exchange.NewFileLock(filepath.Join(l.dir, name+".lock"))
	if err := fl.Acquire(wait); err != nil {
		if errors.Is(err, exchange.ErrLockNotAcquired) {
			return ErrLockHeld
		}
		return err
	}
	return nil
}

func (l *fileLocker) Release(_ context.Context, name string) error {
	return exchange.NewFileLock(filepath.Join(l.dir, name+".lock")).Release()
}

// --- backend Redis (SetNX) ---

// lockTTL to bezpiecznik: gdy proces padnie z trzymaną blokadą, Redis
// zwolni ją sam. Musi być dłuższy niż okno staleness importu.
const lockTTL = 3 * time.Hour

type redisLocker struct {
	rdb *redis.Client
}

func NewRedisLocker(addr string) Locker {
	return &redisLocker{
		rdb: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

func (l *redisLocker) Acquire(ctx context.Context, name string, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for {
		ok, err := l.rdb.SetNX(ctx, "onec2www:lock:"+name, 1, lockTTL).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrLockHeld
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (l *redisLocker) Release(ctx context.Context, name string) error {
	return l.rdb.Del(ctx, "onec2www:lock:"+name).Err()
}
