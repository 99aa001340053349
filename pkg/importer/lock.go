package importer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/redis"
)

// Locker serializes the match-and-insert section for one identity key.
// The returned func releases the lock and is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// KeyedMutex is an in-process Locker. It only guards uploads handled by the
// same process.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyLock)}
}

func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(key, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			m.release(key, l)
		})
	}, nil
}

func (m *KeyedMutex) release(key string, l *keyLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
}

// RedisLocker shares identity locks between processes through Redis.
type RedisLocker struct {
	locker *redis.Locker
	ttl    time.Duration
	wait   time.Duration
	logger ectologger.Logger
}

// NewRedisLocker leases each lock for ttl, renewed while held, and waits up
// to wait to get it
func NewRedisLocker(locker *redis.Locker, ttl, wait time.Duration, logger ectologger.Logger) *RedisLocker {
	return &RedisLocker{
		locker: locker,
		ttl:    ttl,
		wait:   wait,
		logger: logger,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lease, err := l.locker.Wait(ctx, key, l.ttl, l.wait)
	if err != nil {
		return nil, fmt.Errorf("failed to lock identity %q: %w", key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				l.logger.WithContext(ctx).WithError(err).WithField("lock_key", key).Warn("failed to release identity lock")
			}
		})
	}, nil
}
