package redis

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockNotAcquired means another holder owns the key
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld means the lease expired or was taken over
	ErrLockNotHeld = errors.New("lock not held")
)

// Both scripts act only while KEYS[1] still holds the caller's token.
var (
	releaseScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`)
	renewScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		end
		return 0
	`)
)

const (
	minPoll = 5 * time.Millisecond
	maxPoll = 250 * time.Millisecond
)

// Locker hands out leases on keys under a common prefix
type Locker struct {
	client    *Client
	keyPrefix string
}

func NewLocker(client *Client, keyPrefix string) *Locker {
	if keyPrefix == "" {
		keyPrefix = "fern:lock:"
	}
	return &Locker{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Lease is a held lock. While held it is renewed every ttl/3 so a slow holder
// keeps it; a holder that dies loses it after ttl.
type Lease struct {
	client *Client
	key    string
	token  string
	ttl    time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	renewing sync.WaitGroup
}

// Acquire takes key if it is free
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	lease := &Lease{
		client: l.client,
		key:    l.keyPrefix + key,
		token:  uuid.NewString(),
		ttl:    ttl,
		stop:   make(chan struct{}),
	}

	ok, err := l.client.rdb.SetNX(ctx, lease.key, lease.token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	lease.renewing.Add(1)
	go lease.renew(context.WithoutCancel(ctx))

	l.client.logger.WithContext(ctx).WithField("lock_key", lease.key).Debug("Acquired lease")
	return lease, nil
}

// Wait polls for key until it is acquired or wait elapses. Polls are
// jittered so waiters on a hot key do not retry in step.
func (l *Locker) Wait(ctx context.Context, key string, ttl, wait time.Duration) (*Lease, error) {
	deadline := time.Now().Add(wait)
	poll := minPoll

	for {
		lease, err := l.Acquire(ctx, key, ttl)
		if !errors.Is(err, ErrLockNotAcquired) {
			return lease, err
		}
		if !time.Now().Before(deadline) {
			return nil, ErrLockNotAcquired
		}

		sleep := poll/2 + rand.N(poll/2+1)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
		poll = min(poll*2, maxPoll)
	}
}

func (lease *Lease) renew(ctx context.Context) {
	defer lease.renewing.Done()

	interval := max(lease.ttl/3, time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-lease.stop:
			return
		case <-ticker.C:
			held, err := renewScript.Run(ctx, lease.client.rdb, []string{lease.key}, lease.token, lease.ttl.Milliseconds()).Int64()
			if err != nil {
				lease.client.logger.WithContext(ctx).WithError(err).WithField("lock_key", lease.key).Warn("Failed to renew lease")
				continue
			}
			if held == 0 {
				lease.client.logger.WithContext(ctx).WithField("lock_key", lease.key).Warn("Lease lost before release")
				return
			}
		}
	}
}

// Release stops renewal and deletes the key if it is still ours
func (lease *Lease) Release(ctx context.Context) error {
	lease.stopOnce.Do(func() { close(lease.stop) })
	lease.renewing.Wait()

	deleted, err := releaseScript.Run(ctx, lease.client.rdb, []string{lease.key}, lease.token).Int64()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrLockNotHeld
	}

	lease.client.logger.WithContext(ctx).WithField("lock_key", lease.key).Debug("Released lease")
	return nil
}
