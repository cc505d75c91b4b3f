// Package redislock provides the Redis lease that keeps reconciliation
// sweeps from overlapping across server instances.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultKey is the lease key shared by every instance.
const DefaultKey = "timeline:sweep_lock"

// ErrNotOwned is returned by Extend when the lease expired or was taken over.
var ErrNotOwned = errors.New("lease no longer owned by this instance")

// Only delete the key if it still holds our token.
const releaseScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`

const extendScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`

// Lease is a held lock. The zero value is not usable; get one from Locker.Acquire.
type Lease struct {
	client redis.Cmdable
	key    string
	token  string
	ttl    time.Duration
}

// Locker hands out leases on a single key.
type Locker struct {
	Client redis.Cmdable
	Key    string
	TTL    time.Duration
}

// NewLocker returns a Locker on DefaultKey.
func NewLocker(client redis.Cmdable, ttl time.Duration) *Locker {
	return &Locker{Client: client, Key: DefaultKey, TTL: ttl}
}

// Acquire attempts to take the lease. It returns (nil, nil) when another
// instance holds it.
func (l *Locker) Acquire(ctx context.Context) (*Lease, error) {
	token := uuid.NewString()

	acquired, err := l.Client.SetNX(ctx, l.Key, token, l.TTL).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lease: %w", err)
	}
	if !acquired {
		return nil, nil
	}

	return &Lease{client: l.Client, key: l.Key, token: token, ttl: l.TTL}, nil
}

// Release drops the lease if this holder still owns it. Releasing twice is safe.
func (l *Lease) Release(ctx context.Context) error {
	_, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Result()
	return err
}

// Extend pushes the expiry out to ttl from now.
func (l *Lease) Extend(ctx context.Context, ttl time.Duration) error {
	result, err := l.client.Eval(ctx, extendScript, []string{l.key}, l.token, ttl.Milliseconds()).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return ErrNotOwned
	}
	l.ttl = ttl
	return nil
}

func (l *Lease) Key() string        { return l.key }
func (l *Lease) Token() string      { return l.token }
func (l *Lease) TTL() time.Duration { return l.ttl }
