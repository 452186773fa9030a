package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockNotAcquired = errors.New("booking lock not acquired")

// Locker guards the check-then-insert critical section of a booking. The
// key is the (doctor, date, time) triple, so two concurrent requests for
// the same slot serialize while unrelated bookings proceed.
type Locker interface {
	WithBookingLock(ctx context.Context, doctorID uuid.UUID, date, tm string, fn func(ctx context.Context) error) error
}

type redisBookingLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisBookingLocker creates a locker backed by a per-booking-key Redis
// SET NX with a token-checked release.
func NewRedisBookingLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisBookingLocker{
		client: client,
		ttl:    ttl,
	}
}

func bookingKey(doctorID uuid.UUID, date, tm string) string {
	return fmt.Sprintf("lock:booking:%s:%s:%s", doctorID.String(), date, tm)
}

func (l *redisBookingLocker) WithBookingLock(ctx context.Context, doctorID uuid.UUID, date, tm string, fn func(ctx context.Context) error) error {
	key := bookingKey(doctorID, date, tm)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire booking lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisBookingLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release booking lock: %w", err)
	}
	return nil
}

type localBookingLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalBookingLocker returns an in-process Locker for single-node runs
// (memory store backend) and tests. Same contract as the Redis locker:
// a contended key fails fast with ErrLockNotAcquired.
func NewLocalBookingLocker() Locker {
	return &localBookingLocker{held: make(map[string]struct{})}
}

func (l *localBookingLocker) WithBookingLock(ctx context.Context, doctorID uuid.UUID, date, tm string, fn func(ctx context.Context) error) error {
	key := bookingKey(doctorID, date, tm)

	l.mu.Lock()
	if _, taken := l.held[key]; taken {
		l.mu.Unlock()
		return ErrLockNotAcquired
	}
	l.held[key] = struct{}{}
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}()

	return fn(ctx)
}
