package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (Locker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisBookingLocker(client, 5*time.Second), mr
}

func TestNewRedisClientPingsOnStartup(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(mr.Addr(), "", "", 4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	assert.Equal(t, 4, client.Options().PoolSize)

	addr := mr.Addr()
	mr.Close()
	_, err = NewRedisClient(addr, "", "", 0)
	assert.Error(t, err)
}

func TestWithBookingLockRunsAndReleases(t *testing.T) {
	locker, mr := newTestLocker(t)
	doctorID := uuid.New()

	ran := false
	err := locker.WithBookingLock(context.Background(), doctorID, "2026-09-07", "09:00", func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists(bookingKey(doctorID, "2026-09-07", "09:00")))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists(bookingKey(doctorID, "2026-09-07", "09:00")))
}

func TestWithBookingLockContendedKeyFailsFast(t *testing.T) {
	locker, _ := newTestLocker(t)
	doctorID := uuid.New()

	err := locker.WithBookingLock(context.Background(), doctorID, "2026-09-07", "09:00", func(ctx context.Context) error {
		inner := locker.WithBookingLock(ctx, doctorID, "2026-09-07", "09:00", func(context.Context) error {
			t.Fatal("contended lock must not run its callback")
			return nil
		})
		assert.ErrorIs(t, inner, ErrLockNotAcquired)

		// A different slot is an unrelated key and proceeds.
		other := locker.WithBookingLock(ctx, doctorID, "2026-09-07", "09:30", func(context.Context) error {
			return nil
		})
		assert.NoError(t, other)
		return nil
	})
	require.NoError(t, err)
}

func TestWithBookingLockKeysAreIndependentPerDoctor(t *testing.T) {
	locker, _ := newTestLocker(t)

	err := locker.WithBookingLock(context.Background(), uuid.New(), "2026-09-07", "09:00", func(ctx context.Context) error {
		return locker.WithBookingLock(ctx, uuid.New(), "2026-09-07", "09:00", func(context.Context) error {
			return nil
		})
	})
	assert.NoError(t, err)
}

func TestReleaseIgnoresStolenLock(t *testing.T) {
	locker, mr := newTestLocker(t)
	doctorID := uuid.New()
	key := bookingKey(doctorID, "2026-09-07", "09:00")

	err := locker.WithBookingLock(context.Background(), doctorID, "2026-09-07", "09:00", func(ctx context.Context) error {
		// Simulate TTL expiry plus takeover by another process: release
		// must leave the new holder's token in place.
		require.NoError(t, mr.Set(key, "someone-else"))
		return nil
	})
	require.NoError(t, err)

	val, getErr := mr.Get(key)
	require.NoError(t, getErr)
	assert.Equal(t, "someone-else", val)
}

func TestLocalBookingLocker(t *testing.T) {
	locker := NewLocalBookingLocker()
	doctorID := uuid.New()

	err := locker.WithBookingLock(context.Background(), doctorID, "2026-09-07", "09:00", func(ctx context.Context) error {
		inner := locker.WithBookingLock(ctx, doctorID, "2026-09-07", "09:00", func(context.Context) error {
			return nil
		})
		assert.ErrorIs(t, inner, ErrLockNotAcquired)
		return nil
	})
	require.NoError(t, err)

	// Released after the callback returns.
	err = locker.WithBookingLock(context.Background(), doctorID, "2026-09-07", "09:00", func(context.Context) error {
		return nil
	})
	assert.NoError(t, err)
}
