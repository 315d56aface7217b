package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockerSerializesPerKey(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, ParticipationLockKey(1))
			require.NoError(t, err)
			current := atomic.AddInt32(&inside, 1)
			for {
				seen := atomic.LoadInt32(&maxInside)
				if current <= seen || atomic.CompareAndSwapInt32(&maxInside, seen, current) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&maxInside))
}

func TestMemoryLockerTimesOutAndRecovers(t *testing.T) {
	locker := NewMemoryLocker()

	unlock, err := locker.Lock(context.Background(), "key")
	require.NoError(t, err)

	// other keys are independent
	other, err := locker.Lock(context.Background(), "other")
	require.NoError(t, err)
	other()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "key")
	require.ErrorIs(t, err, ErrLockTimeout)

	unlock()
	unlock()

	again, err := locker.Lock(context.Background(), "key")
	require.NoError(t, err)
	again()
}

func TestRedisLockerExcludesOtherHolders(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	first := NewRedisLocker(client, "grader", time.Minute)
	second := NewRedisLocker(client, "grader", time.Minute)

	unlock, err := first.Lock(context.Background(), ExerciseTestCaseLockKey(3))
	require.NoError(t, err)
	require.True(t, mini.Exists("grader:lock:exercise:3:test-cases"))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_, err = second.Lock(ctx, ExerciseTestCaseLockKey(3))
	require.ErrorIs(t, err, ErrLockTimeout)

	unlock()
	require.False(t, mini.Exists("grader:lock:exercise:3:test-cases"))

	unlockSecond, err := second.Lock(context.Background(), ExerciseTestCaseLockKey(3))
	require.NoError(t, err)
	unlockSecond()
}
