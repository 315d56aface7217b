package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout indicates a keyed lock could not be acquired before the context ended.
var ErrLockTimeout = errors.New("lock not acquired")

// KeyedLocker serializes work per key, e.g. per participation or per exercise.
type KeyedLocker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// ParticipationLockKey is the key guarding result writes of a participation.
func ParticipationLockKey(participationID uint) string {
	return fmt.Sprintf("participation:%d", participationID)
}

// ExerciseTestCaseLockKey is the key guarding registry writes of an exercise.
func ExerciseTestCaseLockKey(exerciseID uint) string {
	return fmt.Sprintf("exercise:%d:test-cases", exerciseID)
}

type memoryLockEntry struct {
	mu      sync.Mutex
	waiters int
}

type memoryLocker struct {
	mu      sync.Mutex
	entries map[string]*memoryLockEntry
}

// NewMemoryLocker returns a process-local keyed locker.
func NewMemoryLocker() KeyedLocker {
	return &memoryLocker{entries: make(map[string]*memoryLockEntry)}
}

func (l *memoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &memoryLockEntry{}
		l.entries[key] = entry
	}
	entry.waiters++
	l.mu.Unlock()

	acquired := make(chan struct{})
	go func() {
		entry.mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-ctx.Done():
		// hand the mutex back once the pending acquisition completes
		go func() {
			<-acquired
			l.release(key, entry)
		}()
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, entry) })
	}, nil
}

func (l *memoryLocker) release(key string, entry *memoryLockEntry) {
	l.mu.Lock()
	entry.waiters--
	if entry.waiters == 0 {
		delete(l.entries, key)
	}
	l.mu.Unlock()
	entry.mu.Unlock()
}

const releaseLockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

type redisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker returns a locker shared by every node connected to the same Redis.
func NewRedisLocker(client *redis.Client, prefix string, ttl time.Duration) KeyedLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &redisLocker{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		retry:  25 * time.Millisecond,
	}
}

func (l *redisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + ":lock:" + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
			}
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = l.client.Eval(releaseCtx, releaseLockScript, []string{redisKey}, token).Err()
		})
	}, nil
}
