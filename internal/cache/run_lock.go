package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RunLock stops two background vision runs for the same session overlapping
type RunLock interface {
	// Acquire returns false when the lock is already held
	Acquire(ctx context.Context, userID, date string) (bool, error)
	Release(ctx context.Context, userID, date string) error
}

type runLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRunLock creates a Redis SETNX lock; ttl bounds how long a crashed run
// can hold it
func NewRunLock(client *redis.Client, ttl time.Duration) RunLock {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &runLock{client: client, ttl: ttl}
}

func (l *runLock) key(userID, date string) string {
	return fmt.Sprintf("vision:%s:%s:lock", userID, date)
}

func (l *runLock) Acquire(ctx context.Context, userID, date string) (bool, error) {
	return l.client.SetNX(ctx, l.key(userID, date), time.Now().Unix(), l.ttl).Result()
}

func (l *runLock) Release(ctx context.Context, userID, date string) error {
	return l.client.Del(ctx, l.key(userID, date)).Err()
}

type localRunLock struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalRunLock is the in-process lock used without Redis
func NewLocalRunLock() RunLock {
	return &localRunLock{held: map[string]struct{}{}}
}

func (l *localRunLock) Acquire(_ context.Context, userID, date string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := userID + "|" + date
	if _, ok := l.held[key]; ok {
		return false, nil
	}
	l.held[key] = struct{}{}
	return true, nil
}

func (l *localRunLock) Release(_ context.Context, userID, date string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, userID+"|"+date)
	return nil
}
