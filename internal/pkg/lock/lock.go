// Package lock provides per-user serialization for balance mutations.
package lock

import (
	"context"
	"sync"
	"time"
)

// userMutex is a one-slot semaphore. refs counts goroutines holding or
// waiting on it so the entry can be dropped once nobody needs it.
type userMutex struct {
	ch   chan struct{}
	refs int
}

// UserLock serializes operations per user ID. Different users never block
// each other.
type UserLock struct {
	mu    sync.Mutex
	locks map[string]*userMutex
}

// NewUserLock creates a new UserLock instance.
func NewUserLock() *UserLock {
	return &UserLock{locks: make(map[string]*userMutex)}
}

func (ul *UserLock) acquire(userID string) *userMutex {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	m, ok := ul.locks[userID]
	if !ok {
		m = &userMutex{ch: make(chan struct{}, 1)}
		ul.locks[userID] = m
	}
	m.refs++
	return m
}

func (ul *UserLock) release(userID string, m *userMutex) {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	m.refs--
	if m.refs == 0 {
		delete(ul.locks, userID)
	}
}

// Unlock releases the user's lock. Unlocking a user that is not locked is a no-op.
func (ul *UserLock) Unlock(userID string) {
	ul.mu.Lock()
	m, ok := ul.locks[userID]
	ul.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-m.ch:
		ul.release(userID, m)
	default:
	}
}

// LockContext waits for the user's lock until ctx is done or timeout
// elapses. A zero timeout waits on ctx alone.
func (ul *UserLock) LockContext(ctx context.Context, userID string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	m := ul.acquire(userID)
	select {
	case m.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		ul.release(userID, m)
		if ctx.Err() == context.DeadlineExceeded {
			return ErrLockTimeout
		}
		return ctx.Err()
	}
}

// WithLockContext runs fn while holding the user's lock, giving up when the
// lock cannot be acquired before ctx is done or timeout elapses.
func (ul *UserLock) WithLockContext(ctx context.Context, userID string, timeout time.Duration, fn func() error) error {
	if err := ul.LockContext(ctx, userID, timeout); err != nil {
		return err
	}
	defer ul.Unlock(userID)

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn()
}
