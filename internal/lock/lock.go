// Package lock serializes score imports per user. Two concurrent
// imports for the same user would race on PB and stats recomputation,
// so one of them waits.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrLockExhausted means the user's import lock stayed busy through
// every retry attempt.
var ErrLockExhausted = errors.New("user import lock is busy")

var errLockBusy = errors.New("lock held")

// UserLocker hands out non-blocking per-user locks.
type UserLocker interface {
	TryAcquire(userID int) bool
	Release(userID int)
}

// Memory is an in-process UserLocker.
type Memory struct {
	mu   sync.Mutex
	held map[int]bool
}

func NewMemory() *Memory {
	return &Memory{held: make(map[int]bool)}
}

func (m *Memory) TryAcquire(userID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.held[userID] {
		return false
	}
	m.held[userID] = true
	return true
}

func (m *Memory) Release(userID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, userID)
}

// Acquire takes the user's lock, retrying with exponential backoff
// while another import holds it. Returns ErrLockExhausted once the
// attempts run out; the caller should surface that as "an import is
// already in progress".
func Acquire(ctx context.Context, locker UserLocker, userID int, maxTries int, baseDelay time.Duration) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = baseDelay

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if locker.TryAcquire(userID) {
			return struct{}{}, nil
		}
		return struct{}{}, errLockBusy
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(uint(maxTries)))

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrLockExhausted
	}
	return nil
}
