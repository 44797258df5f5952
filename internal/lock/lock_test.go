package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTryAcquire(t *testing.T) {
	m := NewMemory()

	assert.True(t, m.TryAcquire(1))
	assert.False(t, m.TryAcquire(1))

	// Another user's lock is independent.
	assert.True(t, m.TryAcquire(2))

	m.Release(1)
	assert.True(t, m.TryAcquire(1))
}

func TestAcquireSucceedsImmediately(t *testing.T) {
	m := NewMemory()

	require.NoError(t, Acquire(context.Background(), m, 1, 3, time.Millisecond))
	assert.False(t, m.TryAcquire(1))
}

func TestAcquireWaitsForRelease(t *testing.T) {
	m := NewMemory()
	require.True(t, m.TryAcquire(1))

	go func() {
		time.Sleep(10 * time.Millisecond)
		m.Release(1)
	}()

	require.NoError(t, Acquire(context.Background(), m, 1, 10, 5*time.Millisecond))
}

func TestAcquireExhausted(t *testing.T) {
	m := NewMemory()
	require.True(t, m.TryAcquire(1))

	err := Acquire(context.Background(), m, 1, 2, time.Millisecond)
	assert.ErrorIs(t, err, ErrLockExhausted)
}

func TestAcquireRespectsContext(t *testing.T) {
	m := NewMemory()
	require.True(t, m.TryAcquire(1))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	err := Acquire(ctx, m, 1, 50, 10*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
