/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestNew(t *testing.T) {
	_, err := New(0)
	require.EqualError(t, err, "capacity should be positive, got 0")
	_, err = NewWithOpts(1, Opts{BacklogLimit: -1})
	require.EqualError(t, err, "backlog limit should not be negative, got -1")
	_, err = NewWithOpts(1, Opts{BacklogTimeout: -time.Second})
	require.Error(t, err)

	gate, err := New(3)
	require.NoError(t, err)
	require.Equal(t, 3, gate.Capacity())
	require.Zero(t, gate.InUse())
	require.Zero(t, gate.Waiting())
}

func TestGate_Acquire(t *testing.T) {
	t.Run("free slot is taken immediately", func(t *testing.T) {
		gate, err := New(2)
		require.NoError(t, err)

		wait, err := gate.Acquire(context.Background())
		require.NoError(t, err)
		require.Zero(t, wait)
		require.Equal(t, 1, gate.InUse())

		gate.Release()
		require.Zero(t, gate.InUse())
	})

	t.Run("second request waits for release", func(t *testing.T) {
		gate, err := New(1)
		require.NoError(t, err)

		_, err = gate.Acquire(context.Background())
		require.NoError(t, err)

		const holdTime = 100 * time.Millisecond
		waitCh := make(chan time.Duration, 1)
		go func() {
			wait, acquireErr := gate.Acquire(context.Background())
			if acquireErr != nil {
				waitCh <- -1
				return
			}
			waitCh <- wait
			gate.Release()
		}()

		require.Eventually(t, func() bool { return gate.Waiting() == 1 }, time.Second, time.Millisecond)
		time.Sleep(holdTime)
		gate.Release()

		wait := <-waitCh
		require.GreaterOrEqual(t, wait, holdTime)
		require.Eventually(t, func() bool { return gate.InUse() == 0 }, time.Second, time.Millisecond)
	})

	t.Run("in-use never exceeds capacity", func(t *testing.T) {
		const capacity = 3
		const requests = 30
		gate, err := New(capacity)
		require.NoError(t, err)

		inUse := atomic.NewInt32(0)
		maxInUse := atomic.NewInt32(0)
		waited := atomic.NewInt32(0)
		var wg sync.WaitGroup
		for i := 0; i < requests; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				wait, acquireErr := gate.Acquire(context.Background())
				if acquireErr != nil {
					return
				}
				defer gate.Release()
				if wait > 0 {
					waited.Inc()
				}
				cur := inUse.Inc()
				for {
					prevMax := maxInUse.Load()
					if cur <= prevMax || maxInUse.CompareAndSwap(prevMax, cur) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				inUse.Dec()
			}()
		}
		wg.Wait()

		require.LessOrEqual(t, maxInUse.Load(), int32(capacity))
		require.GreaterOrEqual(t, waited.Load(), int32(requests-capacity))
		require.Zero(t, gate.InUse())
		require.Zero(t, gate.Waiting())
	})

	t.Run("waiters are served in FIFO order", func(t *testing.T) {
		gate, err := New(1)
		require.NoError(t, err)
		_, err = gate.Acquire(context.Background())
		require.NoError(t, err)

		const waiters = 5
		order := make(chan int, waiters)
		for i := 0; i < waiters; i++ {
			i := i
			go func() {
				if _, acquireErr := gate.Acquire(context.Background()); acquireErr != nil {
					return
				}
				order <- i
				gate.Release()
			}()
			// Waiters must be parked one after another.
			require.Eventually(t, func() bool { return gate.Waiting() == i+1 }, time.Second, time.Millisecond)
			time.Sleep(20 * time.Millisecond)
		}

		gate.Release()
		for i := 0; i < waiters; i++ {
			select {
			case got := <-order:
				require.Equal(t, i, got)
			case <-time.After(time.Second):
				require.FailNow(t, "waiter was not admitted")
			}
		}
	})

	t.Run("context canceled while waiting", func(t *testing.T) {
		gate, err := New(1)
		require.NoError(t, err)
		_, err = gate.Acquire(context.Background())
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		wait, err := gate.Acquire(ctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.GreaterOrEqual(t, wait, 50*time.Millisecond)
		require.Equal(t, 1, gate.InUse())
		require.Zero(t, gate.Waiting())

		gate.Release()
		_, err = gate.Acquire(context.Background())
		require.NoError(t, err, "slot should be free after the canceled waiter left")
		gate.Release()
	})

	t.Run("backlog is full", func(t *testing.T) {
		gate, err := NewWithOpts(1, Opts{BacklogLimit: 1})
		require.NoError(t, err)
		_, err = gate.Acquire(context.Background())
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		firstWaiterErr := make(chan error, 1)
		go func() {
			_, acquireErr := gate.Acquire(ctx)
			firstWaiterErr <- acquireErr
		}()
		require.Eventually(t, func() bool { return gate.Waiting() == 1 }, time.Second, time.Millisecond)

		_, err = gate.Acquire(context.Background())
		require.ErrorIs(t, err, ErrBacklogFull)

		cancel()
		require.ErrorIs(t, <-firstWaiterErr, context.Canceled)
	})

	t.Run("backlog timeout", func(t *testing.T) {
		gate, err := NewWithOpts(1, Opts{BacklogTimeout: 30 * time.Millisecond})
		require.NoError(t, err)
		_, err = gate.Acquire(context.Background())
		require.NoError(t, err)

		wait, err := gate.Acquire(context.Background())
		require.True(t, errors.Is(err, ErrBacklogTimeout))
		require.GreaterOrEqual(t, wait, 30*time.Millisecond)
		require.Equal(t, 1, gate.InUse())
	})
}

func TestGate_Release(t *testing.T) {
	gate, err := New(1)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		wait, acquireErr := gate.Acquire(context.Background())
		require.NoError(t, acquireErr)
		require.Zero(t, wait)
		require.Equal(t, 1, gate.InUse())
		gate.Release()
		require.Zero(t, gate.InUse())
	}
}
