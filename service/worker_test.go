/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/inference-gateway/log"
	"github.com/acronis/inference-gateway/log/logtest"
)

func TestPeriodicWorker_Run(t *testing.T) {
	t.Run("stop by context", func(t *testing.T) {
		probes := atomic.NewInt32(0)
		pw := NewPeriodicWorker(WorkerFunc(func(ctx context.Context) error {
			probes.Inc()
			return nil
		}), 20*time.Millisecond, log.NewDisabledLogger())

		ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
		defer cancel()
		require.NoError(t, pw.Run(ctx))
		require.GreaterOrEqual(t, probes.Load(), int32(3))
	})

	t.Run("stop by worker", func(t *testing.T) {
		probes := atomic.NewInt32(0)
		pw := NewPeriodicWorker(WorkerFunc(func(ctx context.Context) error {
			if probes.Inc() == 2 {
				return ErrPeriodicWorkerStop
			}
			return nil
		}), time.Millisecond, log.NewDisabledLogger())

		require.NoError(t, pw.Run(context.Background()))
		require.Equal(t, int32(2), probes.Load())
	})

	t.Run("iteration errors are logged and the loop continues", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()
		probes := atomic.NewInt32(0)
		pw := NewPeriodicWorkerWithOpts(WorkerFunc(func(ctx context.Context) error {
			switch probes.Inc() {
			case 1:
				return errors.New("backend is down")
			case 3:
				return ErrPeriodicWorkerStop
			}
			return nil
		}), time.Millisecond, logRecorder, PeriodicWorkerOpts{InitialDelay: time.Millisecond})

		require.NoError(t, pw.Run(context.Background()))
		require.Equal(t, int32(3), probes.Load())
		entry, found := logRecorder.FindEntry("periodic worker iteration failed")
		require.True(t, found)
		require.Equal(t, log.LevelWarn, entry.Level)
	})
}

func TestWorkerUnit(t *testing.T) {
	t.Run("graceful stop", func(t *testing.T) {
		unit := NewWorkerUnit(WorkerFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		}))
		fatalErr := make(chan error, 1)
		go unit.Start(fatalErr)
		require.NoError(t, unit.Stop(true))
		require.Len(t, fatalErr, 0)
	})

	t.Run("stop timeout exceeded", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		unit := NewWorkerUnitWithOpts(WorkerFunc(func(ctx context.Context) error {
			<-release
			return nil
		}), WorkerUnitOpts{GracefulStopTimeout: 20 * time.Millisecond})
		go unit.Start(make(chan error, 1))
		require.ErrorIs(t, unit.Stop(true), ErrWorkerUnitStopTimeoutExceeded)
	})

	t.Run("worker error is fatal", func(t *testing.T) {
		workerErr := errors.New("worker failed")
		unit := NewWorkerUnit(WorkerFunc(func(ctx context.Context) error { return workerErr }))
		fatalErr := make(chan error, 1)
		unit.Start(fatalErr)
		require.ErrorIs(t, <-fatalErr, workerErr)
	})
}
