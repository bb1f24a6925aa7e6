/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"time"
)

// ErrWorkerUnitStopTimeoutExceeded is returned when WorkerUnit's graceful stop timeout is exceeded.
var ErrWorkerUnitStopTimeoutExceeded = errors.New("worker unit stop timeout exceeded")

// WorkerUnit presents a Worker as a Unit.
type WorkerUnit struct {
	worker            Worker
	ctx               context.Context
	cancel            context.CancelFunc
	done              chan struct{}
	stopTimeout       time.Duration
	metricsRegisterer MetricsRegisterer
}

// WorkerUnitOpts contains optional parameters for constructing WorkerUnit.
type WorkerUnitOpts struct {
	MetricsRegisterer   MetricsRegisterer
	GracefulStopTimeout time.Duration
}

// NewWorkerUnit creates a new instance of WorkerUnit.
func NewWorkerUnit(worker Worker) *WorkerUnit {
	return NewWorkerUnitWithOpts(worker, WorkerUnitOpts{})
}

// NewWorkerUnitWithOpts is a more configurable version of NewWorkerUnit.
func NewWorkerUnitWithOpts(worker Worker, opts WorkerUnitOpts) *WorkerUnit {
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerUnit{
		worker:            worker,
		ctx:               ctx,
		cancel:            cancel,
		done:              make(chan struct{}),
		stopTimeout:       opts.GracefulStopTimeout,
		metricsRegisterer: opts.MetricsRegisterer,
	}
}

// Start runs the underlying Worker and blocks until it returns.
func (u *WorkerUnit) Start(fatalErr chan<- error) {
	defer close(u.done)
	if err := u.worker.Run(u.ctx); err != nil {
		fatalErr <- err
	}
}

// Stop cancels the worker's context. When gracefully is true, it waits for the worker to return.
func (u *WorkerUnit) Stop(gracefully bool) error {
	u.cancel()
	if !gracefully {
		return nil
	}
	if u.stopTimeout == 0 {
		<-u.done
		return nil
	}
	select {
	case <-u.done:
		return nil
	case <-time.After(u.stopTimeout):
		return ErrWorkerUnitStopTimeoutExceeded
	}
}

// MustRegisterMetrics registers underlying Worker's metrics.
func (u *WorkerUnit) MustRegisterMetrics() {
	if u.metricsRegisterer != nil {
		u.metricsRegisterer.MustRegisterMetrics()
	}
}

// UnregisterMetrics unregisters underlying Worker's metrics.
func (u *WorkerUnit) UnregisterMetrics() {
	if u.metricsRegisterer != nil {
		u.metricsRegisterer.UnregisterMetrics()
	}
}
