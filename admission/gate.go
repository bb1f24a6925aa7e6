/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/atomic"
)

// ErrBacklogFull is returned by Acquire when the number of waiting requests has reached the backlog limit.
var ErrBacklogFull = errors.New("admission backlog is full")

// ErrBacklogTimeout is returned by Acquire when a request has waited for a slot longer than the backlog timeout.
var ErrBacklogTimeout = errors.New("admission backlog timeout exceeded")

// Opts represents optional parameters of the Gate.
type Opts struct {
	// BacklogLimit is the maximum number of requests that may wait for a slot. 0 means unbounded.
	BacklogLimit int

	// BacklogTimeout is the maximum time a request may wait for a slot. 0 means no timeout.
	BacklogTimeout time.Duration
}

// Gate is a bounded-capacity admission gate.
// Every successful Acquire must be paired with exactly one Release.
type Gate struct {
	slots          chan struct{}
	backlogSlots   chan struct{}
	backlogTimeout time.Duration
	inUse          *atomic.Int32
	waiting        *atomic.Int32
}

// New creates a new Gate with the given capacity and an unbounded FIFO queue.
func New(capacity int) (*Gate, error) {
	return NewWithOpts(capacity, Opts{})
}

// NewWithOpts is a more configurable version of New.
func NewWithOpts(capacity int, opts Opts) (*Gate, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("capacity should be positive, got %d", capacity)
	}
	if opts.BacklogLimit < 0 {
		return nil, fmt.Errorf("backlog limit should not be negative, got %d", opts.BacklogLimit)
	}
	if opts.BacklogTimeout < 0 {
		return nil, fmt.Errorf("backlog timeout should not be negative, got %s", opts.BacklogTimeout)
	}
	g := &Gate{
		slots:          make(chan struct{}, capacity),
		backlogTimeout: opts.BacklogTimeout,
		inUse:          atomic.NewInt32(0),
		waiting:        atomic.NewInt32(0),
	}
	if opts.BacklogLimit > 0 {
		g.backlogSlots = make(chan struct{}, opts.BacklogLimit)
	}
	return g, nil
}

// Acquire takes a slot, waiting for one to be released if all are in use.
// It returns the time spent waiting (0 if a slot was free immediately).
// Waiters get slots in the order they started waiting.
//
// On error no slot is held: the caller must not call Release.
// If ctx is done while waiting, the returned error wraps ctx.Err().
func (g *Gate) Acquire(ctx context.Context) (time.Duration, error) {
	select {
	case g.slots <- struct{}{}:
		g.inUse.Inc()
		return 0, nil
	default:
	}

	if g.backlogSlots != nil {
		select {
		case g.backlogSlots <- struct{}{}:
			defer func() { <-g.backlogSlots }()
		default:
			return 0, ErrBacklogFull
		}
	}

	g.waiting.Inc()
	defer g.waiting.Dec()

	var timeout <-chan time.Time
	if g.backlogTimeout > 0 {
		timer := time.NewTimer(g.backlogTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	startTime := time.Now()
	select {
	case g.slots <- struct{}{}:
		g.inUse.Inc()
		return time.Since(startTime), nil
	case <-timeout:
		return time.Since(startTime), ErrBacklogTimeout
	case <-ctx.Done():
		return time.Since(startTime), fmt.Errorf("wait for admission slot: %w", ctx.Err())
	}
}

// Release returns a slot acquired by Acquire.
// It must be called exactly once per successful Acquire.
func (g *Gate) Release() {
	<-g.slots
	g.inUse.Dec()
}

// Capacity returns the maximum number of slots.
func (g *Gate) Capacity() int {
	return cap(g.slots)
}

// InUse returns the number of currently held slots.
func (g *Gate) InUse() int {
	return int(g.inUse.Load())
}

// Waiting returns the number of requests currently waiting for a slot.
func (g *Gate) Waiting() int {
	return int(g.waiting.Load())
}
