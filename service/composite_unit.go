/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"strings"
	"sync"

	"go.uber.org/atomic"
)

// CompositeUnit runs several units as one.
type CompositeUnit struct {
	Units []Unit
}

// NewCompositeUnit creates a new composite unit.
func NewCompositeUnit(units ...Unit) *CompositeUnit {
	return &CompositeUnit{units}
}

// Start launches all units concurrently and blocks until all their Start calls return.
// If any unit fails, the rest are stopped non-gracefully and a CompositeUnitError
// (which also includes stop errors) is sent to fatalErr.
func (cu *CompositeUnit) Start(fatalErr chan<- error) {
	unitErrs := make([]chan error, len(cu.Units))
	for i := range unitErrs {
		unitErrs[i] = make(chan error, 1)
	}

	done := make(chan bool, len(cu.Units))
	pending := atomic.NewInt32(int32(len(cu.Units))) //nolint:gosec // unit count is small
	for i := range cu.Units {
		go func(i int) {
			cu.Units[i].Start(unitErrs[i])
			if len(unitErrs[i]) != 0 {
				done <- false
				return
			}
			if pending.Dec() == 0 {
				done <- true
			}
		}(i)
	}

	if len(cu.Units) == 0 || <-done {
		return
	}

	var errs []error
	stopErr := cu.Stop(false)
	for _, unitErr := range unitErrs {
		select {
		case err := <-unitErr:
			errs = append(errs, err)
		default:
		}
	}
	if stopErr != nil {
		errs = append(errs, stopErr.(*CompositeUnitError).UnitErrors...)
	}
	fatalErr <- &CompositeUnitError{errs}
}

// Stop stops all units concurrently and collects their errors into a CompositeUnitError.
func (cu *CompositeUnit) Stop(gracefully bool) error {
	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	for _, unit := range cu.Units {
		wg.Add(1)
		go func(unit Unit) {
			defer wg.Done()
			if err := unit.Stop(gracefully); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(unit)
	}
	wg.Wait()

	if len(errs) > 0 {
		return &CompositeUnitError{errs}
	}
	return nil
}

// MustRegisterMetrics registers metrics of all units that have them.
func (cu *CompositeUnit) MustRegisterMetrics() {
	for _, unit := range cu.Units {
		if mr, ok := unit.(MetricsRegisterer); ok {
			mr.MustRegisterMetrics()
		}
	}
}

// UnregisterMetrics unregisters metrics of all units that have them.
func (cu *CompositeUnit) UnregisterMetrics() {
	for _, unit := range cu.Units {
		if mr, ok := unit.(MetricsRegisterer); ok {
			mr.UnregisterMetrics()
		}
	}
}

// CompositeUnitError is an error which may occur in CompositeUnit's methods.
type CompositeUnitError struct {
	UnitErrors []error
}

func (cue *CompositeUnitError) Error() string {
	msgs := make([]string, 0, len(cue.UnitErrors))
	for _, err := range cue.UnitErrors {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Unwrap allows errors.Is/As to look into unit errors.
func (cue *CompositeUnitError) Unwrap() []error {
	return cue.UnitErrors
}
