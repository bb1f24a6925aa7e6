/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

// Unit represents a service unit that can be started and stopped.
type Unit interface {
	// Start begins the unit's operation. It may return immediately after initialization
	// or block for the unit's lifetime. A failure is reported by writing to fatalErr,
	// which must not be used after Start returns.
	Start(fatalErr chan<- error)

	// Stop halts the unit. It may be called even if Start has failed or was never called.
	Stop(gracefully bool) error
}

// MetricsRegisterer is an interface for objects that can register its own metrics.
type MetricsRegisterer interface {
	MustRegisterMetrics()
	UnregisterMetrics()
}
