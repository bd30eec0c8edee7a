/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

// Unit is a part of the daemon with its own lifecycle: the broker, the UDP transport, the admin server
// or a background worker.
type Unit interface {
	// Start runs the unit. It may return right after initialization or block until the unit is stopped.
	// An error that prevents the unit from running is written to fatalErr, at most once and only before
	// Start returns. Nothing is written if the unit runs (or has run) normally.
	Start(fatalErr chan<- error)

	// Stop halts the unit, letting the work in progress complete if gracefully is true.
	// It may be called before Start, after a failed Start, or concurrently with a blocked Start.
	Stop(gracefully bool) error
}

// MetricsRegisterer is implemented by units that own Prometheus collectors.
type MetricsRegisterer interface {
	MustRegisterMetrics()
	UnregisterMetrics()
}
