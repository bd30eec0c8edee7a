/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package logtest provides Recorder, a log.FieldLogger that keeps every logged entry in memory,
// so tests can check what the broker, the transport or a worker has logged.
package logtest
