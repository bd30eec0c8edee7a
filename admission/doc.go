/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package admission bounds the number of requests that are dispatched to agents at the same time.
//
// Controller is a counting semaphore built on a buffered channel. Every dispatched request holds one slot
// from the moment it's admitted until its final reply is written. When the pool is exhausted,
// Acquire waits for a slot up to the given timeout and then fails with ErrTimeout,
// so the caller can reject the request instead of queueing it without bound.
package admission
