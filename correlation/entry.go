/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package correlation

import (
	"context"
	"net"
	"sync"
	"time"
)

// Entry is the state of a single in-flight request.
type Entry struct {
	id    string
	agent string
	conn  net.Conn

	mu     sync.Mutex
	data   []byte
	seq    uint64
	notify chan struct{}
}

// NewEntry creates a new Entry holding the client's request body.
func NewEntry(id, agent string, conn net.Conn, body []byte) *Entry {
	return &Entry{
		id:     id,
		agent:  agent,
		conn:   conn,
		data:   append([]byte(nil), body...),
		notify: make(chan struct{}, 1),
	}
}

// ID returns the request identifier used as the correlation key.
func (e *Entry) ID() string {
	return e.id
}

// Agent returns the identifier of the agent the request is addressed to.
func (e *Entry) Agent() string {
	return e.agent
}

// Conn returns the local client connection waiting for the reply.
func (e *Entry) Conn() net.Conn {
	return e.conn
}

// Drain returns the current payload and clears it. The update sequence is left unchanged.
func (e *Entry) Drain() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	data := e.data
	e.data = nil
	return data
}

// Update replaces the payload with a copy of data and wakes the waiter.
func (e *Entry) Update(data []byte) {
	e.mu.Lock()
	e.data = append(e.data[:0:0], data...)
	e.seq++
	e.mu.Unlock()

	select {
	case e.notify <- struct{}{}:
	default:
	}
}

// Snapshot returns a copy of the payload and the sequence number of the update that produced it.
func (e *Entry) Snapshot() (data []byte, seq uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]byte(nil), e.data...), e.seq
}

// Wait blocks until the entry is updated after the update with sequence number lastSeq.
// It returns the new payload, its sequence number and true, or (nil, lastSeq, false)
// if nothing changed before the timeout elapsed or the context was done.
// The sequence number is checked on every wake-up and once more after the deadline,
// so an update that races with the timer is never lost.
func (e *Entry) Wait(ctx context.Context, timeout time.Duration, lastSeq uint64) (data []byte, seq uint64, ok bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if data, seq, ok = e.changedSince(lastSeq); ok {
			return data, seq, true
		}
		select {
		case <-e.notify:
		case <-timer.C:
			return e.changedSince(lastSeq)
		case <-ctx.Done():
			return nil, lastSeq, false
		}
	}
}

func (e *Entry) changedSince(lastSeq uint64) ([]byte, uint64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.seq == lastSeq {
		return nil, lastSeq, false
	}
	return append([]byte(nil), e.data...), e.seq, true
}
