/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package correlation

import (
	"errors"
	"sync"
)

// Table errors.
var (
	ErrDuplicate = errors.New("request identifier is already registered")
	ErrTableFull = errors.New("correlation table is full")
	ErrNotFound  = errors.New("request identifier is not registered")
)

// Table is a concurrent map from request identifier to Entry.
type Table struct {
	mu       sync.Mutex
	entries  map[string]*Entry
	capacity int
}

// NewTable creates a new Table. Zero capacity means the table is unbounded.
func NewTable(capacity int) *Table {
	if capacity < 0 {
		capacity = 0
	}
	return &Table{entries: make(map[string]*Entry), capacity: capacity}
}

// Register adds the entry to the table. An existing entry is never overwritten.
func (t *Table) Register(entry *Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[entry.id]; ok {
		return ErrDuplicate
	}
	if t.capacity > 0 && len(t.entries) >= t.capacity {
		return ErrTableFull
	}
	t.entries[entry.id] = entry
	return nil
}

// Update replaces the payload of the entry registered under id and wakes its waiter.
func (t *Table) Update(id string, data []byte) error {
	entry, ok := t.Get(id)
	if !ok {
		return ErrNotFound
	}
	entry.Update(data)
	return nil
}

// Get returns the entry registered under id.
func (t *Table) Get(id string) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[id]
	return entry, ok
}

// Remove deletes the entry registered under id.
func (t *Table) Remove(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[id]; !ok {
		return ErrNotFound
	}
	delete(t.entries, id)
	return nil
}

// Len returns the number of registered entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Capacity returns the maximum number of entries (0 if unbounded).
func (t *Table) Capacity() int {
	return t.capacity
}
