/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"sync"
	"time"

	"github.com/ssgreg/logf"

	"github.com/acronis/go-reqbroker/log"
)

// RecordedEntry is a single logged entry with all its fields, including ones added via With.
type RecordedEntry struct {
	Fields []log.Field
	Level  log.Level
	Time   time.Time
	Text   string
}

// FindField returns the first field of the entry with the given key.
func (re *RecordedEntry) FindField(key string) (*log.Field, bool) {
	for i := range re.Fields {
		if re.Fields[i].Key == key {
			return &re.Fields[i], true
		}
	}
	return nil, false
}

// entryStore is shared by a Recorder and all loggers derived from it.
type entryStore struct {
	mu      sync.RWMutex
	entries []RecordedEntry
}

//nolint:gocritic // logf.EntryWriter passes entries by value
func (s *entryStore) WriteEntry(e logf.Entry) {
	fields := make([]log.Field, 0, len(e.Fields)+len(e.DerivedFields))
	fields = append(fields, e.Fields...)
	fields = append(fields, e.DerivedFields...)
	entry := RecordedEntry{Fields: fields, Level: levelFromLogf(e.Level), Time: e.Time, Text: e.Text}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
}

func (s *entryStore) filter(match func(entry *RecordedEntry) bool, firstOnly bool) []RecordedEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found []RecordedEntry
	for i := range s.entries {
		if !match(&s.entries[i]) {
			continue
		}
		found = append(found, s.entries[i])
		if firstOnly {
			break
		}
	}
	return found
}

// Recorder is a log.FieldLogger that records all entries (at any level) for later inspection.
type Recorder struct {
	*log.LogfAdapter
	store *entryStore
}

var _ log.FieldLogger = (*Recorder)(nil)

// NewRecorder returns a new Recorder with no entries.
func NewRecorder() *Recorder {
	store := &entryStore{}
	return &Recorder{LogfAdapter: &log.LogfAdapter{Logger: logf.NewLogger(logf.LevelDebug, store)}, store: store}
}

// With returns a logger with additional fields. Its entries are recorded by the same Recorder.
func (r *Recorder) With(fs ...log.Field) log.FieldLogger {
	return &Recorder{LogfAdapter: r.LogfAdapter.With(fs...).(*log.LogfAdapter), store: r.store}
}

// WithLevel returns a logger that drops entries below the given level. Its entries are recorded
// by the same Recorder.
func (r *Recorder) WithLevel(level log.Level) log.FieldLogger {
	return &Recorder{LogfAdapter: r.LogfAdapter.WithLevel(level).(*log.LogfAdapter), store: r.store}
}

// Entries returns all recorded entries in the order they were logged.
func (r *Recorder) Entries() []RecordedEntry {
	return r.store.filter(func(*RecordedEntry) bool { return true }, false)
}

// FindEntry returns the first recorded entry with the given message.
func (r *Recorder) FindEntry(msg string) (RecordedEntry, bool) {
	found := r.store.filter(func(entry *RecordedEntry) bool { return entry.Text == msg }, true)
	if len(found) == 0 {
		return RecordedEntry{}, false
	}
	return found[0], true
}

// FindAllEntriesByLevel returns all recorded entries with the given level.
func (r *Recorder) FindAllEntriesByLevel(level log.Level) []RecordedEntry {
	return r.store.filter(func(entry *RecordedEntry) bool { return entry.Level == level }, false)
}

// Reset drops all recorded entries.
func (r *Recorder) Reset() {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.entries = nil
}

func levelFromLogf(level logf.Level) log.Level {
	switch level {
	case logf.LevelError:
		return log.LevelError
	case logf.LevelWarn:
		return log.LevelWarn
	case logf.LevelDebug:
		return log.LevelDebug
	default:
		return log.LevelInfo
	}
}
