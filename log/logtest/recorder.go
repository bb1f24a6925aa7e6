/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"sync"
	"time"

	"github.com/ssgreg/logf"

	"github.com/acronis/inference-gateway/log"
)

// RecordedEntry is a log entry captured by Recorder.
// Fields contains both the entry's own fields and those inherited via With.
type RecordedEntry struct {
	LoggerName string
	Fields     []log.Field
	Level      log.Level
	Time       time.Time
	Text       string
}

// FindField returns the first field with the given key.
func (re *RecordedEntry) FindField(key string) (*log.Field, bool) {
	for i := range re.Fields {
		if re.Fields[i].Key == key {
			return &re.Fields[i], true
		}
	}
	return nil, false
}

var levels = map[logf.Level]log.Level{
	logf.LevelError: log.LevelError,
	logf.LevelWarn:  log.LevelWarn,
	logf.LevelInfo:  log.LevelInfo,
	logf.LevelDebug: log.LevelDebug,
}

// entryStore is shared by a Recorder and all loggers derived from it.
type entryStore struct {
	mu      sync.RWMutex
	entries []RecordedEntry
}

//nolint:gocritic
func (s *entryStore) WriteEntry(e logf.Entry) {
	fields := make([]log.Field, 0, len(e.Fields)+len(e.DerivedFields))
	fields = append(fields, e.Fields...)
	fields = append(fields, e.DerivedFields...)
	level, ok := levels[e.Level]
	if !ok {
		level = log.LevelInfo
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, RecordedEntry{
		LoggerName: e.LoggerName,
		Fields:     fields,
		Level:      level,
		Time:       e.Time,
		Text:       e.Text,
	})
}

func (s *entryStore) filter(fn func(RecordedEntry) bool, firstOnly bool) []RecordedEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []RecordedEntry
	for _, e := range s.entries {
		if fn(e) {
			res = append(res, e)
			if firstOnly {
				break
			}
		}
	}
	return res
}

// Recorder is a log.FieldLogger that keeps every entry in memory at debug level.
// Loggers produced by With and WithLevel record into the same storage.
type Recorder struct {
	*log.LogfAdapter
	store *entryStore
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	store := &entryStore{}
	return &Recorder{&log.LogfAdapter{Logger: logf.NewLogger(logf.LevelDebug, store)}, store}
}

// With returns a Recorder that adds fs to every entry.
func (r *Recorder) With(fs ...log.Field) log.FieldLogger {
	return &Recorder{r.LogfAdapter.With(fs...).(*log.LogfAdapter), r.store}
}

// WithLevel returns a Recorder that drops entries below level.
func (r *Recorder) WithLevel(level log.Level) log.FieldLogger {
	return &Recorder{r.LogfAdapter.WithLevel(level).(*log.LogfAdapter), r.store}
}

// Entries returns a copy of all recorded entries.
func (r *Recorder) Entries() []RecordedEntry {
	return r.store.filter(func(RecordedEntry) bool { return true }, false)
}

// FindEntry returns the first entry with exactly the given message.
func (r *Recorder) FindEntry(msg string) (RecordedEntry, bool) {
	return r.FindEntryByFilter(func(e RecordedEntry) bool { return e.Text == msg })
}

// FindEntryByFilter returns the first entry matching filter.
func (r *Recorder) FindEntryByFilter(filter func(entry RecordedEntry) bool) (RecordedEntry, bool) {
	if found := r.store.filter(filter, true); len(found) != 0 {
		return found[0], true
	}
	return RecordedEntry{}, false
}

// FindAllEntriesByFilter returns all entries matching filter.
func (r *Recorder) FindAllEntriesByFilter(filter func(entry RecordedEntry) bool) []RecordedEntry {
	return r.store.filter(filter, false)
}

// Reset drops all recorded entries.
func (r *Recorder) Reset() {
	r.store.mu.Lock()
	r.store.entries = nil
	r.store.mu.Unlock()
}
