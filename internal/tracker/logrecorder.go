package tracker

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medcast/podcast-tracker/internal/model"
)

// DefaultLogCapacity is the number of entries retained by a LogRecorder.
const DefaultLogCapacity = 50

// LogRecorder keeps the most recent operator-visible entries, oldest first.
type LogRecorder struct {
	mu       sync.RWMutex
	capacity int
	entries  []model.LogEntry
	now      func() time.Time
	logger   logrus.FieldLogger
	onAppend func(model.LogEntry)
}

// NewLogRecorder creates a bounded recorder. Entries are mirrored to logger
// when it is non-nil.
func NewLogRecorder(capacity int, logger logrus.FieldLogger) *LogRecorder {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &LogRecorder{
		capacity: capacity,
		entries:  make([]model.LogEntry, 0, capacity),
		now:      time.Now,
		logger:   logger,
	}
}

// OnAppend registers a hook invoked after every append, outside the lock.
// Viewers use it to scroll to the newest entry.
func (r *LogRecorder) OnAppend(fn func(model.LogEntry)) {
	r.mu.Lock()
	r.onAppend = fn
	r.mu.Unlock()
}

// Append records an entry, evicting the oldest one when full. It never fails.
func (r *LogRecorder) Append(level model.LogLevel, message string, details interface{}) model.LogEntry {
	entry := model.LogEntry{
		Level:   level,
		Message: message,
		Details: details,
	}

	r.mu.Lock()
	entry.Timestamp = r.now().UTC()
	if len(r.entries) >= r.capacity {
		trim := len(r.entries) - r.capacity + 1
		r.entries = append(r.entries[:0], r.entries[trim:]...)
	}
	r.entries = append(r.entries, entry)
	hook := r.onAppend
	r.mu.Unlock()

	r.mirror(entry)
	if hook != nil {
		hook(entry)
	}
	return entry
}

func (r *LogRecorder) Info(message string, details interface{}) {
	r.Append(model.LogLevelInfo, message, details)
}

func (r *LogRecorder) Warning(message string, details interface{}) {
	r.Append(model.LogLevelWarning, message, details)
}

func (r *LogRecorder) Error(message string, details interface{}) {
	r.Append(model.LogLevelError, message, details)
}

func (r *LogRecorder) Success(message string, details interface{}) {
	r.Append(model.LogLevelSuccess, message, details)
}

// Entries returns a copy of the retained entries in insertion order.
func (r *LogRecorder) Entries() []model.LogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.LogEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of retained entries.
func (r *LogRecorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Clear drops every entry.
func (r *LogRecorder) Clear() {
	r.mu.Lock()
	r.entries = r.entries[:0]
	r.mu.Unlock()
}

func (r *LogRecorder) mirror(entry model.LogEntry) {
	if r.logger == nil {
		return
	}
	l := r.logger
	if entry.Details != nil {
		l = l.WithField("details", entry.Details)
	}
	switch entry.Level {
	case model.LogLevelWarning:
		l.Warn(entry.Message)
	case model.LogLevelError:
		l.Error(entry.Message)
	default:
		l.Info(entry.Message)
	}
}
