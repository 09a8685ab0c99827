package state

import (
	"sync"
	"time"

	"github.com/tbourn/go-agenda-agent/internal/domain"
)

// EventLog is a fixed-size ring of observability events. Business logic never
// reads it.
type EventLog struct {
	mu      sync.Mutex
	entries []domain.EventLogEntry
	next    int
	full    bool
}

// NewEventLog returns a ring holding the last capacity entries (min 1).
func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		capacity = 1
	}
	return &EventLog{entries: make([]domain.EventLogEntry, capacity)}
}

// Append records an entry, overwriting the oldest one when full.
func (l *EventLog) Append(ts time.Time, kind, detail string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[l.next] = domain.EventLogEntry{Timestamp: ts, Kind: kind, Detail: detail}
	l.next = (l.next + 1) % len(l.entries)
	if l.next == 0 {
		l.full = true
	}
}

// Recent returns up to limit entries, most recent first. limit <= 0 returns
// everything retained.
func (l *EventLog) Recent(limit int) []domain.EventLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.next
	if l.full {
		n = len(l.entries)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.EventLogEntry, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (l.next - 1 - i + len(l.entries)) % len(l.entries)
		out = append(out, l.entries[idx])
	}
	return out
}

// Capacity returns the ring size.
func (l *EventLog) Capacity() int { return len(l.entries) }
