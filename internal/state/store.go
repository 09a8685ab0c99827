// Package state owns all shared mutable orchestrator state: pending email
// actions, appointment conversations, notification dedup sets, the bounded
// event log and the last gap-recommendation date.
//
// Every operation is synchronous, in-memory and safe for concurrent callers.
// Reads return copies, so a value obtained from the store can be modified
// freely and written back with the matching Set call. Read-modify-write
// sequences on one user key must be wrapped in Lock(key) to keep concurrent
// mutators (webhook turns, the inbox poll) from interleaving.
//
// Nothing is persisted: a restart yields an empty store.
package state

import (
	"sync"
	"time"

	"github.com/tbourn/go-agenda-agent/internal/domain"
)

const (
	defaultDedupCapacity    = 1000
	defaultEventLogCapacity = 200
	defaultHistoryTurns     = 10
)

// Option configures a Store.
type Option func(*options)

type options struct {
	dedupCapacity    int
	eventLogCapacity int
	historyTurns     int
	now              func() time.Time
}

// WithDedupCapacity bounds the reminder and seen-email sets.
func WithDedupCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.dedupCapacity = n
		}
	}
}

// WithEventLogCapacity bounds the event ring.
func WithEventLogCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.eventLogCapacity = n
		}
	}
}

// WithHistoryTurns bounds the per-key chat history.
func WithHistoryTurns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.historyTurns = n
		}
	}
}

// WithClock overrides the clock used to timestamp log events.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// Store is the process-wide orchestrator state. Construct it once at startup
// and pass it to every component.
type Store struct {
	mu            sync.RWMutex
	pending       map[string]domain.PendingEmailAction
	conversations map[string]domain.AppointmentConversation
	history       map[string][]string
	lastRecDate   string

	historyTurns int
	now          func() time.Time

	locks     *KeyedMutex
	reminders *BoundedSet
	seen      *BoundedSet
	events    *EventLog
}

// New builds an empty Store.
func New(opts ...Option) *Store {
	o := options{
		dedupCapacity:    defaultDedupCapacity,
		eventLogCapacity: defaultEventLogCapacity,
		historyTurns:     defaultHistoryTurns,
		now:              time.Now,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return &Store{
		pending:       make(map[string]domain.PendingEmailAction),
		conversations: make(map[string]domain.AppointmentConversation),
		history:       make(map[string][]string),
		historyTurns:  o.historyTurns,
		now:           o.now,
		locks:         NewKeyedMutex(),
		reminders:     NewBoundedSet(o.dedupCapacity),
		seen:          NewBoundedSet(o.dedupCapacity),
		events:        NewEventLog(o.eventLogCapacity),
	}
}

// Lock serializes read-modify-write sequences for one user key.
func (s *Store) Lock(key string) (unlock func()) { return s.locks.Lock(key) }

// ---- pending email actions ----

// SetPending stores a, replacing any earlier action for key.
func (s *Store) SetPending(key string, a domain.PendingEmailAction) {
	s.mu.Lock()
	s.pending[key] = a
	s.mu.Unlock()
}

// Pending returns the action for key, if any.
func (s *Store) Pending(key string) (domain.PendingEmailAction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.pending[key]
	return a, ok
}

// ClearPending removes the action for key. Absent keys are a no-op.
func (s *Store) ClearPending(key string) {
	s.mu.Lock()
	delete(s.pending, key)
	s.mu.Unlock()
}

// PendingCount returns the number of outstanding email actions.
func (s *Store) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

// ---- appointment conversations ----

// SetConversation stores c, replacing any earlier conversation for key.
func (s *Store) SetConversation(key string, c domain.AppointmentConversation) {
	c = c.Clone()
	s.mu.Lock()
	s.conversations[key] = c
	s.mu.Unlock()
}

// Conversation returns a copy of the conversation for key, if any.
func (s *Store) Conversation(key string) (domain.AppointmentConversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[key]
	if !ok {
		return domain.AppointmentConversation{}, false
	}
	return c.Clone(), true
}

// ClearConversation removes the conversation for key.
func (s *Store) ClearConversation(key string) {
	s.mu.Lock()
	delete(s.conversations, key)
	s.mu.Unlock()
}

// ConversationCount returns the number of active booking conversations.
func (s *Store) ConversationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

// ---- chat history ----

// AppendHistory records one user turn for key, keeping the most recent turns.
func (s *Store) AppendHistory(key, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := append(s.history[key], line)
	if len(h) > s.historyTurns {
		h = append([]string(nil), h[len(h)-s.historyTurns:]...)
	}
	s.history[key] = h
}

// History returns a copy of the recorded turns for key, oldest first.
func (s *Store) History(key string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.history[key]...)
}

// ---- event log ----

// LogEvent appends an observability event.
func (s *Store) LogEvent(kind, detail string) {
	s.events.Append(s.now(), kind, detail)
}

// LogEventAt appends an event stamped with ts, or with the store clock when
// ts is zero.
func (s *Store) LogEventAt(ts time.Time, kind, detail string) {
	if ts.IsZero() {
		ts = s.now()
	}
	s.events.Append(ts, kind, detail)
}

// Events returns up to limit events, most recent first.
func (s *Store) Events(limit int) []domain.EventLogEntry { return s.events.Recent(limit) }

// EventCapacity returns how many events the log retains.
func (s *Store) EventCapacity() int { return s.events.Capacity() }

// ---- dedup sets ----

// MarkReminderSent records a reminder key and reports whether it was new.
// Checking and marking in one call is what keeps concurrent sweeps from
// both sending the same reminder.
func (s *Store) MarkReminderSent(key string) bool { return s.reminders.Add(key) }

// WasReminderSent reports whether key has been marked.
func (s *Store) WasReminderSent(key string) bool { return s.reminders.Contains(key) }

// MarkEmailSeen records a provider message id and reports whether it was new.
func (s *Store) MarkEmailSeen(id string) bool { return s.seen.Add(id) }

// WasEmailSeen reports whether id has been marked.
func (s *Store) WasEmailSeen(id string) bool { return s.seen.Contains(id) }

// ---- gap recommendation gate ----

// LastRecommendationDate returns the YYYY-MM-DD of the last gap scan, or "".
func (s *Store) LastRecommendationDate() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRecDate
}

// SetLastRecommendationDate overwrites the gate value.
func (s *Store) SetLastRecommendationDate(date string) {
	s.mu.Lock()
	s.lastRecDate = date
	s.mu.Unlock()
}

// ClaimRecommendationDate atomically sets the gate to date unless it already
// holds date. It returns the previous value and whether the claim succeeded.
func (s *Store) ClaimRecommendationDate(date string) (prev string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev = s.lastRecDate
	if prev == date {
		return prev, false
	}
	s.lastRecDate = date
	return prev, true
}
