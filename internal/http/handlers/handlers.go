package handlers

import (
	"context"
	"time"

	"github.com/tbourn/go-agenda-agent/internal/domain"
	"github.com/tbourn/go-agenda-agent/internal/services"
	"github.com/tbourn/go-agenda-agent/internal/state"
)

// Assistant processes inbound chat turns.
type Assistant interface {
	Authorize(from string) (string, error)
	Handle(ctx context.Context, msg services.InboundMessage) (domain.Status, error)
	UpcomingEvents(ctx context.Context, window time.Duration, max int) ([]domain.CalendarEvent, error)
}

// IdempotencyStore persists webhook results for replay.
type IdempotencyStore interface {
	Get(ctx context.Context, userKey, scope, key string) (string, error)
	Save(ctx context.Context, userKey, scope, key, status string, ttl time.Duration) error
}

// StatusSource is the read side of the state store.
type StatusSource interface {
	PendingCount() int
	ConversationCount() int
	Events(limit int) []domain.EventLogEntry
	EventCapacity() int
}

// OAuthFlow drives the Google consent flow.
type OAuthFlow interface {
	Configured() bool
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) error
	Authorized(ctx context.Context) bool
}

// InboxPoller runs the inbox poll on demand.
type InboxPoller interface {
	PollInbox(ctx context.Context) (string, error)
}

// MailDeleter removes a mail message.
type MailDeleter interface {
	Delete(ctx context.Context, id string) error
}

// Deps groups handler collaborators. Nil optional members disable their
// routes' behavior with a 4xx/5xx instead of panicking.
type Deps struct {
	Assistant Assistant
	Idem      IdempotencyStore
	IdemTTL   time.Duration
	Status    StatusSource
	OAuth     OAuthFlow
	Poller    InboxPoller
	Mail      MailDeleter
	Location  *time.Location
	Now       func() time.Time
}

// Handlers holds HTTP endpoint implementations.
type Handlers struct {
	d Deps
	// idem serializes deliveries sharing an idempotency key so the
	// lookup, the turn and the save happen as one step.
	idem *state.KeyedMutex
}

// New returns Handlers over d.
func New(d Deps) *Handlers {
	if d.IdemTTL <= 0 {
		d.IdemTTL = 24 * time.Hour
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Handlers{d: d, idem: state.NewKeyedMutex()}
}
