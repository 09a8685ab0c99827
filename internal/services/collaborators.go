package services

import (
	"context"
	"time"

	"github.com/tbourn/go-agenda-agent/internal/domain"
)

// MailProvider is the narrow mail contract used by triage and the inbox poll.
type MailProvider interface {
	ListUnread(ctx context.Context, max int) ([]string, error)
	Get(ctx context.Context, id string) (domain.MailMessage, error)
	Archive(ctx context.Context, id string) error
	SendReply(ctx context.Context, to, subject, body string) error
	Delete(ctx context.Context, id string) error
}

// CalendarProvider lists, creates, and deletes events on the owner's calendar.
type CalendarProvider interface {
	ListEvents(ctx context.Context, start, end time.Time, max int) ([]domain.CalendarEvent, error)
	CreateEvent(ctx context.Context, ev domain.NewCalendarEvent) (domain.CalendarEvent, error)
	DeleteEvent(ctx context.Context, id string) error
}

// CompletionProvider is the natural-language collaborator. Implementations
// parse provider output eagerly and substitute safe defaults for malformed
// responses; only ParseEvent reports ErrUnparseable.
type CompletionProvider interface {
	Summarize(ctx context.Context, subject, body string) (string, error)
	ClassifyIntent(ctx context.Context, text string, ic domain.IntentContext) (domain.Intent, error)
	AnalyzeHealthQuery(ctx context.Context, text string, history []string) (domain.HealthAnalysis, error)
	ParseEvent(ctx context.Context, text string, loc *time.Location) (domain.ParsedEvent, error)
	SuggestSlots(ctx context.Context, events []domain.CalendarEvent, loc *time.Location, daysAhead int) ([]domain.Slot, error)
}

// Gateway delivers a text message to a chat address.
type Gateway interface {
	Send(ctx context.Context, to, text string) error
}

// Notifier is the outbound path used by the machines and the scheduler.
// *Dispatcher implements it.
type Notifier interface {
	Send(ctx context.Context, to, text string) error
}
