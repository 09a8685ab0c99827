package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-agenda-agent/internal/domain"
	"github.com/tbourn/go-agenda-agent/internal/state"
)

// ---------- collaborator fakes ----------

type sent struct{ to, text string }

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []sent
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, sent{to, text})
	return f.err
}

func (f *fakeNotifier) last() sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		return sent{}
	}
	return f.msgs[len(f.msgs)-1]
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

type reply struct{ to, subject, body string }

type fakeMail struct {
	mu         sync.Mutex
	archived   []string
	replies    []reply
	archiveErr error
	replyErr   error
}

func (f *fakeMail) ListUnread(context.Context, int) ([]string, error) { return nil, nil }
func (f *fakeMail) Get(context.Context, string) (domain.MailMessage, error) {
	return domain.MailMessage{}, nil
}
func (f *fakeMail) Delete(context.Context, string) error { return nil }

func (f *fakeMail) Archive(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.archiveErr != nil {
		return f.archiveErr
	}
	f.archived = append(f.archived, id)
	return nil
}

func (f *fakeMail) SendReply(_ context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replyErr != nil {
		return f.replyErr
	}
	f.replies = append(f.replies, reply{to, subject, body})
	return nil
}

type fakeCalendar struct {
	mu        sync.Mutex
	events    []domain.CalendarEvent
	created   []domain.NewCalendarEvent
	deleted   []string
	listErr   error
	createErr error
	deleteErr error
}

func (f *fakeCalendar) ListEvents(context.Context, time.Time, time.Time, int) ([]domain.CalendarEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.CalendarEvent(nil), f.events...), nil
}

func (f *fakeCalendar) CreateEvent(_ context.Context, ev domain.NewCalendarEvent) (domain.CalendarEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, ev)
	if f.createErr != nil {
		return domain.CalendarEvent{}, f.createErr
	}
	return domain.CalendarEvent{ID: "ev-new", Summary: ev.Summary}, nil
}

func (f *fakeCalendar) DeleteEvent(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeCompletion struct {
	intent      domain.Intent
	intentErr   error
	analysis    domain.HealthAnalysis
	analysisErr error
	parsed      domain.ParsedEvent
	parseErr    error
	slots       []domain.Slot
	slotsErr    error
	history     []string
}

func (f *fakeCompletion) Summarize(context.Context, string, string) (string, error) {
	return "resumen", nil
}

func (f *fakeCompletion) ClassifyIntent(context.Context, string, domain.IntentContext) (domain.Intent, error) {
	return f.intent, f.intentErr
}

func (f *fakeCompletion) AnalyzeHealthQuery(_ context.Context, _ string, history []string) (domain.HealthAnalysis, error) {
	f.history = history
	return f.analysis, f.analysisErr
}

func (f *fakeCompletion) ParseEvent(context.Context, string, *time.Location) (domain.ParsedEvent, error) {
	return f.parsed, f.parseErr
}

func (f *fakeCompletion) SuggestSlots(context.Context, []domain.CalendarEvent, *time.Location, int) ([]domain.Slot, error) {
	return f.slots, f.slotsErr
}

// ---------- helpers ----------

const ownerKey = "528112345678"

var nopLog = zerolog.Nop()

// testLoc is a fixed UTC-6 zone so tests do not depend on system tzdata.
var testLoc = time.FixedZone("CST", -6*3600)

func fixedNow(ts time.Time) func() time.Time { return func() time.Time { return ts } }

func newStore() *state.Store { return state.New() }
