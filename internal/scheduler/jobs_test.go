package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-agenda-agent/internal/domain"
	"github.com/tbourn/go-agenda-agent/internal/services"
	"github.com/tbourn/go-agenda-agent/internal/state"
)

// ---------- fakes ----------

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, _, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, text)
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

type fakeMail struct {
	unread  []string
	msgs    map[string]domain.MailMessage
	listErr error
}

func (f *fakeMail) ListUnread(_ context.Context, max int) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.unread) > max {
		return f.unread[:max], nil
	}
	return f.unread, nil
}
func (f *fakeMail) Get(_ context.Context, id string) (domain.MailMessage, error) {
	return f.msgs[id], nil
}
func (f *fakeMail) Archive(context.Context, string) error                 { return nil }
func (f *fakeMail) SendReply(context.Context, string, string, string) error { return nil }
func (f *fakeMail) Delete(context.Context, string) error                  { return nil }

type fakeCalendar struct {
	mu     sync.Mutex
	events []domain.CalendarEvent
	err    error
	calls  int
}

func (f *fakeCalendar) ListEvents(context.Context, time.Time, time.Time, int) ([]domain.CalendarEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}
func (f *fakeCalendar) CreateEvent(context.Context, domain.NewCalendarEvent) (domain.CalendarEvent, error) {
	return domain.CalendarEvent{}, nil
}
func (f *fakeCalendar) DeleteEvent(context.Context, string) error { return nil }

type fakeSummarizer struct {
	services.CompletionProvider
	out string
	err error
}

func (f fakeSummarizer) Summarize(context.Context, string, string) (string, error) { return f.out, f.err }

// ---------- helpers ----------

var loc = time.FixedZone("CST", -6*3600)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func newJobs(store *state.Store, mail services.MailProvider, cal services.CalendarProvider, comp services.CompletionProvider, n services.Notifier, c *clock) *Jobs {
	return NewJobs(JobsConfig{
		Store:        store,
		Mail:         mail,
		Calendar:     cal,
		Completion:   comp,
		Notifier:     n,
		OwnerKey:     "528112345678",
		OwnerAddress: "5218112345678@c.us",
		Location:     loc,
		Now:          c.now,
		Logger:       zerolog.Nop(),
	})
}

func event(id string, start time.Time) domain.CalendarEvent {
	return domain.CalendarEvent{
		ID:      id,
		Summary: "Junta " + id,
		Start:   domain.EventTime{Time: start},
		End:     domain.EventTime{Time: start.Add(time.Hour)},
	}
}

// ---------- inbox poll ----------

func TestPollInbox_CreatesPendingAndNotifies(t *testing.T) {
	store := state.New()
	mail := &fakeMail{
		unread: []string{"m1"},
		msgs:   map[string]domain.MailMessage{"m1": {ID: "m1", From: "a@x.com", Subject: "Invoice", Snippet: "pay"}},
	}
	n := &fakeNotifier{}
	j := newJobs(store, mail, &fakeCalendar{}, fakeSummarizer{out: "Te piden pagar la factura."}, n, &clock{t: time.Now()})

	id, err := j.PollInbox(context.Background())
	if err != nil || id != "m1" {
		t.Fatalf("PollInbox = %q, %v", id, err)
	}
	p, ok := store.Pending("528112345678")
	if !ok || p.Status != domain.EmailPending || p.Sender != "a@x.com" || p.Subject != "Invoice" {
		t.Fatalf("unexpected pending %+v", p)
	}
	if p.Summary != "Te piden pagar la factura." {
		t.Fatalf("summary not stored: %q", p.Summary)
	}
	if n.count() != 1 || !strings.Contains(n.msgs[0], "Jefe, recibiste un correo de a@x.com") {
		t.Fatalf("unexpected notifications %v", n.msgs)
	}
	if strings.Contains(n.msgs[0], "..") {
		t.Fatalf("double period in notice: %q", n.msgs[0])
	}
	if ev := store.Events(1); len(ev) != 1 || ev[0].Kind != "email.new" || ev[0].Detail != "From a@x.com - Invoice" {
		t.Fatalf("event not logged: %+v", ev)
	}

	// A still-unread message is not re-notified.
	if id, _ := j.PollInbox(context.Background()); id != "" || n.count() != 1 {
		t.Fatalf("seen message re-notified")
	}
}

func TestPollInbox_LastUnreadWinsAndDefaults(t *testing.T) {
	store := state.New()
	mail := &fakeMail{
		unread: []string{"m1"},
		msgs: map[string]domain.MailMessage{
			"m1": {ID: "m1", From: "a@x.com", Subject: "Uno"},
			"m2": {ID: "m2"},
		},
	}
	j := newJobs(store, mail, &fakeCalendar{}, fakeSummarizer{err: errors.New("down")}, &fakeNotifier{}, &clock{t: time.Now()})
	_, _ = j.PollInbox(context.Background())

	mail.unread = []string{"m1", "m2"}
	if id, _ := j.PollInbox(context.Background()); id != "m2" {
		t.Fatalf("want m2, got %q", id)
	}
	p, _ := store.Pending("528112345678")
	if p.ActionID != "m2" || p.Sender != defaultSender || p.Subject != defaultSubject || p.Summary != defaultSummary {
		t.Fatalf("single-slot overwrite or defaults wrong: %+v", p)
	}
}

func TestPollInbox_NothingUnread(t *testing.T) {
	n := &fakeNotifier{}
	j := newJobs(state.New(), &fakeMail{}, &fakeCalendar{}, nil, n, &clock{t: time.Now()})
	if id, err := j.PollInbox(context.Background()); id != "" || err != nil {
		t.Fatalf("got %q, %v", id, err)
	}
	if n.count() != 0 {
		t.Fatalf("no-op poll must not notify")
	}
}

func TestPollInbox_Unauthorized(t *testing.T) {
	j := newJobs(state.New(), &fakeMail{listErr: services.ErrUnauthorized}, &fakeCalendar{}, nil, &fakeNotifier{}, &clock{t: time.Now()})
	if _, err := j.PollInbox(context.Background()); !errors.Is(err, services.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
}

// ---------- reminder sweep ----------

func TestSweepReminders_ScenarioC(t *testing.T) {
	start := time.Date(2025, 1, 6, 15, 0, 0, 0, loc)
	cal := &fakeCalendar{events: []domain.CalendarEvent{event("e1", start)}}
	n := &fakeNotifier{}
	c := &clock{t: start.Add(-61 * time.Minute)}
	j := newJobs(state.New(), &fakeMail{}, cal, nil, n, c)
	ctx := context.Background()

	if sent, _ := j.SweepReminders(ctx); sent != 0 {
		t.Fatalf("61 minutes before: sent %d; want 0", sent)
	}
	c.set(start.Add(-60 * time.Minute))
	if sent, _ := j.SweepReminders(ctx); sent != 1 {
		t.Fatalf("60 minutes before: sent %d; want 1", sent)
	}
	if !strings.Contains(n.msgs[0], "1 hora") {
		t.Fatalf("unexpected reminder text %q", n.msgs[0])
	}
	c.set(start.Add(-59 * time.Minute))
	if sent, _ := j.SweepReminders(ctx); sent != 0 {
		t.Fatalf("repeat sweep re-fired")
	}
	if n.count() != 1 {
		t.Fatalf("want exactly one notification, got %d", n.count())
	}
}

func TestSweepReminders_DedupWithinTick(t *testing.T) {
	start := time.Date(2025, 1, 6, 15, 0, 0, 0, loc)
	cal := &fakeCalendar{events: []domain.CalendarEvent{event("e1", start)}}
	n := &fakeNotifier{}
	store := state.New()
	j := newJobs(store, &fakeMail{}, cal, nil, n, &clock{t: start.Add(-10*time.Minute - 20*time.Second)})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = j.SweepReminders(context.Background())
		}()
	}
	wg.Wait()
	if n.count() != 1 {
		t.Fatalf("want 1 notification, got %d", n.count())
	}
	if !store.WasReminderSent("e1:10") {
		t.Fatalf("dedup key not recorded")
	}
}

func TestSweepReminders_SkipsAllDayAndCountsOffsets(t *testing.T) {
	now := time.Date(2025, 1, 6, 8, 0, 0, 0, loc)
	allDay := domain.CalendarEvent{ID: "ad", Start: domain.EventTime{Time: now.Add(24 * time.Hour), AllDay: true}}
	cal := &fakeCalendar{events: []domain.CalendarEvent{
		allDay,
		event("tomorrow", now.Add(24*time.Hour)),
		event("soon", now.Add(10*time.Minute)),
	}}
	n := &fakeNotifier{}
	j := newJobs(state.New(), &fakeMail{}, cal, nil, n, &clock{t: now})
	sent, err := j.SweepReminders(context.Background())
	if err != nil || sent != 2 {
		t.Fatalf("sent %d, %v; want 2", sent, err)
	}
}

// ---------- gap recommendation ----------

func TestRecommendGaps_OnceDaily(t *testing.T) {
	now := time.Date(2025, 1, 6, 9, 0, 0, 0, loc)
	cal := &fakeCalendar{events: []domain.CalendarEvent{
		event("a", now.Add(30*time.Minute)), // 09:30-10:30
		event("b", now.Add(4*time.Hour)),    // 13:00-14:00
	}}
	n := &fakeNotifier{}
	c := &clock{t: now}
	j := newJobs(state.New(), &fakeMail{}, cal, nil, n, c)
	ctx := context.Background()

	if ok, err := j.RecommendGaps(ctx); !ok || err != nil {
		t.Fatalf("first run: %v %v", ok, err)
	}
	c.set(now.Add(time.Hour))
	if ok, _ := j.RecommendGaps(ctx); ok {
		t.Fatalf("second run on the same day must not recommend")
	}
	if n.count() != 1 || cal.calls != 1 {
		t.Fatalf("want one notification and one calendar scan, got %d / %d", n.count(), cal.calls)
	}
	if !strings.Contains(n.msgs[0], "10:30 a 13:00") {
		t.Fatalf("unexpected gap message %q", n.msgs[0])
	}

	tomorrow := now.AddDate(0, 0, 1)
	c.set(tomorrow)
	cal.mu.Lock()
	cal.events = []domain.CalendarEvent{event("c", tomorrow.Add(3*time.Hour))}
	cal.mu.Unlock()
	if ok, _ := j.RecommendGaps(ctx); !ok {
		t.Fatalf("next day should run again")
	}
}

func TestRecommendGaps_EveningEvent(t *testing.T) {
	now := time.Date(2025, 1, 6, 17, 0, 0, 0, loc)
	cal := &fakeCalendar{events: []domain.CalendarEvent{event("cena", now.Add(3*time.Hour))}}
	n := &fakeNotifier{}
	j := newJobs(state.New(), &fakeMail{}, cal, nil, n, &clock{t: now})

	if ok, err := j.RecommendGaps(context.Background()); !ok || err != nil {
		t.Fatalf("got %v %v", ok, err)
	}
	if !strings.Contains(n.msgs[0], "17:00 a 20:00") {
		t.Fatalf("unexpected gap message %q", n.msgs[0])
	}
}

func TestRecommendGaps_NoEventsNoGap(t *testing.T) {
	now := time.Date(2025, 1, 6, 9, 0, 0, 0, loc)
	store := state.New()
	n := &fakeNotifier{}
	j := newJobs(store, &fakeMail{}, &fakeCalendar{}, nil, n, &clock{t: now})

	if ok, err := j.RecommendGaps(context.Background()); ok || err != nil {
		t.Fatalf("got %v %v", ok, err)
	}
	if n.count() != 0 {
		t.Fatalf("an empty day has no next event, got %v", n.msgs)
	}
	if store.LastRecommendationDate() != "2025-01-06" {
		t.Fatalf("date gate not updated: %q", store.LastRecommendationDate())
	}
}

func TestRecommendGaps_DateUpdatedWithoutGap(t *testing.T) {
	now := time.Date(2025, 1, 6, 9, 0, 0, 0, loc)
	var evs []domain.CalendarEvent
	for h := 0; h < 9; h++ {
		evs = append(evs, event(string(rune('a'+h)), now.Add(time.Duration(h)*time.Hour)))
	}
	store := state.New()
	n := &fakeNotifier{}
	j := newJobs(store, &fakeMail{}, &fakeCalendar{events: evs}, nil, n, &clock{t: now})

	if ok, err := j.RecommendGaps(context.Background()); ok || err != nil {
		t.Fatalf("got %v %v", ok, err)
	}
	if store.LastRecommendationDate() != "2025-01-06" {
		t.Fatalf("date gate not updated: %q", store.LastRecommendationDate())
	}
	if n.count() != 0 {
		t.Fatalf("no gap means no message")
	}
}

func TestRecommendGaps_CalendarFailureRetriesLater(t *testing.T) {
	now := time.Date(2025, 1, 6, 9, 0, 0, 0, loc)
	cal := &fakeCalendar{err: errors.New("503")}
	store := state.New()
	j := newJobs(store, &fakeMail{}, cal, nil, &fakeNotifier{}, &clock{t: now})

	if _, err := j.RecommendGaps(context.Background()); err == nil {
		t.Fatalf("want error")
	}
	if store.LastRecommendationDate() != "" {
		t.Fatalf("failed scan must release the daily claim")
	}
	cal.err = nil
	cal.events = []domain.CalendarEvent{event("a", now.Add(3*time.Hour))}
	if ok, _ := j.RecommendGaps(context.Background()); !ok {
		t.Fatalf("retry should recommend the open morning")
	}
}

func TestFirstGap(t *testing.T) {
	now := time.Date(2025, 1, 6, 8, 0, 0, 0, loc)
	endOfDay := time.Date(2025, 1, 7, 0, 0, 0, 0, loc)
	evs := []domain.CalendarEvent{
		event("late", now.Add(5*time.Hour)),     // 13:00-14:00
		event("early", now.Add(30*time.Minute)), // 08:30-09:30
		{ID: "allday", Start: domain.EventTime{Time: now, AllDay: true}},
	}
	from, to, ok := firstGap(now, endOfDay, evs)
	if !ok || from.Format("15:04") != "09:30" || to.Format("15:04") != "13:00" {
		t.Fatalf("got %v-%v %v", from, to, ok)
	}

	if _, _, ok := firstGap(now, endOfDay, evs[1:]); ok {
		t.Fatalf("time after the last event is not a gap")
	}
	tomorrow := []domain.CalendarEvent{event("next", endOfDay.Add(9*time.Hour))}
	if _, _, ok := firstGap(now, endOfDay, tomorrow); ok {
		t.Fatalf("events after today must not bound a gap")
	}
}
