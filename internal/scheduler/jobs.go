package scheduler

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-agenda-agent/internal/domain"
	"github.com/tbourn/go-agenda-agent/internal/services"
	"github.com/tbourn/go-agenda-agent/internal/state"
	"github.com/tbourn/go-agenda-agent/internal/sysutil"
)

// Job names, also used as metric labels.
const (
	JobInboxPoll     = "inbox_poll"
	JobReminderSweep = "reminder_sweep"
	JobGapRecommend  = "gap_recommendation"
)

const (
	unreadBatch       = 10
	reminderMaxEvents = 50
	gapMaxEvents      = 50
	minGap            = 2 * time.Hour

	defaultSender  = "desconocido"
	defaultSubject = "(sin asunto)"
	defaultSummary = "Sin resumen."
)

// DefaultReminderOffsets are the minutes-before-start at which reminders fire.
var DefaultReminderOffsets = []int{1440, 60, 10}

// JobsConfig wires Jobs.
type JobsConfig struct {
	Store      *state.Store
	Mail       services.MailProvider
	Calendar   services.CalendarProvider
	Completion services.CompletionProvider
	Notifier   services.Notifier

	// OwnerKey is the state key pending actions are stored under and
	// OwnerAddress the chat address notifications go to.
	OwnerKey     string
	OwnerAddress string

	Location        *time.Location
	ReminderOffsets []int
	Now             func() time.Time
	Logger          zerolog.Logger
}

// Jobs implements the inbox poll, reminder sweep and gap recommendation.
type Jobs struct {
	cfg JobsConfig
	log zerolog.Logger
}

// NewJobs applies defaults and returns Jobs.
func NewJobs(cfg JobsConfig) *Jobs {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if len(cfg.ReminderOffsets) == 0 {
		cfg.ReminderOffsets = DefaultReminderOffsets
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Jobs{cfg: cfg, log: cfg.Logger.With().Str("component", "jobs").Logger()}
}

// Intervals holds the tick period of each job.
type Intervals struct {
	InboxPoll     time.Duration
	ReminderSweep time.Duration
	GapRecommend  time.Duration
}

// Schedule returns the three jobs ready for New.
func (j *Jobs) Schedule(iv Intervals) []Job {
	return []Job{
		{Name: JobInboxPoll, Interval: iv.InboxPoll, RunOnStart: true, Run: func(ctx context.Context) error {
			_, err := j.PollInbox(ctx)
			return err
		}},
		{Name: JobReminderSweep, Interval: iv.ReminderSweep, RunOnStart: true, Run: func(ctx context.Context) error {
			_, err := j.SweepReminders(ctx)
			return err
		}},
		{Name: JobGapRecommend, Interval: iv.GapRecommend, Run: func(ctx context.Context) error {
			_, err := j.RecommendGaps(ctx)
			return err
		}},
	}
}

// PollInbox notifies the owner about at most one unread message that has not
// been notified before. It returns the notified message id, or "" when there
// was nothing new.
func (j *Jobs) PollInbox(ctx context.Context) (string, error) {
	ids, err := j.cfg.Mail.ListUnread(ctx, unreadBatch)
	if err != nil {
		return "", fmt.Errorf("list unread: %w", err)
	}
	var id string
	for _, candidate := range ids {
		if !j.cfg.Store.WasEmailSeen(candidate) {
			id = candidate
			break
		}
	}
	if id == "" {
		return "", nil
	}

	msg, err := j.cfg.Mail.Get(ctx, id)
	if err != nil {
		return "", fmt.Errorf("get message %s: %w", id, err)
	}
	sender := sysutil.FirstNonEmpty(msg.From, defaultSender)
	subject := sysutil.FirstNonEmpty(msg.Subject, defaultSubject)
	summary := j.summarize(ctx, subject, msg.Snippet)

	action := domain.PendingEmailAction{
		ActionID:  id,
		Sender:    sender,
		Subject:   subject,
		Summary:   summary,
		CreatedAt: j.cfg.Now(),
		Status:    domain.EmailPending,
	}
	unlock := j.cfg.Store.Lock(j.cfg.OwnerKey)
	j.cfg.Store.SetPending(j.cfg.OwnerKey, action)
	unlock()

	j.cfg.Store.MarkEmailSeen(id)
	j.cfg.Store.LogEvent("email.new", fmt.Sprintf("From %s - %s", sender, subject))

	text := fmt.Sprintf("Jefe, recibiste un correo de %s. Dice lo siguiente: %s.\n\n¿Quieres ignorarlo o contestar?",
		sender, strings.TrimRight(summary, ". "))
	if err := j.cfg.Notifier.Send(ctx, j.cfg.OwnerAddress, text); err != nil {
		j.log.Warn().Err(err).Str("message_id", id).Msg("new-mail notification failed")
	}
	return id, nil
}

func (j *Jobs) summarize(ctx context.Context, subject, body string) string {
	if j.cfg.Completion != nil {
		s, err := j.cfg.Completion.Summarize(ctx, subject, body)
		if err == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
		if err != nil {
			j.log.Warn().Err(err).Msg("summary failed; falling back to snippet")
		}
	}
	return sysutil.FirstNonEmpty(strings.TrimSpace(body), defaultSummary)
}

// SweepReminders sends each configured reminder once per event and offset,
// when the event start is within one minute of the offset. It returns the
// number of reminders sent.
func (j *Jobs) SweepReminders(ctx context.Context) (int, error) {
	now := j.cfg.Now()
	events, err := j.cfg.Calendar.ListEvents(ctx, now, now.Add(24*time.Hour), reminderMaxEvents)
	if err != nil {
		return 0, fmt.Errorf("list events: %w", err)
	}

	sent := 0
	for _, ev := range events {
		if !ev.Timed() || ev.ID == "" {
			continue
		}
		delta := ev.Start.Time.Sub(now).Minutes()
		for _, off := range j.cfg.ReminderOffsets {
			if math.Abs(delta-float64(off)) >= 1 {
				continue
			}
			key := fmt.Sprintf("%s:%d", ev.ID, off)
			// Mark before sending: a failed send is not retried.
			if !j.cfg.Store.MarkReminderSent(key) {
				continue
			}
			if err := j.cfg.Notifier.Send(ctx, j.cfg.OwnerAddress, reminderText(ev, off, j.cfg.Location)); err != nil {
				j.log.Warn().Err(err).Str("reminder", key).Msg("reminder notification failed")
				continue
			}
			j.cfg.Store.LogEvent("reminder.sent", key)
			sent++
		}
	}
	return sent, nil
}

func reminderText(ev domain.CalendarEvent, offset int, loc *time.Location) string {
	title := sysutil.FirstNonEmpty(ev.Summary, "(sin título)")
	text := fmt.Sprintf("Recordatorio: \"%s\" empieza en %s (%s).", title, leadTime(offset), ev.Start.Time.In(loc).Format("15:04"))
	if ev.Location != "" {
		text += " Lugar: " + ev.Location + "."
	}
	return text
}

func leadTime(minutes int) string {
	switch {
	case minutes%1440 == 0 && minutes >= 1440:
		if minutes == 1440 {
			return "24 horas"
		}
		return fmt.Sprintf("%d días", minutes/1440)
	case minutes%60 == 0 && minutes >= 60:
		if minutes == 60 {
			return "1 hora"
		}
		return fmt.Sprintf("%d horas", minutes/60)
	case minutes == 1:
		return "1 minuto"
	default:
		return fmt.Sprintf("%d minutos", minutes)
	}
}

// RecommendGaps runs at most once per calendar day. It looks for the first
// idle window of at least two hours that ends at the start of one of today's
// remaining events and suggests using it. It reports whether a
// recommendation was sent.
func (j *Jobs) RecommendGaps(ctx context.Context) (bool, error) {
	now := j.cfg.Now().In(j.cfg.Location)
	today := now.Format("2006-01-02")
	prev, ok := j.cfg.Store.ClaimRecommendationDate(today)
	if !ok {
		return false, nil
	}

	y, m, d := now.Date()
	endOfDay := time.Date(y, m, d+1, 0, 0, 0, 0, j.cfg.Location)
	events, err := j.cfg.Calendar.ListEvents(ctx, now, endOfDay, gapMaxEvents)
	if err != nil {
		// Release the claim so the next tick can retry today.
		j.cfg.Store.SetLastRecommendationDate(prev)
		return false, fmt.Errorf("list events: %w", err)
	}

	from, to, found := firstGap(now, endOfDay, events)
	if !found {
		return false, nil
	}

	pending := j.cfg.Store.PendingCount()
	text := fmt.Sprintf("Tienes un espacio libre de %s a %s. Hay %d correo(s) pendiente(s); ¿quieres aprovecharlo para ponerte al día?",
		from.Format("15:04"), to.Format("15:04"), pending)
	if err := j.cfg.Notifier.Send(ctx, j.cfg.OwnerAddress, text); err != nil {
		j.log.Warn().Err(err).Msg("gap recommendation failed")
		return false, nil
	}
	j.cfg.Store.LogEvent("gap.recommended", fmt.Sprintf("%s-%s", from.Format("15:04"), to.Format("15:04")))
	return true, nil
}

// firstGap scans timed events starting before endOfDay in start order and
// returns the first window of at least minGap between the cursor and the
// next start. Time after the last event is never a gap.
func firstGap(now, endOfDay time.Time, events []domain.CalendarEvent) (time.Time, time.Time, bool) {
	type iv struct{ start, end time.Time }
	var busy []iv
	for _, ev := range events {
		if !ev.Timed() {
			continue
		}
		if s, e, ok := ev.Interval(); ok && s.Before(endOfDay) {
			busy = append(busy, iv{s, e})
		}
	}
	sort.Slice(busy, func(a, b int) bool { return busy[a].start.Before(busy[b].start) })

	cursor := now
	for _, b := range busy {
		if b.start.Sub(cursor) >= minGap {
			return cursor, b.start, true
		}
		if b.end.After(cursor) {
			cursor = b.end
		}
	}
	return time.Time{}, time.Time{}, false
}
