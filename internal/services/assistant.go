// Assistant is the inbound pipeline: sender authorization, per-key
// serialization, intent routing, and dispatch to the two conversation
// machines or to the one-shot calendar and chat commands.

package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-agenda-agent/internal/domain"
	"github.com/tbourn/go-agenda-agent/internal/intent"
	"github.com/tbourn/go-agenda-agent/internal/state"
)

const (
	msgAgendaEmpty       = "No tienes eventos en las próximas 24 horas."
	msgAgendaHeader      = "Tus próximos eventos:"
	msgEventCreated      = "Listo, agendé \"%s\" para %s."
	msgEventClarify      = "No entendí el evento. Prueba algo como: \"crear evento mañana 10am dentista en Centro\"."
	msgCancelClarify     = "¿Qué evento cancelo? Prueba algo como: \"cancelar evento dentista\"."
	msgEventNotFound     = "No encontré un evento con ese nombre en los próximos 7 días."
	msgEventAmbiguous    = "Encontré varios eventos que coinciden:\n%s\n\nDime el nombre más preciso."
	msgEventCancelled    = "Listo, cancelé \"%s\"."
	msgSummaryFormat     = "Correo pendiente de %s (%s): %s"
	msgHelpEmailFormat   = "Puedes escribirme a %s."
	msgHelpEmailNone     = "Aún no tengo un correo configurado."
	msgEmergency         = "Esto parece una emergencia. Llama al 911 o acude a urgencias de inmediato."
	msgChatFallback      = "¿Me puedes dar más detalles?"
	msgChatFailed        = "Perdón, no pude procesar tu mensaje. Intenta de nuevo en un momento."
	agendaMaxEvents      = 20
	cancelSearchDays     = 7
	cancelSearchMaxItems = 50
)

// Turn is one inbound message after authorization and routing.
type Turn struct {
	Key     string
	ReplyTo string
	Text    string
	Intent  domain.Intent
}

// InboundMessage is the webhook payload. Timestamp is when the gateway saw
// the message; zero means unknown.
type InboundMessage struct {
	From      string
	Text      string
	Timestamp time.Time
}

// AssistantConfig wires an Assistant.
type AssistantConfig struct {
	Store      *state.Store
	Router     *intent.Router
	Triage     *TriageMachine
	Booking    *BookingMachine
	Calendar   CalendarProvider
	Completion CompletionProvider
	Notifier   Notifier
	Senders    SenderPolicy
	Location   *time.Location
	OwnerEmail string
	Now        func() time.Time
	Logger     zerolog.Logger
}

// Assistant handles inbound messages.
type Assistant struct {
	store      *state.Store
	router     *intent.Router
	triage     *TriageMachine
	booking    *BookingMachine
	cal        CalendarProvider
	completion CompletionProvider
	notify     Notifier
	senders    SenderPolicy
	loc        *time.Location
	ownerEmail string
	now        func() time.Time
	log        zerolog.Logger
}

// NewAssistant builds an Assistant from cfg.
func NewAssistant(cfg AssistantConfig) *Assistant {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Router == nil {
		cfg.Router = intent.NewRouter(nil, false)
	}
	return &Assistant{
		store:      cfg.Store,
		router:     cfg.Router,
		triage:     cfg.Triage,
		booking:    cfg.Booking,
		cal:        cfg.Calendar,
		completion: cfg.Completion,
		notify:     cfg.Notifier,
		senders:    cfg.Senders,
		loc:        cfg.Location,
		ownerEmail: cfg.OwnerEmail,
		now:        cfg.Now,
		log:        cfg.Logger.With().Str("component", "assistant").Logger(),
	}
}

// Authorize maps a sender to its state key or returns ErrSenderRejected.
func (a *Assistant) Authorize(from string) (string, error) {
	key, extended, err := a.senders.Authorize(from)
	if err != nil {
		a.log.Warn().Str("from", from).Msg("inbound sender rejected")
		return "", err
	}
	if extended {
		a.log.Warn().Str("from", from).Msg("accepting extended sender id as owner")
	}
	return key, nil
}

// Handle runs one inbound turn and returns its status token. The only error
// is ErrSenderRejected; collaborator failures become status tokens.
func (a *Assistant) Handle(ctx context.Context, msg InboundMessage) (domain.Status, error) {
	ctx, span := otel.Tracer("services/Assistant").Start(ctx, "Handle",
		trace.WithAttributes(attribute.Int("text.len", len(msg.Text))),
	)
	defer span.End()

	key, err := a.Authorize(msg.From)
	if err != nil {
		return "", err
	}
	replyTo := strings.TrimSpace(msg.From)

	unlock := a.store.Lock(key)
	defer unlock()

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return domain.StatusOK, nil
	}

	status := a.route(ctx, key, replyTo, text)
	span.SetAttributes(attribute.String("status", string(status)))
	webhookStatusTotal.WithLabelValues(string(status)).Inc()
	a.store.LogEventAt(msg.Timestamp, "whatsapp.in", fmt.Sprintf("%s -> %s", key, status))
	ev := a.log.Info().Str("user", key).Str("status", string(status))
	if !msg.Timestamp.IsZero() {
		ev = ev.Dur("delivery_lag", a.now().Sub(msg.Timestamp))
	}
	ev.Msg("inbound handled")
	return status, nil
}

func (a *Assistant) route(ctx context.Context, key, replyTo, text string) domain.Status {
	t := Turn{Key: key, ReplyTo: replyTo, Text: text}

	// Dictation captures everything that is not an explicit command.
	if a.triage != nil && a.triage.Drafting(key) {
		cmd, ok := intent.MatchCommand(text)
		if !ok {
			t.Intent = domain.IntentFreeform
			return a.triage.Handle(ctx, t)
		}
		t.Intent = cmd
		return a.dispatch(ctx, t)
	}

	t.Intent = intent.Match(text)
	if a.booking != nil && a.booking.Active(key) {
		switch t.Intent {
		case domain.IntentFreeform, domain.IntentCancel, domain.IntentReject:
			return a.booking.Handle(ctx, t)
		}
	}
	return a.dispatch(ctx, t)
}

func (a *Assistant) dispatch(ctx context.Context, t Turn) domain.Status {
	if a.triage != nil && a.triage.Handles(t.Intent) {
		return a.triage.Handle(ctx, t)
	}
	switch t.Intent {
	case domain.IntentAgenda:
		return a.agenda(ctx, t)
	case domain.IntentCreateEvent:
		return a.createEvent(ctx, t)
	case domain.IntentCancelEvent:
		return a.cancelEvent(ctx, t)
	case domain.IntentSummary:
		return a.summary(ctx, t)
	case domain.IntentHelpEmail:
		return a.helpEmail(ctx, t)
	case domain.IntentChat:
		return a.chat(ctx, t)
	case domain.IntentFreeform:
		ic := a.intentContext(t.Key)
		escalated := a.router.Escalate(ctx, t.Text, ic)
		if escalated == domain.IntentFreeform || escalated == domain.IntentChat {
			return a.chat(ctx, t)
		}
		t.Intent = escalated
		return a.dispatch(ctx, t)
	}
	return domain.StatusOK
}

func (a *Assistant) intentContext(key string) domain.IntentContext {
	p, ok := a.store.Pending(key)
	if !ok {
		return domain.IntentContext{}
	}
	return domain.IntentContext{HasPendingEmail: true, PendingSummary: p.Summary}
}

func (a *Assistant) agenda(ctx context.Context, t Turn) domain.Status {
	now := a.now().In(a.loc)
	events, err := a.cal.ListEvents(ctx, now, now.Add(24*time.Hour), agendaMaxEvents)
	if err != nil {
		return a.calendarFailure(ctx, t, "list_events", err)
	}
	notify(ctx, a.notify, t.ReplyTo, FormatAgenda(events, a.loc))
	return domain.StatusAgenda
}

// FormatAgenda renders events one per line, or a "no events" message.
func FormatAgenda(events []domain.CalendarEvent, loc *time.Location) string {
	if len(events) == 0 {
		return msgAgendaEmpty
	}
	var b strings.Builder
	b.WriteString(msgAgendaHeader)
	for _, ev := range events {
		b.WriteString("\n- ")
		b.WriteString(eventLine(ev, loc))
	}
	return b.String()
}

func eventLine(ev domain.CalendarEvent, loc *time.Location) string {
	title := ev.Summary
	if title == "" {
		title = "(sin título)"
	}
	var when string
	switch {
	case ev.Start.IsZero():
		when = "?"
	case ev.Start.AllDay:
		when = "Todo el día"
	default:
		when = ev.Start.Time.In(loc).Format("02/01 15:04")
	}
	line := when + " " + title
	if ev.Location != "" {
		line += " (" + ev.Location + ")"
	}
	return line
}

func (a *Assistant) createEvent(ctx context.Context, t Turn) domain.Status {
	if a.completion == nil {
		notify(ctx, a.notify, t.ReplyTo, msgEventClarify)
		return domain.StatusNeedsClarification
	}
	parsed, err := a.completion.ParseEvent(ctx, t.Text, a.loc)
	if err != nil {
		if errors.Is(err, ErrUnparseable) {
			notify(ctx, a.notify, t.ReplyTo, msgEventClarify)
			return domain.StatusNeedsClarification
		}
		a.log.Error().Err(err).Msg("event parse failed")
		notify(ctx, a.notify, t.ReplyTo, msgChatFailed)
		return domain.StatusFailed
	}

	end := parsed.Start.Add(time.Hour)
	if parsed.End != nil && parsed.End.After(parsed.Start) {
		end = *parsed.End
	}
	created, err := a.cal.CreateEvent(ctx, domain.NewCalendarEvent{
		Summary:     parsed.Title,
		Description: parsed.Notes,
		Location:    parsed.Location,
		Start:       parsed.Start,
		End:         end,
		Attendees:   parsed.Attendees,
	})
	if err != nil {
		return a.calendarFailure(ctx, t, "create_event", err)
	}
	a.store.LogEvent("calendar.created", fmt.Sprintf("%s - %s", created.ID, parsed.Title))
	when := parsed.Start.In(a.loc).Format("02/01/2006 15:04")
	notify(ctx, a.notify, t.ReplyTo, fmt.Sprintf(msgEventCreated, parsed.Title, when))
	return domain.StatusEventCreated
}

func (a *Assistant) cancelEvent(ctx context.Context, t Turn) domain.Status {
	query := cancelQuery(t.Text)
	if query == "" {
		notify(ctx, a.notify, t.ReplyTo, msgCancelClarify)
		return domain.StatusNeedsClarification
	}
	now := a.now().In(a.loc)
	events, err := a.cal.ListEvents(ctx, now, now.AddDate(0, 0, cancelSearchDays), cancelSearchMaxItems)
	if err != nil {
		return a.calendarFailure(ctx, t, "list_events", err)
	}

	var matches []domain.CalendarEvent
	for _, ev := range events {
		if strings.Contains(intent.Normalize(ev.Summary), query) {
			matches = append(matches, ev)
		}
	}
	switch len(matches) {
	case 0:
		notify(ctx, a.notify, t.ReplyTo, msgEventNotFound)
		return domain.StatusEventNotFound
	case 1:
	default:
		lines := make([]string, 0, len(matches))
		for _, ev := range matches {
			lines = append(lines, "- "+eventLine(ev, a.loc))
		}
		notify(ctx, a.notify, t.ReplyTo, fmt.Sprintf(msgEventAmbiguous, strings.Join(lines, "\n")))
		return domain.StatusEventNotFound
	}

	ev := matches[0]
	if err := a.cal.DeleteEvent(ctx, ev.ID); err != nil {
		return a.calendarFailure(ctx, t, "delete_event", err)
	}
	a.store.LogEvent("calendar.cancelled", fmt.Sprintf("%s - %s", ev.ID, ev.Summary))
	notify(ctx, a.notify, t.ReplyTo, fmt.Sprintf(msgEventCancelled, ev.Summary))
	return domain.StatusEventCancelled
}

// cancelQuery strips the command prefix and returns the normalized title
// fragment to look for.
func cancelQuery(text string) string {
	clean := intent.Normalize(text)
	for _, p := range []string{"cancelar evento", "cancela evento"} {
		if strings.HasPrefix(clean, p) {
			clean = strings.TrimPrefix(clean, p)
			break
		}
	}
	clean = strings.TrimSpace(clean)
	for _, filler := range []string{"de ", "del ", "el ", "la "} {
		clean = strings.TrimPrefix(clean, filler)
	}
	return strings.TrimSpace(clean)
}

func (a *Assistant) summary(ctx context.Context, t Turn) domain.Status {
	p, ok := a.store.Pending(t.Key)
	if !ok {
		notify(ctx, a.notify, t.ReplyTo, msgNoPending)
		return domain.StatusNoPending
	}
	notify(ctx, a.notify, t.ReplyTo, fmt.Sprintf(msgSummaryFormat, p.Sender, p.Subject, p.Summary))
	return domain.StatusSummary
}

func (a *Assistant) helpEmail(ctx context.Context, t Turn) domain.Status {
	if a.ownerEmail == "" {
		notify(ctx, a.notify, t.ReplyTo, msgHelpEmailNone)
	} else {
		notify(ctx, a.notify, t.ReplyTo, fmt.Sprintf(msgHelpEmailFormat, a.ownerEmail))
	}
	return domain.StatusHelpEmail
}

// chat handles free-form and health queries. Booking starts when scheduling
// vocabulary is present or the analysis says an appointment is needed and no
// more information is required.
func (a *Assistant) chat(ctx context.Context, t Turn) domain.Status {
	history := a.store.History(t.Key)
	a.store.AppendHistory(t.Key, t.Text)

	if a.booking != nil && WantsBooking(t.Text) {
		return a.booking.Start(ctx, t, t.Text)
	}
	if a.completion == nil {
		notify(ctx, a.notify, t.ReplyTo, msgChatFallback)
		return domain.StatusChat
	}

	analysis, err := a.completion.AnalyzeHealthQuery(ctx, t.Text, history)
	if err != nil {
		a.log.Error().Err(err).Msg("health analysis failed")
		notify(ctx, a.notify, t.ReplyTo, msgChatFailed)
		return domain.StatusFailed
	}
	if analysis.IsEmergency {
		a.store.LogEvent("health.emergency", t.Key)
		reply := msgEmergency
		if s := strings.TrimSpace(analysis.SuggestedResponse); s != "" {
			reply = s + "\n\n" + msgEmergency
		}
		notify(ctx, a.notify, t.ReplyTo, reply)
		return domain.StatusEmergency
	}
	if a.booking != nil && analysis.NeedsAppointment && !analysis.NeedsMoreInfo {
		return a.booking.Start(ctx, t, strings.Join(append(history, t.Text), "\n"))
	}

	reply := strings.TrimSpace(analysis.SuggestedResponse)
	if reply == "" {
		reply = msgChatFallback
	}
	notify(ctx, a.notify, t.ReplyTo, reply)
	return domain.StatusChat
}

func (a *Assistant) calendarFailure(ctx context.Context, t Turn, op string, err error) domain.Status {
	if errors.Is(err, ErrUnauthorized) {
		a.log.Warn().Err(err).Str("op", op).Msg("calendar not authorized")
		notify(ctx, a.notify, t.ReplyTo, msgCalendarNoAuth)
		return domain.StatusNotAuthorized
	}
	a.log.Error().Err(err).Str("op", op).Msg("calendar operation failed")
	notify(ctx, a.notify, t.ReplyTo, msgCalendarFailed)
	return domain.StatusFailed
}

// UpcomingEvents returns events in the next window, sorted by start; used by
// the operational endpoints.
func (a *Assistant) UpcomingEvents(ctx context.Context, window time.Duration, max int) ([]domain.CalendarEvent, error) {
	now := a.now().In(a.loc)
	events, err := a.cal.ListEvents(ctx, now, now.Add(window), max)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Start.Time.Before(events[j].Start.Time) })
	return events, nil
}
