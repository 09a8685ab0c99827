package completion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tbourn/go-agenda-agent/internal/domain"
	"github.com/tbourn/go-agenda-agent/internal/services"
)

var tracer = otel.Tracer("providers/completion")

// maxBodyChars bounds the email text sent for summarisation, in runes.
const maxBodyChars = 4000

// Summarize returns a one-sentence Spanish summary of an email.
func (c *Client) Summarize(ctx context.Context, subject, body string) (string, error) {
	ctx, span := tracer.Start(ctx, "Summarize")
	defer span.End()

	body = truncateRunes(body, maxBodyChars)
	user := fmt.Sprintf("Asunto: %s\n\n%s", subject, body)
	out, err := c.complete(ctx, summarizeSystem, user, false)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return out, nil
}

type intentAnswer struct {
	Intent string `json:"intent"`
}

// ClassifyIntent asks the model for one intent label. Unusable answers come
// back as chat; the router validates the label against its closed set.
func (c *Client) ClassifyIntent(ctx context.Context, text string, ic domain.IntentContext) (domain.Intent, error) {
	ctx, span := tracer.Start(ctx, "ClassifyIntent")
	defer span.End()

	user := text
	if ic.HasPendingEmail {
		user = fmt.Sprintf("Hay un correo pendiente: %q.\nMensaje: %s", ic.PendingSummary, text)
	}
	var ans intentAnswer
	ok, err := c.completeJSON(ctx, classifySystem, user, &ans)
	if err != nil {
		span.RecordError(err)
		return domain.IntentChat, err
	}
	label := strings.ToLower(strings.TrimSpace(ans.Intent))
	if !ok || label == "" {
		return domain.IntentChat, nil
	}
	span.SetAttributes(attribute.String("intent", label))
	return domain.Intent(label), nil
}

type healthAnswer struct {
	IsEmergency       bool   `json:"is_emergency"`
	NeedsAppointment  bool   `json:"needs_appointment"`
	NeedsMoreInfo     bool   `json:"needs_more_info"`
	Urgency           string `json:"urgency"`
	SuggestedResponse string `json:"suggested_response"`
}

// Fallback answer when the analysis cannot be decoded.
const healthFallback = "Gracias por tu mensaje. ¿Podrías darme más detalles sobre tus síntomas?"

// AnalyzeHealthQuery triages a patient message in the light of history.
func (c *Client) AnalyzeHealthQuery(ctx context.Context, text string, history []string) (domain.HealthAnalysis, error) {
	ctx, span := tracer.Start(ctx, "AnalyzeHealthQuery")
	defer span.End()

	var b strings.Builder
	if len(history) > 0 {
		b.WriteString("Historial:\n")
		for _, h := range history {
			b.WriteString("- ")
			b.WriteString(h)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	b.WriteString("Mensaje: ")
	b.WriteString(text)

	var ans healthAnswer
	ok, err := c.completeJSON(ctx, healthSystem, b.String(), &ans)
	if err != nil {
		span.RecordError(err)
		return domain.HealthAnalysis{}, err
	}
	if !ok {
		return domain.HealthAnalysis{NeedsMoreInfo: true, Urgency: "low", SuggestedResponse: healthFallback}, nil
	}
	out := domain.HealthAnalysis{
		IsEmergency:       ans.IsEmergency,
		NeedsAppointment:  ans.NeedsAppointment,
		NeedsMoreInfo:     ans.NeedsMoreInfo,
		Urgency:           normalizeUrgency(ans.Urgency),
		SuggestedResponse: strings.TrimSpace(ans.SuggestedResponse),
	}
	if out.SuggestedResponse == "" {
		out.SuggestedResponse = healthFallback
	}
	span.SetAttributes(attribute.Bool("emergency", out.IsEmergency), attribute.String("urgency", out.Urgency))
	return out, nil
}

func normalizeUrgency(u string) string {
	switch u = strings.ToLower(strings.TrimSpace(u)); u {
	case "low", "medium", "high":
		return u
	default:
		return "low"
	}
}

type eventAnswer struct {
	Title     *string  `json:"title"`
	Start     *string  `json:"start"`
	End       *string  `json:"end"`
	Location  *string  `json:"location"`
	Attendees []string `json:"attendees"`
	Notes     *string  `json:"notes"`
}

// ParseEvent extracts an event from text. A missing title or start, or an
// unreadable start, yields services.ErrUnparseable.
func (c *Client) ParseEvent(ctx context.Context, text string, loc *time.Location) (domain.ParsedEvent, error) {
	ctx, span := tracer.Start(ctx, "ParseEvent")
	defer span.End()

	if loc == nil {
		loc = time.UTC
	}
	now := c.now().In(loc)
	system := fmt.Sprintf(parseEventSystem, now.Format(time.RFC3339), loc.String())

	var ans eventAnswer
	ok, err := c.completeJSON(ctx, system, text, &ans)
	if err != nil {
		span.RecordError(err)
		return domain.ParsedEvent{}, err
	}
	if !ok || deref(ans.Title) == "" || deref(ans.Start) == "" {
		return domain.ParsedEvent{}, services.ErrUnparseable
	}
	start, err := parseTime(deref(ans.Start), loc)
	if err != nil {
		return domain.ParsedEvent{}, fmt.Errorf("%w: start %q", services.ErrUnparseable, deref(ans.Start))
	}
	out := domain.ParsedEvent{
		Title:    deref(ans.Title),
		Start:    start,
		Location: deref(ans.Location),
		Notes:    deref(ans.Notes),
	}
	if end, err := parseTime(deref(ans.End), loc); err == nil && end.After(start) {
		out.End = &end
	}
	for _, a := range ans.Attendees {
		if a = strings.TrimSpace(a); a != "" {
			out.Attendees = append(out.Attendees, a)
		}
	}
	return out, nil
}

type slotsAnswer struct {
	Slots []struct {
		Datetime string `json:"datetime"`
	} `json:"slots"`
}

// SuggestSlots asks the model for free hours. The caller still filters the
// result against the calendar; unreadable entries are dropped.
func (c *Client) SuggestSlots(ctx context.Context, events []domain.CalendarEvent, loc *time.Location, daysAhead int) ([]domain.Slot, error) {
	ctx, span := tracer.Start(ctx, "SuggestSlots")
	defer span.End()

	if loc == nil {
		loc = time.UTC
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Ahora: %s\nEventos:\n", c.now().In(loc).Format(time.RFC3339))
	for _, ev := range events {
		start, end, ok := ev.Interval()
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "- %s a %s: %s\n", start.In(loc).Format(time.RFC3339), end.In(loc).Format(time.RFC3339), ev.Summary)
	}

	var ans slotsAnswer
	ok, err := c.completeJSON(ctx, fmt.Sprintf(suggestSlotsSystem, daysAhead, loc.String()), b.String(), &ans)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	out := make([]domain.Slot, 0, len(ans.Slots))
	for _, s := range ans.Slots {
		t, err := parseTime(s.Datetime, loc)
		if err != nil {
			continue
		}
		out = append(out, services.NewSlot(t.In(loc)))
	}
	span.SetAttributes(attribute.Int("slots", len(out)))
	return out, nil
}

var localLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04:05", "2006-01-02 15:04"}

// parseTime accepts RFC 3339 or a zone-less local timestamp interpreted in loc.
func parseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// truncateRunes cuts s to at most n runes without splitting one.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
