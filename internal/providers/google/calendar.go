package google

import (
	"context"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/tbourn/go-agenda-agent/internal/domain"
)

// Calendar implements services.CalendarProvider on Google Calendar.
type Calendar struct {
	auth       *Auth
	calendarID string
	loc        *time.Location
	endpoint   string
}

// NewCalendar returns a calendar provider for calendarID ("primary" when
// empty). All-day dates are interpreted in loc.
func NewCalendar(auth *Auth, calendarID string, loc *time.Location) *Calendar {
	if calendarID == "" {
		calendarID = "primary"
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{auth: auth, calendarID: calendarID, loc: loc}
}

// WithEndpoint points the client at a different API root (tests).
func (c *Calendar) WithEndpoint(url string) *Calendar {
	c.endpoint = url
	return c
}

func (c *Calendar) service(ctx context.Context) (*calendar.Service, error) {
	client, err := c.auth.Client(ctx)
	if err != nil {
		return nil, err
	}
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, classify("calendar client", err)
	}
	return srv, nil
}

// ListEvents returns single (expanded) events in [start, end) ordered by start.
func (c *Calendar) ListEvents(ctx context.Context, start, end time.Time, max int) ([]domain.CalendarEvent, error) {
	srv, err := c.service(ctx)
	if err != nil {
		return nil, err
	}
	call := srv.Events.List(c.calendarID).
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx)
	if max > 0 {
		call = call.MaxResults(int64(max))
	}
	resp, err := call.Do()
	if err != nil {
		return nil, classify("list events", err)
	}
	out := make([]domain.CalendarEvent, 0, len(resp.Items))
	for _, it := range resp.Items {
		if it.Status == "cancelled" {
			continue
		}
		out = append(out, c.toEvent(it))
	}
	return out, nil
}

// CreateEvent inserts a timed event.
func (c *Calendar) CreateEvent(ctx context.Context, ev domain.NewCalendarEvent) (domain.CalendarEvent, error) {
	srv, err := c.service(ctx)
	if err != nil {
		return domain.CalendarEvent{}, err
	}
	body := &calendar.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       &calendar.EventDateTime{DateTime: ev.Start.Format(time.RFC3339), TimeZone: c.loc.String()},
		End:         &calendar.EventDateTime{DateTime: ev.End.Format(time.RFC3339), TimeZone: c.loc.String()},
	}
	for _, a := range ev.Attendees {
		body.Attendees = append(body.Attendees, &calendar.EventAttendee{Email: a})
	}
	created, err := srv.Events.Insert(c.calendarID, body).Context(ctx).Do()
	if err != nil {
		return domain.CalendarEvent{}, classify("create event", err)
	}
	return c.toEvent(created), nil
}

// DeleteEvent removes an event. Already-deleted events are not an error.
func (c *Calendar) DeleteEvent(ctx context.Context, id string) error {
	srv, err := c.service(ctx)
	if err != nil {
		return err
	}
	if err := srv.Events.Delete(c.calendarID, id).Context(ctx).Do(); err != nil && !isNotFound(err) {
		return classify("delete event", err)
	}
	return nil
}

func (c *Calendar) toEvent(it *calendar.Event) domain.CalendarEvent {
	ev := domain.CalendarEvent{
		ID:       it.Id,
		Summary:  it.Summary,
		Location: it.Location,
		Start:    c.eventTime(it.Start),
		End:      c.eventTime(it.End),
	}
	for _, a := range it.Attendees {
		if a != nil && a.Email != "" {
			ev.Attendees = append(ev.Attendees, a.Email)
		}
	}
	return ev
}

// eventTime parses either dateTime (RFC 3339) or date (all-day). Google
// all-day end dates are already exclusive.
func (c *Calendar) eventTime(dt *calendar.EventDateTime) domain.EventTime {
	if dt == nil {
		return domain.EventTime{}
	}
	if dt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
			return domain.EventTime{Time: t.In(c.loc)}
		}
	}
	if dt.Date != "" {
		if t, err := time.ParseInLocation("2006-01-02", dt.Date, c.loc); err == nil {
			return domain.EventTime{Time: t, AllDay: true}
		}
	}
	return domain.EventTime{}
}
