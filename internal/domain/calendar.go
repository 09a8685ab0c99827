package domain

import "time"

// EventTime is either a precise timestamp or an all-day date. For all-day
// values Time is midnight in the calendar's zone.
type EventTime struct {
	Time   time.Time
	AllDay bool
}

// IsZero reports whether the value carries no time at all.
func (t EventTime) IsZero() bool { return t.Time.IsZero() }

// CalendarEvent is the parsed form of a provider event.
type CalendarEvent struct {
	ID        string
	Summary   string
	Start     EventTime
	End       EventTime
	Location  string
	Attendees []string
}

// Timed reports whether the event has a concrete (non all-day) start.
func (e CalendarEvent) Timed() bool { return !e.Start.IsZero() && !e.Start.AllDay }

// Interval returns the half-open [start, end) span of the event. Events
// without an end are treated as lasting one hour.
func (e CalendarEvent) Interval() (time.Time, time.Time, bool) {
	if e.Start.IsZero() {
		return time.Time{}, time.Time{}, false
	}
	start := e.Start.Time
	end := e.End.Time
	if e.End.IsZero() || !end.After(start) {
		if e.Start.AllDay {
			end = start.AddDate(0, 0, 1)
		} else {
			end = start.Add(time.Hour)
		}
	}
	return start, end, true
}

// NewCalendarEvent is the payload for creating an event.
type NewCalendarEvent struct {
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Attendees   []string
}

// ParsedEvent is the structured form of a natural-language event request.
type ParsedEvent struct {
	Title     string
	Start     time.Time
	End       *time.Time
	Location  string
	Attendees []string
	Notes     string
}

// HealthAnalysis is the completion provider's triage of a health query.
type HealthAnalysis struct {
	IsEmergency       bool
	NeedsAppointment  bool
	NeedsMoreInfo     bool
	Urgency           string
	SuggestedResponse string
}

// MailMessage is the subset of a provider message the orchestrator uses.
type MailMessage struct {
	ID      string
	From    string
	Subject string
	Snippet string
}
