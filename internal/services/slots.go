package services

import (
	"fmt"
	"sort"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/go-agenda-agent/internal/domain"
)

var weekdaysES = [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}

// SlotPlanner computes hourly appointment slots inside office hours that do
// not overlap existing calendar events.
type SlotPlanner struct {
	Loc         *time.Location
	HorizonDays int
	OpenHour    int
	CloseHour   int
	MaxComputed int
	MaxOffered  int
}

// DefaultSlotPlanner returns the 7-day, 08:00–18:00 planner offering 5 of at
// most 10 computed slots.
func DefaultSlotPlanner(loc *time.Location) SlotPlanner {
	return SlotPlanner{Loc: loc, HorizonDays: 7, OpenHour: 8, CloseHour: 18, MaxComputed: 10, MaxOffered: 5}
}

func (p SlotPlanner) loc() *time.Location {
	if p.Loc == nil {
		return time.UTC
	}
	return p.Loc
}

// Window is the calendar range to fetch events for.
func (p SlotPlanner) Window(now time.Time) (time.Time, time.Time) {
	return now, now.AddDate(0, 0, p.HorizonDays)
}

// Compute generates candidate slots chronologically, skipping past starts and
// any slot overlapping an event, up to MaxComputed.
func (p SlotPlanner) Compute(now time.Time, events []domain.CalendarEvent) []domain.Slot {
	loc := p.loc()
	now = now.In(loc)
	busy := intervals(events)

	var out []domain.Slot
	y, m, d := now.Date()
	for day := 0; day < p.HorizonDays; day++ {
		for h := p.OpenHour; h+1 <= p.CloseHour; h++ {
			start := time.Date(y, m, d+day, h, 0, 0, 0, loc)
			if !start.After(now) {
				continue
			}
			if overlapsAny(start, start.Add(time.Hour), busy) {
				continue
			}
			out = append(out, NewSlot(start))
			if p.MaxComputed > 0 && len(out) >= p.MaxComputed {
				return out
			}
		}
	}
	return out
}

// Filter applies the same office-hours, horizon, future-only and overlap
// rules to externally suggested slots, returning them sorted and relabeled.
func (p SlotPlanner) Filter(now time.Time, candidates []domain.Slot, events []domain.CalendarEvent) []domain.Slot {
	loc := p.loc()
	_, horizon := p.Window(now)
	busy := intervals(events)
	seen := make(map[int64]struct{}, len(candidates))

	var out []domain.Slot
	for _, c := range candidates {
		start := c.Start.In(loc)
		if start.IsZero() || !start.After(now) || !start.Before(horizon) {
			continue
		}
		if start.Minute() != 0 || start.Second() != 0 {
			continue
		}
		if start.Hour() < p.OpenHour || start.Hour()+1 > p.CloseHour {
			continue
		}
		if overlapsAny(start, start.Add(time.Hour), busy) {
			continue
		}
		if _, dup := seen[start.Unix()]; dup {
			continue
		}
		seen[start.Unix()] = struct{}{}
		out = append(out, NewSlot(start))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	if p.MaxComputed > 0 && len(out) > p.MaxComputed {
		out = out[:p.MaxComputed]
	}
	return out
}

// Offer truncates computed slots to the offered count.
func (p SlotPlanner) Offer(slots []domain.Slot) []domain.Slot {
	if p.MaxOffered > 0 && len(slots) > p.MaxOffered {
		slots = slots[:p.MaxOffered]
	}
	return append([]domain.Slot(nil), slots...)
}

// NewSlot builds a labeled one-hour slot starting at start.
func NewSlot(start time.Time) domain.Slot {
	return domain.Slot{
		Start: start,
		Label: SlotLabel(start),
		Date:  start.Format("2006-01-02"),
		Time:  start.Format("15:04"),
	}
}

// SlotLabel renders e.g. "Lunes 2025-01-06 10:00".
func SlotLabel(t time.Time) string {
	day := cases.Title(language.Spanish).String(weekdaysES[t.Weekday()])
	return fmt.Sprintf("%s %s", day, t.Format("2006-01-02 15:04"))
}

// Overlaps is the half-open interval test start < busyEnd && end > busyStart.
func Overlaps(start, end, busyStart, busyEnd time.Time) bool {
	return start.Before(busyEnd) && end.After(busyStart)
}

type span struct{ start, end time.Time }

func intervals(events []domain.CalendarEvent) []span {
	out := make([]span, 0, len(events))
	for _, ev := range events {
		if s, e, ok := ev.Interval(); ok {
			out = append(out, span{s, e})
		}
	}
	return out
}

func overlapsAny(start, end time.Time, busy []span) bool {
	for _, b := range busy {
		if Overlaps(start, end, b.start, b.end) {
			return true
		}
	}
	return false
}
