package ics

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"calbot-go/internal/model"
)

// maxOccurrencesPerEvent caps expansion of pathological rules, for example
// a minutely repeat over a multi-year window. Callers scanning for the
// earliest future occurrence only need the head of the sequence anyway.
const maxOccurrencesPerEvent = 10000

// ExpandOccurrences produces the concrete UTC occurrences of one event
// inside the half-open window [windowStart, windowEnd).
//
// A non-recurring event yields its single start time if it falls in the
// window. For a recurring event, candidate times come from the rule; a
// candidate whose instant matches an override's date is replaced by the
// override's start time and attendee list, a candidate matching an
// exception date is suppressed, and every other candidate is yielded with
// the event's own attendees. A substituted start may land outside the
// window; it is yielded regardless, and callers filter by their own cutoff.
func ExpandOccurrences(ev *model.Event, windowStart, windowEnd time.Time) ([]model.Occurrence, error) {
	windowStart = windowStart.UTC()
	windowEnd = windowEnd.UTC()
	if windowEnd.Before(windowStart) {
		return nil, fmt.Errorf("occurrence window ends %s before it starts %s", windowEnd, windowStart)
	}

	if ev.Recurrence.Kind != model.RecurrenceRecurring {
		start := ev.StartsAt.UTC()
		if start.Before(windowStart) || !start.Before(windowEnd) {
			return nil, nil
		}
		return []model.Occurrence{{StartsAt: start, Attendees: ev.Attendees}}, nil
	}

	r, err := rrule.StrToRRule(ev.Recurrence.Rule)
	if err != nil {
		return nil, fmt.Errorf("parsing recurrence rule %q: %w", ev.Recurrence.Rule, err)
	}
	r.DTStart(ev.StartsAt.UTC())

	candidates := r.Between(windowStart, windowEnd, true)

	out := make([]model.Occurrence, 0, len(candidates))
	for _, c := range candidates {
		if len(out) >= maxOccurrencesPerEvent {
			break
		}
		// Between is inclusive on both ends; drop the window end itself.
		if !c.Before(windowEnd) {
			continue
		}
		if ov := overrideFor(ev.Recurrence.Overrides, c); ov != nil {
			out = append(out, model.Occurrence{StartsAt: ov.Start.UTC(), Attendees: ov.Attendees})
			continue
		}
		if isException(ev.Recurrence.Exceptions, c) {
			continue
		}
		out = append(out, model.Occurrence{StartsAt: c, Attendees: ev.Attendees})
	}
	return out, nil
}

func overrideFor(overrides []model.Override, instant time.Time) *model.Override {
	for i := range overrides {
		if overrides[i].Date.Equal(instant) {
			return &overrides[i]
		}
	}
	return nil
}

func isException(exceptions []time.Time, instant time.Time) bool {
	for _, ex := range exceptions {
		if ex.Equal(instant) {
			return true
		}
	}
	return false
}
