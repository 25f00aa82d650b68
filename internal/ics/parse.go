// Package ics parses iCalendar feed documents into event definitions and
// expands recurrence rules into concrete occurrence times.
package ics

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"calbot-go/internal/model"
)

// ErrMalformedFeed means the document could not be understood: the outer
// structure failed to parse, or an event block lacks a required identity
// or start time, or carries an invalid recurrence rule. Sync treats this
// as fail-safe: stored state for the calendar stays untouched.
var ErrMalformedFeed = errors.New("malformed feed")

// rawEvent is one VEVENT as read off the wire, before override instances
// are folded into their base events.
type rawEvent struct {
	uid          string
	seq          int
	summary      string
	description  string
	location     string
	organizer    model.NullAttendee
	attendees    model.AttendeeList
	start        time.Time
	end          time.Time
	allDay       bool
	rule         string
	exceptions   []time.Time
	recurrenceID time.Time
	isOverride   bool
}

// Parse reads a feed body into event definitions for one calendar. Event
// blocks carrying a RECURRENCE-ID are folded into their base event as
// per-instance overrides; overrides without a base event are dropped.
// Unknown properties are ignored. All times are normalized to UTC:
// zoned times are converted, floating times are read as UTC, and all-day
// values become midnight UTC of their date.
func Parse(calendarID string, body []byte) ([]*model.Event, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrMalformedFeed)
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFeed, err)
	}

	var order []string
	bases := make(map[string]*rawEvent)
	overrides := make(map[string][]*rawEvent)

	for _, ve := range cal.Events() {
		raw, err := parseVEvent(ve)
		if err != nil {
			return nil, err
		}
		if raw.isOverride {
			overrides[raw.uid] = append(overrides[raw.uid], raw)
			continue
		}
		prev, ok := bases[raw.uid]
		if !ok {
			order = append(order, raw.uid)
			bases[raw.uid] = raw
			continue
		}
		// Duplicate base definitions for one UID: highest sequence wins.
		if raw.seq >= prev.seq {
			bases[raw.uid] = raw
		}
	}

	events := make([]*model.Event, 0, len(order))
	for _, uid := range order {
		events = append(events, buildEvent(calendarID, bases[uid], overrides[uid]))
	}
	return events, nil
}

func parseVEvent(ve *ical.VEvent) (*rawEvent, error) {
	raw := &rawEvent{}

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return nil, fmt.Errorf("%w: event block without UID", ErrMalformedFeed)
	}
	raw.uid = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySequence); p != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil {
			raw.seq = n
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		raw.summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		raw.description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		raw.location = p.Value
	}

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil || startProp.Value == "" {
		return nil, fmt.Errorf("%w: event %s without start time", ErrMalformedFeed, raw.uid)
	}
	raw.allDay = isDateOnly(startProp)
	start, err := parsePropTime(startProp)
	if err != nil {
		return nil, fmt.Errorf("%w: event %s start: %v", ErrMalformedFeed, raw.uid, err)
	}
	raw.start = start

	if endProp := ve.GetProperty(ical.ComponentPropertyDtEnd); endProp != nil && endProp.Value != "" {
		end, err := parsePropTime(endProp)
		if err != nil {
			return nil, fmt.Errorf("%w: event %s end: %v", ErrMalformedFeed, raw.uid, err)
		}
		raw.end = end
	} else if raw.allDay {
		raw.end = raw.start.Add(24 * time.Hour)
	} else {
		raw.end = raw.start
	}

	// Use raw property names for ORGANIZER/ATTENDEE to avoid constant
	// variants across library versions.
	if p := ve.GetProperty("ORGANIZER"); p != nil {
		if a, ok := parseParticipant(p); ok {
			raw.organizer = model.NullAttendee{Attendee: a, Valid: true}
		}
	}
	for _, p := range ve.GetProperties("ATTENDEE") {
		if declined(p) {
			continue
		}
		if a, ok := parseParticipant(p); ok {
			raw.attendees = append(raw.attendees, a)
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil && p.Value != "" {
		// Reject unparseable rules here so a bad feed never reaches the
		// store half-applied.
		if _, err := rrule.StrToRRule(p.Value); err != nil {
			return nil, fmt.Errorf("%w: event %s rule %q: %v", ErrMalformedFeed, raw.uid, p.Value, err)
		}
		raw.rule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			t, err := parseValueTime(part, p)
			if err != nil {
				continue
			}
			raw.exceptions = append(raw.exceptions, t)
		}
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil && p.Value != "" {
		t, err := parseValueTime(strings.TrimSpace(p.Value), p)
		if err != nil {
			return nil, fmt.Errorf("%w: event %s recurrence id: %v", ErrMalformedFeed, raw.uid, err)
		}
		raw.recurrenceID = t
		raw.isOverride = true
	}

	return raw, nil
}

// buildEvent folds a base definition and its override instances into one
// stored event. Exceptions and overrides are sorted by date so repeated
// parses of equivalent feeds compare equal field-by-field.
func buildEvent(calendarID string, base *rawEvent, ovs []*rawEvent) *model.Event {
	ev := &model.Event{
		CalendarID:  calendarID,
		EventID:     base.uid,
		Summary:     base.summary,
		Description: base.description,
		Location:    base.location,
		Organizer:   base.organizer,
		Attendees:   base.attendees,
		StartsAt:    base.start,
		EndsAt:      base.end,
		AllDay:      base.allDay,
		Recurrence:  model.NoRecurrence(),
	}
	if base.rule == "" {
		return ev
	}

	rec := model.Recurrence{
		Kind:       model.RecurrenceRecurring,
		Rule:       base.rule,
		Exceptions: append([]time.Time(nil), base.exceptions...),
	}
	sort.Slice(rec.Exceptions, func(i, j int) bool {
		return rec.Exceptions[i].Before(rec.Exceptions[j])
	})

	// One override per instance date: highest sequence wins.
	byDate := make(map[int64]*rawEvent)
	for _, ov := range ovs {
		key := ov.recurrenceID.Unix()
		if prev, ok := byDate[key]; ok && prev.seq > ov.seq {
			continue
		}
		byDate[key] = ov
	}
	for _, ov := range byDate {
		rec.Overrides = append(rec.Overrides, model.Override{
			Date:        ov.recurrenceID,
			Start:       ov.start,
			End:         ov.end,
			Summary:     ov.summary,
			Description: ov.description,
			Location:    ov.location,
			Attendees:   ov.attendees,
		})
	}
	sort.Slice(rec.Overrides, func(i, j int) bool {
		return rec.Overrides[i].Date.Before(rec.Overrides[j].Date)
	})

	ev.Recurrence = rec
	return ev
}

// parseParticipant reads one ORGANIZER/ATTENDEE property into an attendee.
// Only mailto: calendar user addresses qualify; participants with any
// other scheme (tel: dial-ins, CalDAV principal URLs) are dropped. The
// display name comes from the CN parameter when present.
func parseParticipant(p *ical.IANAProperty) (model.Attendee, bool) {
	v := strings.TrimSpace(p.Value)
	if !strings.HasPrefix(strings.ToLower(v), "mailto:") {
		return model.Attendee{}, false
	}
	email := v[len("mailto:"):]
	if email == "" {
		return model.Attendee{}, false
	}
	a := model.Attendee{Email: email}
	if cn := firstParam(p, "CN"); cn != "" {
		a.Name = strings.Trim(cn, `"`)
	}
	return a, true
}

func declined(p *ical.IANAProperty) bool {
	return strings.EqualFold(firstParam(p, "PARTSTAT"), "DECLINED")
}

func firstParam(p *ical.IANAProperty, name string) string {
	if p.ICalParameters == nil {
		return ""
	}
	vs, ok := p.ICalParameters[name]
	if !ok || len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// isDateOnly reports whether a date-time property carries a bare date,
// either declared via VALUE=DATE or written without a time part.
func isDateOnly(p *ical.IANAProperty) bool {
	if strings.EqualFold(firstParam(p, "VALUE"), "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// parsePropTime parses a property's own value with its own parameters.
func parsePropTime(p *ical.IANAProperty) (time.Time, error) {
	return parseValueTime(strings.TrimSpace(p.Value), p)
}

// parseValueTime parses one ICS date or date-time value into UTC, using
// the carrying property's parameters for VALUE=DATE and TZID context.
// EXDATE needs this split because a single property can carry a
// comma-separated list of values under one parameter set.
func parseValueTime(v string, p *ical.IANAProperty) (time.Time, error) {
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	// Date only: midnight UTC of that day.
	if strings.EqualFold(firstParam(p, "VALUE"), "DATE") || !strings.Contains(v, "T") {
		return time.ParseInLocation("20060102", v, time.UTC)
	}

	// UTC form, e.g. 20250101T090000Z.
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}

	// Zoned or floating local form. An unknown zone name falls back to
	// UTC, same as a floating time.
	loc := time.UTC
	if tzid := firstParam(p, "TZID"); tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			loc = l
		}
	}
	t, err := time.ParseInLocation("20060102T150405", v, loc)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
