package calbot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"calbot-go/internal/ics"
	"calbot-go/internal/model"
)

// SyncAll runs one sync cycle for every registered calendar. Calendars are
// isolated from each other: a failure is logged and recorded in that
// calendar's sync run without affecting the rest. Concurrency is bounded
// by the service's sync semaphore.
func (s *Service) SyncAll(ctx context.Context) error {
	calendars, err := s.store.ListCalendars(ctx)
	if err != nil {
		return fmt.Errorf("listing calendars: %w", err)
	}

	var g errgroup.Group
	for _, calendar := range calendars {
		calendar := calendar
		g.Go(func() error {
			if err := s.SyncCalendar(ctx, calendar.ID); err != nil {
				s.logger.Error("calendar sync failed", "calendar", calendar.ID, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// SyncCalendar runs one sync cycle for a single calendar: fetch, parse,
// diff against stored state, and apply the resulting plan in one
// transaction. The outcome is recorded as a sync run either way.
func (s *Service) SyncCalendar(ctx context.Context, calendarID string) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquiring sync slot: %w", err)
	}
	defer s.sem.Release(1)

	calendar, err := s.store.FindCalendar(ctx, calendarID)
	if err != nil {
		return fmt.Errorf("finding calendar: %w", err)
	}
	if calendar == nil {
		return fmt.Errorf("calendar not found: %s", calendarID)
	}

	runID, err := s.store.CreateSyncRun(ctx, &model.SyncRun{
		CalendarID: calendarID,
		StartedAt:  s.clock.Now(),
		Status:     "running",
	})
	if err != nil {
		return fmt.Errorf("creating sync run: %w", err)
	}

	plan, syncErr := s.syncOnce(ctx, calendar)

	run := &model.SyncRun{
		ID:         runID,
		FinishedAt: sql.NullTime{Time: s.clock.Now(), Valid: true},
		Status:     "success",
	}
	if syncErr != nil {
		run.Status = "error"
		run.Error = syncErr.Error()
	} else {
		run.EventsInserted = int64(len(plan.InsertEvents))
		run.EventsUpdated = int64(len(plan.UpdateEvents))
		run.EventsDeleted = int64(len(plan.DeleteEventIDs))
	}
	if err := s.store.FinishSyncRun(ctx, run); err != nil {
		s.logger.Error("recording sync run failed", "calendar", calendarID, "error", err)
	}

	if syncErr != nil {
		return syncErr
	}

	s.logger.Info("calendar synced", "calendar", calendarID,
		"inserted", run.EventsInserted, "updated", run.EventsUpdated, "deleted", run.EventsDeleted)
	return nil
}

// syncOnce performs the fetch-parse-diff-apply cycle and returns the plan
// it applied. A malformed feed aborts before any stored state is touched,
// so transient feed corruption cannot wipe a calendar.
func (s *Service) syncOnce(ctx context.Context, calendar *model.Calendar) (*SyncPlan, error) {
	body, err := s.fetchFeed(ctx, calendar)
	if err != nil {
		return nil, err
	}

	parsed, err := ics.Parse(calendar.ID, body)
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}

	stored, err := s.store.ListEvents(ctx, calendar.ID)
	if err != nil {
		return nil, fmt.Errorf("listing stored events: %w", err)
	}
	storedOccs, err := s.store.ListNextOccurrences(ctx, calendar.ID)
	if err != nil {
		return nil, fmt.Errorf("listing stored occurrences: %w", err)
	}

	plan, err := buildSyncPlan(stored, storedOccs, parsed, s.clock.Now(), s.horizon)
	if err != nil {
		return nil, fmt.Errorf("computing sync plan: %w", err)
	}

	if err := s.store.ApplySyncPlan(ctx, calendar.ID, plan); err != nil {
		return nil, fmt.Errorf("applying sync plan: %w", err)
	}
	return plan, nil
}

// fetchFeed retrieves the calendar's raw feed body. When an OAuth-backed
// fetch is rejected despite a token we believed valid, the token is
// refreshed once and the fetch retried once.
func (s *Service) fetchFeed(ctx context.Context, calendar *model.Calendar) ([]byte, error) {
	cred, account, err := s.resolveCredential(ctx, calendar)
	if err != nil {
		return nil, err
	}

	body, err := s.fetcher.Fetch(ctx, &FeedRequest{URL: calendar.URL, Credential: cred})
	if err == nil {
		return body, nil
	}
	if account == nil || !errors.Is(err, ErrUnauthorized) {
		return nil, err
	}

	s.logger.Info("access token rejected, refreshing", "calendar", calendar.ID, "account", account.ID)
	token, err := s.refreshAccount(ctx, account)
	if err != nil {
		return nil, err
	}

	cred = Credential{Kind: CredentialBearer, Token: token}
	return s.fetcher.Fetch(ctx, &FeedRequest{URL: calendar.URL, Credential: cred})
}

// buildSyncPlan diffs freshly parsed feed events against stored state.
// Events are matched by their source-assigned ID; an event in both sets
// with any field difference becomes an update. Each parsed event's next
// occurrence is recomputed from now over the horizon and upserted, or the
// stored occurrence is deleted when no future occurrence remains.
// Occurrences of deleted events are not listed: the store cascades them.
func buildSyncPlan(stored []*model.Event, storedOccs []*model.NextOccurrence, parsed []*model.Event, now time.Time, horizon time.Duration) (*SyncPlan, error) {
	storedByID := make(map[string]*model.Event, len(stored))
	for _, ev := range stored {
		storedByID[ev.EventID] = ev
	}
	occByID := make(map[string]*model.NextOccurrence, len(storedOccs))
	for _, occ := range storedOccs {
		occByID[occ.EventID] = occ
	}
	parsedIDs := make(map[string]bool, len(parsed))

	plan := &SyncPlan{}
	for _, ev := range parsed {
		parsedIDs[ev.EventID] = true

		existing, ok := storedByID[ev.EventID]
		switch {
		case !ok:
			plan.InsertEvents = append(plan.InsertEvents, ev)
		case !eventsEqual(existing, ev):
			plan.UpdateEvents = append(plan.UpdateEvents, ev)
		}

		next, err := nextOccurrence(ev, now, horizon)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", ev.EventID, err)
		}
		storedOcc := occByID[ev.EventID]
		switch {
		case next == nil && storedOcc != nil:
			plan.DeleteOccurrenceEventIDs = append(plan.DeleteOccurrenceEventIDs, ev.EventID)
		case next != nil && (storedOcc == nil || !occurrencesEqual(storedOcc, next)):
			plan.UpsertOccurrences = append(plan.UpsertOccurrences, next)
		}
	}

	for _, ev := range stored {
		if !parsedIDs[ev.EventID] {
			plan.DeleteEventIDs = append(plan.DeleteEventIDs, ev.EventID)
		}
	}

	return plan, nil
}

// nextOccurrence returns the earliest strictly-future occurrence of the
// event within the horizon, or nil when none remains.
func nextOccurrence(ev *model.Event, now time.Time, horizon time.Duration) (*model.NextOccurrence, error) {
	occs, err := ics.ExpandOccurrences(ev, now, now.Add(horizon))
	if err != nil {
		return nil, err
	}

	var best *model.Occurrence
	for i := range occs {
		occ := &occs[i]
		// Overrides may substitute a start outside the expansion window,
		// so filter and min-scan rather than trusting expansion order.
		if !occ.StartsAt.After(now) {
			continue
		}
		if best == nil || occ.StartsAt.Before(best.StartsAt) {
			best = occ
		}
	}
	if best == nil {
		return nil, nil
	}

	return &model.NextOccurrence{
		CalendarID: ev.CalendarID,
		EventID:    ev.EventID,
		StartsAt:   best.StartsAt,
		Attendees:  best.Attendees,
	}, nil
}

// eventsEqual compares all feed-derived fields of two events.
func eventsEqual(a, b *model.Event) bool {
	return a.Summary == b.Summary &&
		a.Description == b.Description &&
		a.Location == b.Location &&
		organizersEqual(a.Organizer, b.Organizer) &&
		attendeesEqual(a.Attendees, b.Attendees) &&
		a.StartsAt.Equal(b.StartsAt) &&
		a.EndsAt.Equal(b.EndsAt) &&
		a.AllDay == b.AllDay &&
		recurrencesEqual(a.Recurrence, b.Recurrence)
}

func occurrencesEqual(a, b *model.NextOccurrence) bool {
	return a.StartsAt.Equal(b.StartsAt) && attendeesEqual(a.Attendees, b.Attendees)
}

func attendeesEqual(a, b model.AttendeeList) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func organizersEqual(a, b model.NullAttendee) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Attendee == b.Attendee
}

func recurrencesEqual(a, b model.Recurrence) bool {
	if a.Kind != b.Kind || a.Rule != b.Rule {
		return false
	}
	if len(a.Exceptions) != len(b.Exceptions) || len(a.Overrides) != len(b.Overrides) {
		return false
	}
	for i := range a.Exceptions {
		if !a.Exceptions[i].Equal(b.Exceptions[i]) {
			return false
		}
	}
	for i := range a.Overrides {
		if !overridesEqual(&a.Overrides[i], &b.Overrides[i]) {
			return false
		}
	}
	return true
}

func overridesEqual(a, b *model.Override) bool {
	return a.Date.Equal(b.Date) &&
		a.Start.Equal(b.Start) &&
		a.End.Equal(b.End) &&
		a.Summary == b.Summary &&
		a.Description == b.Description &&
		a.Location == b.Location &&
		attendeesEqual(a.Attendees, b.Attendees)
}
