package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"calbot-go/internal/calbot"
	"calbot-go/internal/model"
)

// newTestStore creates a new in-memory store with migrations applied.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if err := store.Migrate(); err != nil {
		store.Close()
		t.Fatalf("failed to migrate: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

// createTestCalendar inserts a calendar with the given ID.
func createTestCalendar(t *testing.T, store *SQLiteStore, id string) *model.Calendar {
	t.Helper()

	calendar := &model.Calendar{
		ID:        id,
		UserID:    "admin",
		Name:      "Calendar " + id,
		URL:       "https://calendar.example.com/" + id + ".ics",
		CreatedAt: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	if err := store.CreateCalendar(context.Background(), calendar); err != nil {
		t.Fatalf("failed to create test calendar: %v", err)
	}
	return calendar
}

// makeEvent builds a non-recurring event fixture.
func makeEvent(calendarID, eventID string, startsAt time.Time) *model.Event {
	return &model.Event{
		CalendarID:  calendarID,
		EventID:     eventID,
		Summary:     "Standup",
		Description: "Daily sync",
		Location:    "Room 1",
		Attendees:   model.AttendeeList{{Name: "Ada", Email: "ada@example.com"}},
		StartsAt:    startsAt,
		EndsAt:      startsAt.Add(30 * time.Minute),
		Recurrence:  model.NoRecurrence(),
	}
}

// insertEventWithOccurrence applies a plan inserting one event and its next occurrence.
func insertEventWithOccurrence(t *testing.T, store *SQLiteStore, event *model.Event, occursAt time.Time) {
	t.Helper()

	plan := &calbot.SyncPlan{
		InsertEvents: []*model.Event{event},
		UpsertOccurrences: []*model.NextOccurrence{{
			CalendarID: event.CalendarID,
			EventID:    event.EventID,
			StartsAt:   occursAt,
			Attendees:  event.Attendees,
		}},
	}
	if err := store.ApplySyncPlan(context.Background(), event.CalendarID, plan); err != nil {
		t.Fatalf("failed to apply plan: %v", err)
	}
}

func TestSQLiteStore_FindCalendar(t *testing.T) {
	t.Run("returns nil when calendar not found", func(t *testing.T) {
		store := newTestStore(t)

		calendar, err := store.FindCalendar(context.Background(), "nonexistent")
		if err != nil {
			t.Fatalf("FindCalendar() error = %v", err)
		}
		if calendar != nil {
			t.Errorf("FindCalendar() = %v, want nil", calendar)
		}
	})

	t.Run("finds existing calendar with credentials", func(t *testing.T) {
		store := newTestStore(t)

		created := &model.Calendar{
			ID:                "cal-1",
			UserID:            "admin",
			Name:              "Work",
			URL:               "https://calendar.example.com/work.ics",
			BasicAuthUser:     sql.NullString{String: "bob", Valid: true},
			BasicAuthPassword: []byte("sealed-blob"),
			CreatedAt:         time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		}
		if err := store.CreateCalendar(context.Background(), created); err != nil {
			t.Fatalf("CreateCalendar() error = %v", err)
		}

		found, err := store.FindCalendar(context.Background(), "cal-1")
		if err != nil {
			t.Fatalf("FindCalendar() error = %v", err)
		}
		if found == nil {
			t.Fatal("FindCalendar() returned nil, want calendar")
		}
		if found.Name != "Work" {
			t.Errorf("Name = %q, want %q", found.Name, "Work")
		}
		if found.BasicAuthUser.String != "bob" {
			t.Errorf("BasicAuthUser = %q, want %q", found.BasicAuthUser.String, "bob")
		}
		if string(found.BasicAuthPassword) != "sealed-blob" {
			t.Errorf("BasicAuthPassword = %q, want %q", found.BasicAuthPassword, "sealed-blob")
		}
		if found.OAuthAccountID.Valid {
			t.Error("OAuthAccountID should be unset")
		}
	})
}

func TestSQLiteStore_ListCalendars(t *testing.T) {
	store := newTestStore(t)

	createTestCalendar(t, store, "cal-a")
	createTestCalendar(t, store, "cal-b")

	calendars, err := store.ListCalendars(context.Background())
	if err != nil {
		t.Fatalf("ListCalendars() error = %v", err)
	}
	if len(calendars) != 2 {
		t.Fatalf("got %d calendars, want 2", len(calendars))
	}
	if calendars[0].ID != "cal-a" || calendars[1].ID != "cal-b" {
		t.Errorf("order = %s, %s, want cal-a, cal-b", calendars[0].ID, calendars[1].ID)
	}
}

func TestSQLiteStore_OAuthAccounts(t *testing.T) {
	t.Run("create and find round trip", func(t *testing.T) {
		store := newTestStore(t)

		created := &model.OAuthAccount{
			ID:           "oauth-1",
			UserID:       "admin",
			AccessToken:  []byte("sealed-access"),
			RefreshToken: []byte("sealed-refresh"),
			ExpiresAt:    time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
			CreatedAt:    time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
			UpdatedAt:    time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		}
		if err := store.CreateOAuthAccount(context.Background(), created); err != nil {
			t.Fatalf("CreateOAuthAccount() error = %v", err)
		}

		found, err := store.FindOAuthAccount(context.Background(), "oauth-1")
		if err != nil {
			t.Fatalf("FindOAuthAccount() error = %v", err)
		}
		if found == nil {
			t.Fatal("FindOAuthAccount() returned nil, want account")
		}
		if string(found.AccessToken) != "sealed-access" {
			t.Errorf("AccessToken = %q, want %q", found.AccessToken, "sealed-access")
		}
		if !found.ExpiresAt.Equal(created.ExpiresAt) {
			t.Errorf("ExpiresAt = %v, want %v", found.ExpiresAt, created.ExpiresAt)
		}
		if found.NeedsReauth {
			t.Error("NeedsReauth should be false for new account")
		}
	})

	t.Run("returns nil when account not found", func(t *testing.T) {
		store := newTestStore(t)

		account, err := store.FindOAuthAccount(context.Background(), "nonexistent")
		if err != nil {
			t.Fatalf("FindOAuthAccount() error = %v", err)
		}
		if account != nil {
			t.Errorf("FindOAuthAccount() = %v, want nil", account)
		}
	})

	t.Run("update tokens clears needs_reauth", func(t *testing.T) {
		store := newTestStore(t)
		ctx := context.Background()

		account := &model.OAuthAccount{
			ID:           "oauth-1",
			UserID:       "admin",
			AccessToken:  []byte("old-access"),
			RefreshToken: []byte("old-refresh"),
			ExpiresAt:    time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
			CreatedAt:    time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
			UpdatedAt:    time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		}
		if err := store.CreateOAuthAccount(ctx, account); err != nil {
			t.Fatalf("CreateOAuthAccount() error = %v", err)
		}

		if err := store.MarkOAuthAccountNeedsReauth(ctx, "oauth-1"); err != nil {
			t.Fatalf("MarkOAuthAccountNeedsReauth() error = %v", err)
		}

		found, _ := store.FindOAuthAccount(ctx, "oauth-1")
		if !found.NeedsReauth {
			t.Fatal("NeedsReauth should be set after marking")
		}

		newExpiry := time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC)
		updatedAt := time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC)
		err := store.UpdateOAuthTokens(ctx, "oauth-1", []byte("new-access"), []byte("new-refresh"), newExpiry, updatedAt)
		if err != nil {
			t.Fatalf("UpdateOAuthTokens() error = %v", err)
		}

		found, _ = store.FindOAuthAccount(ctx, "oauth-1")
		if string(found.AccessToken) != "new-access" {
			t.Errorf("AccessToken = %q, want %q", found.AccessToken, "new-access")
		}
		if string(found.RefreshToken) != "new-refresh" {
			t.Errorf("RefreshToken = %q, want %q", found.RefreshToken, "new-refresh")
		}
		if !found.ExpiresAt.Equal(newExpiry) {
			t.Errorf("ExpiresAt = %v, want %v", found.ExpiresAt, newExpiry)
		}
		if found.NeedsReauth {
			t.Error("NeedsReauth should be cleared after token update")
		}
	})
}

func TestSQLiteStore_ApplySyncPlan(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts events and occurrences", func(t *testing.T) {
		store := newTestStore(t)
		createTestCalendar(t, store, "cal-1")

		event := makeEvent("cal-1", "ev-1", time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
		insertEventWithOccurrence(t, store, event, event.StartsAt)

		events, err := store.ListEvents(ctx, "cal-1")
		if err != nil {
			t.Fatalf("ListEvents() error = %v", err)
		}
		if len(events) != 1 {
			t.Fatalf("got %d events, want 1", len(events))
		}
		if events[0].Summary != "Standup" {
			t.Errorf("Summary = %q, want %q", events[0].Summary, "Standup")
		}
		if len(events[0].Attendees) != 1 || events[0].Attendees[0].Email != "ada@example.com" {
			t.Errorf("Attendees = %v, want one attendee ada@example.com", events[0].Attendees)
		}
		if events[0].Recurrence.Kind != model.RecurrenceNone {
			t.Errorf("Recurrence.Kind = %q, want %q", events[0].Recurrence.Kind, model.RecurrenceNone)
		}

		occurrences, err := store.ListNextOccurrences(ctx, "cal-1")
		if err != nil {
			t.Fatalf("ListNextOccurrences() error = %v", err)
		}
		if len(occurrences) != 1 {
			t.Fatalf("got %d occurrences, want 1", len(occurrences))
		}
		if !occurrences[0].StartsAt.Equal(event.StartsAt) {
			t.Errorf("StartsAt = %v, want %v", occurrences[0].StartsAt, event.StartsAt)
		}
	})

	t.Run("updates changed event", func(t *testing.T) {
		store := newTestStore(t)
		createTestCalendar(t, store, "cal-1")

		event := makeEvent("cal-1", "ev-1", time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
		insertEventWithOccurrence(t, store, event, event.StartsAt)

		changed := makeEvent("cal-1", "ev-1", time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC))
		changed.Summary = "Standup (moved)"
		plan := &calbot.SyncPlan{
			UpdateEvents: []*model.Event{changed},
			UpsertOccurrences: []*model.NextOccurrence{{
				CalendarID: "cal-1",
				EventID:    "ev-1",
				StartsAt:   changed.StartsAt,
				Attendees:  changed.Attendees,
			}},
		}
		if err := store.ApplySyncPlan(ctx, "cal-1", plan); err != nil {
			t.Fatalf("ApplySyncPlan() error = %v", err)
		}

		events, _ := store.ListEvents(ctx, "cal-1")
		if len(events) != 1 {
			t.Fatalf("got %d events, want 1", len(events))
		}
		if events[0].Summary != "Standup (moved)" {
			t.Errorf("Summary = %q, want %q", events[0].Summary, "Standup (moved)")
		}

		occurrences, _ := store.ListNextOccurrences(ctx, "cal-1")
		if len(occurrences) != 1 {
			t.Fatalf("got %d occurrences, want 1", len(occurrences))
		}
		if !occurrences[0].StartsAt.Equal(changed.StartsAt) {
			t.Errorf("StartsAt = %v, want %v", occurrences[0].StartsAt, changed.StartsAt)
		}
	})

	t.Run("deletes events and their occurrences", func(t *testing.T) {
		store := newTestStore(t)
		createTestCalendar(t, store, "cal-1")

		event := makeEvent("cal-1", "ev-1", time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
		insertEventWithOccurrence(t, store, event, event.StartsAt)

		plan := &calbot.SyncPlan{DeleteEventIDs: []string{"ev-1"}}
		if err := store.ApplySyncPlan(ctx, "cal-1", plan); err != nil {
			t.Fatalf("ApplySyncPlan() error = %v", err)
		}

		events, _ := store.ListEvents(ctx, "cal-1")
		if len(events) != 0 {
			t.Errorf("got %d events after delete, want 0", len(events))
		}

		// The occurrence row cascades with the event
		occurrences, _ := store.ListNextOccurrences(ctx, "cal-1")
		if len(occurrences) != 0 {
			t.Errorf("got %d occurrences after delete, want 0", len(occurrences))
		}
	})

	t.Run("removes occurrence when event has none left", func(t *testing.T) {
		store := newTestStore(t)
		createTestCalendar(t, store, "cal-1")

		event := makeEvent("cal-1", "ev-1", time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
		insertEventWithOccurrence(t, store, event, event.StartsAt)

		plan := &calbot.SyncPlan{DeleteOccurrenceEventIDs: []string{"ev-1"}}
		if err := store.ApplySyncPlan(ctx, "cal-1", plan); err != nil {
			t.Fatalf("ApplySyncPlan() error = %v", err)
		}

		events, _ := store.ListEvents(ctx, "cal-1")
		if len(events) != 1 {
			t.Errorf("got %d events, want 1 (event itself stays)", len(events))
		}
		occurrences, _ := store.ListNextOccurrences(ctx, "cal-1")
		if len(occurrences) != 0 {
			t.Errorf("got %d occurrences, want 0", len(occurrences))
		}
	})

	t.Run("rolls back everything on failure", func(t *testing.T) {
		store := newTestStore(t)
		createTestCalendar(t, store, "cal-1")

		good := makeEvent("cal-1", "ev-1", time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
		duplicate := makeEvent("cal-1", "ev-1", time.Date(2024, 6, 2, 10, 0, 0, 0, time.UTC))

		// Second insert violates the primary key, so the first must not land either
		plan := &calbot.SyncPlan{InsertEvents: []*model.Event{good, duplicate}}
		if err := store.ApplySyncPlan(ctx, "cal-1", plan); err == nil {
			t.Fatal("ApplySyncPlan() expected error for duplicate event ID")
		}

		events, _ := store.ListEvents(ctx, "cal-1")
		if len(events) != 0 {
			t.Errorf("got %d events after failed plan, want 0", len(events))
		}
	})

	t.Run("empty plan is a no-op", func(t *testing.T) {
		store := newTestStore(t)
		createTestCalendar(t, store, "cal-1")

		if err := store.ApplySyncPlan(ctx, "cal-1", &calbot.SyncPlan{}); err != nil {
			t.Fatalf("ApplySyncPlan() error = %v", err)
		}
	})
}

func TestSQLiteStore_Reminders(t *testing.T) {
	ctx := context.Background()

	t.Run("create and list", func(t *testing.T) {
		store := newTestStore(t)
		createTestCalendar(t, store, "cal-1")
		createTestCalendar(t, store, "cal-2")

		r1 := &model.Reminder{
			ID:            "rem-1",
			CalendarID:    "cal-1",
			EventID:       "ev-1",
			UserID:        "admin",
			RoomID:        "!room:example.org",
			MinutesBefore: 30,
			CreatedAt:     time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		}
		r2 := &model.Reminder{
			ID:            "rem-2",
			CalendarID:    "cal-2",
			EventID:       "ev-9",
			UserID:        "admin",
			RoomID:        "!other:example.org",
			MinutesBefore: 10,
			Template:      sql.NullString{String: "{{.Summary}} soon", Valid: true},
			CreatedAt:     time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		}
		for _, r := range []*model.Reminder{r1, r2} {
			if err := store.CreateReminder(ctx, r); err != nil {
				t.Fatalf("CreateReminder(%s) error = %v", r.ID, err)
			}
		}

		all, err := store.ListReminders(ctx, "")
		if err != nil {
			t.Fatalf("ListReminders() error = %v", err)
		}
		if len(all) != 2 {
			t.Fatalf("got %d reminders, want 2", len(all))
		}

		filtered, err := store.ListReminders(ctx, "cal-2")
		if err != nil {
			t.Fatalf("ListReminders(cal-2) error = %v", err)
		}
		if len(filtered) != 1 {
			t.Fatalf("got %d reminders for cal-2, want 1", len(filtered))
		}
		if filtered[0].ID != "rem-2" {
			t.Errorf("ID = %q, want rem-2", filtered[0].ID)
		}
		if filtered[0].Template.String != "{{.Summary}} soon" {
			t.Errorf("Template = %q, want custom template", filtered[0].Template.String)
		}
	})
}

func TestSQLiteStore_ListPendingReminderOccurrences(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) *SQLiteStore {
		store := newTestStore(t)
		createTestCalendar(t, store, "cal-1")

		event := makeEvent("cal-1", "ev-1", time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
		insertEventWithOccurrence(t, store, event, event.StartsAt)

		reminder := &model.Reminder{
			ID:            "rem-1",
			CalendarID:    "cal-1",
			EventID:       "ev-1",
			UserID:        "admin",
			RoomID:        "!room:example.org",
			MinutesBefore: 30,
			CreatedAt:     time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		}
		if err := store.CreateReminder(ctx, reminder); err != nil {
			t.Fatalf("CreateReminder() error = %v", err)
		}
		return store
	}

	t.Run("joins reminder with its next occurrence", func(t *testing.T) {
		store := setup(t)

		pending, err := store.ListPendingReminderOccurrences(ctx)
		if err != nil {
			t.Fatalf("ListPendingReminderOccurrences() error = %v", err)
		}
		if len(pending) != 1 {
			t.Fatalf("got %d pending, want 1", len(pending))
		}

		p := pending[0]
		if p.ReminderID != "rem-1" {
			t.Errorf("ReminderID = %q, want rem-1", p.ReminderID)
		}
		if p.RoomID != "!room:example.org" {
			t.Errorf("RoomID = %q, want !room:example.org", p.RoomID)
		}
		if p.MinutesBefore != 30 {
			t.Errorf("MinutesBefore = %d, want 30", p.MinutesBefore)
		}
		if p.Summary != "Standup" {
			t.Errorf("Summary = %q, want Standup", p.Summary)
		}
		want := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
		if !p.OccurrenceAt.Equal(want) {
			t.Errorf("OccurrenceAt = %v, want %v", p.OccurrenceAt, want)
		}
		if len(p.Attendees) != 1 || p.Attendees[0].Name != "Ada" {
			t.Errorf("Attendees = %v, want Ada", p.Attendees)
		}
	})

	t.Run("excludes pairs with a dispatch record", func(t *testing.T) {
		store := setup(t)

		pending, _ := store.ListPendingReminderOccurrences(ctx)
		if len(pending) != 1 {
			t.Fatalf("got %d pending, want 1", len(pending))
		}

		// Record delivery using the occurrence time exactly as the store returned it
		record := &model.DispatchRecord{
			ReminderID:   pending[0].ReminderID,
			OccurrenceAt: pending[0].OccurrenceAt,
			SentAt:       time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC),
		}
		if err := store.CreateDispatchRecord(ctx, record); err != nil {
			t.Fatalf("CreateDispatchRecord() error = %v", err)
		}

		pending, err := store.ListPendingReminderOccurrences(ctx)
		if err != nil {
			t.Fatalf("ListPendingReminderOccurrences() error = %v", err)
		}
		if len(pending) != 0 {
			t.Errorf("got %d pending after dispatch, want 0", len(pending))
		}
	})

	t.Run("new occurrence becomes pending again", func(t *testing.T) {
		store := setup(t)

		pending, _ := store.ListPendingReminderOccurrences(ctx)
		record := &model.DispatchRecord{
			ReminderID:   pending[0].ReminderID,
			OccurrenceAt: pending[0].OccurrenceAt,
			SentAt:       time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC),
		}
		if err := store.CreateDispatchRecord(ctx, record); err != nil {
			t.Fatalf("CreateDispatchRecord() error = %v", err)
		}

		// Sync advances the event to its next occurrence
		next := time.Date(2024, 6, 8, 10, 0, 0, 0, time.UTC)
		plan := &calbot.SyncPlan{
			UpsertOccurrences: []*model.NextOccurrence{{
				CalendarID: "cal-1",
				EventID:    "ev-1",
				StartsAt:   next,
				Attendees:  model.AttendeeList{{Name: "Ada", Email: "ada@example.com"}},
			}},
		}
		if err := store.ApplySyncPlan(ctx, "cal-1", plan); err != nil {
			t.Fatalf("ApplySyncPlan() error = %v", err)
		}

		pending, err := store.ListPendingReminderOccurrences(ctx)
		if err != nil {
			t.Fatalf("ListPendingReminderOccurrences() error = %v", err)
		}
		if len(pending) != 1 {
			t.Fatalf("got %d pending for new occurrence, want 1", len(pending))
		}
		if !pending[0].OccurrenceAt.Equal(next) {
			t.Errorf("OccurrenceAt = %v, want %v", pending[0].OccurrenceAt, next)
		}
	})

	t.Run("reminder without an occurrence yields nothing", func(t *testing.T) {
		store := newTestStore(t)
		createTestCalendar(t, store, "cal-1")

		// Orphaned reminder: its event is gone from the feed
		reminder := &model.Reminder{
			ID:            "rem-1",
			CalendarID:    "cal-1",
			EventID:       "ev-gone",
			UserID:        "admin",
			RoomID:        "!room:example.org",
			MinutesBefore: 15,
			CreatedAt:     time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		}
		if err := store.CreateReminder(ctx, reminder); err != nil {
			t.Fatalf("CreateReminder() error = %v", err)
		}

		pending, err := store.ListPendingReminderOccurrences(ctx)
		if err != nil {
			t.Fatalf("ListPendingReminderOccurrences() error = %v", err)
		}
		if len(pending) != 0 {
			t.Errorf("got %d pending for orphaned reminder, want 0", len(pending))
		}
	})
}

func TestSQLiteStore_CreateDispatchRecord(t *testing.T) {
	t.Run("rejects duplicate record", func(t *testing.T) {
		store := newTestStore(t)
		ctx := context.Background()
		createTestCalendar(t, store, "cal-1")

		reminder := &model.Reminder{
			ID:            "rem-1",
			CalendarID:    "cal-1",
			EventID:       "ev-1",
			UserID:        "admin",
			RoomID:        "!room:example.org",
			MinutesBefore: 30,
			CreatedAt:     time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		}
		if err := store.CreateReminder(ctx, reminder); err != nil {
			t.Fatalf("CreateReminder() error = %v", err)
		}

		record := &model.DispatchRecord{
			ReminderID:   "rem-1",
			OccurrenceAt: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
			SentAt:       time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC),
		}
		if err := store.CreateDispatchRecord(ctx, record); err != nil {
			t.Fatalf("first CreateDispatchRecord() error = %v", err)
		}

		if err := store.CreateDispatchRecord(ctx, record); err == nil {
			t.Error("second CreateDispatchRecord() expected error for duplicate")
		}
	})
}

func TestSQLiteStore_SyncRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("create, finish, and list", func(t *testing.T) {
		id1, err := store.CreateSyncRun(ctx, &model.SyncRun{
			CalendarID: "cal-1",
			StartedAt:  time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
			Status:     "running",
		})
		if err != nil {
			t.Fatalf("CreateSyncRun() error = %v", err)
		}
		if id1 == 0 {
			t.Error("sync run ID should be non-zero")
		}

		id2, err := store.CreateSyncRun(ctx, &model.SyncRun{
			CalendarID: "cal-2",
			StartedAt:  time.Date(2024, 6, 1, 10, 1, 0, 0, time.UTC),
			Status:     "running",
		})
		if err != nil {
			t.Fatalf("CreateSyncRun() error = %v", err)
		}

		err = store.FinishSyncRun(ctx, &model.SyncRun{
			ID:             id1,
			FinishedAt:     sql.NullTime{Time: time.Date(2024, 6, 1, 10, 0, 5, 0, time.UTC), Valid: true},
			Status:         "success",
			EventsInserted: 3,
			EventsUpdated:  1,
		})
		if err != nil {
			t.Fatalf("FinishSyncRun() error = %v", err)
		}

		runs, err := store.ListSyncRuns(ctx, 10)
		if err != nil {
			t.Fatalf("ListSyncRuns() error = %v", err)
		}
		if len(runs) != 2 {
			t.Fatalf("got %d runs, want 2", len(runs))
		}

		// Newest first
		if runs[0].ID != id2 {
			t.Errorf("expected newest first: got ID %d, want %d", runs[0].ID, id2)
		}
		if runs[1].Status != "success" {
			t.Errorf("Status = %q, want %q", runs[1].Status, "success")
		}
		if !runs[1].FinishedAt.Valid {
			t.Error("FinishedAt should be set")
		}
		if runs[1].EventsInserted != 3 {
			t.Errorf("EventsInserted = %d, want 3", runs[1].EventsInserted)
		}
	})

	t.Run("limit caps the result", func(t *testing.T) {
		runs, err := store.ListSyncRuns(ctx, 1)
		if err != nil {
			t.Fatalf("ListSyncRuns() error = %v", err)
		}
		if len(runs) != 1 {
			t.Errorf("got %d runs with limit 1, want 1", len(runs))
		}
	})
}

func TestSQLiteStore_CheckMigrations(t *testing.T) {
	t.Run("fails on DB without migrations applied", func(t *testing.T) {
		store, err := NewSQLiteStore(":memory:")
		if err != nil {
			t.Fatalf("NewSQLiteStore() error = %v", err)
		}
		defer store.Close()

		// DB has no schema at all, so this should fail
		if err := store.CheckMigrations(); err == nil {
			t.Error("CheckMigrations() expected error for missing schema")
		}
	})

	t.Run("passes after migrate", func(t *testing.T) {
		store := newTestStore(t)

		if err := store.CheckMigrations(); err != nil {
			t.Errorf("CheckMigrations() error = %v", err)
		}
	})
}
