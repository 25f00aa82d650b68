package calbot

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"calbot-go/internal/model"
)

// AddCalendarParams carries operator input for registering a calendar.
// Basic auth and an OAuth account are mutually exclusive; leave both empty
// for a public feed. SyncIntervalMinutes of zero uses the global interval.
type AddCalendarParams struct {
	UserID              string
	Name                string
	URL                 string
	BasicAuthUser       string
	BasicAuthPassword   string
	OAuthAccountID      string
	SyncIntervalMinutes int64
}

// AddCalendar registers a new feed source, sealing the basic-auth password
// before it reaches the store.
func (s *Service) AddCalendar(ctx context.Context, params AddCalendarParams) (*model.Calendar, error) {
	if params.Name == "" {
		return nil, fmt.Errorf("calendar name is required")
	}
	if params.URL == "" {
		return nil, fmt.Errorf("calendar url is required")
	}
	if params.BasicAuthUser != "" && params.OAuthAccountID != "" {
		return nil, fmt.Errorf("a calendar cannot use both basic auth and an oauth account")
	}

	calendar := &model.Calendar{
		ID:        s.idgen.New(),
		UserID:    params.UserID,
		Name:      params.Name,
		URL:       params.URL,
		CreatedAt: s.clock.Now(),
	}

	if params.OAuthAccountID != "" {
		account, err := s.store.FindOAuthAccount(ctx, params.OAuthAccountID)
		if err != nil {
			return nil, fmt.Errorf("finding oauth account: %w", err)
		}
		if account == nil {
			return nil, fmt.Errorf("oauth account not found: %s", params.OAuthAccountID)
		}
		calendar.OAuthAccountID = sql.NullString{String: params.OAuthAccountID, Valid: true}
	}

	if params.BasicAuthUser != "" {
		sealed, err := s.sealer.Seal([]byte(params.BasicAuthPassword))
		if err != nil {
			return nil, fmt.Errorf("sealing feed password: %w", err)
		}
		calendar.BasicAuthUser = sql.NullString{String: params.BasicAuthUser, Valid: true}
		calendar.BasicAuthPassword = sealed
	}

	if params.SyncIntervalMinutes > 0 {
		calendar.SyncIntervalMinutes = sql.NullInt64{Int64: params.SyncIntervalMinutes, Valid: true}
	}

	if err := s.store.CreateCalendar(ctx, calendar); err != nil {
		return nil, fmt.Errorf("creating calendar: %w", err)
	}

	s.logger.Info("calendar added", "calendar", calendar.ID, "name", calendar.Name)
	return calendar, nil
}

// AddOAuthAccountParams carries operator input for linking an OAuth token
// pair. AccessToken may be empty; the first sync then refreshes before
// fetching. A zero ExpiresAt is treated as already expired.
type AddOAuthAccountParams struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// AddOAuthAccount stores a new token pair, sealed at rest.
func (s *Service) AddOAuthAccount(ctx context.Context, params AddOAuthAccountParams) (*model.OAuthAccount, error) {
	if params.RefreshToken == "" {
		return nil, fmt.Errorf("refresh token is required")
	}

	sealedAccess, err := s.sealer.Seal([]byte(params.AccessToken))
	if err != nil {
		return nil, fmt.Errorf("sealing access token: %w", err)
	}
	sealedRefresh, err := s.sealer.Seal([]byte(params.RefreshToken))
	if err != nil {
		return nil, fmt.Errorf("sealing refresh token: %w", err)
	}

	now := s.clock.Now()
	account := &model.OAuthAccount{
		ID:           s.idgen.New(),
		UserID:       params.UserID,
		AccessToken:  sealedAccess,
		RefreshToken: sealedRefresh,
		ExpiresAt:    params.ExpiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateOAuthAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("creating oauth account: %w", err)
	}

	s.logger.Info("oauth account added", "account", account.ID)
	return account, nil
}

// AddReminderParams carries operator input for registering a reminder.
// Template is optional; when set it must parse, which is checked here so a
// broken template cannot wedge dispatch later.
type AddReminderParams struct {
	CalendarID       string
	EventID          string
	UserID           string
	RoomID           string
	MinutesBefore    int64
	Template         string
	AttendeeEditable bool
}

// AddReminder registers a reminder against an event. The event does not
// have to be synced yet; a reminder whose event never appears simply never
// fires.
func (s *Service) AddReminder(ctx context.Context, params AddReminderParams) (*model.Reminder, error) {
	if params.EventID == "" {
		return nil, fmt.Errorf("event id is required")
	}
	if params.RoomID == "" {
		return nil, fmt.Errorf("room id is required")
	}
	if params.MinutesBefore < 0 {
		return nil, fmt.Errorf("minutes before must not be negative")
	}

	calendar, err := s.store.FindCalendar(ctx, params.CalendarID)
	if err != nil {
		return nil, fmt.Errorf("finding calendar: %w", err)
	}
	if calendar == nil {
		return nil, fmt.Errorf("calendar not found: %s", params.CalendarID)
	}

	if params.Template != "" {
		if err := ValidateTemplate(params.Template); err != nil {
			return nil, err
		}
	}

	known, err := s.eventKnown(ctx, params.CalendarID, params.EventID)
	if err != nil {
		return nil, err
	}
	if !known {
		s.logger.Warn("reminder references unsynced event", "calendar", params.CalendarID, "event", params.EventID)
	}

	reminder := &model.Reminder{
		ID:               s.idgen.New(),
		CalendarID:       params.CalendarID,
		EventID:          params.EventID,
		UserID:           params.UserID,
		RoomID:           params.RoomID,
		MinutesBefore:    params.MinutesBefore,
		AttendeeEditable: params.AttendeeEditable,
		CreatedAt:        s.clock.Now(),
	}
	if params.Template != "" {
		reminder.Template = sql.NullString{String: params.Template, Valid: true}
	}

	if err := s.store.CreateReminder(ctx, reminder); err != nil {
		return nil, fmt.Errorf("creating reminder: %w", err)
	}

	s.logger.Info("reminder added",
		"reminder", reminder.ID, "event", params.EventID, "minutes_before", params.MinutesBefore)
	return reminder, nil
}

func (s *Service) eventKnown(ctx context.Context, calendarID, eventID string) (bool, error) {
	events, err := s.store.ListEvents(ctx, calendarID)
	if err != nil {
		return false, fmt.Errorf("listing events: %w", err)
	}
	for _, ev := range events {
		if ev.EventID == eventID {
			return true, nil
		}
	}
	return false, nil
}

// Calendars returns all registered calendars.
func (s *Service) Calendars(ctx context.Context) ([]*model.Calendar, error) {
	calendars, err := s.store.ListCalendars(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing calendars: %w", err)
	}
	return calendars, nil
}

// Reminders returns reminders, all of them or those of one calendar.
func (s *Service) Reminders(ctx context.Context, calendarID string) ([]*model.Reminder, error) {
	reminders, err := s.store.ListReminders(ctx, calendarID)
	if err != nil {
		return nil, fmt.Errorf("listing reminders: %w", err)
	}
	return reminders, nil
}

// GetHistory returns the most recent sync runs, ordered newest first.
func (s *Service) GetHistory(ctx context.Context, limit int64) ([]*model.SyncRun, error) {
	runs, err := s.store.ListSyncRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", err)
	}
	return runs, nil
}
