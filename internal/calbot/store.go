package calbot

import (
	"context"
	"time"

	"calbot-go/internal/model"
)

// SyncPlan is the computed difference between a freshly parsed feed and the
// stored state for one calendar. Applying a plan is atomic: either every
// listed change lands or none do.
type SyncPlan struct {
	InsertEvents []*model.Event
	UpdateEvents []*model.Event
	// DeleteEventIDs lists events no longer present in the feed.
	DeleteEventIDs []string

	UpsertOccurrences []*model.NextOccurrence
	// DeleteOccurrenceEventIDs lists events whose stored next occurrence
	// must be removed because no future occurrence remains.
	DeleteOccurrenceEventIDs []string
}

// Empty reports whether applying the plan would change nothing.
func (p *SyncPlan) Empty() bool {
	return len(p.InsertEvents) == 0 &&
		len(p.UpdateEvents) == 0 &&
		len(p.DeleteEventIDs) == 0 &&
		len(p.UpsertOccurrences) == 0 &&
		len(p.DeleteOccurrenceEventIDs) == 0
}

// Store provides an interface for calendar state storage operations.
// All methods should be implemented with appropriate transaction handling.
type Store interface {
	// Calendar operations

	// CreateCalendar registers a new feed source.
	CreateCalendar(ctx context.Context, calendar *model.Calendar) error

	// FindCalendar returns a calendar by ID, or nil if none exists.
	FindCalendar(ctx context.Context, id string) (*model.Calendar, error)

	// ListCalendars returns all registered calendars ordered by creation time.
	ListCalendars(ctx context.Context) ([]*model.Calendar, error)

	// OAuth account operations

	// CreateOAuthAccount stores a new token pair.
	CreateOAuthAccount(ctx context.Context, account *model.OAuthAccount) error

	// FindOAuthAccount returns an account by ID, or nil if none exists.
	FindOAuthAccount(ctx context.Context, id string) (*model.OAuthAccount, error)

	// UpdateOAuthTokens replaces an account's token pair and expiry, and
	// clears the needs_reauth flag.
	UpdateOAuthTokens(ctx context.Context, id string, accessToken, refreshToken []byte, expiresAt, updatedAt time.Time) error

	// MarkOAuthAccountNeedsReauth flags an account whose refresh token was
	// rejected, so syncs fail fast until a human re-links it.
	MarkOAuthAccountNeedsReauth(ctx context.Context, id string) error

	// Event state operations

	// ListEvents returns all stored events for a calendar.
	ListEvents(ctx context.Context, calendarID string) ([]*model.Event, error)

	// ListNextOccurrences returns the stored next occurrences for a calendar.
	ListNextOccurrences(ctx context.Context, calendarID string) ([]*model.NextOccurrence, error)

	// ApplySyncPlan applies every change in the plan inside one transaction.
	ApplySyncPlan(ctx context.Context, calendarID string, plan *SyncPlan) error

	// Reminder operations

	// CreateReminder registers a reminder against an event.
	CreateReminder(ctx context.Context, reminder *model.Reminder) error

	// ListReminders returns all reminders, optionally filtered by calendar.
	ListReminders(ctx context.Context, calendarID string) ([]*model.Reminder, error)

	// ListPendingReminderOccurrences returns every reminder joined with its
	// event's current next occurrence, excluding pairs that already have a
	// dispatch record. Trigger-time eligibility is the dispatcher's job.
	ListPendingReminderOccurrences(ctx context.Context) ([]*model.ReminderOccurrence, error)

	// CreateDispatchRecord marks a (reminder, occurrence) pair as delivered.
	CreateDispatchRecord(ctx context.Context, record *model.DispatchRecord) error

	// Sync run operations

	// CreateSyncRun opens a sync run row and returns its ID.
	CreateSyncRun(ctx context.Context, run *model.SyncRun) (int64, error)

	// FinishSyncRun closes a sync run with its outcome and counters.
	FinishSyncRun(ctx context.Context, run *model.SyncRun) error

	// ListSyncRuns returns the most recent sync runs, newest first.
	ListSyncRuns(ctx context.Context, limit int64) ([]*model.SyncRun, error)

	// Close closes the underlying connection.
	Close() error
}
