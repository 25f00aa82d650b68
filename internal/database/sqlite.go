package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"calbot-go/internal/calbot"
	"calbot-go/internal/database/migrations"
	"calbot-go/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db   *sqlx.DB
	path string
}

// NewSQLiteStore creates a new SQLite store connection.
// path can be a file path or ":memory:" for in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	return &SQLiteStore{
		db:   db,
		path: path,
	}, nil
}

// NewSQLiteStoreFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteStoreFromDB(db *sqlx.DB) *SQLiteStore {
	return &SQLiteStore{
		db:   db,
		path: "",
	}
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// This is exported for use in tools and tests that need a properly configured SQLite connection.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Future SQLite optimizations can be added here:
	// - PRAGMA journal_mode = WAL  (Write-Ahead Logging for better concurrency)
	// - PRAGMA busy_timeout = 5000 (Wait up to 5s for locks)
	// - PRAGMA synchronous = NORMAL (Balance between safety and performance)

	return db, nil
}

// Calendar operations

func (s *SQLiteStore) CreateCalendar(ctx context.Context, calendar *model.Calendar) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO calendars (id, user_id, name, url, basic_auth_user, basic_auth_password, oauth_account_id, sync_interval_minutes, created_at)
		VALUES (:id, :user_id, :name, :url, :basic_auth_user, :basic_auth_password, :oauth_account_id, :sync_interval_minutes, :created_at)
	`, calendar)
	if err != nil {
		return fmt.Errorf("creating calendar: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FindCalendar(ctx context.Context, id string) (*model.Calendar, error) {
	var calendar model.Calendar
	err := s.db.GetContext(ctx, &calendar, `
		SELECT id, user_id, name, url, basic_auth_user, basic_auth_password, oauth_account_id, sync_interval_minutes, created_at
		FROM calendars WHERE id = ?
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding calendar: %w", err)
	}
	return &calendar, nil
}

func (s *SQLiteStore) ListCalendars(ctx context.Context) ([]*model.Calendar, error) {
	var calendars []*model.Calendar
	err := s.db.SelectContext(ctx, &calendars, `
		SELECT id, user_id, name, url, basic_auth_user, basic_auth_password, oauth_account_id, sync_interval_minutes, created_at
		FROM calendars ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("listing calendars: %w", err)
	}
	return calendars, nil
}

// OAuth account operations

func (s *SQLiteStore) CreateOAuthAccount(ctx context.Context, account *model.OAuthAccount) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO oauth_accounts (id, user_id, access_token, refresh_token, expires_at, needs_reauth, created_at, updated_at)
		VALUES (:id, :user_id, :access_token, :refresh_token, :expires_at, :needs_reauth, :created_at, :updated_at)
	`, account)
	if err != nil {
		return fmt.Errorf("creating oauth account: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FindOAuthAccount(ctx context.Context, id string) (*model.OAuthAccount, error) {
	var account model.OAuthAccount
	err := s.db.GetContext(ctx, &account, `
		SELECT id, user_id, access_token, refresh_token, expires_at, needs_reauth, created_at, updated_at
		FROM oauth_accounts WHERE id = ?
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding oauth account: %w", err)
	}
	return &account, nil
}

func (s *SQLiteStore) UpdateOAuthTokens(ctx context.Context, id string, accessToken, refreshToken []byte, expiresAt, updatedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE oauth_accounts
		SET access_token = ?, refresh_token = ?, expires_at = ?, needs_reauth = 0, updated_at = ?
		WHERE id = ?
	`, accessToken, refreshToken, expiresAt, updatedAt, id)
	if err != nil {
		return fmt.Errorf("updating oauth tokens: %w", err)
	}
	return nil
}

func (s *SQLiteStore) MarkOAuthAccountNeedsReauth(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE oauth_accounts SET needs_reauth = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("marking oauth account for reauth: %w", err)
	}
	return nil
}

// Event state operations

func (s *SQLiteStore) ListEvents(ctx context.Context, calendarID string) ([]*model.Event, error) {
	var events []*model.Event
	err := s.db.SelectContext(ctx, &events, `
		SELECT calendar_id, event_id, summary, description, location, organizer, attendees, starts_at, ends_at, all_day, recurrence
		FROM events WHERE calendar_id = ? ORDER BY event_id
	`, calendarID)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	return events, nil
}

func (s *SQLiteStore) ListNextOccurrences(ctx context.Context, calendarID string) ([]*model.NextOccurrence, error) {
	var occurrences []*model.NextOccurrence
	err := s.db.SelectContext(ctx, &occurrences, `
		SELECT calendar_id, event_id, starts_at, attendees
		FROM next_occurrences WHERE calendar_id = ? ORDER BY event_id
	`, calendarID)
	if err != nil {
		return nil, fmt.Errorf("listing next occurrences: %w", err)
	}
	return occurrences, nil
}

// ApplySyncPlan applies every change in the plan in a single transaction:
//  1. Deletes events that left the feed (their occurrence rows cascade).
//  2. Inserts events new to the feed.
//  3. Updates events whose definition changed.
//  4. Upserts the next occurrence for events that still have one.
//  5. Deletes occurrence rows for events with no future occurrence left.
func (s *SQLiteStore) ApplySyncPlan(ctx context.Context, calendarID string, plan *calbot.SyncPlan) error {
	if plan.Empty() {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	// 1. Events no longer present in the feed.
	if len(plan.DeleteEventIDs) > 0 {
		query, args, err := sqlx.In("DELETE FROM events WHERE calendar_id = ? AND event_id IN (?)", calendarID, plan.DeleteEventIDs)
		if err != nil {
			return fmt.Errorf("building event delete: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return fmt.Errorf("deleting events: %w", err)
		}
	}

	// 2. Events new to the feed.
	for _, event := range plan.InsertEvents {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO events (calendar_id, event_id, summary, description, location, organizer, attendees, starts_at, ends_at, all_day, recurrence)
			VALUES (:calendar_id, :event_id, :summary, :description, :location, :organizer, :attendees, :starts_at, :ends_at, :all_day, :recurrence)
		`, event)
		if err != nil {
			return fmt.Errorf("inserting event %s: %w", event.EventID, err)
		}
	}

	// 3. Events whose definition changed.
	for _, event := range plan.UpdateEvents {
		_, err := tx.NamedExecContext(ctx, `
			UPDATE events
			SET summary = :summary, description = :description, location = :location,
			    organizer = :organizer, attendees = :attendees, starts_at = :starts_at,
			    ends_at = :ends_at, all_day = :all_day, recurrence = :recurrence
			WHERE calendar_id = :calendar_id AND event_id = :event_id
		`, event)
		if err != nil {
			return fmt.Errorf("updating event %s: %w", event.EventID, err)
		}
	}

	// 4. Next occurrences (insert or replace per event).
	for _, occurrence := range plan.UpsertOccurrences {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO next_occurrences (calendar_id, event_id, starts_at, attendees)
			VALUES (:calendar_id, :event_id, :starts_at, :attendees)
			ON CONFLICT (calendar_id, event_id)
			DO UPDATE SET starts_at = excluded.starts_at, attendees = excluded.attendees
		`, occurrence)
		if err != nil {
			return fmt.Errorf("upserting occurrence for %s: %w", occurrence.EventID, err)
		}
	}

	// 5. Events that remain but have no future occurrence.
	if len(plan.DeleteOccurrenceEventIDs) > 0 {
		query, args, err := sqlx.In("DELETE FROM next_occurrences WHERE calendar_id = ? AND event_id IN (?)", calendarID, plan.DeleteOccurrenceEventIDs)
		if err != nil {
			return fmt.Errorf("building occurrence delete: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return fmt.Errorf("deleting occurrences: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// Reminder operations

func (s *SQLiteStore) CreateReminder(ctx context.Context, reminder *model.Reminder) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO reminders (id, calendar_id, event_id, user_id, room_id, minutes_before, template, attendee_editable, created_at)
		VALUES (:id, :calendar_id, :event_id, :user_id, :room_id, :minutes_before, :template, :attendee_editable, :created_at)
	`, reminder)
	if err != nil {
		return fmt.Errorf("creating reminder: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListReminders(ctx context.Context, calendarID string) ([]*model.Reminder, error) {
	query := `
		SELECT id, calendar_id, event_id, user_id, room_id, minutes_before, template, attendee_editable, created_at
		FROM reminders
	`
	var args []interface{}
	if calendarID != "" {
		query += " WHERE calendar_id = ?"
		args = append(args, calendarID)
	}
	query += " ORDER BY created_at, id"

	var reminders []*model.Reminder
	if err := s.db.SelectContext(ctx, &reminders, query, args...); err != nil {
		return nil, fmt.Errorf("listing reminders: %w", err)
	}
	return reminders, nil
}

// ListPendingReminderOccurrences joins reminders with their event's current
// next occurrence and filters out pairs that already have a dispatch record.
// The record's occurrence_at is written back verbatim from starts_at, so the
// join's timestamp equality holds.
func (s *SQLiteStore) ListPendingReminderOccurrences(ctx context.Context) ([]*model.ReminderOccurrence, error) {
	var pending []*model.ReminderOccurrence
	err := s.db.SelectContext(ctx, &pending, `
		SELECT r.id AS reminder_id, r.room_id, r.minutes_before, r.template,
		       n.starts_at AS occurrence_at, n.attendees,
		       e.summary, e.description, e.location
		FROM reminders r
		JOIN next_occurrences n ON n.calendar_id = r.calendar_id AND n.event_id = r.event_id
		JOIN events e ON e.calendar_id = r.calendar_id AND e.event_id = r.event_id
		LEFT JOIN dispatch_records d ON d.reminder_id = r.id AND d.occurrence_at = n.starts_at
		WHERE d.reminder_id IS NULL
		ORDER BY n.starts_at, r.id
	`)
	if err != nil {
		return nil, fmt.Errorf("listing pending reminder occurrences: %w", err)
	}
	return pending, nil
}

func (s *SQLiteStore) CreateDispatchRecord(ctx context.Context, record *model.DispatchRecord) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO dispatch_records (reminder_id, occurrence_at, sent_at)
		VALUES (:reminder_id, :occurrence_at, :sent_at)
	`, record)
	if err != nil {
		return fmt.Errorf("creating dispatch record: %w", err)
	}
	return nil
}

// Sync run operations

func (s *SQLiteStore) CreateSyncRun(ctx context.Context, run *model.SyncRun) (int64, error) {
	result, err := s.db.NamedExecContext(ctx, `
		INSERT INTO sync_runs (calendar_id, started_at, status)
		VALUES (:calendar_id, :started_at, :status)
	`, run)
	if err != nil {
		return 0, fmt.Errorf("creating sync run: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading sync run ID: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) FinishSyncRun(ctx context.Context, run *model.SyncRun) error {
	_, err := s.db.NamedExecContext(ctx, `
		UPDATE sync_runs
		SET finished_at = :finished_at, status = :status, error = :error,
		    events_inserted = :events_inserted, events_updated = :events_updated, events_deleted = :events_deleted
		WHERE id = :id
	`, run)
	if err != nil {
		return fmt.Errorf("finishing sync run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListSyncRuns(ctx context.Context, limit int64) ([]*model.SyncRun, error) {
	var runs []*model.SyncRun
	err := s.db.SelectContext(ctx, &runs, `
		SELECT id, calendar_id, started_at, finished_at, status, error, events_inserted, events_updated, events_deleted
		FROM sync_runs ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", err)
	}
	return runs, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteStore) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db.DB)
}

// Migrate brings the database schema up to the latest version.
func (s *SQLiteStore) Migrate() error {
	return migrations.MigrateUp(s.db.DB)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteStore implements calbot.Store interface
var _ calbot.Store = (*SQLiteStore)(nil)
