package model

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Calendar is an external feed source registered by a user.
// Credentials are either a basic-auth pair (password sealed at rest) or a
// reference to an OAuth account; both may be absent for public feeds.
type Calendar struct {
	ID                  string         `db:"id"`
	UserID              string         `db:"user_id"`
	Name                string         `db:"name"`
	URL                 string         `db:"url"`
	BasicAuthUser       sql.NullString `db:"basic_auth_user"`
	BasicAuthPassword   []byte         `db:"basic_auth_password"` // sealed; nil when unset
	OAuthAccountID      sql.NullString `db:"oauth_account_id"`
	SyncIntervalMinutes sql.NullInt64  `db:"sync_interval_minutes"`
	CreatedAt           time.Time      `db:"created_at"`
}

// OAuthAccount holds the token pair for an OAuth-backed calendar source.
// Token blobs are sealed at rest. NeedsReauth is set when a refresh fails
// permanently; fetches for bound calendars fail until a human re-links.
type OAuthAccount struct {
	ID           string    `db:"id"`
	UserID       string    `db:"user_id"`
	AccessToken  []byte    `db:"access_token"`
	RefreshToken []byte    `db:"refresh_token"`
	ExpiresAt    time.Time `db:"expires_at"`
	NeedsReauth  bool      `db:"needs_reauth"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Event is one event definition parsed from a feed, keyed by
// (calendar ID, source-assigned event ID). The event ID is stable across
// syncs. All times are UTC.
type Event struct {
	CalendarID  string       `db:"calendar_id"`
	EventID     string       `db:"event_id"`
	Summary     string       `db:"summary"`
	Description string       `db:"description"`
	Location    string       `db:"location"`
	Organizer   NullAttendee `db:"organizer"`
	Attendees   AttendeeList `db:"attendees"`
	StartsAt    time.Time    `db:"starts_at"`
	EndsAt      time.Time    `db:"ends_at"`
	AllDay      bool         `db:"all_day"`
	Recurrence  Recurrence   `db:"recurrence"`
}

// NextOccurrence is the earliest strictly-future occurrence of an event as
// of the last successful sync, with the attendee list valid for that
// specific occurrence. At most one row per event; fully replaced on sync.
type NextOccurrence struct {
	CalendarID string       `db:"calendar_id"`
	EventID    string       `db:"event_id"`
	StartsAt   time.Time    `db:"starts_at"`
	Attendees  AttendeeList `db:"attendees"`
}

// Reminder asks for a notification minutes_before an event occurrence,
// delivered to a room, with an optional message template.
type Reminder struct {
	ID               string         `db:"id"`
	CalendarID       string         `db:"calendar_id"`
	EventID          string         `db:"event_id"`
	UserID           string         `db:"user_id"`
	RoomID           string         `db:"room_id"`
	MinutesBefore    int64          `db:"minutes_before"`
	Template         sql.NullString `db:"template"`
	AttendeeEditable bool           `db:"attendee_editable"`
	CreatedAt        time.Time      `db:"created_at"`
}

// DispatchRecord marks a (reminder, occurrence) pair as delivered. Its
// presence is the sole source of truth for "already sent".
type DispatchRecord struct {
	ReminderID   string    `db:"reminder_id"`
	OccurrenceAt time.Time `db:"occurrence_at"`
	SentAt       time.Time `db:"sent_at"`
}

// ReminderOccurrence is the join of a reminder with its event's current
// next occurrence, used by the dispatcher to evaluate eligibility and
// render the message.
type ReminderOccurrence struct {
	ReminderID    string         `db:"reminder_id"`
	RoomID        string         `db:"room_id"`
	MinutesBefore int64          `db:"minutes_before"`
	Template      sql.NullString `db:"template"`
	OccurrenceAt  time.Time      `db:"occurrence_at"`
	Summary       string         `db:"summary"`
	Description   string         `db:"description"`
	Location      string         `db:"location"`
	Attendees     AttendeeList   `db:"attendees"`
}

// SyncRun records one per-calendar sync cycle for operator visibility.
type SyncRun struct {
	ID             int64        `db:"id"`
	CalendarID     string       `db:"calendar_id"`
	StartedAt      time.Time    `db:"started_at"`
	FinishedAt     sql.NullTime `db:"finished_at"`
	Status         string       `db:"status"` // "success" or "error"
	Error          string       `db:"error"`
	EventsInserted int64        `db:"events_inserted"`
	EventsUpdated  int64        `db:"events_updated"`
	EventsDeleted  int64        `db:"events_deleted"`
}

// Occurrence is one concrete dated instance of a (possibly recurring)
// event, produced by recurrence expansion. Not persisted directly.
type Occurrence struct {
	StartsAt  time.Time
	Attendees AttendeeList
}

// Attendee is one participant parsed from a feed.
type Attendee struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// Display returns the attendee's name, falling back to the email address.
func (a Attendee) Display() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Email
}

// AttendeeList stores a list of attendees as a JSON column.
type AttendeeList []Attendee

func (l AttendeeList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshaling attendees: %w", err)
	}
	return string(b), nil
}

func (l *AttendeeList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	b, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("scanning attendees: %w", err)
	}
	if err := json.Unmarshal(b, l); err != nil {
		return fmt.Errorf("unmarshaling attendees: %w", err)
	}
	return nil
}

// NullAttendee stores an optional attendee as a JSON column.
// Valid is false when the column is NULL.
type NullAttendee struct {
	Attendee Attendee
	Valid    bool
}

func (n NullAttendee) Value() (driver.Value, error) {
	if !n.Valid {
		return nil, nil
	}
	b, err := json.Marshal(n.Attendee)
	if err != nil {
		return nil, fmt.Errorf("marshaling attendee: %w", err)
	}
	return string(b), nil
}

func (n *NullAttendee) Scan(value interface{}) error {
	if value == nil {
		n.Attendee, n.Valid = Attendee{}, false
		return nil
	}
	b, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("scanning attendee: %w", err)
	}
	if err := json.Unmarshal(b, &n.Attendee); err != nil {
		return fmt.Errorf("unmarshaling attendee: %w", err)
	}
	n.Valid = true
	return nil
}

// RecurrenceKind selects the variant of a Recurrence.
type RecurrenceKind string

const (
	RecurrenceNone      RecurrenceKind = "none"
	RecurrenceRecurring RecurrenceKind = "recurring"
)

// Recurrence is a tagged union describing how an event repeats.
// Kind determines which other fields are relevant: for RecurrenceNone all
// are empty, for RecurrenceRecurring the rule is an RFC 5545 RRULE and
// Exceptions/Overrides carry the suppressed dates and their replacements.
// Stored as a JSON column.
type Recurrence struct {
	Kind       RecurrenceKind `json:"kind"`
	Rule       string         `json:"rule,omitempty"`
	Exceptions []time.Time    `json:"exceptions,omitempty"`
	Overrides  []Override     `json:"overrides,omitempty"`
}

// NoRecurrence returns the Recurrence variant for a one-off event.
func NoRecurrence() Recurrence {
	return Recurrence{Kind: RecurrenceNone}
}

func (r Recurrence) Value() (driver.Value, error) {
	if r.Kind == "" {
		r.Kind = RecurrenceNone
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshaling recurrence: %w", err)
	}
	return string(b), nil
}

func (r *Recurrence) Scan(value interface{}) error {
	if value == nil {
		*r = NoRecurrence()
		return nil
	}
	b, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("scanning recurrence: %w", err)
	}
	if err := json.Unmarshal(b, r); err != nil {
		return fmt.Errorf("unmarshaling recurrence: %w", err)
	}
	if r.Kind == "" {
		r.Kind = RecurrenceNone
	}
	return nil
}

// Override is a replacement definition for one specific occurrence of a
// recurring series. Date identifies the original instance being replaced;
// the remaining fields describe the substituted instance.
type Override struct {
	Date        time.Time    `json:"date"`
	Start       time.Time    `json:"start"`
	End         time.Time    `json:"end"`
	Summary     string       `json:"summary,omitempty"`
	Description string       `json:"description,omitempty"`
	Location    string       `json:"location,omitempty"`
	Attendees   AttendeeList `json:"attendees,omitempty"`
}

// jsonBytes normalizes a scanned driver value to raw JSON bytes.
func jsonBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported column type %T", value)
	}
}
