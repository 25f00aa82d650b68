package calbot

import "errors"

// Fetch errors. Implementations of FeedFetcher map transport outcomes onto
// these sentinels so the sync layer can react without knowing the protocol.
var (
	// ErrUnauthorized means the feed rejected our credentials. For
	// OAuth-backed calendars this triggers one token refresh and retry.
	ErrUnauthorized = errors.New("feed authorization rejected")

	// ErrNotFound means the feed URL no longer resolves to a calendar.
	ErrNotFound = errors.New("feed not found")

	// ErrTimeout means the fetch exceeded its deadline.
	ErrTimeout = errors.New("feed fetch timed out")

	// ErrTransport covers all other network and protocol failures.
	ErrTransport = errors.New("feed fetch failed")
)

// ErrDeliveryFailed means the messenger could not hand the message to the
// room. The dispatch record is not written, so the reminder stays eligible.
var ErrDeliveryFailed = errors.New("message delivery failed")

// ErrNeedsReauth means the calendar's OAuth account requires a human to
// re-link it. Syncs fail fast until then.
var ErrNeedsReauth = errors.New("oauth account needs re-authorization")
