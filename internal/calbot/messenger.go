package calbot

import "context"

// Message is one rendered reminder notification. Plain is the fallback
// body; HTML is the formatted variant with all event-sourced values
// escaped during rendering.
type Message struct {
	Plain string
	HTML  string
}

// Messenger delivers rendered messages to a room. Implementations return
// ErrDeliveryFailed (wrapped with detail) when the room did not accept the
// message, so the dispatcher leaves the reminder eligible for retry.
type Messenger interface {
	Send(ctx context.Context, roomID string, msg *Message) error
}
