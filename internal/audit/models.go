package audit

import "time"

// Event is an immutable, append-only record of a call lifecycle change.
//
// Invariants:
//   - Events are never updated or deleted.
//   - call_id is required; every event belongs to one call.
//   - Recording is best-effort; callers never block a call flow on audit failures.
//
// Storage (Postgres): table call_events, INSERT-only.
type Event struct {
	ID     string    `json:"id" db:"id"`
	CallID string    `json:"call_id" db:"call_id"`
	Type   EventType `json:"type" db:"type"`

	// Source names the component that caused the event (api, dispatcher, webhook).
	Source string `json:"source,omitempty" db:"source"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata carries one detail value, such as a provider call id or error text.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventCallPlaced         EventType = "call_placed"
	EventCallDispatched     EventType = "call_dispatched"
	EventCallDispatchFailed EventType = "call_dispatch_failed"
	EventCallStatusChanged  EventType = "call_status_changed"
	EventCallUpdated        EventType = "call_updated"
)
