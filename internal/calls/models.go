package calls

import (
	"strings"
	"time"
)

// Call is the durable record of one outbound call attempt.
//
// Invariants:
//   - Status only moves forward (see CanTransitionTo); terminal statuses never change.
//   - CompletedAt is set exactly once, on the first terminal transition, so it is
//     non-nil iff Status is terminal.
//   - ProviderCallID is the voice provider's opaque handle; it is empty until the
//     provider accepts the origination.
type Call struct {
	ID               string `json:"id"`
	RepresentativeID string `json:"representativeId"`
	ScriptID         string `json:"scriptId"`
	PersonaID        string `json:"personaId"`

	Status Status `json:"status"`

	PhoneNumber    string `json:"phoneNumber"`
	ModifiedScript string `json:"modifiedScript"`
	ProviderCallID string `json:"twilioCallSid,omitempty"`

	// Duration is in seconds; nil until the provider reports it.
	Duration     *int   `json:"duration,omitempty"`
	Transcript   string `json:"transcript,omitempty"`
	Recording    string `json:"recording,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusQueued     Status = "QUEUED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

// ParseStatus accepts the internal vocabulary case-insensitively.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case StatusPending, StatusQueued, StatusInProgress, StatusCompleted, StatusFailed, StatusCancelled:
		return s, true
	}
	return "", false
}

// rank orders statuses: pre-answer 0, answered 1, terminal 2.
func (s Status) rank() int {
	switch s {
	case StatusInProgress:
		return 1
	case StatusCompleted, StatusFailed, StatusCancelled:
		return 2
	default:
		return 0
	}
}

func (s Status) IsTerminal() bool { return s.rank() == 2 }

// IsPending reports whether the call has not been answered yet.
// Status-polling clients show the queued banner for both pre-answer states.
func (s Status) IsPending() bool { return s == StatusPending || s == StatusQueued }

// CanTransitionTo reports whether moving from s to next is a forward change.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return false
	}
	if s == StatusPending && next == StatusQueued {
		return true
	}
	return next.rank() > s.rank()
}

// Transition applies next when it is a forward change and stamps CompletedAt
// on the first terminal transition. It reports whether the status changed.
func (c *Call) Transition(next Status, now time.Time) bool {
	if !c.Status.CanTransitionTo(next) {
		return false
	}
	c.Status = next
	if next.IsTerminal() && c.CompletedAt == nil {
		t := now.UTC()
		c.CompletedAt = &t
	}
	return true
}
