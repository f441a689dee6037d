// Package session holds the ephemeral per-call flow state used to drive
// voice menu navigation: the personalized script and the ordered menu steps.
//
// Sessions are short-lived working memory. They are written once when a call
// is placed, read on every voice-flow webhook, and deleted on terminal status.
package session

import (
	"context"
	"strings"
)

// MenuStep is one unit of automated phone-menu navigation.
type MenuStep struct {
	WaitFor string `json:"waitFor" yaml:"waitFor"`
	Action  string `json:"action" yaml:"action"`
}

const pressPrefix = "press"

// IsPress reports whether the action asks for a keypress.
func (m MenuStep) IsPress() bool {
	return strings.HasPrefix(strings.TrimSpace(m.Action), pressPrefix)
}

// Digit returns the keypress requested by a "press <digit>" action.
// Free-form actions return "".
func (m MenuStep) Digit() string {
	if !m.IsPress() {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(m.Action), pressPrefix))
}

// Session is the flow context for one in-flight call.
type Session struct {
	Script    string     `json:"script"`
	MenuSteps []MenuStep `json:"menuSteps"`
}

// Store is keyed by call identifier.
//
// Put inserts or overwrites. Get reports absence with ok=false and a nil error.
// Delete is a no-op when the key is absent.
type Store interface {
	Put(ctx context.Context, callID string, s Session) error
	Get(ctx context.Context, callID string) (Session, bool, error)
	Delete(ctx context.Context, callID string) error
}
