package catalog

import (
	"time"

	"callrep/internal/personalize"
	"callrep/internal/session"
)

// Representative is an elected official that calls are placed to.
// District is empty for statewide offices.
type Representative struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Title       string    `json:"title"`
	State       string    `json:"state"`
	District    string    `json:"district,omitempty"`
	Party       string    `json:"party,omitempty"`
	PhotoURL    string    `json:"photoUrl,omitempty"`
	Email       string    `json:"email,omitempty"`
	PhoneNumber string    `json:"phoneNumber"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Location is the constituency a caller identifies with, e.g. "CA District 12".
func (r Representative) Location() string {
	if r.District == "" {
		return r.State
	}
	return r.State + " District " + r.District
}

type Issue struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Script is the message template for one issue. Content may carry
// [PLACEHOLDER] tokens; MenuSteps drive phone menu navigation before delivery.
type Script struct {
	ID          string             `json:"id"`
	IssueID     string             `json:"issueId"`
	Title       string             `json:"title"`
	Description string             `json:"description,omitempty"`
	Content     string             `json:"content"`
	MenuSteps   []session.MenuStep `json:"menuSteps"`
	Active      bool               `json:"active"`
	CreatedAt   time.Time          `json:"createdAt"`
}

type Persona struct {
	ID          string                  `json:"id"`
	Name        string                  `json:"name"`
	Description string                  `json:"description"`
	Tone        string                  `json:"tone"`
	Modifiers   personalize.ToneProfile `json:"modifiers"`
	Active      bool                    `json:"active"`
	CreatedAt   time.Time               `json:"createdAt"`
}

type RepresentativeFilter struct {
	State   string
	IssueID string
}

type IssueFilter struct {
	Category         string
	RepresentativeID string
}

type ScriptFilter struct {
	IssueID string
}
