package telephony

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Originator places outbound calls with a voice provider.
//
// Rules:
//   - No provider REST calls outside telephony adapters.
//   - Requests and results stay provider-agnostic.
type Originator interface {
	Name() string

	// Ready reports whether the adapter is configured well enough to place calls.
	Ready() error

	PlaceCall(ctx context.Context, req OriginateRequest) (OriginateResult, error)
}

// OriginateRequest asks the provider to dial To and drive the call through the
// voice-flow callback, reporting progress to the other three callbacks.
type OriginateRequest struct {
	To        string
	Callbacks Callbacks

	Record     bool
	Transcribe bool
}

type OriginateResult struct {
	ProviderCallID string `json:"provider_call_id"`
	Status         string `json:"status"`
}

// Callbacks are the four webhook URLs addressed by one call identifier.
type Callbacks struct {
	Voice         string
	Status        string
	Recording     string
	Transcription string
}

// CallbacksFor derives the webhook URLs for callID under publicURL.
func CallbacksFor(publicURL, callID string) Callbacks {
	return Callbacks{
		Voice:         StepURL(publicURL, callID, 0, ""),
		Status:        CallbackURL(publicURL, "status", callID),
		Recording:     CallbackURL(publicURL, "recording", callID),
		Transcription: CallbackURL(publicURL, "transcription", callID),
	}
}

func CallbackURL(publicURL, kind, callID string) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(publicURL, "/"), kind, url.PathEscape(callID))
}

func queryEscape(s string) string { return url.QueryEscape(s) }

// ProviderStatus is the closed set of call status tokens accepted from the provider.
type ProviderStatus string

const (
	ProviderStatusQueued     ProviderStatus = "queued"
	ProviderStatusInitiated  ProviderStatus = "initiated"
	ProviderStatusRinging    ProviderStatus = "ringing"
	ProviderStatusInProgress ProviderStatus = "in-progress"
	ProviderStatusCompleted  ProviderStatus = "completed"
	ProviderStatusBusy       ProviderStatus = "busy"
	ProviderStatusNoAnswer   ProviderStatus = "no-answer"
	ProviderStatusFailed     ProviderStatus = "failed"
	ProviderStatusCanceled   ProviderStatus = "canceled"
)

var knownProviderStatuses = map[ProviderStatus]struct{}{
	ProviderStatusQueued:     {},
	ProviderStatusInitiated:  {},
	ProviderStatusRinging:    {},
	ProviderStatusInProgress: {},
	ProviderStatusCompleted:  {},
	ProviderStatusBusy:       {},
	ProviderStatusNoAnswer:   {},
	ProviderStatusFailed:     {},
	ProviderStatusCanceled:   {},
}

// ParseProviderStatus normalizes a raw token and rejects anything outside the closed set.
func ParseProviderStatus(raw string) (ProviderStatus, bool) {
	s := ProviderStatus(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := knownProviderStatuses[s]
	return s, ok
}

// StatusEvent is a call progress callback.
type StatusEvent struct {
	CallID         string
	Status         string
	ProviderCallID string
	// Duration is in seconds; nil when the provider omitted it.
	Duration *int
}

type RecordingEvent struct {
	CallID       string
	RecordingURL string
	Duration     *int
}

type TranscriptEvent struct {
	CallID string
	Text   string
}
