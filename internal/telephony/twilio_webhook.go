package telephony

import (
	"net/http"
	"strconv"
	"strings"
)

// Twilio posts application/x-www-form-urlencoded callbacks.
// Parsers only translate field names; no call state is touched here.

// ParseStatusCallback reads a call progress callback for callID.
func ParseStatusCallback(r *http.Request, callID string) (StatusEvent, error) {
	if err := r.ParseForm(); err != nil {
		return StatusEvent{}, err
	}
	return StatusEvent{
		CallID:         callID,
		Status:         strings.TrimSpace(r.PostFormValue("CallStatus")),
		ProviderCallID: strings.TrimSpace(r.PostFormValue("CallSid")),
		Duration:       optionalSeconds(r.PostFormValue("CallDuration")),
	}, nil
}

// ParseRecordingCallback reads a recording status callback for callID.
func ParseRecordingCallback(r *http.Request, callID string) (RecordingEvent, error) {
	if err := r.ParseForm(); err != nil {
		return RecordingEvent{}, err
	}
	return RecordingEvent{
		CallID:       callID,
		RecordingURL: strings.TrimSpace(r.PostFormValue("RecordingUrl")),
		Duration:     optionalSeconds(r.PostFormValue("RecordingDuration")),
	}, nil
}

// ParseTranscriptionCallback reads a transcription callback for callID.
func ParseTranscriptionCallback(r *http.Request, callID string) (TranscriptEvent, error) {
	if err := r.ParseForm(); err != nil {
		return TranscriptEvent{}, err
	}
	return TranscriptEvent{
		CallID: callID,
		Text:   r.PostFormValue("TranscriptionText"),
	}, nil
}

// optionalSeconds returns nil for empty or malformed durations.
func optionalSeconds(raw string) *int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}
