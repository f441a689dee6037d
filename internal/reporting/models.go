package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated call outcomes for calls created in [From, To).
type CallsSummaryRequest struct {
	Range            TimeRange `json:"range"`
	RepresentativeID string    `json:"representative_id,omitempty"`
}

type CallsSummary struct {
	Range            TimeRange `json:"range"`
	RepresentativeID string    `json:"representative_id,omitempty"`

	TotalCalls      int `json:"total_calls"`
	PendingCalls    int `json:"pending_calls"`
	InProgressCalls int `json:"in_progress_calls"`
	CompletedCalls  int `json:"completed_calls"`
	FailedCalls     int `json:"failed_calls"`
	CancelledCalls  int `json:"cancelled_calls"`

	// FailureReasons counts FAILED calls by error message.
	FailureReasons map[string]int `json:"failure_reasons"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	RecordedCalls    int `json:"recorded_calls"`
	TranscribedCalls int `json:"transcribed_calls"`

	// CompletionRate is CompletedCalls over terminal calls.
	CompletionRate float64 `json:"completion_rate"`
}
