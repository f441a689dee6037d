package reporting

import (
	"context"
	"errors"
	"time"

	"callrep/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting. calls.MemoryRepo and
// calls.PostgresRepo both satisfy it.
type Repository interface {
	ListCalls(ctx context.Context, from, to time.Time) ([]calls.Call, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListCalls(ctx, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{
		Range:            req.Range,
		RepresentativeID: req.RepresentativeID,
		FailureReasons:   map[string]int{},
	}
	durations := 0
	for _, c := range rows {
		if req.RepresentativeID != "" && c.RepresentativeID != req.RepresentativeID {
			continue
		}
		out.TotalCalls++
		if c.Duration != nil {
			out.TotalDurationSeconds += *c.Duration
			durations++
		}
		if c.Recording != "" {
			out.RecordedCalls++
		}
		if c.Transcript != "" {
			out.TranscribedCalls++
		}
		switch c.Status {
		case calls.StatusCompleted:
			out.CompletedCalls++
		case calls.StatusFailed:
			out.FailedCalls++
			out.FailureReasons[c.ErrorMessage]++
		case calls.StatusCancelled:
			out.CancelledCalls++
		case calls.StatusInProgress:
			out.InProgressCalls++
		case calls.StatusPending, calls.StatusQueued:
			out.PendingCalls++
		}
	}
	if durations > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / durations
	}
	if terminal := out.CompletedCalls + out.FailedCalls + out.CancelledCalls; terminal > 0 {
		out.CompletionRate = float64(out.CompletedCalls) / float64(terminal)
	}
	return out, nil
}
