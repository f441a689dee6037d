package calls

import (
	"context"
	"errors"
	"time"

	"callrep/internal/apperr"
	"callrep/internal/telephony"
)

// ApplyStatusEvent folds a provider status callback into the call record.
//
//	queued, initiated, ringing          no change
//	in-progress                         IN_PROGRESS, provider call id
//	completed                           COMPLETED, duration
//	busy, no-answer, failed, canceled   FAILED, "Call <token>"
//
// Redelivery of an event already applied changes nothing and pushes nothing.
func (s *Service) ApplyStatusEvent(ctx context.Context, ev telephony.StatusEvent) error {
	token, ok := telephony.ParseProviderStatus(ev.Status)
	if !ok {
		return apperr.Validation("Unknown provider status: " + ev.Status)
	}

	var fn func(c *Call, now time.Time) error
	switch token {
	case telephony.ProviderStatusQueued, telephony.ProviderStatusInitiated, telephony.ProviderStatusRinging:
		if _, err := s.d.Calls.Get(ctx, ev.CallID); err != nil {
			return lookupErr(err)
		}
		return nil
	case telephony.ProviderStatusInProgress:
		fn = func(c *Call, now time.Time) error {
			c.Transition(StatusInProgress, now)
			if ev.ProviderCallID != "" {
				c.ProviderCallID = ev.ProviderCallID
			}
			return nil
		}
	case telephony.ProviderStatusCompleted:
		fn = func(c *Call, now time.Time) error {
			c.Transition(StatusCompleted, now)
			if ev.Duration != nil {
				d := *ev.Duration
				c.Duration = &d
			}
			return nil
		}
	default:
		fn = func(c *Call, now time.Time) error {
			if c.Transition(StatusFailed, now) {
				c.ErrorMessage = "Call " + string(token)
			}
			return nil
		}
	}
	return s.reconcile(ctx, ev.CallID, fn)
}

// ApplyRecordingEvent sets the recording URL. The recording's duration only
// fills Duration when the status callback has not reported one.
func (s *Service) ApplyRecordingEvent(ctx context.Context, ev telephony.RecordingEvent) error {
	return s.reconcile(ctx, ev.CallID, func(c *Call, now time.Time) error {
		if ev.RecordingURL != "" {
			c.Recording = ev.RecordingURL
		}
		if ev.Duration != nil && c.Duration == nil {
			d := *ev.Duration
			c.Duration = &d
		}
		return nil
	})
}

func (s *Service) ApplyTranscriptEvent(ctx context.Context, ev telephony.TranscriptEvent) error {
	return s.reconcile(ctx, ev.CallID, func(c *Call, now time.Time) error {
		if ev.Text != "" {
			c.Transcript = ev.Text
		}
		return nil
	})
}

func (s *Service) reconcile(ctx context.Context, id string, fn func(c *Call, now time.Time) error) error {
	c, changed, err := s.update(ctx, id, "webhook", fn)
	if err != nil {
		return err
	}
	if changed {
		s.notify(ctx, c)
	}
	return nil
}

func lookupErr(err error) error {
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound("Call not found")
	}
	return apperr.Internal(err)
}
