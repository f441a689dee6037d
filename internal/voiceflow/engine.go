// Package voiceflow drives the step-indexed phone menu navigation and script
// delivery for an in-flight call.
//
// The state is derived on every callback from the step index and the call's
// flow session; nothing is held between requests:
//
//	0 <= step < len(menuSteps)   navigating menu step `step`
//	otherwise                    delivering the script, then hanging up
//	no session                   error message, then hanging up
package voiceflow

import (
	"context"
	"log/slog"
	"regexp"

	"callrep/internal/metrics"
	"callrep/internal/session"
	"callrep/internal/telephony"
)

const (
	DefaultVoice = "Polly.Joanna"

	closingLine       = "Thank you for your time. Goodbye."
	missingSessionMsg = "Error: Call data not found"

	gatherTimeoutSeconds = 5
	deliveryPauseSeconds = 2
	tonePauseSeconds     = 1
)

var dtmfDigits = regexp.MustCompile(`^[0-9*#]+$`)

type Engine struct {
	sessions  session.Store
	publicURL string
	voice     string
	log       *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Engine)

func WithVoice(voice string) Option {
	return func(e *Engine) {
		if voice != "" {
			e.voice = voice
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(sessions session.Store, publicURL string, opts ...Option) *Engine {
	e := &Engine{
		sessions:  sessions,
		publicURL: publicURL,
		voice:     DefaultVoice,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// RenderStep renders the flow for a callback carrying no captured input.
func (e *Engine) RenderStep(ctx context.Context, callID string, step int) string {
	s, ok := e.load(ctx, callID)
	if !ok {
		return e.errorResponse()
	}

	if step >= 0 && step < len(s.MenuSteps) {
		e.metrics.FlowRender("navigating")
		return e.navigate(callID, step, s.MenuSteps[step])
	}
	e.metrics.FlowRender("delivering")
	return e.deliver(s.Script)
}

// RenderMenuInput renders the callback carrying digit. The gather that sent
// it redirected to step+1 of the step it was issued for, so digit answers
// MenuSteps[step-1]. When that step exists the digit is played as tones (press
// steps with a valid DTMF digit only) followed by a pause. The flow always
// returns to the same step index.
func (e *Engine) RenderMenuInput(ctx context.Context, callID string, step int, digit string) string {
	s, ok := e.load(ctx, callID)
	if !ok {
		return e.errorResponse()
	}
	e.metrics.FlowRender("menu_input")

	r := telephony.NewResponse()
	if prev := step - 1; prev >= 0 && prev < len(s.MenuSteps) {
		if s.MenuSteps[prev].IsPress() && dtmfDigits.MatchString(digit) {
			r.PlayDigits(digit)
		} else {
			e.log.Debug("menu input not sent as tones", "call_id", callID, "step", step, "digit", digit)
		}
		r.Pause(tonePauseSeconds)
	}
	r.Redirect(telephony.StepURL(e.publicURL, callID, step, ""))
	return r.String()
}

func (e *Engine) navigate(callID string, step int, m session.MenuStep) string {
	next := step + 1
	r := telephony.NewResponse().Gather(telephony.Gather{
		Input:     "dtmf speech",
		Timeout:   gatherTimeoutSeconds,
		NumDigits: 1,
		Action:    telephony.StepURL(e.publicURL, callID, next, ""),
		Method:    "POST",
		Voice:     e.voice,
		Prompt:    "Navigating menu: " + m.WaitFor,
	})
	// Auto-advance instead of waiting on the menu: a press action carries its digit.
	if m.IsPress() {
		r.Redirect(telephony.StepURL(e.publicURL, callID, next, m.Digit()))
	} else {
		r.Redirect(telephony.StepURL(e.publicURL, callID, next, ""))
	}
	return r.String()
}

func (e *Engine) deliver(script string) string {
	return telephony.NewResponse().
		Say(e.voice, script).
		Pause(deliveryPauseSeconds).
		Say(e.voice, closingLine).
		Hangup().
		String()
}

func (e *Engine) errorResponse() string {
	e.metrics.FlowRender("error")
	return telephony.NewResponse().
		Say(e.voice, missingSessionMsg).
		Hangup().
		String()
}

// load treats a store failure like an absent session so the call leg still ends cleanly.
func (e *Engine) load(ctx context.Context, callID string) (session.Session, bool) {
	s, ok, err := e.sessions.Get(ctx, callID)
	if err != nil {
		e.log.Error("flow session lookup failed", "call_id", callID, "err", err)
		return session.Session{}, false
	}
	if !ok {
		e.log.Warn("flow session not found", "call_id", callID)
	}
	return s, ok
}
