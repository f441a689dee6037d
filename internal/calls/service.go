package calls

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"callrep/internal/apperr"
	"callrep/internal/audit"
	"callrep/internal/catalog"
	"callrep/internal/metrics"
	"callrep/internal/personalize"
	"callrep/internal/session"
	"callrep/internal/telephony"

	"github.com/google/uuid"
)

// Notifier pushes a call's current state to the owning system.
// Failures are logged by the caller and never retried.
type Notifier interface {
	Notify(ctx context.Context, c Call) error
}

// Auditor records call lifecycle events. Best-effort.
type Auditor interface {
	LogCall(ctx context.Context, callID string, typ audit.EventType, source, message, metadata string) error
}

const (
	defaultCallerName      = "a constituent"
	defaultDispatchTimeout = 30 * time.Second
)

// Deps wires a Service. Calls, Catalog, Sessions and Provider are required.
type Deps struct {
	Calls    Repository
	Catalog  catalog.Reader
	Sessions session.Store
	Provider telephony.Originator

	Limiter  Limiter
	Notifier Notifier
	Audit    Auditor
	Metrics  *metrics.Metrics
	Log      *slog.Logger

	// PublicURL is the externally reachable base for provider callbacks.
	PublicURL string
	// CallerName fills [CALLER_NAME] in scripts.
	CallerName      string
	DispatchTimeout time.Duration

	Clock func() time.Time
	NewID func() string
}

// Service places calls, serves the call read projection and reconciles
// provider callbacks into the call record.
//
// Invariants:
//   - A call record exists before the provider is asked to originate it.
//   - The flow session is written before origination and removed on the
//     first applied terminal transition.
//   - The limiter slot taken for a call at placement is released on that same transition.
type Service struct {
	d  Deps
	wg sync.WaitGroup
}

func NewService(d Deps) *Service {
	if d.Limiter == nil {
		d.Limiter = NoLimit{}
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.CallerName == "" {
		d.CallerName = defaultCallerName
	}
	if d.DispatchTimeout <= 0 {
		d.DispatchTimeout = defaultDispatchTimeout
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	return &Service{d: d}
}

// Wait blocks until every origination started by Place has finished.
func (s *Service) Wait() { s.wg.Wait() }

type PlaceRequest struct {
	RepresentativeID string `json:"representativeId"`
	ScriptID         string `json:"scriptId"`
	PersonaID        string `json:"personaId"`
}

// Place validates the request, records a QUEUED call and dispatches origination
// in the background. A dispatch failure later marks the call FAILED; only a
// provider that is not configured at all fails the request itself.
func (s *Service) Place(ctx context.Context, req PlaceRequest) (Call, error) {
	if req.RepresentativeID == "" || req.ScriptID == "" || req.PersonaID == "" {
		return Call{}, apperr.Validation("representativeId, scriptId and personaId are required")
	}

	rep, err := s.d.Catalog.GetRepresentative(ctx, req.RepresentativeID)
	if err != nil {
		return Call{}, catalogErr(err, "Representative not found")
	}
	script, err := s.d.Catalog.GetScript(ctx, req.ScriptID)
	if err != nil {
		return Call{}, catalogErr(err, "Script not found")
	}
	if !script.Active {
		return Call{}, apperr.Validation("Script is not active")
	}
	persona, err := s.d.Catalog.GetPersona(ctx, req.PersonaID)
	if err != nil {
		return Call{}, catalogErr(err, "Persona not found")
	}
	if !persona.Active {
		return Call{}, apperr.Validation("Persona is not active")
	}

	handles, err := s.d.Catalog.RepresentativeHandlesIssue(ctx, rep.ID, script.IssueID)
	if err != nil {
		return Call{}, apperr.Internal(err)
	}
	if !handles {
		issueName := script.IssueID
		if issue, err := s.d.Catalog.GetIssue(ctx, script.IssueID); err == nil {
			issueName = issue.Name
		}
		return Call{}, apperr.Validation(fmt.Sprintf("Representative %s does not handle issue: %s", rep.Name, issueName))
	}

	text := personalize.Personalize(script.Content, persona.Modifiers)
	text = personalize.FillPlaceholders(text, map[string]string{
		"REPRESENTATIVE_NAME":  rep.Name,
		"REPRESENTATIVE_TITLE": rep.Title,
		"LOCATION":             rep.Location(),
		"CALLER_NAME":          s.d.CallerName,
	})

	id := s.d.NewID()
	ok, err := s.d.Limiter.Acquire(ctx, rep.ID, id)
	if err != nil {
		s.d.Metrics.CallPlaced("limiter_error")
		return Call{}, apperr.Unavailable("Call capacity check failed", err)
	}
	if !ok {
		s.d.Metrics.CallPlaced("rejected")
		return Call{}, apperr.Unavailable(fmt.Sprintf("Too many active calls to %s, try again later", rep.Name), nil)
	}

	now := s.d.Clock().UTC()
	c := Call{
		ID:               id,
		RepresentativeID: rep.ID,
		ScriptID:         script.ID,
		PersonaID:        persona.ID,
		Status:           StatusQueued,
		PhoneNumber:      rep.PhoneNumber,
		ModifiedScript:   text,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.d.Calls.Create(ctx, c); err != nil {
		s.release(ctx, rep.ID, id)
		return Call{}, apperr.Internal(err)
	}
	log := s.d.Log.With("call_id", c.ID, "representative_id", rep.ID)

	if err := s.d.Sessions.Put(ctx, c.ID, session.Session{Script: text, MenuSteps: script.MenuSteps}); err != nil {
		log.Error("store flow session", "err", err)
		if _, ferr := s.fail(ctx, c.ID, "Failed to store call flow: "+err.Error()); ferr != nil {
			log.Error("mark call failed", "err", ferr)
		}
		s.d.Metrics.CallPlaced("session_error")
		return Call{}, apperr.Internal(err)
	}
	s.audit(ctx, c.ID, audit.EventCallPlaced, "api", "call queued", "")

	if err := s.readyToDispatch(); err != nil {
		if _, ferr := s.fail(ctx, c.ID, "Failed to place call: "+err.Error()); ferr != nil {
			log.Error("mark call failed", "err", ferr)
		}
		s.d.Metrics.CallPlaced("unavailable")
		s.d.Metrics.Dispatched("not_configured", 0)
		log.Warn("voice provider not configured", "err", err)
		return Call{}, apperr.Unavailable("Voice provider is not configured", err)
	}

	s.d.Metrics.CallPlaced("queued")
	s.wg.Add(1)
	go s.dispatch(context.WithoutCancel(ctx), c)
	return c, nil
}

func (s *Service) readyToDispatch() error {
	if s.d.Provider == nil {
		return errors.New("no provider")
	}
	if err := s.d.Provider.Ready(); err != nil {
		return err
	}
	if s.d.PublicURL == "" {
		return errors.New("missing public callback url")
	}
	return nil
}

// dispatch runs detached from the request. Its outcome surfaces only through the call record.
func (s *Service) dispatch(ctx context.Context, c Call) {
	defer s.wg.Done()
	ctx, cancel := context.WithTimeout(ctx, s.d.DispatchTimeout)
	defer cancel()

	log := s.d.Log.With("call_id", c.ID, "provider", s.d.Provider.Name())
	start := time.Now()
	res, err := s.d.Provider.PlaceCall(ctx, telephony.OriginateRequest{
		To:         c.PhoneNumber,
		Callbacks:  telephony.CallbacksFor(s.d.PublicURL, c.ID),
		Record:     true,
		Transcribe: true,
	})
	if err != nil {
		s.d.Metrics.Dispatched("error", time.Since(start))
		log.Error("originate call", "err", err)
		updated, ferr := s.fail(ctx, c.ID, "Failed to place call: "+err.Error())
		if ferr != nil {
			log.Error("mark call failed", "err", ferr)
			return
		}
		s.audit(ctx, c.ID, audit.EventCallDispatchFailed, "dispatcher", err.Error(), "")
		s.notify(ctx, updated)
		return
	}

	s.d.Metrics.Dispatched("ok", time.Since(start))
	log.Info("call dispatched", "provider_call_id", res.ProviderCallID, "provider_status", res.Status)
	_, _, uerr := s.update(ctx, c.ID, "dispatcher", func(c *Call, now time.Time) error {
		if c.ProviderCallID == "" {
			c.ProviderCallID = res.ProviderCallID
		}
		return nil
	})
	if uerr != nil {
		log.Error("record provider call id", "err", uerr)
		return
	}
	s.audit(ctx, c.ID, audit.EventCallDispatched, "dispatcher", "provider accepted call", res.ProviderCallID)
}

// fail moves a call to FAILED with msg and runs terminal cleanup.
func (s *Service) fail(ctx context.Context, id, msg string) (Call, error) {
	c, _, err := s.update(ctx, id, "dispatcher", func(c *Call, now time.Time) error {
		if c.Transition(StatusFailed, now) {
			c.ErrorMessage = msg
		}
		return nil
	})
	return c, err
}

// update applies fn under the repository lock. UpdatedAt moves only when fn
// changed the record. Terminal cleanup, transition metrics and audit run only
// for a status change fn actually applied.
func (s *Service) update(ctx context.Context, id, source string, fn func(c *Call, now time.Time) error) (Call, bool, error) {
	var before Call
	now := s.d.Clock().UTC()
	after, err := s.d.Calls.Update(ctx, id, func(c *Call) error {
		before = cloneCall(*c)
		if err := fn(c, now); err != nil {
			return err
		}
		if !sameRecord(before, *c) {
			c.UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Call{}, false, apperr.NotFound("Call not found")
		}
		if apperr.KindOf(err) != apperr.KindInternal {
			return Call{}, false, err
		}
		return Call{}, false, apperr.Internal(err)
	}

	changed := !sameRecord(before, after)
	if before.Status != after.Status {
		s.d.Metrics.Transition(string(before.Status), string(after.Status))
		s.audit(ctx, id, audit.EventCallStatusChanged, source, fmt.Sprintf("%s -> %s", before.Status, after.Status), after.ErrorMessage)
		if after.Status.IsTerminal() {
			s.terminal(ctx, after)
		}
	} else if changed {
		s.audit(ctx, id, audit.EventCallUpdated, source, "call fields updated", "")
	}
	return after, changed, nil
}

func (s *Service) terminal(ctx context.Context, c Call) {
	if err := s.d.Sessions.Delete(ctx, c.ID); err != nil {
		s.d.Log.Warn("clear flow session", "call_id", c.ID, "err", err)
	}
	s.release(ctx, c.RepresentativeID, c.ID)
}

func (s *Service) release(ctx context.Context, representativeID, callID string) {
	if err := s.d.Limiter.Release(ctx, representativeID, callID); err != nil {
		s.d.Log.Warn("release call slot", "representative_id", representativeID, "call_id", callID, "err", err)
	}
}

func (s *Service) notify(ctx context.Context, c Call) {
	if s.d.Notifier == nil {
		return
	}
	if err := s.d.Notifier.Notify(ctx, c); err != nil {
		s.d.Metrics.Notified("error")
		s.d.Log.Warn("push call status", "call_id", c.ID, "status", c.Status, "err", err)
		return
	}
	s.d.Metrics.Notified("ok")
}

func (s *Service) audit(ctx context.Context, callID string, typ audit.EventType, source, message, metadata string) {
	if s.d.Audit == nil {
		return
	}
	if err := s.d.Audit.LogCall(ctx, callID, typ, source, message, metadata); err != nil {
		s.d.Log.Warn("audit call event", "call_id", callID, "type", typ, "err", err)
	}
}

func sameRecord(a, b Call) bool {
	if a.Status != b.Status ||
		a.ProviderCallID != b.ProviderCallID ||
		a.Transcript != b.Transcript ||
		a.Recording != b.Recording ||
		a.ErrorMessage != b.ErrorMessage {
		return false
	}
	if (a.Duration == nil) != (b.Duration == nil) || (a.Duration != nil && *a.Duration != *b.Duration) {
		return false
	}
	if (a.CompletedAt == nil) != (b.CompletedAt == nil) {
		return false
	}
	return true
}

func catalogErr(err error, msg string) error {
	if errors.Is(err, catalog.ErrNotFound) {
		return apperr.NotFound(msg)
	}
	return apperr.Internal(err)
}

// CallDetail is the read projection of a call with its catalog references.
// Pending drives the queued banner in status-polling clients.
type CallDetail struct {
	Call
	Pending        bool                           `json:"pending"`
	Representative *catalog.RepresentativeSummary `json:"representative,omitempty"`
	Script         *catalog.ScriptSummary         `json:"script,omitempty"`
	Persona        *catalog.PersonaSummary        `json:"persona,omitempty"`
}

func (s *Service) Get(ctx context.Context, id string) (CallDetail, error) {
	c, err := s.d.Calls.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return CallDetail{}, apperr.NotFound("Call not found")
		}
		return CallDetail{}, apperr.Internal(err)
	}

	out := CallDetail{Call: c, Pending: c.Status.IsPending()}
	// Catalog rows may be gone; the call record still renders without them.
	if r, err := s.d.Catalog.GetRepresentative(ctx, c.RepresentativeID); err == nil {
		v := catalog.SummarizeRepresentative(r)
		out.Representative = &v
	} else if !errors.Is(err, catalog.ErrNotFound) {
		return CallDetail{}, apperr.Internal(err)
	}
	if sc, err := s.d.Catalog.GetScript(ctx, c.ScriptID); err == nil {
		v := catalog.SummarizeScript(sc)
		out.Script = &v
	} else if !errors.Is(err, catalog.ErrNotFound) {
		return CallDetail{}, apperr.Internal(err)
	}
	if p, err := s.d.Catalog.GetPersona(ctx, c.PersonaID); err == nil {
		v := catalog.SummarizePersona(p)
		out.Persona = &v
	} else if !errors.Is(err, catalog.ErrNotFound) {
		return CallDetail{}, apperr.Internal(err)
	}
	return out, nil
}

// StatusUpdate is the body of POST /calls/{id}/status.
type StatusUpdate struct {
	Status         string `json:"status"`
	Duration       *int   `json:"duration,omitempty"`
	Transcript     string `json:"transcript,omitempty"`
	Recording      string `json:"recording,omitempty"`
	ErrorMessage   string `json:"errorMessage,omitempty"`
	ProviderCallID string `json:"twilioCallSid,omitempty"`
}

// UpdateStatus applies a state push from the voice-delivery subsystem.
// Backward or repeated statuses are ignored while field updates still apply.
func (s *Service) UpdateStatus(ctx context.Context, id string, u StatusUpdate) (Call, error) {
	next, ok := ParseStatus(u.Status)
	if !ok {
		return Call{}, apperr.Validation("Invalid status: " + u.Status)
	}
	if u.Duration != nil && *u.Duration < 0 {
		return Call{}, apperr.Validation("duration must be non-negative")
	}

	c, _, err := s.update(ctx, id, "api", func(c *Call, now time.Time) error {
		c.Transition(next, now)
		if u.Duration != nil {
			d := *u.Duration
			c.Duration = &d
		}
		if u.Transcript != "" {
			c.Transcript = u.Transcript
		}
		if u.Recording != "" {
			c.Recording = u.Recording
		}
		if u.ErrorMessage != "" {
			c.ErrorMessage = u.ErrorMessage
		}
		if u.ProviderCallID != "" {
			c.ProviderCallID = u.ProviderCallID
		}
		return nil
	})
	return c, err
}
