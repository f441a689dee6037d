package calls

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"callrep/internal/apperr"
	"callrep/internal/audit"
	"callrep/internal/catalog"
	"callrep/internal/personalize"
	"callrep/internal/session"
	"callrep/internal/telephony"
)

type stubProvider struct {
	mu       sync.Mutex
	readyErr error
	placeErr error
	requests []telephony.OriginateRequest
}

func (p *stubProvider) Name() string { return "stub" }
func (p *stubProvider) Ready() error { return p.readyErr }
func (p *stubProvider) PlaceCall(ctx context.Context, req telephony.OriginateRequest) (telephony.OriginateResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.placeErr != nil {
		return telephony.OriginateResult{}, p.placeErr
	}
	return telephony.OriginateResult{ProviderCallID: "CA123", Status: "queued"}, nil
}

func (p *stubProvider) placed() []telephony.OriginateRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]telephony.OriginateRequest(nil), p.requests...)
}

type stubNotifier struct {
	mu    sync.Mutex
	err   error
	calls []Call
}

func (n *stubNotifier) Notify(ctx context.Context, c Call) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, c)
	return n.err
}

func (n *stubNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

type countingLimiter struct {
	mu       sync.Mutex
	deny     bool
	err      error
	acquired int
	released int
	holders  []string
}

func (l *countingLimiter) Acquire(ctx context.Context, representativeID, callID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if l.deny {
		return false, nil
	}
	l.acquired++
	l.holders = append(l.holders, callID)
	return true, nil
}

func (l *countingLimiter) Release(ctx context.Context, representativeID, callID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released++
	if len(l.holders) == 0 || l.holders[len(l.holders)-1] != callID {
		return fmt.Errorf("release of %s which holds no slot", callID)
	}
	return nil
}

type fixture struct {
	svc      *Service
	calls    *MemoryRepo
	cat      *catalog.MemoryRepo
	sessions *session.MemoryStore
	provider *stubProvider
	notifier *stubNotifier
	limiter  *countingLimiter
	audit    *audit.MemoryRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	cat := catalog.NewMemoryRepo()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	must(cat.UpsertIssue(ctx, catalog.Issue{ID: "issue-climate", Name: "Climate", Category: "Environment", Active: true}))
	must(cat.UpsertIssue(ctx, catalog.Issue{ID: "issue-housing", Name: "Housing", Category: "Economy", Active: true}))
	must(cat.UpsertRepresentative(ctx, catalog.Representative{
		ID: "rep-1", Name: "Jane Doe", Title: "Senator", State: "CA", District: "12", PhoneNumber: "+15551230000",
	}))
	must(cat.LinkRepresentativeIssue(ctx, "rep-1", "issue-climate"))
	must(cat.UpsertScript(ctx, catalog.Script{
		ID:      "script-climate",
		IssueID: "issue-climate",
		Title:   "Climate action",
		Content: "Hello [REPRESENTATIVE_NAME], I'm [CALLER_NAME] from [LOCATION]. I don't support this bill. I would like to ask you to vote no.",
		MenuSteps: []session.MenuStep{
			{WaitFor: "main menu", Action: "press 2"},
		},
		Active: true,
	}))
	must(cat.UpsertScript(ctx, catalog.Script{ID: "script-housing", IssueID: "issue-housing", Title: "Housing", Content: "Build homes.", Active: true}))
	must(cat.UpsertScript(ctx, catalog.Script{ID: "script-old", IssueID: "issue-climate", Title: "Old", Content: "Old.", Active: false}))
	must(cat.UpsertPersona(ctx, catalog.Persona{
		ID:   "persona-formal",
		Name: "Formal and brief",
		Modifiers: personalize.ToneProfile{
			Formality: personalize.LevelHigh,
			Emotion:   personalize.LevelMedium,
			Length:    personalize.LevelConcise,
		},
		Active: true,
	}))
	must(cat.UpsertPersona(ctx, catalog.Persona{ID: "persona-retired", Name: "Retired", Active: false}))

	f := &fixture{
		calls:    NewMemoryRepo(),
		cat:      cat,
		sessions: session.NewMemoryStore(),
		provider: &stubProvider{},
		notifier: &stubNotifier{},
		limiter:  &countingLimiter{},
		audit:    audit.NewMemoryRepo(),
	}
	n := 0
	f.svc = NewService(Deps{
		Calls:     f.calls,
		Catalog:   cat,
		Sessions:  f.sessions,
		Provider:  f.provider,
		Limiter:   f.limiter,
		Notifier:  f.notifier,
		Audit:     audit.NewService(f.audit),
		PublicURL: "https://callrep.example.com",
		Clock:     func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
		NewID: func() string {
			n++
			return fmt.Sprintf("call-%d", n)
		},
	})
	return f
}

func (f *fixture) place(t *testing.T) Call {
	t.Helper()
	c, err := f.svc.Place(context.Background(), PlaceRequest{RepresentativeID: "rep-1", ScriptID: "script-climate", PersonaID: "persona-formal"})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	f.svc.Wait()
	return c
}

func (f *fixture) get(t *testing.T, id string) Call {
	t.Helper()
	c, err := f.calls.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return c
}

func (f *fixture) hasSession(t *testing.T, id string) bool {
	t.Helper()
	_, ok, err := f.sessions.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("session get: %v", err)
	}
	return ok
}

func assertCompletedAtInvariant(t *testing.T, c Call) {
	t.Helper()
	if (c.CompletedAt != nil) != c.Status.IsTerminal() {
		t.Fatalf("completedAt=%v with status %s", c.CompletedAt, c.Status)
	}
}

func TestPlace_QueuesPersonalizedCallAndDispatches(t *testing.T) {
	f := newFixture(t)
	c := f.place(t)

	if c.Status != StatusQueued {
		t.Fatalf("expected QUEUED, got %s", c.Status)
	}
	want := "Hello Jane Doe, I am a constituent from CA District 12. I do not support this bill. I ask you to vote no."
	if c.ModifiedScript != want {
		t.Fatalf("modified script:\n got %q\nwant %q", c.ModifiedScript, want)
	}
	if c.PhoneNumber != "+15551230000" {
		t.Fatalf("expected representative phone, got %q", c.PhoneNumber)
	}

	s, ok, _ := f.sessions.Get(context.Background(), c.ID)
	if !ok || s.Script != want || len(s.MenuSteps) != 1 {
		t.Fatalf("expected flow session, got ok=%v %+v", ok, s)
	}

	reqs := f.provider.placed()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 origination attempt, got %d", len(reqs))
	}
	req := reqs[0]
	if req.To != "+15551230000" || !req.Record || !req.Transcribe {
		t.Fatalf("unexpected origination request: %+v", req)
	}
	if req.Callbacks.Voice != "https://callrep.example.com/voice/"+c.ID+"?step=0" {
		t.Fatalf("voice callback: %q", req.Callbacks.Voice)
	}
	for _, u := range []string{req.Callbacks.Status, req.Callbacks.Recording, req.Callbacks.Transcription} {
		if !strings.HasSuffix(u, "/"+c.ID) {
			t.Fatalf("callback not addressed by call id: %q", u)
		}
	}

	stored := f.get(t, c.ID)
	if stored.Status != StatusQueued || stored.ProviderCallID != "CA123" {
		t.Fatalf("expected provider call id recorded on QUEUED call, got %+v", stored)
	}
	assertCompletedAtInvariant(t, stored)
	if f.limiter.acquired != 1 || f.limiter.released != 0 {
		t.Fatalf("limiter acquired=%d released=%d", f.limiter.acquired, f.limiter.released)
	}
	if len(f.limiter.holders) != 1 || f.limiter.holders[0] != c.ID {
		t.Fatalf("slot should be held by the placed call, got %v", f.limiter.holders)
	}
	if len(f.audit.ForCall(c.ID)) < 2 {
		t.Fatalf("expected placed and dispatched audit events")
	}
}

func TestPlace_Preconditions(t *testing.T) {
	cases := []struct {
		name string
		req  PlaceRequest
		kind apperr.Kind
		msg  string
	}{
		{"missing ids", PlaceRequest{RepresentativeID: "rep-1"}, apperr.KindValidation, "required"},
		{"unknown representative", PlaceRequest{"rep-x", "script-climate", "persona-formal"}, apperr.KindNotFound, "Representative not found"},
		{"unknown script", PlaceRequest{"rep-1", "script-x", "persona-formal"}, apperr.KindNotFound, "Script not found"},
		{"inactive script", PlaceRequest{"rep-1", "script-old", "persona-formal"}, apperr.KindValidation, "Script is not active"},
		{"unknown persona", PlaceRequest{"rep-1", "script-climate", "persona-x"}, apperr.KindNotFound, "Persona not found"},
		{"inactive persona", PlaceRequest{"rep-1", "script-climate", "persona-retired"}, apperr.KindValidation, "Persona is not active"},
		{"issue mismatch", PlaceRequest{"rep-1", "script-housing", "persona-formal"}, apperr.KindValidation, "Representative Jane Doe does not handle issue: Housing"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Place(context.Background(), tc.req)
			if err == nil {
				t.Fatalf("expected error")
			}
			if apperr.KindOf(err) != tc.kind {
				t.Fatalf("expected kind %s, got %s (%v)", tc.kind, apperr.KindOf(err), err)
			}
			if !strings.Contains(apperr.PublicMessage(err), tc.msg) {
				t.Fatalf("expected message containing %q, got %q", tc.msg, apperr.PublicMessage(err))
			}
			if len(f.provider.placed()) != 0 || f.limiter.acquired != 0 {
				t.Fatalf("no side effects expected on precondition failure")
			}
		})
	}
}

func TestPlace_AsyncDispatchFailureMarksFailed(t *testing.T) {
	f := newFixture(t)
	f.provider.placeErr = errors.New("API error (401): unauthorized")

	c, err := f.svc.Place(context.Background(), PlaceRequest{"rep-1", "script-climate", "persona-formal"})
	if err != nil {
		t.Fatalf("dispatch failure must not fail the request: %v", err)
	}
	if c.Status != StatusQueued {
		t.Fatalf("expected QUEUED response, got %s", c.Status)
	}
	f.svc.Wait()

	stored := f.get(t, c.ID)
	if stored.Status != StatusFailed {
		t.Fatalf("expected FAILED, got %s", stored.Status)
	}
	if !strings.HasPrefix(stored.ErrorMessage, "Failed to place call") {
		t.Fatalf("unexpected error message %q", stored.ErrorMessage)
	}
	assertCompletedAtInvariant(t, stored)
	if f.hasSession(t, c.ID) {
		t.Fatalf("flow session should be cleared")
	}
	if f.limiter.released != 1 {
		t.Fatalf("expected slot released once, got %d", f.limiter.released)
	}
	if f.notifier.count() != 1 {
		t.Fatalf("expected one status push, got %d", f.notifier.count())
	}
}

func TestPlace_ProviderNotConfiguredFailsSynchronously(t *testing.T) {
	f := newFixture(t)
	f.provider.readyErr = errors.New("missing TWILIO_ACCOUNT_SID")

	_, err := f.svc.Place(context.Background(), PlaceRequest{"rep-1", "script-climate", "persona-formal"})
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected Unavailable, got %v", err)
	}
	f.svc.Wait()

	stored := f.get(t, "call-1")
	if stored.Status != StatusFailed || stored.ErrorMessage == "" {
		t.Fatalf("expected FAILED record with message, got %+v", stored)
	}
	assertCompletedAtInvariant(t, stored)
	if f.hasSession(t, "call-1") {
		t.Fatalf("flow session should be cleared")
	}
	if len(f.provider.placed()) != 0 {
		t.Fatalf("provider must not be invoked")
	}
	if f.limiter.released != 1 {
		t.Fatalf("expected slot released, got %d", f.limiter.released)
	}
}

func TestPlace_LimiterRejects(t *testing.T) {
	f := newFixture(t)
	f.limiter.deny = true

	_, err := f.svc.Place(context.Background(), PlaceRequest{"rep-1", "script-climate", "persona-formal"})
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected Unavailable, got %v", err)
	}
	if _, err := f.calls.Get(context.Background(), "call-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("no call should be recorded, got %v", err)
	}
}

func TestApplyStatusEvent_BusyFailsAndClearsSession(t *testing.T) {
	f := newFixture(t)
	c := f.place(t)

	if err := f.svc.ApplyStatusEvent(context.Background(), telephony.StatusEvent{CallID: c.ID, Status: "busy"}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	stored := f.get(t, c.ID)
	if stored.Status != StatusFailed {
		t.Fatalf("expected FAILED, got %s", stored.Status)
	}
	if !strings.Contains(stored.ErrorMessage, "busy") {
		t.Fatalf("expected error message to mention busy, got %q", stored.ErrorMessage)
	}
	if f.hasSession(t, c.ID) {
		t.Fatalf("flow session should be absent")
	}
	assertCompletedAtInvariant(t, stored)
}

func TestApplyStatusEvent_CompletedIsIdempotent(t *testing.T) {
	f := newFixture(t)
	c := f.place(t)
	d := 42
	ev := telephony.StatusEvent{CallID: c.ID, Status: "completed", Duration: &d}

	if err := f.svc.ApplyStatusEvent(context.Background(), ev); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	once := f.get(t, c.ID)
	if err := f.svc.ApplyStatusEvent(context.Background(), ev); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	twice := f.get(t, c.ID)

	if once.Status != StatusCompleted || *once.Duration != 42 {
		t.Fatalf("unexpected record after first apply: %+v", once)
	}
	if !sameRecord(once, twice) || !once.UpdatedAt.Equal(twice.UpdatedAt) || !once.CompletedAt.Equal(*twice.CompletedAt) {
		t.Fatalf("second delivery changed the record:\n%+v\n%+v", once, twice)
	}
	if f.limiter.released != 1 {
		t.Fatalf("expected single release, got %d", f.limiter.released)
	}
	if f.notifier.count() != 1 {
		t.Fatalf("expected single push, got %d", f.notifier.count())
	}
	if f.hasSession(t, c.ID) {
		t.Fatalf("flow session should be absent")
	}
}

func TestApplyStatusEvent_Lifecycle(t *testing.T) {
	f := newFixture(t)
	c := f.place(t)
	ctx := context.Background()
	d := 30

	steps := []struct {
		ev   telephony.StatusEvent
		want Status
	}{
		{telephony.StatusEvent{CallID: c.ID, Status: "initiated"}, StatusQueued},
		{telephony.StatusEvent{CallID: c.ID, Status: "ringing"}, StatusQueued},
		{telephony.StatusEvent{CallID: c.ID, Status: "in-progress", ProviderCallID: "CA999"}, StatusInProgress},
		{telephony.StatusEvent{CallID: c.ID, Status: "completed", Duration: &d}, StatusCompleted},
		{telephony.StatusEvent{CallID: c.ID, Status: "in-progress"}, StatusCompleted},
		{telephony.StatusEvent{CallID: c.ID, Status: "failed"}, StatusCompleted},
	}
	for i, st := range steps {
		if err := f.svc.ApplyStatusEvent(ctx, st.ev); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		got := f.get(t, c.ID)
		if got.Status != st.want {
			t.Fatalf("step %d (%s): expected %s, got %s", i, st.ev.Status, st.want, got.Status)
		}
		assertCompletedAtInvariant(t, got)
	}

	final := f.get(t, c.ID)
	if final.ProviderCallID != "CA999" || final.ErrorMessage != "" {
		t.Fatalf("unexpected final record: %+v", final)
	}
}

func TestApplyStatusEvent_Errors(t *testing.T) {
	f := newFixture(t)
	c := f.place(t)

	err := f.svc.ApplyStatusEvent(context.Background(), telephony.StatusEvent{CallID: c.ID, Status: "teleported"})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected Validation for unknown token, got %v", err)
	}
	err = f.svc.ApplyStatusEvent(context.Background(), telephony.StatusEvent{CallID: "nope", Status: "completed"})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	err = f.svc.ApplyStatusEvent(context.Background(), telephony.StatusEvent{CallID: "nope", Status: "ringing"})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected NotFound for ringing on unknown call, got %v", err)
	}
}

func TestApplyRecordingAndTranscript_AnyOrder(t *testing.T) {
	f := newFixture(t)
	c := f.place(t)
	ctx := context.Background()
	rd := 55
	sd := 42

	if err := f.svc.ApplyRecordingEvent(ctx, telephony.RecordingEvent{CallID: c.ID, RecordingURL: "https://rec/1", Duration: &rd}); err != nil {
		t.Fatalf("recording: %v", err)
	}
	if err := f.svc.ApplyStatusEvent(ctx, telephony.StatusEvent{CallID: c.ID, Status: "completed", Duration: &sd}); err != nil {
		t.Fatalf("status: %v", err)
	}
	if err := f.svc.ApplyTranscriptEvent(ctx, telephony.TranscriptEvent{CallID: c.ID, Text: "hello"}); err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if err := f.svc.ApplyRecordingEvent(ctx, telephony.RecordingEvent{CallID: c.ID, RecordingURL: "https://rec/2", Duration: &rd}); err != nil {
		t.Fatalf("recording: %v", err)
	}

	got := f.get(t, c.ID)
	if got.Status != StatusCompleted || got.Recording != "https://rec/2" || got.Transcript != "hello" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if *got.Duration != 42 {
		t.Fatalf("status duration should win, got %d", *got.Duration)
	}

	before := f.notifier.count()
	_ = f.svc.ApplyTranscriptEvent(ctx, telephony.TranscriptEvent{CallID: c.ID, Text: "hello"})
	if f.notifier.count() != before {
		t.Fatalf("redelivered transcript must not push")
	}
}

func TestReconciler_NotifierFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("peer down")
	c := f.place(t)

	if err := f.svc.ApplyStatusEvent(context.Background(), telephony.StatusEvent{CallID: c.ID, Status: "no-answer"}); err != nil {
		t.Fatalf("notifier failure leaked: %v", err)
	}
	if got := f.get(t, c.ID); got.Status != StatusFailed || got.ErrorMessage != "Call no-answer" {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	c := f.place(t)
	ctx := context.Background()

	if _, err := f.svc.UpdateStatus(ctx, c.ID, StatusUpdate{Status: "ANSWERED"}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected Validation, got %v", err)
	}
	if _, err := f.svc.UpdateStatus(ctx, "nope", StatusUpdate{Status: "COMPLETED"}); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}

	d := 12
	got, err := f.svc.UpdateStatus(ctx, c.ID, StatusUpdate{Status: "completed", Duration: &d, Transcript: "hi"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.Status != StatusCompleted || got.CompletedAt == nil || got.Transcript != "hi" {
		t.Fatalf("unexpected record: %+v", got)
	}

	got, err = f.svc.UpdateStatus(ctx, c.ID, StatusUpdate{Status: "QUEUED", Recording: "https://rec/9"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.Status != StatusCompleted || got.Recording != "https://rec/9" {
		t.Fatalf("backward status must be ignored while fields apply: %+v", got)
	}
	if f.notifier.count() != 0 {
		t.Fatalf("status pushes from the peer must not echo back")
	}
}

func TestGet_Detail(t *testing.T) {
	f := newFixture(t)
	c := f.place(t)

	d, err := f.svc.Get(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !d.Pending {
		t.Fatalf("QUEUED call should be pending")
	}
	if d.Representative == nil || d.Representative.Name != "Jane Doe" {
		t.Fatalf("missing representative summary: %+v", d.Representative)
	}
	if d.Script == nil || d.Script.Title != "Climate action" {
		t.Fatalf("missing script summary: %+v", d.Script)
	}
	if d.Persona == nil || d.Persona.Name != "Formal and brief" {
		t.Fatalf("missing persona summary: %+v", d.Persona)
	}

	if _, err := f.svc.Get(context.Background(), "nope"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
