package catalog

import (
	"context"
	"strings"
	"testing"

	"callrep/internal/apperr"
	"callrep/internal/personalize"
)

const seedDoc = `
personas:
  - id: p1
    name: Professional
    modifiers: {formality: high, emotion: low, length: concise, vocabulary: formal}
  - id: p2
    name: Retired
    active: false
issues:
  - id: i1
    name: Climate Action
    category: Environment
  - id: i2
    name: Education Funding
    category: Education
representatives:
  - id: r1
    name: Jane Smith
    title: Senator
    state: ca
    phoneNumber: "+15555550100"
    issues: [i1]
  - id: r2
    name: John Doe
    title: Representative
    state: CA
    district: "12"
    phoneNumber: "+15555550101"
    issues: [i2]
scripts:
  - id: s1
    issueId: i1
    title: Clean Energy
    content: Hello [REPRESENTATIVE_NAME]
    menuSteps:
      - {waitFor: main menu, action: press 1}
  - id: s2
    issueId: i1
    title: Old Script
    content: retired
    active: false
`

func seededRepo(t *testing.T) *MemoryRepo {
	t.Helper()
	seed, err := LoadSeed(strings.NewReader(seedDoc))
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	repo := NewMemoryRepo()
	if err := seed.Apply(context.Background(), repo); err != nil {
		t.Fatalf("apply seed: %v", err)
	}
	return repo
}

func TestSeed_AppliesDefaultsAndLinks(t *testing.T) {
	ctx := context.Background()
	repo := seededRepo(t)

	p, err := repo.GetPersona(ctx, "p1")
	if err != nil {
		t.Fatalf("get persona: %v", err)
	}
	if !p.Active || p.Modifiers.Formality != personalize.LevelHigh || p.Modifiers.Length != personalize.LevelConcise {
		t.Fatalf("unexpected persona %+v", p)
	}
	if p2, _ := repo.GetPersona(ctx, "p2"); p2.Active {
		t.Fatalf("expected explicit active=false to stick")
	}

	r, _ := repo.GetRepresentative(ctx, "r1")
	if r.State != "CA" {
		t.Fatalf("expected state upper-cased, got %q", r.State)
	}
	if ok, _ := repo.RepresentativeHandlesIssue(ctx, "r1", "i1"); !ok {
		t.Fatalf("expected r1 to handle i1")
	}
	if ok, _ := repo.RepresentativeHandlesIssue(ctx, "r1", "i2"); ok {
		t.Fatalf("expected r1 not to handle i2")
	}

	s, _ := repo.GetScript(ctx, "s1")
	if len(s.MenuSteps) != 1 || s.MenuSteps[0].Action != "press 1" {
		t.Fatalf("unexpected menu steps %+v", s.MenuSteps)
	}
}

func TestSeed_ApplyIsIdempotent(t *testing.T) {
	seed, err := LoadSeed(strings.NewReader(seedDoc))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	repo := NewMemoryRepo()
	for i := 0; i < 2; i++ {
		if err := seed.Apply(context.Background(), repo); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}
	reps, _ := repo.ListRepresentatives(context.Background(), RepresentativeFilter{})
	if len(reps) != 2 {
		t.Fatalf("expected 2 representatives, got %d", len(reps))
	}
}

func TestSeed_ValidateReportsAllProblems(t *testing.T) {
	doc := `
issues:
  - id: i1
    name: A
representatives:
  - id: r1
    name: X
    state: California
    issues: [missing]
scripts:
  - id: s1
    issueId: nope
    content: hi
`
	_, err := LoadSeed(strings.NewReader(doc))
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"2-letter", "phoneNumber required", `unknown issue "missing"`, `unknown issue "nope"`} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestSeed_RejectsUnknownFields(t *testing.T) {
	if _, err := LoadSeed(strings.NewReader("issues:\n  - id: i1\n    name: A\n    colour: red\n")); err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func TestSeed_SampleFileLoads(t *testing.T) {
	seed, err := LoadSeedFile("../../seed/catalog.yaml")
	if err != nil {
		t.Fatalf("sample seed: %v", err)
	}
	if len(seed.Scripts) == 0 || len(seed.Representatives) == 0 {
		t.Fatalf("expected sample content")
	}
}

func TestService_ListsOnlyActive(t *testing.T) {
	ctx := context.Background()
	svc := NewService(seededRepo(t))

	personas, err := svc.ListPersonas(ctx)
	if err != nil || len(personas) != 1 || personas[0].ID != "p1" {
		t.Fatalf("expected only active persona, got %+v err=%v", personas, err)
	}

	scripts, err := svc.ListScripts(ctx, ScriptFilter{IssueID: "i1"})
	if err != nil || len(scripts) != 1 || scripts[0].ID != "s1" {
		t.Fatalf("expected only active script, got %+v err=%v", scripts, err)
	}
	if scripts[0].Issue.Name != "Climate Action" {
		t.Fatalf("expected issue summary, got %+v", scripts[0].Issue)
	}
}

func TestService_RepresentativeFilters(t *testing.T) {
	ctx := context.Background()
	svc := NewService(seededRepo(t))

	reps, err := svc.ListRepresentatives(ctx, RepresentativeFilter{State: "ca", IssueID: "i2"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(reps) != 1 || reps[0].ID != "r2" {
		t.Fatalf("unexpected reps %+v", reps)
	}
	if len(reps[0].Issues) != 1 || reps[0].Issues[0].ID != "i2" {
		t.Fatalf("expected nested issues, got %+v", reps[0].Issues)
	}

	if _, err := svc.ListRepresentatives(ctx, RepresentativeFilter{State: "California"}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestService_IssueView(t *testing.T) {
	svc := NewService(seededRepo(t))
	v, err := svc.GetIssue(context.Background(), "i1")
	if err != nil {
		t.Fatalf("get issue: %v", err)
	}
	if len(v.Scripts) != 1 || len(v.Representatives) != 1 || v.Representatives[0].ID != "r1" {
		t.Fatalf("unexpected issue view %+v", v)
	}
}

func TestService_NotFound(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepo())

	if _, err := svc.GetRepresentative(ctx, "x"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.GetScript(ctx, "x"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.GetPersona(ctx, "x"); apperr.PublicMessage(err) != "Persona not found" {
		t.Fatalf("unexpected message %q", apperr.PublicMessage(err))
	}
}

func TestRepresentative_Location(t *testing.T) {
	if got := (Representative{State: "CA", District: "12"}).Location(); got != "CA District 12" {
		t.Fatalf("unexpected location %q", got)
	}
	if got := (Representative{State: "NY"}).Location(); got != "NY" {
		t.Fatalf("unexpected location %q", got)
	}
}
