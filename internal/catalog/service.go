package catalog

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"callrep/internal/apperr"
)

// Service serves the catalog read API. Repository sentinels are translated
// to apperr kinds here.
type Service struct {
	repo Reader
}

func NewService(repo Reader) *Service { return &Service{repo: repo} }

type IssueSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
}

type RepresentativeSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Title    string `json:"title"`
	State    string `json:"state"`
	District string `json:"district,omitempty"`
}

type PersonaSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type ScriptSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type RepresentativeView struct {
	Representative
	Issues []IssueSummary `json:"issues"`
}

type IssueView struct {
	Issue
	Scripts         []ScriptSummary         `json:"scripts"`
	Representatives []RepresentativeSummary `json:"representatives"`
}

type ScriptView struct {
	Script
	Issue IssueSummary `json:"issue"`
}

var stateCode = regexp.MustCompile(`^[A-Za-z]{2}$`)

func (s *Service) ListRepresentatives(ctx context.Context, f RepresentativeFilter) ([]RepresentativeView, error) {
	if f.State != "" {
		if !stateCode.MatchString(f.State) {
			return nil, apperr.Validation("state must be a 2-letter code")
		}
		f.State = strings.ToUpper(f.State)
	}
	reps, err := s.repo.ListRepresentatives(ctx, f)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	out := make([]RepresentativeView, 0, len(reps))
	for _, r := range reps {
		v, err := s.representativeView(ctx, r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Service) GetRepresentative(ctx context.Context, id string) (RepresentativeView, error) {
	r, err := s.repo.GetRepresentative(ctx, id)
	if err != nil {
		return RepresentativeView{}, translate(err, "Representative not found")
	}
	return s.representativeView(ctx, r)
}

func (s *Service) representativeView(ctx context.Context, r Representative) (RepresentativeView, error) {
	issues, err := s.repo.IssuesForRepresentative(ctx, r.ID)
	if err != nil {
		return RepresentativeView{}, apperr.Internal(err)
	}
	v := RepresentativeView{Representative: r, Issues: make([]IssueSummary, 0, len(issues))}
	for _, i := range issues {
		v.Issues = append(v.Issues, summarizeIssue(i))
	}
	return v, nil
}

func (s *Service) ListIssues(ctx context.Context, f IssueFilter) ([]IssueView, error) {
	issues, err := s.repo.ListIssues(ctx, f)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	out := make([]IssueView, 0, len(issues))
	for _, i := range issues {
		v, err := s.issueView(ctx, i)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Service) GetIssue(ctx context.Context, id string) (IssueView, error) {
	i, err := s.repo.GetIssue(ctx, id)
	if err != nil {
		return IssueView{}, translate(err, "Issue not found")
	}
	return s.issueView(ctx, i)
}

func (s *Service) issueView(ctx context.Context, i Issue) (IssueView, error) {
	scripts, err := s.repo.ListScripts(ctx, ScriptFilter{IssueID: i.ID})
	if err != nil {
		return IssueView{}, apperr.Internal(err)
	}
	reps, err := s.repo.RepresentativesForIssue(ctx, i.ID)
	if err != nil {
		return IssueView{}, apperr.Internal(err)
	}
	v := IssueView{
		Issue:           i,
		Scripts:         make([]ScriptSummary, 0, len(scripts)),
		Representatives: make([]RepresentativeSummary, 0, len(reps)),
	}
	for _, sc := range scripts {
		v.Scripts = append(v.Scripts, SummarizeScript(sc))
	}
	for _, r := range reps {
		v.Representatives = append(v.Representatives, SummarizeRepresentative(r))
	}
	return v, nil
}

func (s *Service) ListScripts(ctx context.Context, f ScriptFilter) ([]ScriptView, error) {
	scripts, err := s.repo.ListScripts(ctx, f)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	out := make([]ScriptView, 0, len(scripts))
	for _, sc := range scripts {
		v, err := s.scriptView(ctx, sc)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Service) GetScript(ctx context.Context, id string) (ScriptView, error) {
	sc, err := s.repo.GetScript(ctx, id)
	if err != nil {
		return ScriptView{}, translate(err, "Script not found")
	}
	return s.scriptView(ctx, sc)
}

func (s *Service) scriptView(ctx context.Context, sc Script) (ScriptView, error) {
	i, err := s.repo.GetIssue(ctx, sc.IssueID)
	if err != nil {
		return ScriptView{}, translate(err, "Issue not found")
	}
	return ScriptView{Script: sc, Issue: summarizeIssue(i)}, nil
}

func (s *Service) ListPersonas(ctx context.Context) ([]Persona, error) {
	ps, err := s.repo.ListPersonas(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return ps, nil
}

func (s *Service) GetPersona(ctx context.Context, id string) (Persona, error) {
	p, err := s.repo.GetPersona(ctx, id)
	if err != nil {
		return Persona{}, translate(err, "Persona not found")
	}
	return p, nil
}

func summarizeIssue(i Issue) IssueSummary {
	return IssueSummary{ID: i.ID, Name: i.Name, Category: i.Category, Description: i.Description}
}

func SummarizeRepresentative(r Representative) RepresentativeSummary {
	return RepresentativeSummary{ID: r.ID, Name: r.Name, Title: r.Title, State: r.State, District: r.District}
}

func SummarizePersona(p Persona) PersonaSummary {
	return PersonaSummary{ID: p.ID, Name: p.Name, Description: p.Description}
}

func SummarizeScript(s Script) ScriptSummary {
	return ScriptSummary{ID: s.ID, Title: s.Title, Description: s.Description}
}

func translate(err error, msg string) error {
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound(msg)
	}
	return apperr.Internal(err)
}
