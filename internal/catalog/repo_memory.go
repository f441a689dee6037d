package catalog

import (
	"context"
	"sort"
	"sync"

	"callrep/internal/session"
)

// MemoryRepo keeps the catalog in process memory.
// It backs tests and `serve --memory` for local development.
type MemoryRepo struct {
	mu              sync.RWMutex
	representatives map[string]Representative
	issues          map[string]Issue
	scripts         map[string]Script
	personas        map[string]Persona
	links           map[string]map[string]struct{} // representative id -> issue ids
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		representatives: map[string]Representative{},
		issues:          map[string]Issue{},
		scripts:         map[string]Script{},
		personas:        map[string]Persona{},
		links:           map[string]map[string]struct{}{},
	}
}

func (m *MemoryRepo) GetRepresentative(ctx context.Context, id string) (Representative, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.representatives[id]
	if !ok {
		return Representative{}, ErrNotFound
	}
	return r, nil
}

func (m *MemoryRepo) GetIssue(ctx context.Context, id string) (Issue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.issues[id]
	if !ok {
		return Issue{}, ErrNotFound
	}
	return i, nil
}

func (m *MemoryRepo) GetScript(ctx context.Context, id string) (Script, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scripts[id]
	if !ok {
		return Script{}, ErrNotFound
	}
	return copyScript(s), nil
}

func (m *MemoryRepo) GetPersona(ctx context.Context, id string) (Persona, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.personas[id]
	if !ok {
		return Persona{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryRepo) RepresentativeHandlesIssue(ctx context.Context, representativeID, issueID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.links[representativeID][issueID]
	return ok, nil
}

func (m *MemoryRepo) ListRepresentatives(ctx context.Context, f RepresentativeFilter) ([]Representative, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Representative{}
	for _, r := range m.representatives {
		if f.State != "" && r.State != f.State {
			continue
		}
		if f.IssueID != "" {
			if _, ok := m.links[r.ID][f.IssueID]; !ok {
				continue
			}
		}
		out = append(out, r)
	}
	sortRepresentatives(out)
	return out, nil
}

func (m *MemoryRepo) ListIssues(ctx context.Context, f IssueFilter) ([]Issue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Issue{}
	for _, i := range m.issues {
		if !i.Active {
			continue
		}
		if f.Category != "" && i.Category != f.Category {
			continue
		}
		if f.RepresentativeID != "" {
			if _, ok := m.links[f.RepresentativeID][i.ID]; !ok {
				continue
			}
		}
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out, nil
}

func (m *MemoryRepo) ListScripts(ctx context.Context, f ScriptFilter) ([]Script, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Script{}
	for _, s := range m.scripts {
		if !s.Active {
			continue
		}
		if f.IssueID != "" && s.IssueID != f.IssueID {
			continue
		}
		out = append(out, copyScript(s))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Title < out[b].Title })
	return out, nil
}

func (m *MemoryRepo) ListPersonas(ctx context.Context) ([]Persona, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Persona{}
	for _, p := range m.personas {
		if p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out, nil
}

func (m *MemoryRepo) IssuesForRepresentative(ctx context.Context, representativeID string) ([]Issue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Issue{}
	for id := range m.links[representativeID] {
		if i, ok := m.issues[id]; ok {
			out = append(out, i)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out, nil
}

func (m *MemoryRepo) RepresentativesForIssue(ctx context.Context, issueID string) ([]Representative, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Representative{}
	for repID, issues := range m.links {
		if _, ok := issues[issueID]; !ok {
			continue
		}
		if r, ok := m.representatives[repID]; ok {
			out = append(out, r)
		}
	}
	sortRepresentatives(out)
	return out, nil
}

func (m *MemoryRepo) UpsertRepresentative(ctx context.Context, r Representative) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.representatives[r.ID] = r
	return nil
}

func (m *MemoryRepo) UpsertIssue(ctx context.Context, i Issue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issues[i.ID] = i
	return nil
}

func (m *MemoryRepo) UpsertScript(ctx context.Context, s Script) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[s.ID] = copyScript(s)
	return nil
}

func (m *MemoryRepo) UpsertPersona(ctx context.Context, p Persona) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.personas[p.ID] = p
	return nil
}

func (m *MemoryRepo) LinkRepresentativeIssue(ctx context.Context, representativeID, issueID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.links[representativeID] == nil {
		m.links[representativeID] = map[string]struct{}{}
	}
	m.links[representativeID][issueID] = struct{}{}
	return nil
}

func sortRepresentatives(rs []Representative) {
	sort.Slice(rs, func(a, b int) bool {
		if rs[a].State != rs[b].State {
			return rs[a].State < rs[b].State
		}
		return rs[a].Name < rs[b].Name
	})
}

func copyScript(s Script) Script {
	if s.MenuSteps != nil {
		steps := make([]session.MenuStep, len(s.MenuSteps))
		copy(steps, s.MenuSteps)
		s.MenuSteps = steps
	}
	return s
}
