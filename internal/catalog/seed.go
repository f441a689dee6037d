package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"callrep/internal/personalize"
	"callrep/internal/session"

	"gopkg.in/yaml.v3"
)

// Seed is the YAML document loaded by `seed --file`.
// Entries reference each other by id; Active defaults to true when omitted.
type Seed struct {
	Personas        []SeedPersona        `yaml:"personas"`
	Issues          []SeedIssue          `yaml:"issues"`
	Representatives []SeedRepresentative `yaml:"representatives"`
	Scripts         []SeedScript         `yaml:"scripts"`
}

type SeedPersona struct {
	ID          string                  `yaml:"id"`
	Name        string                  `yaml:"name"`
	Description string                  `yaml:"description"`
	Tone        string                  `yaml:"tone"`
	Modifiers   personalize.ToneProfile `yaml:"modifiers"`
	Active      *bool                   `yaml:"active"`
}

type SeedIssue struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
	Active      *bool  `yaml:"active"`
}

type SeedRepresentative struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Title       string   `yaml:"title"`
	State       string   `yaml:"state"`
	District    string   `yaml:"district"`
	Party       string   `yaml:"party"`
	PhotoURL    string   `yaml:"photoUrl"`
	Email       string   `yaml:"email"`
	PhoneNumber string   `yaml:"phoneNumber"`
	Issues      []string `yaml:"issues"`
}

type SeedScript struct {
	ID          string             `yaml:"id"`
	IssueID     string             `yaml:"issueId"`
	Title       string             `yaml:"title"`
	Description string             `yaml:"description"`
	Content     string             `yaml:"content"`
	MenuSteps   []session.MenuStep `yaml:"menuSteps"`
	Active      *bool              `yaml:"active"`
}

func LoadSeedFile(path string) (Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return Seed{}, err
	}
	defer f.Close()
	return LoadSeed(f)
}

// LoadSeed decodes and validates a seed document. Unknown fields are rejected.
func LoadSeed(r io.Reader) (Seed, error) {
	var s Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Seed{}, fmt.Errorf("seed: decode: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Seed{}, err
	}
	return s, nil
}

// Validate checks ids are present and unique and every reference resolves.
// All problems are reported together.
func (s Seed) Validate() error {
	var errs []error

	issues := map[string]bool{}
	for n, i := range s.Issues {
		if strings.TrimSpace(i.ID) == "" || strings.TrimSpace(i.Name) == "" {
			errs = append(errs, fmt.Errorf("issues[%d]: id and name required", n))
			continue
		}
		if issues[i.ID] {
			errs = append(errs, fmt.Errorf("issues[%d]: duplicate id %q", n, i.ID))
		}
		issues[i.ID] = true
	}

	personas := map[string]bool{}
	for n, p := range s.Personas {
		if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.Name) == "" {
			errs = append(errs, fmt.Errorf("personas[%d]: id and name required", n))
			continue
		}
		if personas[p.ID] {
			errs = append(errs, fmt.Errorf("personas[%d]: duplicate id %q", n, p.ID))
		}
		personas[p.ID] = true
	}

	reps := map[string]bool{}
	for n, r := range s.Representatives {
		if strings.TrimSpace(r.ID) == "" || strings.TrimSpace(r.Name) == "" {
			errs = append(errs, fmt.Errorf("representatives[%d]: id and name required", n))
			continue
		}
		if reps[r.ID] {
			errs = append(errs, fmt.Errorf("representatives[%d]: duplicate id %q", n, r.ID))
		}
		reps[r.ID] = true
		if !stateCode.MatchString(r.State) {
			errs = append(errs, fmt.Errorf("representatives[%d]: state must be a 2-letter code", n))
		}
		if strings.TrimSpace(r.PhoneNumber) == "" {
			errs = append(errs, fmt.Errorf("representatives[%d]: phoneNumber required", n))
		}
		for _, id := range r.Issues {
			if !issues[id] {
				errs = append(errs, fmt.Errorf("representatives[%d]: unknown issue %q", n, id))
			}
		}
	}

	scripts := map[string]bool{}
	for n, sc := range s.Scripts {
		if strings.TrimSpace(sc.ID) == "" || strings.TrimSpace(sc.Content) == "" {
			errs = append(errs, fmt.Errorf("scripts[%d]: id and content required", n))
			continue
		}
		if scripts[sc.ID] {
			errs = append(errs, fmt.Errorf("scripts[%d]: duplicate id %q", n, sc.ID))
		}
		scripts[sc.ID] = true
		if !issues[sc.IssueID] {
			errs = append(errs, fmt.Errorf("scripts[%d]: unknown issue %q", n, sc.IssueID))
		}
	}

	return errors.Join(errs...)
}

// Apply writes the seed through w. It is idempotent: rows are upserted and
// links are inserted only when missing.
func (s Seed) Apply(ctx context.Context, w Writer) error {
	for _, i := range s.Issues {
		if err := w.UpsertIssue(ctx, Issue{
			ID:          i.ID,
			Name:        i.Name,
			Description: i.Description,
			Category:    i.Category,
			Active:      activeOrDefault(i.Active),
		}); err != nil {
			return fmt.Errorf("seed issue %s: %w", i.ID, err)
		}
	}
	for _, p := range s.Personas {
		if err := w.UpsertPersona(ctx, Persona{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Tone:        p.Tone,
			Modifiers:   p.Modifiers,
			Active:      activeOrDefault(p.Active),
		}); err != nil {
			return fmt.Errorf("seed persona %s: %w", p.ID, err)
		}
	}
	for _, r := range s.Representatives {
		if err := w.UpsertRepresentative(ctx, Representative{
			ID:          r.ID,
			Name:        r.Name,
			Title:       r.Title,
			State:       strings.ToUpper(r.State),
			District:    r.District,
			Party:       r.Party,
			PhotoURL:    r.PhotoURL,
			Email:       r.Email,
			PhoneNumber: r.PhoneNumber,
		}); err != nil {
			return fmt.Errorf("seed representative %s: %w", r.ID, err)
		}
		for _, issueID := range r.Issues {
			if err := w.LinkRepresentativeIssue(ctx, r.ID, issueID); err != nil {
				return fmt.Errorf("seed link %s/%s: %w", r.ID, issueID, err)
			}
		}
	}
	for _, sc := range s.Scripts {
		if err := w.UpsertScript(ctx, Script{
			ID:          sc.ID,
			IssueID:     sc.IssueID,
			Title:       sc.Title,
			Description: sc.Description,
			Content:     sc.Content,
			MenuSteps:   sc.MenuSteps,
			Active:      activeOrDefault(sc.Active),
		}); err != nil {
			return fmt.Errorf("seed script %s: %w", sc.ID, err)
		}
	}
	return nil
}

func activeOrDefault(b *bool) bool {
	if b == nil {
		return true
	}
	return *b
}
