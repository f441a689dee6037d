package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"callrep/internal/session"
)

// PostgresRepo reads and seeds the catalog tables:
// representatives, issues, scripts, personas, representative_issues.
// Optional text columns are NOT NULL with an empty-string default; menu_steps and modifiers are JSONB.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const representativeColumns = `r.id, r.name, r.title, r.state, r.district, r.party, r.photo_url, r.email, r.phone_number, r.created_at`

const issueColumns = `i.id, i.name, i.description, i.category, i.active, i.created_at`

const scriptColumns = `s.id, s.issue_id, s.title, s.description, s.content, s.menu_steps, s.active, s.created_at`

const personaColumns = `p.id, p.name, p.description, p.tone, p.modifiers, p.active, p.created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRepresentative(row rowScanner) (Representative, error) {
	var r Representative
	err := row.Scan(
		&r.ID,
		&r.Name,
		&r.Title,
		&r.State,
		&r.District,
		&r.Party,
		&r.PhotoURL,
		&r.Email,
		&r.PhoneNumber,
		&r.CreatedAt,
	)
	return r, err
}

func scanIssue(row rowScanner) (Issue, error) {
	var i Issue
	err := row.Scan(&i.ID, &i.Name, &i.Description, &i.Category, &i.Active, &i.CreatedAt)
	return i, err
}

func scanScript(row rowScanner) (Script, error) {
	var s Script
	var steps []byte
	if err := row.Scan(&s.ID, &s.IssueID, &s.Title, &s.Description, &s.Content, &steps, &s.Active, &s.CreatedAt); err != nil {
		return Script{}, err
	}
	if len(steps) > 0 {
		if err := json.Unmarshal(steps, &s.MenuSteps); err != nil {
			return Script{}, fmt.Errorf("catalog: decode menu steps for %s: %w", s.ID, err)
		}
	}
	return s, nil
}

func scanPersona(row rowScanner) (Persona, error) {
	var p Persona
	var mods []byte
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Tone, &mods, &p.Active, &p.CreatedAt); err != nil {
		return Persona{}, err
	}
	if len(mods) > 0 {
		if err := json.Unmarshal(mods, &p.Modifiers); err != nil {
			return Persona{}, fmt.Errorf("catalog: decode modifiers for %s: %w", p.ID, err)
		}
	}
	return p, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *PostgresRepo) GetRepresentative(ctx context.Context, id string) (Representative, error) {
	q := `SELECT ` + representativeColumns + ` FROM representatives r WHERE r.id = $1`
	rep, err := scanRepresentative(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return Representative{}, notFound(err)
	}
	return rep, nil
}

func (r *PostgresRepo) GetIssue(ctx context.Context, id string) (Issue, error) {
	q := `SELECT ` + issueColumns + ` FROM issues i WHERE i.id = $1`
	i, err := scanIssue(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return Issue{}, notFound(err)
	}
	return i, nil
}

func (r *PostgresRepo) GetScript(ctx context.Context, id string) (Script, error) {
	q := `SELECT ` + scriptColumns + ` FROM scripts s WHERE s.id = $1`
	s, err := scanScript(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return Script{}, notFound(err)
	}
	return s, nil
}

func (r *PostgresRepo) GetPersona(ctx context.Context, id string) (Persona, error) {
	q := `SELECT ` + personaColumns + ` FROM personas p WHERE p.id = $1`
	p, err := scanPersona(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return Persona{}, notFound(err)
	}
	return p, nil
}

func (r *PostgresRepo) RepresentativeHandlesIssue(ctx context.Context, representativeID, issueID string) (bool, error) {
	const q = `
SELECT EXISTS (
  SELECT 1 FROM representative_issues
  WHERE representative_id = $1 AND issue_id = $2
)
`
	var ok bool
	if err := r.db.QueryRowContext(ctx, q, representativeID, issueID).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (r *PostgresRepo) ListRepresentatives(ctx context.Context, f RepresentativeFilter) ([]Representative, error) {
	q := `
SELECT ` + representativeColumns + `
FROM representatives r
WHERE ($1::text = '' OR r.state = $1)
  AND ($2::text = '' OR EXISTS (
    SELECT 1 FROM representative_issues ri
    WHERE ri.representative_id = r.id AND ri.issue_id = $2
  ))
ORDER BY r.state, r.name
`
	return queryRepresentatives(ctx, r.db, q, f.State, f.IssueID)
}

func (r *PostgresRepo) RepresentativesForIssue(ctx context.Context, issueID string) ([]Representative, error) {
	q := `
SELECT ` + representativeColumns + `
FROM representatives r
JOIN representative_issues ri ON ri.representative_id = r.id
WHERE ri.issue_id = $1
ORDER BY r.state, r.name
`
	return queryRepresentatives(ctx, r.db, q, issueID)
}

func queryRepresentatives(ctx context.Context, db *sql.DB, q string, args ...any) ([]Representative, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Representative{}
	for rows.Next() {
		rep, err := scanRepresentative(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) ListIssues(ctx context.Context, f IssueFilter) ([]Issue, error) {
	q := `
SELECT ` + issueColumns + `
FROM issues i
WHERE i.active
  AND ($1::text = '' OR i.category = $1)
  AND ($2::text = '' OR EXISTS (
    SELECT 1 FROM representative_issues ri
    WHERE ri.issue_id = i.id AND ri.representative_id = $2
  ))
ORDER BY i.name
`
	return queryIssues(ctx, r.db, q, f.Category, f.RepresentativeID)
}

func (r *PostgresRepo) IssuesForRepresentative(ctx context.Context, representativeID string) ([]Issue, error) {
	q := `
SELECT ` + issueColumns + `
FROM issues i
JOIN representative_issues ri ON ri.issue_id = i.id
WHERE ri.representative_id = $1
ORDER BY i.name
`
	return queryIssues(ctx, r.db, q, representativeID)
}

func queryIssues(ctx context.Context, db *sql.DB, q string, args ...any) ([]Issue, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Issue{}
	for rows.Next() {
		i, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) ListScripts(ctx context.Context, f ScriptFilter) ([]Script, error) {
	q := `
SELECT ` + scriptColumns + `
FROM scripts s
WHERE s.active AND ($1::text = '' OR s.issue_id = $1)
ORDER BY s.title
`
	rows, err := r.db.QueryContext(ctx, q, f.IssueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Script{}
	for rows.Next() {
		s, err := scanScript(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) ListPersonas(ctx context.Context) ([]Persona, error) {
	q := `SELECT ` + personaColumns + ` FROM personas p WHERE p.active ORDER BY p.name`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Persona{}
	for rows.Next() {
		p, err := scanPersona(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) UpsertRepresentative(ctx context.Context, rep Representative) error {
	const q = `
INSERT INTO representatives (id, name, title, state, district, party, photo_url, email, phone_number, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
  name = EXCLUDED.name,
  title = EXCLUDED.title,
  state = EXCLUDED.state,
  district = EXCLUDED.district,
  party = EXCLUDED.party,
  photo_url = EXCLUDED.photo_url,
  email = EXCLUDED.email,
  phone_number = EXCLUDED.phone_number
`
	_, err := r.db.ExecContext(ctx, q,
		rep.ID,
		rep.Name,
		rep.Title,
		rep.State,
		rep.District,
		rep.Party,
		rep.PhotoURL,
		rep.Email,
		rep.PhoneNumber,
		createdAt(rep.CreatedAt),
	)
	return err
}

func (r *PostgresRepo) UpsertIssue(ctx context.Context, i Issue) error {
	const q = `
INSERT INTO issues (id, name, description, category, active, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET
  name = EXCLUDED.name,
  description = EXCLUDED.description,
  category = EXCLUDED.category,
  active = EXCLUDED.active
`
	_, err := r.db.ExecContext(ctx, q, i.ID, i.Name, i.Description, i.Category, i.Active, createdAt(i.CreatedAt))
	return err
}

func (r *PostgresRepo) UpsertScript(ctx context.Context, s Script) error {
	steps := s.MenuSteps
	if steps == nil {
		steps = []session.MenuStep{}
	}
	b, err := json.Marshal(steps)
	if err != nil {
		return fmt.Errorf("catalog: encode menu steps: %w", err)
	}
	const q = `
INSERT INTO scripts (id, issue_id, title, description, content, menu_steps, active, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
  issue_id = EXCLUDED.issue_id,
  title = EXCLUDED.title,
  description = EXCLUDED.description,
  content = EXCLUDED.content,
  menu_steps = EXCLUDED.menu_steps,
  active = EXCLUDED.active
`
	_, err = r.db.ExecContext(ctx, q, s.ID, s.IssueID, s.Title, s.Description, s.Content, b, s.Active, createdAt(s.CreatedAt))
	return err
}

func (r *PostgresRepo) UpsertPersona(ctx context.Context, p Persona) error {
	b, err := json.Marshal(p.Modifiers)
	if err != nil {
		return fmt.Errorf("catalog: encode modifiers: %w", err)
	}
	const q = `
INSERT INTO personas (id, name, description, tone, modifiers, active, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
  name = EXCLUDED.name,
  description = EXCLUDED.description,
  tone = EXCLUDED.tone,
  modifiers = EXCLUDED.modifiers,
  active = EXCLUDED.active
`
	_, err = r.db.ExecContext(ctx, q, p.ID, p.Name, p.Description, p.Tone, b, p.Active, createdAt(p.CreatedAt))
	return err
}

func (r *PostgresRepo) LinkRepresentativeIssue(ctx context.Context, representativeID, issueID string) error {
	const q = `
INSERT INTO representative_issues (representative_id, issue_id)
VALUES ($1,$2)
ON CONFLICT DO NOTHING
`
	_, err := r.db.ExecContext(ctx, q, representativeID, issueID)
	return err
}

func createdAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
