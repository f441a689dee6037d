package catalog

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("catalog: not found")

// Reader is the read side used by call placement and the catalog API.
// Get methods return ErrNotFound for unknown ids. List methods return only
// active issues, scripts and personas.
type Reader interface {
	GetRepresentative(ctx context.Context, id string) (Representative, error)
	GetIssue(ctx context.Context, id string) (Issue, error)
	GetScript(ctx context.Context, id string) (Script, error)
	GetPersona(ctx context.Context, id string) (Persona, error)

	RepresentativeHandlesIssue(ctx context.Context, representativeID, issueID string) (bool, error)

	ListRepresentatives(ctx context.Context, f RepresentativeFilter) ([]Representative, error)
	ListIssues(ctx context.Context, f IssueFilter) ([]Issue, error)
	ListScripts(ctx context.Context, f ScriptFilter) ([]Script, error)
	ListPersonas(ctx context.Context) ([]Persona, error)

	IssuesForRepresentative(ctx context.Context, representativeID string) ([]Issue, error)
	RepresentativesForIssue(ctx context.Context, issueID string) ([]Representative, error)
}

// Writer is used by seeding. Upserts replace every column of an existing row.
type Writer interface {
	UpsertRepresentative(ctx context.Context, r Representative) error
	UpsertIssue(ctx context.Context, i Issue) error
	UpsertScript(ctx context.Context, s Script) error
	UpsertPersona(ctx context.Context, p Persona) error
	LinkRepresentativeIssue(ctx context.Context, representativeID, issueID string) error
}

type Repository interface {
	Reader
	Writer
}
