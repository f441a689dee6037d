package calls

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("calls: not found")

// MutateFunc edits a call in place under the repository's per-call lock.
// Returning an error aborts the update.
type MutateFunc func(c *Call) error

// Repository persists call records.
//
// Update serializes concurrent writers to the same call: status, recording and
// transcript callbacks for one call may race, and each must see the others' writes.
type Repository interface {
	Create(ctx context.Context, c Call) error
	Get(ctx context.Context, id string) (Call, error)
	Update(ctx context.Context, id string, fn MutateFunc) (Call, error)

	// ListCalls returns calls created in [from, to), oldest first.
	ListCalls(ctx context.Context, from, to time.Time) ([]Call, error)
}
