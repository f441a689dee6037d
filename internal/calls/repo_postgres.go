package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"callrep/pkg/utils"
)

// PostgresRepo stores calls in the calls table.
// duration and completed_at are nullable; other optional text columns default to the empty string.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const callColumns = `id, representative_id, script_id, persona_id, status, phone_number, modified_script,
  provider_call_id, duration, transcript, recording, error_message, created_at, updated_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (Call, error) {
	var (
		c           Call
		duration    sql.NullInt64
		completedAt sql.NullTime
	)
	if err := row.Scan(
		&c.ID,
		&c.RepresentativeID,
		&c.ScriptID,
		&c.PersonaID,
		&c.Status,
		&c.PhoneNumber,
		&c.ModifiedScript,
		&c.ProviderCallID,
		&duration,
		&c.Transcript,
		&c.Recording,
		&c.ErrorMessage,
		&c.CreatedAt,
		&c.UpdatedAt,
		&completedAt,
	); err != nil {
		return Call{}, err
	}
	if duration.Valid {
		d := int(duration.Int64)
		c.Duration = &d
	}
	if completedAt.Valid {
		t := completedAt.Time
		c.CompletedAt = &t
	}
	return c, nil
}

func (r *PostgresRepo) Create(ctx context.Context, c Call) error {
	const q = `
INSERT INTO calls (
  id, representative_id, script_id, persona_id, status, phone_number, modified_script,
  provider_call_id, duration, transcript, recording, error_message, created_at, updated_at, completed_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
)
`
	_, err := r.db.ExecContext(ctx, q,
		c.ID,
		c.RepresentativeID,
		c.ScriptID,
		c.PersonaID,
		c.Status,
		c.PhoneNumber,
		c.ModifiedScript,
		c.ProviderCallID,
		nullInt(c.Duration),
		c.Transcript,
		c.Recording,
		c.ErrorMessage,
		c.CreatedAt,
		c.UpdatedAt,
		nullTime(c.CompletedAt),
	)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE id = $1`
	c, err := scanCall(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrNotFound
		}
		return Call{}, err
	}
	return c, nil
}

// Update locks the row so concurrent webhook deliveries for one call apply in sequence.
func (r *PostgresRepo) Update(ctx context.Context, id string, fn MutateFunc) (Call, error) {
	var out Call
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		q := `SELECT ` + callColumns + ` FROM calls WHERE id = $1 FOR UPDATE`
		c, err := scanCall(tx.QueryRowContext(ctx, q, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if err := fn(&c); err != nil {
			return err
		}

		const upd = `
UPDATE calls SET
  status = $2,
  provider_call_id = $3,
  duration = $4,
  transcript = $5,
  recording = $6,
  error_message = $7,
  updated_at = $8,
  completed_at = $9
WHERE id = $1
`
		if _, err := tx.ExecContext(ctx, upd,
			id,
			c.Status,
			c.ProviderCallID,
			nullInt(c.Duration),
			c.Transcript,
			c.Recording,
			c.ErrorMessage,
			c.UpdatedAt,
			nullTime(c.CompletedAt),
		); err != nil {
			return err
		}
		c.ID = id
		out = c
		return nil
	})
	if err != nil {
		return Call{}, err
	}
	return out, nil
}

func (r *PostgresRepo) ListCalls(ctx context.Context, from, to time.Time) ([]Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, q, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Call, 0)
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *p, Valid: true}
}
