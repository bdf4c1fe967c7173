package registry

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Admit inserts the party into participants if not already present and
// reports whether this call was the first admission.
func (r *Repository) Admit(ctx context.Context, tx pgx.Tx, party uuid.UUID) (first bool, err error) {
	result, err := tx.Exec(ctx, `
		INSERT INTO participants (account_id) VALUES ($1)
		ON CONFLICT (account_id) DO NOTHING
	`, party)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

func (r *Repository) IsRegistered(ctx context.Context, party uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM participants WHERE account_id = $1)
	`, party).Scan(&exists)
	return exists, err
}
