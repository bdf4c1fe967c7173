package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kindredhq/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, email, passwordHash, displayName, role string) (*models.Account, error) {
	var acc models.Account
	row := r.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, email, password_hash, display_name, role, balance_cents)
		VALUES ($1, $2, $3, $4, $5, 0)
		RETURNING id, email, display_name, role, balance_cents, created_at
	`, uuid.New(), email, passwordHash, displayName, role)
	if err := row.Scan(&acc.ID, &acc.Email, &acc.DisplayName, &acc.Role, &acc.BalanceCents, &acc.CreatedAt); err != nil {
		return nil, err
	}
	return &acc, nil
}

// GetByEmail returns the account and its password hash, or (nil, "", nil)
// when no such account exists.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.Account, string, error) {
	var acc models.Account
	var hash string
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, display_name, role, balance_cents, created_at
		FROM accounts WHERE email = $1
	`, email)
	err := row.Scan(&acc.ID, &acc.Email, &hash, &acc.DisplayName, &acc.Role, &acc.BalanceCents, &acc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", nil
		}
		return nil, "", err
	}
	return &acc, hash, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var acc models.Account
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, display_name, role, balance_cents, created_at
		FROM accounts WHERE id = $1
	`, id)
	if err := row.Scan(&acc.ID, &acc.Email, &acc.DisplayName, &acc.Role, &acc.BalanceCents, &acc.CreatedAt); err != nil {
		return nil, err
	}
	return &acc, nil
}
