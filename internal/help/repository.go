package help

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

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const taskColumns = `id, requester, helper, task_type, details, stake_cents, status, created_at, expiry`

// Create inserts the task and fills in its assigned id. Help ids come from
// their own sequence, independent of exchange ids.
func (r *Repository) Create(ctx context.Context, tx pgx.Tx, t *models.HelpTask) error {
	return tx.QueryRow(ctx, `
		INSERT INTO help_tasks (requester, task_type, details, stake_cents, status, expiry)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, t.Requester, t.TaskType, t.Details, t.StakeCents, t.Status, t.Expiry).Scan(&t.ID, &t.CreatedAt)
}

func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.HelpTask, error) {
	row := tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM help_tasks WHERE id = $1 FOR UPDATE`, id)
	return scanTask(row)
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*models.HelpTask, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM help_tasks WHERE id = $1`, id)
	return scanTask(row)
}

func (r *Repository) Update(ctx context.Context, tx pgx.Tx, t *models.HelpTask) error {
	_, err := tx.Exec(ctx, `
		UPDATE help_tasks SET helper = $2, stake_cents = $3, status = $4, expiry = $5
		WHERE id = $1
	`, t.ID, t.Helper, t.StakeCents, t.Status, t.Expiry)
	return err
}

func (r *Repository) ListByParty(ctx context.Context, party uuid.UUID) ([]*models.HelpTask, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM help_tasks
		WHERE requester = $1 OR helper = $1 ORDER BY created_at DESC
	`, party)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// ListOpen returns open tasks still inside their accept window.
func (r *Repository) ListOpen(ctx context.Context) ([]*models.HelpTask, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM help_tasks
		WHERE status = $1 AND expiry > now() ORDER BY created_at DESC
	`, models.HelpOpen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func collect(rows pgx.Rows) ([]*models.HelpTask, error) {
	var list []*models.HelpTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

func scanTask(row pgx.Row) (*models.HelpTask, error) {
	var t models.HelpTask
	err := row.Scan(&t.ID, &t.Requester, &t.Helper, &t.TaskType, &t.Details,
		&t.StakeCents, &t.Status, &t.CreatedAt, &t.Expiry)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return &t, nil
}
