package exchange

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

const taskColumns = `id, creator, partner, city, delivery_info, wish_list, stake_cents, status,
	created_at, pending_expiry, delivery_deadline, confirm_deadline,
	creator_delivered, partner_delivered, creator_confirmed, partner_confirmed, tracking_refs`

// Create inserts the task and fills in its assigned id (BIGSERIAL, monotonic,
// never reused) and created_at.
func (r *Repository) Create(ctx context.Context, tx pgx.Tx, t *models.ExchangeTask) error {
	return tx.QueryRow(ctx, `
		INSERT INTO exchange_tasks (creator, city, delivery_info, wish_list, stake_cents, status, pending_expiry)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, t.Creator, t.City, t.DeliveryInfo, t.WishList, t.StakeCents, t.Status, t.PendingExpiry).Scan(&t.ID, &t.CreatedAt)
}

// GetForUpdate locks the task row for the remainder of the transaction, so
// no two operations against the same task ever interleave.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.ExchangeTask, error) {
	row := tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM exchange_tasks WHERE id = $1 FOR UPDATE`, id)
	return scanTask(row)
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*models.ExchangeTask, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM exchange_tasks WHERE id = $1`, id)
	return scanTask(row)
}

func (r *Repository) Update(ctx context.Context, tx pgx.Tx, t *models.ExchangeTask) error {
	_, err := tx.Exec(ctx, `
		UPDATE exchange_tasks SET partner = $2, stake_cents = $3, status = $4,
			delivery_deadline = $5, confirm_deadline = $6,
			creator_delivered = $7, partner_delivered = $8,
			creator_confirmed = $9, partner_confirmed = $10, tracking_refs = $11
		WHERE id = $1
	`, t.ID, t.Partner, t.StakeCents, t.Status, t.DeliveryDeadline, t.ConfirmDeadline,
		t.CreatorDelivered, t.PartnerDelivered, t.CreatorConfirmed, t.PartnerConfirmed, t.TrackingRefs)
	return err
}

func (r *Repository) ListByParty(ctx context.Context, party uuid.UUID) ([]*models.ExchangeTask, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM exchange_tasks
		WHERE creator = $1 OR partner = $1 ORDER BY created_at DESC
	`, party)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.ExchangeTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// ListOpen returns pending tasks in a city still inside their match window.
func (r *Repository) ListOpen(ctx context.Context, city string) ([]*models.ExchangeTask, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM exchange_tasks
		WHERE status = $1 AND city = $2 AND pending_expiry > now()
		ORDER BY created_at DESC
	`, models.ExchangePending, city)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.ExchangeTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

func scanTask(row pgx.Row) (*models.ExchangeTask, error) {
	var t models.ExchangeTask
	err := row.Scan(&t.ID, &t.Creator, &t.Partner, &t.City, &t.DeliveryInfo, &t.WishList,
		&t.StakeCents, &t.Status, &t.CreatedAt, &t.PendingExpiry,
		&t.DeliveryDeadline, &t.ConfirmDeadline,
		&t.CreatorDelivered, &t.PartnerDelivered, &t.CreatorConfirmed, &t.PartnerConfirmed,
		&t.TrackingRefs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return &t, nil
}
