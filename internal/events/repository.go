package events

import (
	"context"
	"encoding/json"

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

// Append writes the event in the caller's transaction so the event record
// commits with the transition it describes.
func (r *Repository) Append(ctx context.Context, tx pgx.Tx, e *models.TaskEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return tx.QueryRow(ctx, `
		INSERT INTO task_events (id, family, task_id, event_type, actor, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, e.ID, e.Family, e.TaskID, e.Type, e.Actor, e.Payload).Scan(&e.CreatedAt)
}

// ListByTask returns a task's event history, oldest first.
func (r *Repository) ListByTask(ctx context.Context, family string, taskID int64) ([]*models.TaskEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, family, task_id, event_type, actor, payload, created_at
		FROM task_events WHERE family = $1 AND task_id = $2 ORDER BY created_at ASC
	`, family, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.TaskEvent
	for rows.Next() {
		var e models.TaskEvent
		var payload json.RawMessage
		if err := rows.Scan(&e.ID, &e.Family, &e.TaskID, &e.Type, &e.Actor, &payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Payload = payload
		list = append(list, &e)
	}
	return list, rows.Err()
}
