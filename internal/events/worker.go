package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
)

// NotifyEventJobArgs carries one task event to off-chain observers.
type NotifyEventJobArgs struct {
	EventID uuid.UUID       `json:"event_id"`
	Family  string          `json:"family"`
	TaskID  int64           `json:"task_id"`
	Type    string          `json:"type"`
	Actor   uuid.UUID       `json:"actor"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (NotifyEventJobArgs) Kind() string { return "notify_event" }

// InsertNotifyTxFunc enqueues a NotifyEvent job within the given transaction.
// Provided by main using river.Client.InsertTx, so the notification job
// commits atomically with the transition it announces.
type InsertNotifyTxFunc func(ctx context.Context, tx pgx.Tx, args NotifyEventJobArgs) error

// NotifyWorker delivers task events to the configured observer webhook, or
// just logs them when none is set.
type NotifyWorker struct {
	river.WorkerDefaults[NotifyEventJobArgs]
	webhookURL string
	httpClient *http.Client
	log        *slog.Logger
}

func NewNotifyWorker(webhookURL string, log *slog.Logger) *NotifyWorker {
	if log == nil {
		log = slog.Default()
	}
	return &NotifyWorker{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        log,
	}
}

func (w *NotifyWorker) Work(ctx context.Context, job *river.Job[NotifyEventJobArgs]) error {
	args := job.Args
	if w.webhookURL == "" {
		w.log.Info("task event",
			"family", args.Family, "task_id", args.TaskID,
			"type", args.Type, "actor", args.Actor)
		return nil
	}

	body, err := json.Marshal(args)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("observer webhook unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("observer webhook returned status %d", resp.StatusCode)
	}
	return nil
}
