package arbitration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kindredhq/backend/internal/config"
	"github.com/kindredhq/backend/internal/events"
	"github.com/kindredhq/backend/internal/exchange"
	"github.com/kindredhq/backend/internal/ledger"
	"github.com/kindredhq/backend/internal/models"
)

// ErrUnauthorized is returned when a non-judge calls arbitration.
var ErrUnauthorized = errors.New("unauthorized: judge role required")

// ErrBadOutcome is returned for an outcome outside creator|partner|split.
var ErrBadOutcome = errors.New("invalid outcome")

// TaskRepo is the slice of the exchange task store arbitration needs.
// *exchange.Repository satisfies it.
type TaskRepo interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.ExchangeTask, error)
	Update(ctx context.Context, tx pgx.Tx, t *models.ExchangeTask) error
}

// EventSink appends transition events inside the operation's transaction.
type EventSink interface {
	Append(ctx context.Context, tx pgx.Tx, e *models.TaskEvent) error
}

// Service is the judge-only override that ends a disputed or stalled
// exchange task by assigning or splitting the pooled stake. It is the only
// way out of disputed. A resolved task is completed and cannot be disputed
// again.
type Service struct {
	repo         TaskRepo
	ledger       ledger.Service
	events       EventSink
	insertNotify events.InsertNotifyTxFunc
	cfg          config.Config
}

func NewService(repo TaskRepo, ledgerSvc ledger.Service, sink EventSink, insertNotify events.InsertNotifyTxFunc, cfg config.Config) *Service {
	return &Service{repo: repo, ledger: ledgerSvc, events: sink, insertNotify: insertNotify, cfg: cfg}
}

// ResolveDispute pays out the pool per the outcome and completes the task.
// callerRole is the authenticated role claim; role storage and assignment
// live with the auth collaborator, the engine only checks the capability.
// Valid from delivery as well as disputed, so a judge can unstick a task
// whose counterpart never confirms.
func (s *Service) ResolveDispute(ctx context.Context, id int64, caller uuid.UUID, callerRole, outcome string) (*models.ExchangeTask, error) {
	if callerRole != models.RoleJudge {
		return nil, ErrUnauthorized
	}
	if outcome != models.OutcomeCreator && outcome != models.OutcomePartner && outcome != models.OutcomeSplit {
		return nil, fmt.Errorf("%w: %q", ErrBadOutcome, outcome)
	}
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	t, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != models.ExchangeDelivery && t.Status != models.ExchangeDisputed {
		return nil, fmt.Errorf("%w: task is %s, arbitration applies only to delivery or disputed", exchange.ErrPrecondition, t.Status)
	}
	if t.Partner == nil {
		return nil, fmt.Errorf("%w: no partner on record", exchange.ErrPrecondition)
	}

	pool := t.StakeCents
	switch outcome {
	case models.OutcomeCreator:
		if err := s.ledger.TransferOut(ctx, tx, t.Creator, models.FamilyExchange, t.ID, pool); err != nil {
			return nil, err
		}
	case models.OutcomePartner:
		if err := s.ledger.TransferOut(ctx, tx, *t.Partner, models.FamilyExchange, t.ID, pool); err != nil {
			return nil, err
		}
	case models.OutcomeSplit:
		fee := pool * s.cfg.ArbitrationFeeBps / 10000
		if fee > 0 {
			if err := s.ledger.TransferOut(ctx, tx, models.PlatformAccountID, models.FamilyExchange, t.ID, fee); err != nil {
				return nil, err
			}
		}
		rest := pool - fee
		half := rest / 2
		if err := s.ledger.TransferOut(ctx, tx, t.Creator, models.FamilyExchange, t.ID, rest-half); err != nil {
			return nil, err
		}
		if err := s.ledger.TransferOut(ctx, tx, *t.Partner, models.FamilyExchange, t.ID, half); err != nil {
			return nil, err
		}
	}
	t.StakeCents = 0
	t.Status = models.ExchangeCompleted
	if err := s.repo.Update(ctx, tx, t); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]any{"outcome": outcome, "pool_cents": pool})
	if err != nil {
		return nil, err
	}
	e := &models.TaskEvent{
		Family:  models.FamilyExchange,
		TaskID:  t.ID,
		Type:    models.EventDisputeResolved,
		Actor:   caller,
		Payload: payload,
	}
	if err := s.events.Append(ctx, tx, e); err != nil {
		return nil, err
	}
	if s.insertNotify != nil {
		if err := s.insertNotify(ctx, tx, events.NotifyEventJobArgs{
			EventID: e.ID, Family: e.Family, TaskID: e.TaskID,
			Type: e.Type, Actor: e.Actor, Payload: e.Payload,
		}); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return t, nil
}
