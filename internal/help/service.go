package help

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kindredhq/backend/internal/config"
	"github.com/kindredhq/backend/internal/events"
	"github.com/kindredhq/backend/internal/ledger"
	"github.com/kindredhq/backend/internal/models"
	"github.com/kindredhq/backend/internal/registry"
)

// TaskRepo is the help task store contract.
type TaskRepo interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, tx pgx.Tx, t *models.HelpTask) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.HelpTask, error)
	Update(ctx context.Context, tx pgx.Tx, t *models.HelpTask) error
}

// EventSink appends transition events inside the operation's transaction.
type EventSink interface {
	Append(ctx context.Context, tx pgx.Tx, e *models.TaskEvent) error
}

// Service is the help task engine: a single-helper task funded entirely by
// the requester. Unlike exchanges there is only one beneficiary of the
// payout and no mutual-confirmation deadlock is possible, so a blunt
// timeout-to-payout after acceptance is safe.
type Service struct {
	repo         TaskRepo
	ledger       ledger.Service
	registry     registry.Service
	events       EventSink
	insertNotify events.InsertNotifyTxFunc
	cfg          config.Config
	now          func() time.Time
}

func NewService(repo TaskRepo, ledgerSvc ledger.Service, registrySvc registry.Service, sink EventSink, insertNotify events.InsertNotifyTxFunc, cfg config.Config) *Service {
	return &Service{
		repo:         repo,
		ledger:       ledgerSvc,
		registry:     registrySvc,
		events:       sink,
		insertNotify: insertNotify,
		cfg:          cfg,
		now:          time.Now,
	}
}

// SetClock overrides the engine's clock (tests).
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// CreateTask locks the requester-chosen stake and opens the task for
// acceptance. Create-and-fund is atomic.
func (s *Service) CreateTask(ctx context.Context, caller uuid.UUID, taskType, details string, stakeCents int64) (*models.HelpTask, error) {
	if stakeCents < s.cfg.HelpMinStakeCents {
		return nil, fmt.Errorf("%w: stake %d is below the minimum %d", ErrPrecondition, stakeCents, s.cfg.HelpMinStakeCents)
	}
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.registry.EnsureRegistered(ctx, tx, caller); err != nil {
		return nil, err
	}
	t := &models.HelpTask{
		Requester: caller,
		TaskType:  taskType,
		Details:   details,
		Status:    models.HelpOpen,
		Expiry:    s.now().Add(s.cfg.HelpAcceptWindow),
	}
	if err := s.repo.Create(ctx, tx, t); err != nil {
		return nil, err
	}
	if err := s.ledger.TransferInto(ctx, tx, caller, models.FamilyHelp, t.ID, stakeCents); err != nil {
		return nil, err
	}
	t.StakeCents = stakeCents
	if err := s.repo.Update(ctx, tx, t); err != nil {
		return nil, err
	}
	if err := s.emit(ctx, tx, t, models.EventTaskCreated, caller); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// AcceptTask commits the caller as the helper. No helper stake is required;
// custody is requester-funded only. Acceptance re-arms the expiry to the
// auto-complete deadline.
func (s *Service) AcceptTask(ctx context.Context, id int64, caller uuid.UUID) (*models.HelpTask, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.registry.EnsureRegistered(ctx, tx, caller); err != nil {
		return nil, err
	}
	t, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != models.HelpOpen {
		return nil, fmt.Errorf("%w: task is %s, not open", ErrPrecondition, t.Status)
	}
	if s.now().After(t.Expiry) {
		return nil, fmt.Errorf("%w: accept window expired", ErrPrecondition)
	}
	if caller == t.Requester {
		return nil, fmt.Errorf("%w: requester cannot accept own task", ErrPrecondition)
	}
	t.Helper = &caller
	t.Status = models.HelpAccepted
	t.Expiry = s.now().Add(s.cfg.HelpAutoWindow)
	if err := s.repo.Update(ctx, tx, t); err != nil {
		return nil, err
	}
	if err := s.emit(ctx, tx, t, models.EventTaskAccepted, caller); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// CompleteTask pays the full stake to the helper. The helper may claim any
// time once accepted; after the auto-complete deadline anyone may trigger
// the payout, so a silent requester cannot strand the helper's reward.
// Repeat calls fail the accepted-state check with no side effect.
func (s *Service) CompleteTask(ctx context.Context, id int64, caller uuid.UUID) (*models.HelpTask, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	t, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != models.HelpAccepted {
		return nil, fmt.Errorf("%w: task is %s, not accepted", ErrPrecondition, t.Status)
	}
	if (t.Helper == nil || caller != *t.Helper) && s.now().Before(t.Expiry) {
		return nil, fmt.Errorf("%w: only the helper may complete before the auto-complete deadline", ErrPrecondition)
	}
	if err := s.ledger.TransferOut(ctx, tx, *t.Helper, models.FamilyHelp, t.ID, t.StakeCents); err != nil {
		return nil, err
	}
	t.StakeCents = 0
	t.Status = models.HelpCompleted
	if err := s.repo.Update(ctx, tx, t); err != nil {
		return nil, err
	}
	if err := s.emit(ctx, tx, t, models.EventTaskCompleted, caller); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// CancelTask refunds the requester in full. Only possible while the task is
// still open: once a helper has committed, only completion ends the task.
func (s *Service) CancelTask(ctx context.Context, id int64, caller uuid.UUID) (*models.HelpTask, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	t, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if caller != t.Requester {
		return nil, fmt.Errorf("%w: only the requester may cancel", ErrUnauthorized)
	}
	if t.Status != models.HelpOpen {
		return nil, fmt.Errorf("%w: task is %s, cancel is only possible while open", ErrPrecondition, t.Status)
	}
	if err := s.ledger.TransferOut(ctx, tx, t.Requester, models.FamilyHelp, t.ID, t.StakeCents); err != nil {
		return nil, err
	}
	t.StakeCents = 0
	t.Status = models.HelpCancelled
	if err := s.repo.Update(ctx, tx, t); err != nil {
		return nil, err
	}
	if err := s.emit(ctx, tx, t, models.EventTaskCancelled, caller); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) emit(ctx context.Context, tx pgx.Tx, t *models.HelpTask, evType string, actor uuid.UUID) error {
	e := &models.TaskEvent{
		Family: models.FamilyHelp,
		TaskID: t.ID,
		Type:   evType,
		Actor:  actor,
	}
	if err := s.events.Append(ctx, tx, e); err != nil {
		return err
	}
	if s.insertNotify == nil {
		return nil
	}
	return s.insertNotify(ctx, tx, events.NotifyEventJobArgs{
		EventID: e.ID,
		Family:  e.Family,
		TaskID:  e.TaskID,
		Type:    e.Type,
		Actor:   e.Actor,
		Payload: json.RawMessage(nil),
	})
}
