package exchange

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

// TaskRepo is the task-store contract the engine mutates records through.
// The engine never holds a copy across operations: every operation re-reads
// the row under a lock inside its own transaction.
type TaskRepo interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, tx pgx.Tx, t *models.ExchangeTask) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*models.ExchangeTask, error)
	Update(ctx context.Context, tx pgx.Tx, t *models.ExchangeTask) error
}

// EventSink appends transition events inside the operation's transaction.
type EventSink interface {
	Append(ctx context.Context, tx pgx.Tx, e *models.TaskEvent) error
}

// Service is the exchange task engine: a two-party gift exchange with
// matching, delivery attestation, mutual confirmation, cancellation, expiry
// and dispute. All operations are synchronous; each one validates caller,
// state and timing against the locked row, then commits ledger transfers and
// the record mutation together.
type Service struct {
	repo         TaskRepo
	ledger       ledger.Service
	registry     registry.Service
	events       EventSink
	insertNotify events.InsertNotifyTxFunc
	cfg          config.Config
	now          func() time.Time
}

// NewService creates the engine. insertNotify may be nil (no observer
// delivery); now defaults to time.Now.
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

// CreateTask locks the fixed stake from the caller and creates the task in
// pending. Create-and-fund is atomic: if the transfer fails nothing commits,
// so no record ever exists without its stake.
func (s *Service) CreateTask(ctx context.Context, caller uuid.UUID, city, deliveryInfo string, wishList []string) (*models.ExchangeTask, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.registry.EnsureRegistered(ctx, tx, caller); err != nil {
		return nil, err
	}

	now := s.now()
	t := &models.ExchangeTask{
		Creator:       caller,
		City:          city,
		DeliveryInfo:  deliveryInfo,
		WishList:      wishList,
		Status:        models.ExchangePending,
		PendingExpiry: now.Add(s.cfg.PendingWindow),
	}
	if err := s.repo.Create(ctx, tx, t); err != nil {
		return nil, err
	}
	if err := s.ledger.TransferInto(ctx, tx, caller, models.FamilyExchange, t.ID, s.cfg.ExchangeStakeCents); err != nil {
		return nil, err
	}
	t.StakeCents = s.cfg.ExchangeStakeCents
	if err := s.repo.Update(ctx, tx, t); err != nil {
		return nil, err
	}
	if err := s.emit(ctx, tx, t, models.EventTaskCreated, caller, nil); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// RequestMatch stakes the caller as the proposed partner. Matching is a
// proposal: the state stays pending until the creator approves, but the
// partner is fixed from here on.
func (s *Service) RequestMatch(ctx context.Context, id int64, caller uuid.UUID) (*models.ExchangeTask, error) {
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
	if t.Status != models.ExchangePending {
		return nil, fmt.Errorf("%w: task is %s, not pending", ErrPrecondition, t.Status)
	}
	if s.now().After(t.PendingExpiry) {
		return nil, fmt.Errorf("%w: match window expired", ErrPrecondition)
	}
	if caller == t.Creator {
		return nil, fmt.Errorf("%w: creator cannot match own task", ErrPrecondition)
	}
	if t.Partner != nil {
		return nil, fmt.Errorf("%w: a partner is already proposed", ErrPrecondition)
	}
	if err := s.ledger.TransferInto(ctx, tx, caller, models.FamilyExchange, t.ID, s.cfg.ExchangeStakeCents); err != nil {
		return nil, err
	}
	t.Partner = &caller
	t.StakeCents += s.cfg.ExchangeStakeCents
	if err := s.repo.Update(ctx, tx, t); err != nil {
		return nil, err
	}
	if err := s.emit(ctx, tx, t, models.EventMatchRequested, caller, nil); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// ApproveMatch lets the creator accept the proposed partner, binding the
// match and opening the delivery-entry window.
func (s *Service) ApproveMatch(ctx context.Context, id int64, caller uuid.UUID) (*models.ExchangeTask, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	t, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if caller != t.Creator {
		return nil, fmt.Errorf("%w: only the creator may approve a match", ErrUnauthorized)
	}
	if t.Status != models.ExchangePending {
		return nil, fmt.Errorf("%w: task is %s, not pending", ErrPrecondition, t.Status)
	}
	if t.Partner == nil {
		return nil, fmt.Errorf("%w: no partner proposed", ErrPrecondition)
	}
	t.Status = models.ExchangeMatched
	deadline := s.now().Add(s.cfg.DeliveryWindow)
	t.DeliveryDeadline = &deadline
	if err := s.repo.Update(ctx, tx, t); err != nil {
		return nil, err
	}
	if err := s.emit(ctx, tx, t, models.EventMatchApproved, caller, nil); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// EnterDelivery records the caller's attestation that their gift is on its
// way. The task advances to delivery once both parties have attested, which
// opens the confirmation window and closes the cancellation door for good.
func (s *Service) EnterDelivery(ctx context.Context, id int64, caller uuid.UUID, trackingRef string) (*models.ExchangeTask, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	t, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !t.IsParticipant(caller) {
		return nil, fmt.Errorf("%w: caller is not a participant", ErrUnauthorized)
	}
	if t.Status != models.ExchangeMatched && t.Status != models.ExchangeDelivery {
		return nil, fmt.Errorf("%w: task is %s, not matched or delivery", ErrPrecondition, t.Status)
	}
	if caller == t.Creator {
		if t.CreatorDelivered {
			return nil, fmt.Errorf("%w: creator already attested delivery", ErrPrecondition)
		}
		t.CreatorDelivered = true
	} else {
		if t.PartnerDelivered {
			return nil, fmt.Errorf("%w: partner already attested delivery", ErrPrecondition)
		}
		t.PartnerDelivered = true
	}
	if trackingRef != "" {
		t.TrackingRefs = append(t.TrackingRefs, trackingRef)
	}
	both := t.CreatorDelivered && t.PartnerDelivered
	if both {
		t.Status = models.ExchangeDelivery
		deadline := s.now().Add(s.cfg.ConfirmWindow)
		t.ConfirmDeadline = &deadline
	}
	if err := s.repo.Update(ctx, tx, t); err != nil {
		return nil, err
	}
	if err := s.emit(ctx, tx, t, models.EventDeliveryEntered, caller, map[string]any{"both_delivered": both}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// ConfirmDelivery records the caller's confirmation that the counterpart's
// gift arrived. When both parties have confirmed, each side's own stake is
// released back and the task completes. This is the only success path that
// returns both stakes in full.
func (s *Service) ConfirmDelivery(ctx context.Context, id int64, caller uuid.UUID) (*models.ExchangeTask, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	t, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !t.IsParticipant(caller) {
		return nil, fmt.Errorf("%w: caller is not a participant", ErrUnauthorized)
	}
	if t.Status != models.ExchangeDelivery {
		return nil, fmt.Errorf("%w: task is %s, not delivery", ErrPrecondition, t.Status)
	}
	if caller == t.Creator {
		if t.CreatorConfirmed {
			return nil, fmt.Errorf("%w: creator already confirmed", ErrPrecondition)
		}
		t.CreatorConfirmed = true
	} else {
		if t.PartnerConfirmed {
			return nil, fmt.Errorf("%w: partner already confirmed", ErrPrecondition)
		}
		t.PartnerConfirmed = true
	}
	both := t.CreatorConfirmed && t.PartnerConfirmed
	if both {
		// Each party staked half the pool; both get exactly their own
		// stake back.
		half := t.StakeCents / 2
		if err := s.ledger.TransferOut(ctx, tx, t.Creator, models.FamilyExchange, t.ID, half); err != nil {
			return nil, err
		}
		if err := s.ledger.TransferOut(ctx, tx, *t.Partner, models.FamilyExchange, t.ID, t.StakeCents-half); err != nil {
			return nil, err
		}
		t.StakeCents = 0
		t.Status = models.ExchangeCompleted
	}
	if err := s.repo.Update(ctx, tx, t); err != nil {
		return nil, err
	}
	if err := s.emit(ctx, tx, t, models.EventDeliveryConfirm, caller, map[string]any{"both_confirmed": both}); err != nil {
		return nil, err
	}
	if both {
		if err := s.emit(ctx, tx, t, models.EventTaskCompleted, caller, nil); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// CancelTask ends the task before any physical action may have started.
// From pending only the creator may cancel; from matched either party may,
// but only while neither side has attested delivery. Everyone staked so far
// is refunded in full.
func (s *Service) CancelTask(ctx context.Context, id int64, caller uuid.UUID) (*models.ExchangeTask, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	t, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	switch t.Status {
	case models.ExchangePending:
		if caller != t.Creator {
			return nil, fmt.Errorf("%w: only the creator may cancel a pending task", ErrUnauthorized)
		}
	case models.ExchangeMatched:
		if !t.IsParticipant(caller) {
			return nil, fmt.Errorf("%w: caller is not a participant", ErrUnauthorized)
		}
		if t.CreatorDelivered || t.PartnerDelivered {
			return nil, fmt.Errorf("%w: delivery has been attested, cancel is no longer possible", ErrPrecondition)
		}
	default:
		return nil, fmt.Errorf("%w: task is %s, cancel is only possible from pending or matched", ErrPrecondition, t.Status)
	}
	if err := s.refundAll(ctx, tx, t); err != nil {
		return nil, err
	}
	t.Status = models.ExchangeCancelled
	if err := s.repo.Update(ctx, tx, t); err != nil {
		return nil, err
	}
	if err := s.emit(ctx, tx, t, models.EventTaskCancelled, caller, nil); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// CheckPendingExpiry cancels a pending task whose match window has elapsed.
// Callable by anyone: nobody should stay trapped waiting on a counterpart,
// and firing it grants the caller nothing. Only the first call has effect;
// later ones fail the pending-state check.
func (s *Service) CheckPendingExpiry(ctx context.Context, id int64, caller uuid.UUID) (*models.ExchangeTask, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	t, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != models.ExchangePending {
		return nil, fmt.Errorf("%w: task is %s, not pending", ErrPrecondition, t.Status)
	}
	if !s.now().After(t.PendingExpiry) {
		return nil, fmt.Errorf("%w: match window has not expired yet", ErrPrecondition)
	}
	if err := s.refundAll(ctx, tx, t); err != nil {
		return nil, err
	}
	t.Status = models.ExchangeCancelled
	if err := s.repo.Update(ctx, tx, t); err != nil {
		return nil, err
	}
	if err := s.emit(ctx, tx, t, models.EventTaskExpired, caller, nil); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// DisputeTask freezes normal progress and hands the task to arbitration.
// It is the only exit from a stalled delivery: there is deliberately no
// timeout-to-completion for exchange tasks, since both parties are claimants
// and rewarding one side's inaction would be unfair.
func (s *Service) DisputeTask(ctx context.Context, id int64, caller uuid.UUID) (*models.ExchangeTask, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	t, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !t.IsParticipant(caller) {
		return nil, fmt.Errorf("%w: caller is not a participant", ErrUnauthorized)
	}
	if t.Status != models.ExchangeMatched && t.Status != models.ExchangeDelivery {
		return nil, fmt.Errorf("%w: task is %s, disputes open only from matched or delivery", ErrPrecondition, t.Status)
	}
	t.Status = models.ExchangeDisputed
	if err := s.repo.Update(ctx, tx, t); err != nil {
		return nil, err
	}
	if err := s.emit(ctx, tx, t, models.EventTaskDisputed, caller, nil); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// refundAll returns each staked party their own stake and zeroes the pool.
// With no partner the whole pool is the creator's stake; with a proposed or
// matched partner each side staked half.
func (s *Service) refundAll(ctx context.Context, tx pgx.Tx, t *models.ExchangeTask) error {
	if t.StakeCents == 0 {
		return nil
	}
	if t.Partner == nil {
		if err := s.ledger.TransferOut(ctx, tx, t.Creator, models.FamilyExchange, t.ID, t.StakeCents); err != nil {
			return err
		}
		t.StakeCents = 0
		return nil
	}
	half := t.StakeCents / 2
	if err := s.ledger.TransferOut(ctx, tx, t.Creator, models.FamilyExchange, t.ID, half); err != nil {
		return err
	}
	if err := s.ledger.TransferOut(ctx, tx, *t.Partner, models.FamilyExchange, t.ID, t.StakeCents-half); err != nil {
		return err
	}
	t.StakeCents = 0
	return nil
}

func (s *Service) emit(ctx context.Context, tx pgx.Tx, t *models.ExchangeTask, evType string, actor uuid.UUID, payload map[string]any) error {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		raw = b
	}
	e := &models.TaskEvent{
		Family:  models.FamilyExchange,
		TaskID:  t.ID,
		Type:    evType,
		Actor:   actor,
		Payload: raw,
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
		Payload: e.Payload,
	})
}
