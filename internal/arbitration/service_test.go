package arbitration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kindredhq/backend/internal/config"
	"github.com/kindredhq/backend/internal/exchange"
	"github.com/kindredhq/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory fakes. Tasks are seeded directly in the state the judge finds
// them in; custody matches the pooled stake.
// ---------------------------------------------------------------------------

type stubTx struct{ pgx.Tx }

func (stubTx) Commit(context.Context) error   { return nil }
func (stubTx) Rollback(context.Context) error { return nil }

type fakeRepo struct {
	mu    sync.Mutex
	tasks map[int64]*models.ExchangeTask
}

func (r *fakeRepo) Begin(context.Context) (pgx.Tx, error) { return stubTx{}, nil }

func (r *fakeRepo) GetForUpdate(_ context.Context, _ pgx.Tx, id int64) (*models.ExchangeTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, exchange.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *fakeRepo) Update(_ context.Context, _ pgx.Tx, t *models.ExchangeTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.tasks[t.ID] = &cp
	return nil
}

type fakeLedger struct {
	mu       sync.Mutex
	balances map[uuid.UUID]int64
	custody  map[string]int64
}

func key(family string, taskID int64) string { return fmt.Sprintf("%s/%d", family, taskID) }

func (l *fakeLedger) Mint(_ context.Context, _ pgx.Tx, to uuid.UUID, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[to] += amount
	return nil
}

func (l *fakeLedger) TransferInto(_ context.Context, _ pgx.Tx, from uuid.UUID, family string, taskID int64, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[from] -= amount
	l.custody[key(family, taskID)] += amount
	return nil
}

func (l *fakeLedger) TransferOut(_ context.Context, _ pgx.Tx, to uuid.UUID, family string, taskID int64, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := key(family, taskID)
	if l.custody[k] < amount {
		return fmt.Errorf("custody underflow for %s", k)
	}
	l.custody[k] -= amount
	l.balances[to] += amount
	return nil
}

func (l *fakeLedger) BalanceOf(_ context.Context, party uuid.UUID) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[party], nil
}

func (l *fakeLedger) CustodyFor(_ context.Context, family string, taskID int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.custody[key(family, taskID)], nil
}

func (l *fakeLedger) balance(p uuid.UUID) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[p]
}

type fakeSink struct {
	mu     sync.Mutex
	events []*models.TaskEvent
}

func (s *fakeSink) Append(_ context.Context, _ pgx.Tx, e *models.TaskEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	cp := *e
	s.events = append(s.events, &cp)
	return nil
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

const pool = int64(4000) // two stakes of 2000

type harness struct {
	svc     *Service
	repo    *fakeRepo
	ledger  *fakeLedger
	judge   uuid.UUID
	creator uuid.UUID
	partner uuid.UUID
}

func newHarness(status string, feeBps int64) *harness {
	h := &harness{
		repo:    &fakeRepo{tasks: make(map[int64]*models.ExchangeTask)},
		ledger:  &fakeLedger{balances: make(map[uuid.UUID]int64), custody: make(map[string]int64)},
		judge:   uuid.New(),
		creator: uuid.New(),
		partner: uuid.New(),
	}
	h.repo.tasks[1] = &models.ExchangeTask{
		ID:         1,
		Creator:    h.creator,
		Partner:    &h.partner,
		Status:     status,
		StakeCents: pool,
	}
	h.ledger.custody[key(models.FamilyExchange, 1)] = pool
	h.svc = NewService(h.repo, h.ledger, &fakeSink{}, nil, config.Config{ArbitrationFeeBps: feeBps})
	return h
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestResolveDisputeSplit(t *testing.T) {
	h := newHarness(models.ExchangeDisputed, 0)
	ctx := context.Background()

	task, err := h.svc.ResolveDispute(ctx, 1, h.judge, models.RoleJudge, models.OutcomeSplit)
	if err != nil {
		t.Fatalf("ResolveDispute: %v", err)
	}
	if task.Status != models.ExchangeCompleted {
		t.Fatalf("status: got %s, want completed", task.Status)
	}
	if got := h.ledger.balance(h.creator); got != pool/2 {
		t.Errorf("creator payout: got %d, want %d", got, pool/2)
	}
	if got := h.ledger.balance(h.partner); got != pool/2 {
		t.Errorf("partner payout: got %d, want %d", got, pool/2)
	}
	custody, _ := h.ledger.CustodyFor(ctx, models.FamilyExchange, 1)
	if custody != 0 {
		t.Errorf("custody after resolution: got %d, want 0", custody)
	}

	// A resolved dispute cannot be disputed or resolved again.
	if _, err := h.svc.ResolveDispute(ctx, 1, h.judge, models.RoleJudge, models.OutcomeSplit); !errors.Is(err, exchange.ErrPrecondition) {
		t.Fatalf("second resolution: got %v, want ErrPrecondition", err)
	}
	if got := h.ledger.balance(h.creator); got != pool/2 {
		t.Errorf("creator balance after repeat: got %d, want %d", got, pool/2)
	}
}

func TestResolveDisputeWinnerTakesPool(t *testing.T) {
	for _, tc := range []struct {
		outcome string
		winner  func(h *harness) uuid.UUID
	}{
		{models.OutcomeCreator, func(h *harness) uuid.UUID { return h.creator }},
		{models.OutcomePartner, func(h *harness) uuid.UUID { return h.partner }},
	} {
		h := newHarness(models.ExchangeDisputed, 0)
		task, err := h.svc.ResolveDispute(context.Background(), 1, h.judge, models.RoleJudge, tc.outcome)
		if err != nil {
			t.Fatalf("ResolveDispute(%s): %v", tc.outcome, err)
		}
		if task.Status != models.ExchangeCompleted {
			t.Errorf("%s: status %s, want completed", tc.outcome, task.Status)
		}
		if got := h.ledger.balance(tc.winner(h)); got != pool {
			t.Errorf("%s: winner payout %d, want %d", tc.outcome, got, pool)
		}
	}
}

func TestResolveDisputeSplitWithFee(t *testing.T) {
	h := newHarness(models.ExchangeDisputed, 1000) // 10%
	_, err := h.svc.ResolveDispute(context.Background(), 1, h.judge, models.RoleJudge, models.OutcomeSplit)
	if err != nil {
		t.Fatalf("ResolveDispute: %v", err)
	}
	fee := pool / 10
	half := (pool - fee) / 2
	if got := h.ledger.balance(models.PlatformAccountID); got != fee {
		t.Errorf("platform fee: got %d, want %d", got, fee)
	}
	if got := h.ledger.balance(h.creator); got != half {
		t.Errorf("creator payout: got %d, want %d", got, half)
	}
	if got := h.ledger.balance(h.partner); got != half {
		t.Errorf("partner payout: got %d, want %d", got, half)
	}
	// Fee + halves account for the entire pool.
	total := h.ledger.balance(models.PlatformAccountID) + h.ledger.balance(h.creator) + h.ledger.balance(h.partner)
	if total != pool {
		t.Errorf("conservation: paid out %d, pool was %d", total, pool)
	}
}

// A judge may also unstick a task stalled in delivery that nobody disputed.
func TestResolveFromDelivery(t *testing.T) {
	h := newHarness(models.ExchangeDelivery, 0)
	task, err := h.svc.ResolveDispute(context.Background(), 1, h.judge, models.RoleJudge, models.OutcomeSplit)
	if err != nil {
		t.Fatalf("ResolveDispute from delivery: %v", err)
	}
	if task.Status != models.ExchangeCompleted {
		t.Errorf("status: got %s, want completed", task.Status)
	}
}

func TestResolveGuards(t *testing.T) {
	h := newHarness(models.ExchangeDisputed, 0)
	ctx := context.Background()

	// Only judges.
	if _, err := h.svc.ResolveDispute(ctx, 1, h.creator, models.RoleParticipant, models.OutcomeSplit); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("participant resolving: got %v, want ErrUnauthorized", err)
	}
	// Unknown outcome.
	if _, err := h.svc.ResolveDispute(ctx, 1, h.judge, models.RoleJudge, "coinflip"); !errors.Is(err, ErrBadOutcome) {
		t.Errorf("bad outcome: got %v, want ErrBadOutcome", err)
	}
	// Unknown task.
	if _, err := h.svc.ResolveDispute(ctx, 99, h.judge, models.RoleJudge, models.OutcomeSplit); !errors.Is(err, exchange.ErrTaskNotFound) {
		t.Errorf("missing task: got %v, want ErrTaskNotFound", err)
	}
	// Arbitration applies only to delivery/disputed.
	hp := newHarness(models.ExchangePending, 0)
	if _, err := hp.svc.ResolveDispute(ctx, 1, hp.judge, models.RoleJudge, models.OutcomeSplit); !errors.Is(err, exchange.ErrPrecondition) {
		t.Errorf("resolving pending task: got %v, want ErrPrecondition", err)
	}
}
