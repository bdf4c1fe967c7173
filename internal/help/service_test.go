package help

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kindredhq/backend/internal/config"
	"github.com/kindredhq/backend/internal/ledger"
	"github.com/kindredhq/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory fakes (same shape as the exchange engine tests).
// ---------------------------------------------------------------------------

type stubTx struct{ pgx.Tx }

func (stubTx) Commit(context.Context) error   { return nil }
func (stubTx) Rollback(context.Context) error { return nil }

type fakeRepo struct {
	mu    sync.Mutex
	seq   int64
	tasks map[int64]*models.HelpTask
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{tasks: make(map[int64]*models.HelpTask)}
}

func (r *fakeRepo) Begin(context.Context) (pgx.Tx, error) { return stubTx{}, nil }

func (r *fakeRepo) Create(_ context.Context, _ pgx.Tx, t *models.HelpTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	t.ID = r.seq
	t.CreatedAt = time.Now()
	cp := *t
	r.tasks[t.ID] = &cp
	return nil
}

func (r *fakeRepo) GetForUpdate(_ context.Context, _ pgx.Tx, id int64) (*models.HelpTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *fakeRepo) Update(_ context.Context, _ pgx.Tx, t *models.HelpTask) error {
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

func newFakeLedger() *fakeLedger {
	return &fakeLedger{balances: make(map[uuid.UUID]int64), custody: make(map[string]int64)}
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
	if l.balances[from] < amount {
		return ledger.ErrInsufficientFunds
	}
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

func (l *fakeLedger) custodyOf(taskID int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.custody[key(models.FamilyHelp, taskID)]
}

type fakeRegistry struct {
	mu   sync.Mutex
	seen map[uuid.UUID]int
}

func (r *fakeRegistry) EnsureRegistered(_ context.Context, _ pgx.Tx, party uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen == nil {
		r.seen = make(map[uuid.UUID]int)
	}
	r.seen[party]++
	return nil
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

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

const minStake = int64(500)

type harness struct {
	svc    *Service
	ledger *fakeLedger
	clock  *fakeClock
	cfg    config.Config
}

func newHarness() *harness {
	h := &harness{
		ledger: newFakeLedger(),
		clock:  &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		cfg: config.Config{
			HelpMinStakeCents: minStake,
			HelpAcceptWindow:  72 * time.Hour,
			HelpAutoWindow:    72 * time.Hour,
		},
	}
	h.svc = NewService(newFakeRepo(), h.ledger, &fakeRegistry{}, &fakeSink{}, nil, h.cfg)
	h.svc.SetClock(h.clock.Now)
	return h
}

func (h *harness) fund(party uuid.UUID, amount int64) {
	h.ledger.mu.Lock()
	defer h.ledger.mu.Unlock()
	h.ledger.balances[party] += amount
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestCreateTask(t *testing.T) {
	h := newHarness()
	requester := uuid.New()
	h.fund(requester, 1000)
	ctx := context.Background()

	// Below the minimum floor.
	if _, err := h.svc.CreateTask(ctx, requester, "errand", "pick up parcel", minStake-1); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("stake below minimum: got %v, want ErrPrecondition", err)
	}
	// Nothing was moved by the rejected create.
	if got := h.ledger.balance(requester); got != 1000 {
		t.Errorf("balance after rejection: got %d, want 1000", got)
	}

	task, err := h.svc.CreateTask(ctx, requester, "errand", "pick up parcel", 800)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.Status != models.HelpOpen {
		t.Fatalf("status: got %s, want open", task.Status)
	}
	if got := h.ledger.balance(requester); got != 200 {
		t.Errorf("balance after create: got %d, want 200", got)
	}
	if got := h.ledger.custodyOf(task.ID); got != 800 {
		t.Errorf("custody: got %d, want 800", got)
	}

	// No funds, no record.
	broke := uuid.New()
	if _, err := h.svc.CreateTask(ctx, broke, "errand", "x", minStake); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("broke create: got %v, want ErrInsufficientFunds", err)
	}
}

// ---------------------------------------------------------------------------
// Accept
// ---------------------------------------------------------------------------

func TestAcceptTask(t *testing.T) {
	h := newHarness()
	requester := uuid.New()
	helper := uuid.New()
	h.fund(requester, minStake)
	ctx := context.Background()

	task, err := h.svc.CreateTask(ctx, requester, "moving", "carry boxes", minStake)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	// Self-dealing.
	if _, err := h.svc.AcceptTask(ctx, task.ID, requester); !errors.Is(err, ErrPrecondition) {
		t.Errorf("self accept: got %v, want ErrPrecondition", err)
	}

	task, err = h.svc.AcceptTask(ctx, task.ID, helper)
	if err != nil {
		t.Fatalf("AcceptTask: %v", err)
	}
	if task.Status != models.HelpAccepted {
		t.Fatalf("status: got %s, want accepted", task.Status)
	}
	if task.Helper == nil || *task.Helper != helper {
		t.Fatal("helper should be recorded")
	}
	// Helper stakes nothing.
	if got := h.ledger.balance(helper); got != 0 {
		t.Errorf("helper balance: got %d, want 0", got)
	}

	// Helper slot is taken; once accepted it stays accepted.
	if _, err := h.svc.AcceptTask(ctx, task.ID, uuid.New()); !errors.Is(err, ErrPrecondition) {
		t.Errorf("second accept: got %v, want ErrPrecondition", err)
	}
}

func TestAcceptAfterWindowExpired(t *testing.T) {
	h := newHarness()
	requester := uuid.New()
	h.fund(requester, minStake)
	ctx := context.Background()

	task, err := h.svc.CreateTask(ctx, requester, "garden", "mow lawn", minStake)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	h.clock.Advance(h.cfg.HelpAcceptWindow + time.Minute)
	if _, err := h.svc.AcceptTask(ctx, task.ID, uuid.New()); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("accept after window: got %v, want ErrPrecondition", err)
	}
}

// ---------------------------------------------------------------------------
// Complete: helper claim, timeout auto-complete, exactly-once payout.
// ---------------------------------------------------------------------------

func TestCompleteByHelper(t *testing.T) {
	h := newHarness()
	requester := uuid.New()
	helper := uuid.New()
	h.fund(requester, 900)
	ctx := context.Background()

	task, err := h.svc.CreateTask(ctx, requester, "errand", "queue for tickets", 900)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, err := h.svc.AcceptTask(ctx, task.ID, helper); err != nil {
		t.Fatalf("AcceptTask: %v", err)
	}
	task, err = h.svc.CompleteTask(ctx, task.ID, helper)
	if err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if task.Status != models.HelpCompleted {
		t.Fatalf("status: got %s, want completed", task.Status)
	}
	if got := h.ledger.balance(helper); got != 900 {
		t.Errorf("helper payout: got %d, want 900", got)
	}
	if got := h.ledger.custodyOf(task.ID); got != 0 {
		t.Errorf("custody after payout: got %d, want 0", got)
	}

	// Exactly-once payout.
	if _, err := h.svc.CompleteTask(ctx, task.ID, helper); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("second complete: got %v, want ErrPrecondition", err)
	}
	if got := h.ledger.balance(helper); got != 900 {
		t.Errorf("helper balance after repeat: got %d, want 900", got)
	}
}

// A silent requester cannot strand the reward: once the auto-complete
// deadline passes, anyone may trigger the payout and the helper is paid.
func TestAutoCompleteAfterDeadline(t *testing.T) {
	h := newHarness()
	requester := uuid.New()
	helper := uuid.New()
	bystander := uuid.New()
	h.fund(requester, minStake)
	ctx := context.Background()

	task, err := h.svc.CreateTask(ctx, requester, "repair", "fix bike", minStake)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, err := h.svc.AcceptTask(ctx, task.ID, helper); err != nil {
		t.Fatalf("AcceptTask: %v", err)
	}

	// Before the deadline, only the helper can complete.
	if _, err := h.svc.CompleteTask(ctx, task.ID, bystander); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("early third-party complete: got %v, want ErrPrecondition", err)
	}

	h.clock.Advance(h.cfg.HelpAutoWindow + time.Minute)

	task, err = h.svc.CompleteTask(ctx, task.ID, bystander)
	if err != nil {
		t.Fatalf("auto complete: %v", err)
	}
	if task.Status != models.HelpCompleted {
		t.Fatalf("status: got %s, want completed", task.Status)
	}
	// Payout goes to the helper, not the caller.
	if got := h.ledger.balance(helper); got != minStake {
		t.Errorf("helper payout: got %d, want %d", got, minStake)
	}
	if got := h.ledger.balance(bystander); got != 0 {
		t.Errorf("bystander balance: got %d, want 0", got)
	}

	// Redundant timeout calls fail cleanly.
	if _, err := h.svc.CompleteTask(ctx, task.ID, bystander); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("repeat auto complete: got %v, want ErrPrecondition", err)
	}
}

// ---------------------------------------------------------------------------
// Cancel
// ---------------------------------------------------------------------------

func TestCancelTask(t *testing.T) {
	h := newHarness()
	requester := uuid.New()
	helper := uuid.New()
	h.fund(requester, 2*minStake)
	ctx := context.Background()

	task, err := h.svc.CreateTask(ctx, requester, "errand", "return library books", minStake)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, err := h.svc.CancelTask(ctx, task.ID, helper); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("cancel by stranger: got %v, want ErrUnauthorized", err)
	}
	task, err = h.svc.CancelTask(ctx, task.ID, requester)
	if err != nil {
		t.Fatalf("CancelTask: %v", err)
	}
	if task.Status != models.HelpCancelled {
		t.Fatalf("status: got %s, want cancelled", task.Status)
	}
	if got := h.ledger.balance(requester); got != 2*minStake {
		t.Errorf("refund: got %d, want %d", got, 2*minStake)
	}

	// Once a helper committed, cancel is closed.
	task2, err := h.svc.CreateTask(ctx, requester, "errand", "water plants", minStake)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, err := h.svc.AcceptTask(ctx, task2.ID, helper); err != nil {
		t.Fatalf("AcceptTask: %v", err)
	}
	if _, err := h.svc.CancelTask(ctx, task2.ID, requester); !errors.Is(err, ErrPrecondition) {
		t.Errorf("cancel after accept: got %v, want ErrPrecondition", err)
	}
	if got := h.ledger.custodyOf(task2.ID); got != minStake {
		t.Errorf("custody after rejected cancel: got %d, want %d", got, minStake)
	}
}

func TestHelpTaskNotFound(t *testing.T) {
	h := newHarness()
	if _, err := h.svc.AcceptTask(context.Background(), 7, uuid.New()); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("got %v, want ErrTaskNotFound", err)
	}
}
