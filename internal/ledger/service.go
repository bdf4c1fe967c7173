package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Service is the value-ledger contract the task engines consume. Mutating
// calls take the caller's transaction so stake movement and task state commit
// together or not at all.
type Service interface {
	Mint(ctx context.Context, tx pgx.Tx, to uuid.UUID, amountCents int64) error
	TransferInto(ctx context.Context, tx pgx.Tx, from uuid.UUID, family string, taskID int64, amountCents int64) error
	TransferOut(ctx context.Context, tx pgx.Tx, to uuid.UUID, family string, taskID int64, amountCents int64) error
	BalanceOf(ctx context.Context, party uuid.UUID) (int64, error)
	CustodyFor(ctx context.Context, family string, taskID int64) (int64, error)
}

type service struct {
	repo *Repository
}

func NewService(repo *Repository) Service {
	return &service{repo: repo}
}

var _ Service = (*service)(nil)

func (s *service) Mint(ctx context.Context, tx pgx.Tx, to uuid.UUID, amountCents int64) error {
	return s.repo.Mint(ctx, tx, to, amountCents)
}

func (s *service) TransferInto(ctx context.Context, tx pgx.Tx, from uuid.UUID, family string, taskID int64, amountCents int64) error {
	return s.repo.TransferInto(ctx, tx, from, family, taskID, amountCents)
}

func (s *service) TransferOut(ctx context.Context, tx pgx.Tx, to uuid.UUID, family string, taskID int64, amountCents int64) error {
	return s.repo.TransferOut(ctx, tx, to, family, taskID, amountCents)
}

func (s *service) BalanceOf(ctx context.Context, party uuid.UUID) (int64, error) {
	return s.repo.BalanceOf(ctx, party)
}

func (s *service) CustodyFor(ctx context.Context, family string, taskID int64) (int64, error) {
	return s.repo.CustodyFor(ctx, family, taskID)
}

// ErrInsufficientFunds is returned when a party's balance cannot cover the
// requested stake lock.
var ErrInsufficientFunds = errInsufficientFunds
