package registry

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kindredhq/backend/internal/ledger"
)

// Service admits participants. EnsureRegistered is idempotent: the welcome
// bonus is minted exactly once, on first admission, in the caller's
// transaction.
type Service interface {
	EnsureRegistered(ctx context.Context, tx pgx.Tx, party uuid.UUID) error
}

type service struct {
	repo       *Repository
	ledger     ledger.Service
	bonusCents int64
}

func NewService(repo *Repository, ledgerSvc ledger.Service, bonusCents int64) Service {
	return &service{repo: repo, ledger: ledgerSvc, bonusCents: bonusCents}
}

var _ Service = (*service)(nil)

func (s *service) EnsureRegistered(ctx context.Context, tx pgx.Tx, party uuid.UUID) error {
	first, err := s.repo.Admit(ctx, tx, party)
	if err != nil {
		return err
	}
	if !first || s.bonusCents <= 0 {
		return nil
	}
	return s.ledger.Mint(ctx, tx, party, s.bonusCents)
}
