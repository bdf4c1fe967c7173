package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kindredhq/backend/internal/models"
)

var errInsufficientFunds = errors.New("insufficient funds")

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Mint credits `to` from the mint system account. The mint account's balance
// goes negative by the total ever issued, which keeps the sum over all
// accounts at zero (double-entry).
func (r *Repository) Mint(ctx context.Context, tx pgx.Tx, to uuid.UUID, amountCents int64) error {
	if _, err := tx.Exec(ctx, `
		UPDATE accounts SET balance_cents = balance_cents - $1 WHERE id = $2
	`, amountCents, models.MintAccountID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE accounts SET balance_cents = balance_cents + $1 WHERE id = $2
	`, amountCents, to); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO transactions (tx_type, debit_account_id, credit_account_id, amount_cents)
		VALUES ('MINT', $1, $2, $3)
	`, models.MintAccountID, to, amountCents)
	return err
}

// TransferInto moves amountCents from a party into escrow custody for the
// given task. The conditional UPDATE is the funds check: zero rows affected
// means the balance was too low, and nothing has been written.
func (r *Repository) TransferInto(ctx context.Context, tx pgx.Tx, from uuid.UUID, family string, taskID int64, amountCents int64) error {
	result, err := tx.Exec(ctx, `
		UPDATE accounts SET balance_cents = balance_cents - $1
		WHERE id = $2 AND balance_cents >= $1
	`, amountCents, from)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return errInsufficientFunds
	}
	if _, err := tx.Exec(ctx, `
		UPDATE accounts SET balance_cents = balance_cents + $1 WHERE id = $2
	`, amountCents, models.EscrowAccountID); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO transactions (tx_type, task_family, task_id, debit_account_id, credit_account_id, amount_cents)
		VALUES ('STAKE_LOCK', $1, $2, $3, $4, $5)
	`, family, taskID, from, models.EscrowAccountID, amountCents)
	return err
}

// TransferOut releases amountCents of a task's custody to a party. Callers
// never release more than they transferred in; the escrow account update
// fails only on ledger-level corruption.
func (r *Repository) TransferOut(ctx context.Context, tx pgx.Tx, to uuid.UUID, family string, taskID int64, amountCents int64) error {
	if _, err := tx.Exec(ctx, `
		UPDATE accounts SET balance_cents = balance_cents - $1 WHERE id = $2
	`, amountCents, models.EscrowAccountID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE accounts SET balance_cents = balance_cents + $1 WHERE id = $2
	`, amountCents, to); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO transactions (tx_type, task_family, task_id, debit_account_id, credit_account_id, amount_cents)
		VALUES ('STAKE_RELEASE', $1, $2, $3, $4, $5)
	`, family, taskID, models.EscrowAccountID, to, amountCents)
	return err
}

func (r *Repository) BalanceOf(ctx context.Context, party uuid.UUID) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx, `
		SELECT balance_cents FROM accounts WHERE id = $1
	`, party).Scan(&balance)
	return balance, err
}

// CustodyFor returns the value currently held in escrow for one task:
// locks in minus releases out.
func (r *Repository) CustodyFor(ctx context.Context, family string, taskID int64) (int64, error) {
	var custody int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(CASE WHEN tx_type = 'STAKE_LOCK' THEN amount_cents ELSE -amount_cents END), 0)
		FROM transactions WHERE task_family = $1 AND task_id = $2
	`, family, taskID).Scan(&custody)
	return custody, err
}
