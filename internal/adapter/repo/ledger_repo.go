package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"illustrator/internal/domain"
	"illustrator/internal/infra"
	"illustrator/internal/sqlinline"
)

// LedgerRepositoryPG implements domain.LedgerRepository backed by PostgreSQL.
type LedgerRepositoryPG struct {
	db infra.SQLExecutor
}

// NewLedgerRepository creates a ledger repository over the given executor.
func NewLedgerRepository(db infra.SQLExecutor) *LedgerRepositoryPG {
	return &LedgerRepositoryPG{db: db}
}

// GetAccount fetches the credit pools of an account.
func (r *LedgerRepositoryPG) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	var acc domain.Account
	err := r.db.QueryRow(ctx, sqlinline.QSelectAccount, accountID).Scan(
		&acc.ID,
		&acc.FreeCredits,
		&acc.PaidCredits,
		&acc.FreeCreditsResetAt,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &acc, nil
}

// EnsureAccount creates an empty account when it does not exist yet.
func (r *LedgerRepositoryPG) EnsureAccount(ctx context.Context, accountID string) error {
	_, err := r.db.Exec(ctx, sqlinline.QEnsureAccount, accountID)
	return err
}

type transactionRecord struct {
	ID           string    `json:"id"`
	AccountID    string    `json:"account_id"`
	Amount       int       `json:"amount"`
	Pool         string    `json:"pool"`
	Reason       string    `json:"reason"`
	ReferenceID  string    `json:"reference_id"`
	BalanceAfter int       `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
}

// ApplyCreditMutation writes the next balance and its transactions in one statement,
// provided the stored balance still equals m.Expected.
func (r *LedgerRepositoryPG) ApplyCreditMutation(ctx context.Context, m domain.CreditMutation) (bool, error) {
	records := make([]transactionRecord, 0, len(m.Transactions))
	for _, tx := range m.Transactions {
		records = append(records, transactionRecord{
			ID:           tx.ID,
			AccountID:    tx.AccountID,
			Amount:       tx.Amount,
			Pool:         string(tx.Pool),
			Reason:       tx.Reason,
			ReferenceID:  tx.ReferenceID,
			BalanceAfter: tx.BalanceAfter,
			CreatedAt:    tx.CreatedAt.UTC(),
		})
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return false, fmt.Errorf("encode transactions: %w", err)
	}

	var updated, inserted int
	err = r.db.QueryRow(ctx, sqlinline.QApplyCreditMutation,
		m.AccountID,
		m.Expected.Free,
		m.Expected.Paid,
		m.Expected.ResetAt,
		m.Next.Free,
		m.Next.Paid,
		m.Next.ResetAt,
		payload,
	).Scan(&updated, &inserted)
	if err != nil {
		return false, err
	}
	if updated == 0 {
		return false, nil
	}
	if inserted != len(records) {
		return false, fmt.Errorf("credit mutation inserted %d of %d transactions", inserted, len(records))
	}
	return true, nil
}

// ListTransactions returns the newest transactions first.
func (r *LedgerRepositoryPG) ListTransactions(ctx context.Context, accountID string, limit, offset int) ([]domain.CreditTransaction, error) {
	rows, err := r.db.Query(ctx, sqlinline.QSelectCreditTransactions, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CreditTransaction
	for rows.Next() {
		var tx domain.CreditTransaction
		var pool string
		if err := rows.Scan(
			&tx.ID,
			&tx.AccountID,
			&tx.Amount,
			&pool,
			&tx.Reason,
			&tx.ReferenceID,
			&tx.BalanceAfter,
			&tx.CreatedAt,
		); err != nil {
			return nil, err
		}
		tx.Pool = domain.CreditPool(pool)
		out = append(out, tx)
	}
	return out, rows.Err()
}

// SumAnonymousUsage totals the units recorded for a legacy id since the given instant.
func (r *LedgerRepositoryPG) SumAnonymousUsage(ctx context.Context, legacyID string, since time.Time) (int, error) {
	var total int
	if err := r.db.QueryRow(ctx, sqlinline.QSumAnonymousUsage, legacyID, since).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *LedgerRepositoryPG) RecordAnonymousUsage(ctx context.Context, usage domain.AnonymousUsage) error {
	_, err := r.db.Exec(ctx, sqlinline.QInsertAnonymousUsage,
		usage.ID,
		usage.LegacyID,
		usage.Units,
		usage.Reason,
		usage.ReferenceID,
		usage.CreatedAt,
	)
	return err
}

func (r *LedgerRepositoryPG) AnonymousReservedAt(ctx context.Context, legacyID, refID string) (time.Time, bool, error) {
	var at time.Time
	err := r.db.QueryRow(ctx, sqlinline.QAnonymousReservedAt, legacyID, refID).Scan(&at)
	if err != nil {
		if infra.IsNoRows(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return at, true, nil
}

var _ domain.LedgerRepository = (*LedgerRepositoryPG)(nil)
