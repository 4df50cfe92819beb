// Package memstore keeps accounts and jobs in process memory. It backs STORE_DRIVER=memory
// and the service tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"illustrator/internal/domain"
)

// Ledger is an in-memory domain.LedgerRepository.
type Ledger struct {
	mu           sync.Mutex
	accounts     map[string]domain.Account
	transactions []domain.CreditTransaction
	usage        []domain.AnonymousUsage

	// SumErr, when set, is returned by SumAnonymousUsage.
	SumErr error
}

func NewLedger() *Ledger {
	return &Ledger{accounts: make(map[string]domain.Account)}
}

// EnsureAccount creates an empty account with no reset recorded when it does not exist yet.
func (l *Ledger) EnsureAccount(ctx context.Context, accountID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.accounts[accountID]; ok {
		return nil
	}
	now := time.Now()
	l.accounts[accountID] = domain.Account{ID: accountID, CreatedAt: now, UpdatedAt: now}
	return nil
}

// PutAccount overwrites an account as-is.
func (l *Ledger) PutAccount(acc domain.Account) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[acc.ID] = acc
}

func (l *Ledger) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[accountID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if acc.FreeCreditsResetAt != nil {
		reset := *acc.FreeCreditsResetAt
		acc.FreeCreditsResetAt = &reset
	}
	return &acc, nil
}

func (l *Ledger) ApplyCreditMutation(ctx context.Context, m domain.CreditMutation) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[m.AccountID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if !sameSnapshot(acc.Snapshot(), m.Expected) {
		return false, nil
	}
	acc.FreeCredits = m.Next.Free
	acc.PaidCredits = m.Next.Paid
	if m.Next.ResetAt != nil {
		reset := *m.Next.ResetAt
		acc.FreeCreditsResetAt = &reset
	} else {
		acc.FreeCreditsResetAt = nil
	}
	acc.UpdatedAt = time.Now()
	l.accounts[m.AccountID] = acc
	l.transactions = append(l.transactions, m.Transactions...)
	return true, nil
}

func (l *Ledger) ListTransactions(ctx context.Context, accountID string, limit, offset int) ([]domain.CreditTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.CreditTransaction
	for i := len(l.transactions) - 1; i >= 0; i-- {
		if l.transactions[i].AccountID == accountID {
			out = append(out, l.transactions[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (l *Ledger) SumAnonymousUsage(ctx context.Context, legacyID string, since time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.SumErr != nil {
		return 0, l.SumErr
	}
	total := 0
	for _, u := range l.usage {
		if u.LegacyID == legacyID && !u.CreatedAt.Before(since) {
			total += u.Units
		}
	}
	return total, nil
}

func (l *Ledger) RecordAnonymousUsage(ctx context.Context, usage domain.AnonymousUsage) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.usage = append(l.usage, usage)
	return nil
}

func (l *Ledger) AnonymousReservedAt(ctx context.Context, legacyID, refID string) (time.Time, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var at time.Time
	found := false
	for _, u := range l.usage {
		if u.LegacyID != legacyID || u.ReferenceID != refID || u.Units <= 0 {
			continue
		}
		if !found || u.CreatedAt.Before(at) {
			at, found = u.CreatedAt, true
		}
	}
	return at, found, nil
}

// Transactions returns every recorded transaction for the account in insertion order.
func (l *Ledger) Transactions(accountID string) []domain.CreditTransaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.CreditTransaction
	for _, tx := range l.transactions {
		if tx.AccountID == accountID {
			out = append(out, tx)
		}
	}
	return out
}

func sameSnapshot(a, b domain.BalanceSnapshot) bool {
	if a.Free != b.Free || a.Paid != b.Paid {
		return false
	}
	switch {
	case a.ResetAt == nil && b.ResetAt == nil:
		return true
	case a.ResetAt == nil || b.ResetAt == nil:
		return false
	default:
		return a.ResetAt.Equal(*b.ResetAt)
	}
}

var _ domain.LedgerRepository = (*Ledger)(nil)
