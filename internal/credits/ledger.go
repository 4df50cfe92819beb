// Package credits implements the two-pool credit ledger and the anonymous daily quota.
package credits

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"illustrator/internal/domain"
	"illustrator/internal/infra"
)

const (
	defaultDailyFree      = 3
	defaultAnonymousLimit = 3
	maxMutationAttempts   = 5

	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// Owner identifies who pays for an operation. Anonymous owners are keyed by their legacy id.
type Owner struct {
	ID            string
	Authenticated bool
}

// Reservation reports the balances left after a successful reserve. For anonymous owners
// FreeAfter is the remaining daily allowance.
type Reservation struct {
	FreeAfter int
	PaidAfter int
}

type Balance struct {
	Free  int `json:"free"`
	Paid  int `json:"paid"`
	Total int `json:"total"`
}

// Options tunes the ledger. Zero values fall back to the production defaults.
type Options struct {
	DailyFreeCredits    int
	AnonymousDailyLimit int
	Now                 func() time.Time
	NewID               func() string
	Metrics             *infra.Metrics
}

// Ledger applies every balance change as a compare-and-swap against the snapshot it read,
// retrying a bounded number of times when another writer got there first.
type Ledger struct {
	repo    domain.LedgerRepository
	logger  zerolog.Logger
	daily   int
	anonCap int
	now     func() time.Time
	newID   func() string
	metrics *infra.Metrics
}

func NewLedger(repo domain.LedgerRepository, logger zerolog.Logger, opts Options) *Ledger {
	l := &Ledger{
		repo:    repo,
		logger:  logger,
		daily:   opts.DailyFreeCredits,
		anonCap: opts.AnonymousDailyLimit,
		now:     opts.Now,
		newID:   opts.NewID,
		metrics: opts.Metrics,
	}
	if l.daily <= 0 {
		l.daily = defaultDailyFree
	}
	if l.anonCap <= 0 {
		l.anonCap = defaultAnonymousLimit
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.newID == nil {
		l.newID = uuid.NewString
	}
	return l
}

// Reserve deducts cost from the owner. Free credits are drained before paid ones.
// On any error nothing has been written.
func (l *Ledger) Reserve(ctx context.Context, owner Owner, cost int, reason, refID string) (Reservation, error) {
	if cost <= 0 {
		return Reservation{}, fmt.Errorf("%w: cost must be positive", domain.ErrInvalidInput)
	}
	if !owner.Authenticated {
		return l.reserveAnonymous(ctx, owner.ID, cost, reason, refID)
	}

	for attempt := 0; attempt < maxMutationAttempts; attempt++ {
		acc, err := l.repo.GetAccount(ctx, owner.ID)
		if err != nil {
			return Reservation{}, err
		}
		now := l.clock()
		m := l.withReset(acc, now)
		if m.Next.Total() < cost {
			return Reservation{}, domain.ErrInsufficientCredits
		}

		fromFree := min(m.Next.Free, cost)
		fromPaid := cost - fromFree
		m.Next.Free -= fromFree
		m.Next.Paid -= fromPaid

		pool := domain.CreditPoolFree
		if fromFree == 0 {
			pool = domain.CreditPoolPaid
		}
		m.Transactions = append(m.Transactions, l.transaction(acc.ID, -cost, pool, reason, refID, m.Next.Total(), now))

		ok, err := l.repo.ApplyCreditMutation(ctx, m)
		if err != nil {
			return Reservation{}, fmt.Errorf("ledger: apply reservation: %w", err)
		}
		if ok {
			l.metrics.Reserved(cost)
			return Reservation{FreeAfter: m.Next.Free, PaidAfter: m.Next.Paid}, nil
		}
		l.logger.Debug().Str("account_id", owner.ID).Int("attempt", attempt+1).Msg("ledger: reservation lost race, retrying")
	}
	return Reservation{}, domain.ErrConflict
}

func (l *Ledger) reserveAnonymous(ctx context.Context, legacyID string, cost int, reason, refID string) (Reservation, error) {
	now := l.clock()
	used, err := l.repo.SumAnonymousUsage(ctx, legacyID, DayStart(now))
	if err != nil {
		l.logger.Warn().Err(err).Str("legacy_id", legacyID).Msg("ledger: anonymous usage unavailable, allowing request")
		used = 0
	} else if used+cost > l.anonCap {
		return Reservation{}, domain.ErrAnonymousLimitReached
	}

	usage := domain.AnonymousUsage{
		ID:          l.newID(),
		LegacyID:    legacyID,
		Units:       cost,
		Reason:      reason,
		ReferenceID: refID,
		CreatedAt:   now,
	}
	if err := l.repo.RecordAnonymousUsage(ctx, usage); err != nil {
		l.logger.Warn().Err(err).Str("legacy_id", legacyID).Msg("ledger: record anonymous usage failed")
	}
	l.metrics.Reserved(cost)
	return Reservation{FreeAfter: max(l.anonCap-used-cost, 0)}, nil
}

// Refund credits the paid pool. Free credits are never restored. Anonymous owners get a
// compensating usage event dated at the reservation it offsets, so only that day's allowance
// comes back. Without a recorded reservation for refID there is nothing to offset.
func (l *Ledger) Refund(ctx context.Context, owner Owner, amount int, reason, refID string) error {
	if amount <= 0 {
		return nil
	}
	if !owner.Authenticated {
		if refID == "" {
			return nil
		}
		reservedAt, ok, err := l.repo.AnonymousReservedAt(ctx, owner.ID, refID)
		if err != nil {
			return fmt.Errorf("ledger: anonymous refund: %w", err)
		}
		if !ok {
			l.logger.Debug().Str("legacy_id", owner.ID).Str("ref", refID).Msg("ledger: no anonymous reservation to refund")
			return nil
		}
		err = l.repo.RecordAnonymousUsage(ctx, domain.AnonymousUsage{
			ID:          l.newID(),
			LegacyID:    owner.ID,
			Units:       -amount,
			Reason:      reason,
			ReferenceID: refID,
			CreatedAt:   reservedAt,
		})
		if err != nil {
			return fmt.Errorf("ledger: anonymous refund: %w", err)
		}
		l.metrics.Refunded(reason, amount)
		return nil
	}

	_, err := l.credit(ctx, owner.ID, amount, domain.CreditPoolPaid, reason, refID)
	if err != nil {
		return fmt.Errorf("ledger: refund: %w", err)
	}
	l.metrics.Refunded(reason, amount)
	return nil
}

// Grant adds purchased or bonus credits to the paid balance.
func (l *Ledger) Grant(ctx context.Context, accountID string, amount int, pool domain.CreditPool, reason, refID string) (Balance, error) {
	if amount <= 0 {
		return Balance{}, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidInput)
	}
	if pool != domain.CreditPoolPaid && pool != domain.CreditPoolBonus {
		return Balance{}, fmt.Errorf("%w: grants go to the paid or bonus pool", domain.ErrInvalidInput)
	}
	return l.credit(ctx, accountID, amount, pool, reason, refID)
}

func (l *Ledger) credit(ctx context.Context, accountID string, amount int, pool domain.CreditPool, reason, refID string) (Balance, error) {
	for attempt := 0; attempt < maxMutationAttempts; attempt++ {
		acc, err := l.repo.GetAccount(ctx, accountID)
		if err != nil {
			return Balance{}, err
		}
		now := l.clock()
		m := l.withReset(acc, now)
		m.Next.Paid += amount
		m.Transactions = append(m.Transactions, l.transaction(acc.ID, amount, pool, reason, refID, m.Next.Total(), now))

		ok, err := l.repo.ApplyCreditMutation(ctx, m)
		if err != nil {
			return Balance{}, err
		}
		if ok {
			return balanceOf(m.Next), nil
		}
	}
	return Balance{}, domain.ErrConflict
}

// Balance reads the owner's credits, persisting the daily reset when it is due.
func (l *Ledger) Balance(ctx context.Context, owner Owner) (Balance, error) {
	if !owner.Authenticated {
		used, err := l.repo.SumAnonymousUsage(ctx, owner.ID, DayStart(l.clock()))
		if err != nil {
			return Balance{}, fmt.Errorf("ledger: anonymous usage: %w", err)
		}
		left := max(l.anonCap-used, 0)
		return Balance{Free: left, Total: left}, nil
	}

	for attempt := 0; attempt < maxMutationAttempts; attempt++ {
		acc, err := l.repo.GetAccount(ctx, owner.ID)
		if err != nil {
			return Balance{}, err
		}
		now := l.clock()
		if !resetDue(acc.FreeCreditsResetAt, now) {
			return balanceOf(acc.Snapshot()), nil
		}
		m := l.withReset(acc, now)
		ok, err := l.repo.ApplyCreditMutation(ctx, m)
		if err != nil {
			return Balance{}, err
		}
		if ok {
			l.logger.Info().Str("account_id", owner.ID).Int("free", m.Next.Free).Msg("ledger: daily free credits reset")
			return balanceOf(m.Next), nil
		}
	}
	return Balance{}, domain.ErrConflict
}

// History lists the account's transactions, newest first.
func (l *Ledger) History(ctx context.Context, accountID string, limit, offset int) ([]domain.CreditTransaction, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)
	offset = max(offset, 0)
	return l.repo.ListTransactions(ctx, accountID, limit, offset)
}

// withReset starts a mutation from acc, topping the free pool up to the daily allotment
// when a KST midnight has passed since the last reset.
func (l *Ledger) withReset(acc *domain.Account, now time.Time) domain.CreditMutation {
	m := domain.CreditMutation{
		AccountID: acc.ID,
		Expected:  acc.Snapshot(),
		Next:      acc.Snapshot(),
	}
	if !resetDue(acc.FreeCreditsResetAt, now) {
		return m
	}
	delta := l.daily - acc.FreeCredits
	m.Next.Free = l.daily
	m.Next.ResetAt = &now
	if delta != 0 {
		m.Transactions = append(m.Transactions, l.transaction(acc.ID, delta, domain.CreditPoolFree, domain.ReasonDailyReset, "", m.Next.Total(), now))
	}
	return m
}

func (l *Ledger) transaction(accountID string, amount int, pool domain.CreditPool, reason, refID string, balanceAfter int, now time.Time) domain.CreditTransaction {
	return domain.CreditTransaction{
		ID:           l.newID(),
		AccountID:    accountID,
		Amount:       amount,
		Pool:         pool,
		Reason:       reason,
		ReferenceID:  refID,
		BalanceAfter: balanceAfter,
		CreatedAt:    now,
	}
}

// clock returns now at the precision the store keeps, so a snapshot read back compares equal.
func (l *Ledger) clock() time.Time {
	return l.now().UTC().Truncate(time.Microsecond)
}

func balanceOf(s domain.BalanceSnapshot) Balance {
	return Balance{Free: s.Free, Paid: s.Paid, Total: s.Total()}
}
