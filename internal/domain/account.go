package domain

import "time"

// CreditPool identifies which balance a transaction touched.
type CreditPool string

const (
	CreditPoolFree  CreditPool = "free"
	CreditPoolPaid  CreditPool = "paid"
	CreditPoolBonus CreditPool = "bonus"
)

// Transaction reasons written by the ledger.
const (
	ReasonDailyReset        = "daily_reset"
	ReasonConversion        = "conversion"
	ReasonRefundPartial     = "conversion_partial_refund"
	ReasonRefundFailed      = "conversion_failed_refund"
	ReasonRefundFatal       = "conversion_fatal_refund"
	ReasonRefundStale       = "conversion_stale_refund"
	ReasonRefundSubmission  = "conversion_submit_refund"
	ReasonRefundFailedItems = "conversion_failed_items_refund"
	ReasonPurchase          = "purchase"
	ReasonBonus             = "bonus"
)

// Account holds the two credit pools owned by an authenticated user.
type Account struct {
	ID                 string
	FreeCredits        int
	PaidCredits        int
	FreeCreditsResetAt *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Total returns the spendable balance across both pools.
func (a Account) Total() int {
	return a.FreeCredits + a.PaidCredits
}

// Snapshot captures the mutable credit fields of an account.
func (a Account) Snapshot() BalanceSnapshot {
	return BalanceSnapshot{Free: a.FreeCredits, Paid: a.PaidCredits, ResetAt: a.FreeCreditsResetAt}
}

// BalanceSnapshot is the compare-and-swap unit of the ledger.
type BalanceSnapshot struct {
	Free    int
	Paid    int
	ResetAt *time.Time
}

// Total returns free + paid.
func (s BalanceSnapshot) Total() int {
	return s.Free + s.Paid
}

// CreditTransaction is an immutable ledger entry. Negative amounts spend, positive amounts grant or refund.
type CreditTransaction struct {
	ID           string
	AccountID    string
	Amount       int
	Pool         CreditPool
	Reason       string
	ReferenceID  string
	BalanceAfter int
	CreatedAt    time.Time
}

// CreditMutation applies Next to an account only if it still holds Expected, appending
// Transactions in the same write.
type CreditMutation struct {
	AccountID    string
	Expected     BalanceSnapshot
	Next         BalanceSnapshot
	Transactions []CreditTransaction
}

// AnonymousUsage is a spend (positive units) or compensation (negative units) event for a legacy id.
type AnonymousUsage struct {
	ID          string
	LegacyID    string
	Units       int
	Reason      string
	ReferenceID string
	CreatedAt   time.Time
}
