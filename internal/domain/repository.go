package domain

import (
	"context"
	"time"
)

// LedgerRepository persists accounts, the credit transaction log and anonymous usage.
type LedgerRepository interface {
	GetAccount(ctx context.Context, accountID string) (*Account, error)
	// ApplyCreditMutation returns false without writing anything when the account no longer matches m.Expected.
	ApplyCreditMutation(ctx context.Context, m CreditMutation) (bool, error)
	ListTransactions(ctx context.Context, accountID string, limit, offset int) ([]CreditTransaction, error)
	SumAnonymousUsage(ctx context.Context, legacyID string, since time.Time) (int, error)
	RecordAnonymousUsage(ctx context.Context, usage AnonymousUsage) error
	// AnonymousReservedAt returns when the positive usage for refID was recorded. ok is false when there is none.
	AnonymousReservedAt(ctx context.Context, legacyID, refID string) (at time.Time, ok bool, err error)
}

// JobRepository persists conversion jobs. Every mutating call is guarded by the expected
// current status and reports false when the guard did not hold.
type JobRepository interface {
	Create(ctx context.Context, job *ConversionJob) error
	Get(ctx context.Context, jobID string) (*ConversionJob, error)
	MarkProcessing(ctx context.Context, jobID string, startedAt time.Time) (bool, error)
	SaveProgress(ctx context.Context, jobID string, progress Progress) (bool, error)
	Finish(ctx context.Context, jobID string, status JobStatus, errMsg string, completedAt time.Time) (bool, error)
	// FailFrom moves the job to failed only if it is currently in one of from, returning the row as it was
	// at the moment of the transition.
	FailFrom(ctx context.Context, jobID string, from []JobStatus, errMsg string, at time.Time) (*ConversionJob, bool, error)
}

// BlobStore is an opaque byte store keyed by string.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get returns ErrNotFound when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, keys []string) error
}
