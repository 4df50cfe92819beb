// Package bootstrap builds the record stores shared by the binaries.
package bootstrap

import (
	"context"
	"fmt"

	"illustrator/internal/adapter/memstore"
	"illustrator/internal/adapter/repo"
	"illustrator/internal/domain"
	"illustrator/internal/infra"
)

// LedgerStore is a ledger repository that can also provision accounts.
type LedgerStore interface {
	domain.LedgerRepository
	EnsureAccount(ctx context.Context, accountID string) error
}

type Stores struct {
	Ledger LedgerStore
	Jobs   domain.JobRepository
	Ping   func(ctx context.Context) error
	Close  func()
}

// OpenStores connects the configured STORE_DRIVER. With postgres, pending migrations are
// applied first when MIGRATE_ON_START is set.
func OpenStores(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*Stores, error) {
	switch cfg.StoreDriver {
	case infra.StoreDriverMemory:
		logger.Warn().Msg("bootstrap: using in-memory stores, data is lost on restart")
		return &Stores{
			Ledger: memstore.NewLedger(),
			Jobs:   memstore.NewJobs(),
			Close:  func() {},
		}, nil
	case infra.StoreDriverPostgres:
		if cfg.MigrateOnStart {
			if err := infra.Migrate(cfg.DatabaseURL); err != nil {
				return nil, err
			}
			logger.Info().Msg("bootstrap: migrations applied")
		}
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		runner := infra.NewSQLRunner(pool, logger)
		return &Stores{
			Ledger: repo.NewLedgerRepository(runner),
			Jobs:   repo.NewJobRepository(runner),
			Ping:   pool.Ping,
			Close:  pool.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}
}
