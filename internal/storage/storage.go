// Package storage provides the blob stores used for conversion inputs and results.
package storage

import (
	"context"
	"fmt"

	"illustrator/internal/domain"
	"illustrator/internal/infra"
)

// New returns the blob store selected by STORAGE_DRIVER.
func New(ctx context.Context, cfg *infra.Config) (domain.BlobStore, error) {
	switch cfg.StorageDriver {
	case infra.StorageDriverS3:
		store, err := NewS3Store(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	case infra.StorageDriverFS, "":
		store, err := NewFileStore(cfg.StoragePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("storage: unsupported driver %q", cfg.StorageDriver)
	}
}
