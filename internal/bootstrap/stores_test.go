package bootstrap

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"illustrator/internal/infra"
)

func TestOpenStoresMemory(t *testing.T) {
	stores, err := OpenStores(context.Background(), &infra.Config{StoreDriver: infra.StoreDriverMemory}, zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenStores() error: %v", err)
	}
	defer stores.Close()
	if err := stores.Ledger.EnsureAccount(context.Background(), "acc-1"); err != nil {
		t.Fatalf("EnsureAccount() error: %v", err)
	}
	if _, err := stores.Ledger.GetAccount(context.Background(), "acc-1"); err != nil {
		t.Fatalf("GetAccount() error: %v", err)
	}
	if stores.Ping != nil {
		t.Fatalf("memory stores should not report a pinger")
	}
}

func TestOpenStoresUnknownDriver(t *testing.T) {
	if _, err := OpenStores(context.Background(), &infra.Config{StoreDriver: "sqlite"}, zerolog.Nop()); err == nil {
		t.Fatalf("OpenStores() expected error for unknown driver")
	}
}
