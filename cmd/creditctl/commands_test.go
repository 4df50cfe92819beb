package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"illustrator/internal/adapter/memstore"
	"illustrator/internal/credits"
	"illustrator/internal/infra"
	"illustrator/internal/middleware"
)

const testAccount = "9a1c2b3d-4e5f-4a6b-8c7d-0e1f2a3b4c5d"

func useMemoryEnv(t *testing.T) {
	t.Helper()
	store := memstore.NewLedger()
	ledger := credits.NewLedger(store, zerolog.Nop(), credits.Options{})
	prev := openEnv
	openEnv = func(context.Context) (*env, error) {
		return &env{cfg: &infra.Config{JWTSecret: "cli-secret"}, ledger: ledger, accounts: store, close: func() {}}, nil
	}
	t.Cleanup(func() { openEnv = prev })
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestGrantBalanceHistory(t *testing.T) {
	useMemoryEnv(t)

	out, err := run(t, "grant", testAccount, "25", "--pool", "bonus", "--reason", "bonus", "--ref", "promo-1")
	if err != nil {
		t.Fatalf("grant error: %v", err)
	}
	if !strings.Contains(out, "paid=25") {
		t.Fatalf("grant output = %q", out)
	}

	out, err = run(t, "balance", testAccount)
	if err != nil || strings.TrimSpace(out) != "free=3 paid=25 total=28" {
		t.Fatalf("balance = %q, %v", out, err)
	}

	out, err = run(t, "history", testAccount, "--limit", "10", "--offset", "0")
	if err != nil {
		t.Fatalf("history error: %v", err)
	}
	if !strings.Contains(out, "promo-1") || !strings.Contains(out, "daily_reset") {
		t.Fatalf("history output = %q", out)
	}
}

func TestGrantRejectsBadInput(t *testing.T) {
	useMemoryEnv(t)
	for _, args := range [][]string{
		{"grant", "not-a-uuid", "5", "--pool", "paid", "--reason", "purchase", "--ref", ""},
		{"grant", testAccount, "-1", "--pool", "paid", "--reason", "purchase", "--ref", ""},
		{"grant", testAccount, "5", "--pool", "free", "--reason", "purchase", "--ref", ""},
	} {
		if _, err := run(t, args...); err == nil {
			t.Fatalf("run(%v) expected error", args)
		}
	}
}

func TestTokenIsVerifiable(t *testing.T) {
	useMemoryEnv(t)
	out, err := run(t, "token", testAccount, "--ttl", "1h")
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	sub, err := middleware.VerifyToken("cli-secret", strings.TrimSpace(out))
	if err != nil || sub != testAccount {
		t.Fatalf("VerifyToken = %q, %v", sub, err)
	}
}
