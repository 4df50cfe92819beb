package infra

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

type recordingQuerier struct {
	lastSQL string
}

func (q *recordingQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.lastSQL = sql
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (q *recordingQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	q.lastSQL = sql
	return errorRow{err: pgx.ErrNoRows}
}

func (q *recordingQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.lastSQL = sql
	return nil, errors.New("not implemented")
}

func TestSQLRunnerStripsMarker(t *testing.T) {
	q := &recordingQuerier{}
	runner := NewSQLRunner(q, zerolog.Nop())

	query := "--sql 0b0c8b0e-5d0a-4c5e-9a57-5c6b4a3f2e10\nupdate accounts set free_credits = 3;"
	tag, err := runner.Exec(context.Background(), query)
	if err != nil {
		t.Fatalf("Exec error: %v", err)
	}
	if tag.RowsAffected() != 1 {
		t.Fatalf("RowsAffected = %d, want 1", tag.RowsAffected())
	}
	if strings.Contains(q.lastSQL, "--sql") {
		t.Fatalf("marker leaked into statement: %q", q.lastSQL)
	}
	if !strings.HasPrefix(strings.TrimSpace(q.lastSQL), "update accounts") {
		t.Fatalf("unexpected statement %q", q.lastSQL)
	}
}

func TestSQLRunnerRejectsMissingMarker(t *testing.T) {
	runner := NewSQLRunner(&recordingQuerier{}, zerolog.Nop())

	if _, err := runner.Exec(context.Background(), "select 1"); err == nil {
		t.Fatalf("expected error for missing marker")
	}
	if err := runner.QueryRow(context.Background(), "select 1").Scan(); err == nil {
		t.Fatalf("expected scan error for missing marker")
	}
}

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(pgx.ErrNoRows) {
		t.Fatalf("IsNoRows(pgx.ErrNoRows) = false")
	}
	if IsNoRows(errors.New("other")) {
		t.Fatalf("IsNoRows(other) = true")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})) {
		t.Fatalf("wrapped 23505 not detected")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23514"}) || IsUniqueViolation(nil) {
		t.Fatalf("non unique errors reported as unique violations")
	}
}
