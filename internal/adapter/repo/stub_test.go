package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

type stubRows struct {
	rows [][]any
	pos  int
}

func (r *stubRows) Close()                                       {}
func (r *stubRows) Err() error                                   { return nil }
func (r *stubRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) Values() ([]any, error)                       { return nil, fmt.Errorf("not supported") }
func (r *stubRows) RawValues() [][]byte                          { return nil }
func (r *stubRows) Conn() *pgx.Conn                              { return nil }

func (r *stubRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *stubRows) Scan(dest ...any) error {
	return assign(dest, r.rows[r.pos-1])
}

type stubExecutor struct {
	lastQuery string
	lastArgs  []any

	affected int64
	execErr  error
	row      func(dest ...any) error
	rows     [][]any
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.lastQuery, s.lastArgs = query, args
	if s.execErr != nil {
		return pgconn.CommandTag{}, s.execErr
	}
	return pgconn.NewCommandTag(fmt.Sprintf("UPDATE %d", s.affected)), nil
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.lastQuery, s.lastArgs = query, args
	return stubRow{scan: s.row}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	s.lastQuery, s.lastArgs = query, args
	return &stubRows{rows: s.rows}, nil
}

// assign copies values into scan destinations of matching pointer type.
func assign(dest []any, values []any) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(values))
	}
	for i, d := range dest {
		if err := assignOne(d, values[i]); err != nil {
			return fmt.Errorf("scan column %d: %w", i, err)
		}
	}
	return nil
}

func assignOne(dest, value any) error {
	switch d := dest.(type) {
	case *string:
		*d = value.(string)
	case *int:
		*d = value.(int)
	case *bool:
		*d = value.(bool)
	case *[]byte:
		if value == nil {
			*d = nil
			return nil
		}
		*d = value.([]byte)
	case *time.Time:
		*d = value.(time.Time)
	case **time.Time:
		if value == nil {
			*d = nil
			return nil
		}
		v := value.(time.Time)
		*d = &v
	default:
		return fmt.Errorf("unsupported destination %T", dest)
	}
	return nil
}
