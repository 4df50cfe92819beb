package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeGo(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLint(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "a.go", "package q\n\nconst QGood = `--sql 11111111-2222-4333-8444-555555555555\nselect 1;`\n\nconst QMissing = `select 2;`\n\nconst Prose = \"keep the style consistent with the anchor\"\n")
	writeGo(t, dir, "a2.go", "package q\n\nconst cols = `a, b`\n\nconst QJoined = `select ` + cols + ` from t;`\n")
	writeGo(t, dir, "b.go", "package q\n\nconst QDup = `--sql 11111111-2222-4333-8444-555555555555\nupdate t set x = 1;`\n\nconst QBad = `--sql not-a-uuid\ndelete from t;`\n")

	violations, err := lint([]string{dir})
	if err != nil {
		t.Fatalf("lint() error: %v", err)
	}
	got := map[string]string{}
	for _, v := range violations {
		got[v.name] = v.message
	}
	if len(got) != 4 {
		t.Fatalf("violations = %+v, want QMissing, QJoined, QDup and QBad", violations)
	}
	if !strings.Contains(got["QMissing"], "missing") || !strings.Contains(got["QBad"], "missing") || !strings.Contains(got["QJoined"], "missing") {
		t.Fatalf("marker violations = %v", got)
	}
	if !strings.Contains(got["QDup"], "already used by QGood") {
		t.Fatalf("duplicate violation = %q", got["QDup"])
	}
}

func TestLintRepositoryQueries(t *testing.T) {
	violations, err := lint([]string{"../../sqlinline"})
	if err != nil {
		t.Fatalf("lint() error: %v", err)
	}
	if len(violations) != 0 {
		t.Fatalf("sqlinline violations: %+v", violations)
	}
}
