package infra

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.JobSubmitted()
	m.JobFinished("completed")
	m.GenerationAttempt("no_image")
	m.QualityVerdict(true)
	m.Reserved(3)
	m.Refunded("x", 1)
	m.WatchdogRecovered("pending")
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.Reserved(5)
	m.Refunded("conversion_partial_refund", 2)
	m.Refunded("conversion_partial_refund", 0)
	m.QualityVerdict(false)

	if got := testutil.ToFloat64(m.CreditsReserved); got != 5 {
		t.Fatalf("credits reserved = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.CreditsRefunded.WithLabelValues("conversion_partial_refund")); got != 2 {
		t.Fatalf("credits refunded = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.QualityVerdicts.WithLabelValues("fail")); got != 1 {
		t.Fatalf("quality fail verdicts = %v, want 1", got)
	}
}

func TestMigrateURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@db:5432/app":   "pgx5://u:p@db:5432/app",
		"postgresql://u:p@db:5432/app": "pgx5://u:p@db:5432/app",
		"pgx5://already":               "pgx5://already",
	}
	for in, want := range tests {
		if got := migrateURL(in); got != want {
			t.Fatalf("migrateURL(%q) = %q, want %q", in, got, want)
		}
	}
}
