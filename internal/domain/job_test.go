package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestFinalStatus(t *testing.T) {
	tests := []struct {
		succeeded, failed int
		want              JobStatus
	}{
		{4, 0, JobStatusCompleted},
		{2, 2, JobStatusPartial},
		{1, 3, JobStatusPartial},
		{0, 4, JobStatusFailed},
		{0, 0, JobStatusFailed},
	}
	for _, tc := range tests {
		if got := FinalStatus(tc.succeeded, tc.failed); got != tc.want {
			t.Fatalf("FinalStatus(%d, %d) = %s, want %s", tc.succeeded, tc.failed, got, tc.want)
		}
	}
}

func TestJobStatusTerminal(t *testing.T) {
	for _, s := range []JobStatus{JobStatusCompleted, JobStatusPartial, JobStatusFailed} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []JobStatus{JobStatusPending, JobStatusProcessing} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}

func TestErrorKind(t *testing.T) {
	wrapped := fmt.Errorf("reserve: %w", ErrInsufficientCredits)
	if got := ErrorKind(wrapped); got != CodeInsufficientCredits {
		t.Fatalf("ErrorKind = %s, want %s", got, CodeInsufficientCredits)
	}
	if got := ErrorKind(errors.New("boom")); got != CodeInternal {
		t.Fatalf("ErrorKind = %s, want %s", got, CodeInternal)
	}
	if got := ErrorKind(nil); got != "" {
		t.Fatalf("ErrorKind(nil) = %q, want empty", got)
	}
}

func TestProgressCloneSortsFailures(t *testing.T) {
	p := Progress{CompletedImages: 3, ResultIDs: []string{"a"}, FailedIndices: []int{3, 1}}
	c := p.Clone()
	c.ResultIDs[0] = "b"
	if p.ResultIDs[0] != "a" {
		t.Fatalf("clone shares result slice")
	}
	if c.FailedIndices[0] != 1 || c.FailedIndices[1] != 3 {
		t.Fatalf("failed indices = %v, want sorted", c.FailedIndices)
	}
}
