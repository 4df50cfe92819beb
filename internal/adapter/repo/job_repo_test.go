package repo

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"illustrator/internal/domain"
)

func jobRow(status string) []any {
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return []any{
		"job-1", "acc-1", true, "photo", status, "watercolor", 3, 2, 1,
		[]byte(`["generated/images/job-1/image-00.png"]`),
		[]byte(`[1]`),
		[]byte(`["uploads/job-1/input-00.png","uploads/job-1/input-01.png","uploads/job-1/input-02.png"]`),
		[]byte(`{"summary":"two kids at a beach"}`),
		"generated/images/job-1/image-00.png",
		"",
		created,
		created,
		nil,
	}
}

func TestJobGetDecodesJSONColumns(t *testing.T) {
	exec := &stubExecutor{row: func(dest ...any) error { return assign(dest, jobRow("processing")) }}
	job, err := NewJobRepository(exec).Get(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if job.Status != domain.JobStatusProcessing || job.Kind != domain.JobKindPhoto {
		t.Fatalf("status/kind = %s/%s", job.Status, job.Kind)
	}
	if len(job.InputKeys) != 3 || len(job.ResultIDs) != 1 || len(job.FailedIndices) != 1 || job.FailedIndices[0] != 1 {
		t.Fatalf("decoded job = %+v", job)
	}
	if job.SceneAnalysis == nil || job.SceneAnalysis.Summary != "two kids at a beach" {
		t.Fatalf("scene analysis = %+v", job.SceneAnalysis)
	}
	if job.StartedAt == nil || job.CompletedAt != nil {
		t.Fatalf("timestamps started=%v completed=%v", job.StartedAt, job.CompletedAt)
	}
}

func TestJobGuardedWritesReportRowsAffected(t *testing.T) {
	exec := &stubExecutor{affected: 0}
	repo := NewJobRepository(exec)
	ctx := context.Background()

	if ok, err := repo.MarkProcessing(ctx, "job-1", time.Now()); err != nil || ok {
		t.Fatalf("MarkProcessing = %v, %v; want false, nil", ok, err)
	}
	exec.affected = 1
	if ok, err := repo.Finish(ctx, "job-1", domain.JobStatusCompleted, "", time.Now()); err != nil || !ok {
		t.Fatalf("Finish = %v, %v; want true, nil", ok, err)
	}
}

func TestJobSaveProgressSortsFailedIndices(t *testing.T) {
	exec := &stubExecutor{affected: 1}
	ok, err := NewJobRepository(exec).SaveProgress(context.Background(), "job-1", domain.Progress{
		CompletedImages: 3,
		FailedIndices:   []int{2, 0},
	})
	if err != nil || !ok {
		t.Fatalf("SaveProgress = %v, %v", ok, err)
	}
	var failed []int
	if err := json.Unmarshal(exec.lastArgs[3].([]byte), &failed); err != nil {
		t.Fatalf("decode failed indices: %v", err)
	}
	if len(failed) != 2 || failed[0] != 0 || failed[1] != 2 {
		t.Fatalf("failed indices = %v, want [0 2]", failed)
	}
	if string(exec.lastArgs[2].([]byte)) != "[]" {
		t.Fatalf("result ids = %s, want []", exec.lastArgs[2])
	}
}

func TestJobFailFrom(t *testing.T) {
	exec := &stubExecutor{}
	repo := NewJobRepository(exec)

	job, ok, err := repo.FailFrom(context.Background(), "job-1", []domain.JobStatus{domain.JobStatusProcessing}, "stale", time.Now())
	if err != nil || ok || job != nil {
		t.Fatalf("FailFrom on lost race = %v, %v, %v", job, ok, err)
	}

	exec.row = func(dest ...any) error { return assign(dest, jobRow("failed")) }
	job, ok, err = repo.FailFrom(context.Background(), "job-1", []domain.JobStatus{domain.JobStatusProcessing}, "stale", time.Now())
	if err != nil || !ok {
		t.Fatalf("FailFrom = %v, %v", ok, err)
	}
	if job.CompletedImages != 2 || job.Unresolved() != 1 {
		t.Fatalf("completed = %d unresolved = %d", job.CompletedImages, job.Unresolved())
	}
	statuses := exec.lastArgs[1].([]string)
	if len(statuses) != 1 || statuses[0] != "processing" {
		t.Fatalf("status args = %v", statuses)
	}
}
