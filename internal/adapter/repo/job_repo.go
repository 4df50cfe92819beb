package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"illustrator/internal/domain"
	"illustrator/internal/infra"
	"illustrator/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	db infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(db infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{db: db}
}

// Create inserts a new pending job.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.ConversionJob) error {
	inputKeys, err := json.Marshal(nonNilStrings(job.InputKeys))
	if err != nil {
		return fmt.Errorf("encode input keys: %w", err)
	}
	var scene []byte
	if !job.SceneAnalysis.Empty() {
		if scene, err = json.Marshal(job.SceneAnalysis); err != nil {
			return fmt.Errorf("encode scene analysis: %w", err)
		}
	}

	_, err = r.db.Exec(ctx, sqlinline.QInsertConversionJob,
		job.ID,
		job.OwnerID,
		job.Authenticated,
		string(job.Kind),
		string(job.Status),
		job.StyleID,
		job.TotalImages,
		job.CreditCost,
		inputKeys,
		scene,
		job.CreatedAt,
	)
	if infra.IsUniqueViolation(err) {
		return fmt.Errorf("%w: job %s already exists", domain.ErrConflict, job.ID)
	}
	return err
}

// Get fetches a job by its identifier.
func (r *JobRepositoryPG) Get(ctx context.Context, jobID string) (*domain.ConversionJob, error) {
	job, err := scanJob(r.db.QueryRow(ctx, sqlinline.QSelectConversionJob, jobID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

func (r *JobRepositoryPG) MarkProcessing(ctx context.Context, jobID string, startedAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, sqlinline.QMarkJobProcessing, jobID, startedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SaveProgress persists per-input outcomes while the job is still processing.
func (r *JobRepositoryPG) SaveProgress(ctx context.Context, jobID string, progress domain.Progress) (bool, error) {
	p := progress.Clone()
	resultIDs, err := json.Marshal(nonNilStrings(p.ResultIDs))
	if err != nil {
		return false, fmt.Errorf("encode result ids: %w", err)
	}
	failed, err := json.Marshal(nonNilInts(p.FailedIndices))
	if err != nil {
		return false, fmt.Errorf("encode failed indices: %w", err)
	}
	tag, err := r.db.Exec(ctx, sqlinline.QSaveJobProgress, jobID, p.CompletedImages, resultIDs, failed, p.StyleReferenceKey)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *JobRepositoryPG) Finish(ctx context.Context, jobID string, status domain.JobStatus, errMsg string, completedAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, sqlinline.QFinishJob, jobID, string(status), errMsg, completedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// FailFrom moves the job to failed when its status is one of from.
func (r *JobRepositoryPG) FailFrom(ctx context.Context, jobID string, from []domain.JobStatus, errMsg string, at time.Time) (*domain.ConversionJob, bool, error) {
	statuses := make([]string, 0, len(from))
	for _, s := range from {
		statuses = append(statuses, string(s))
	}
	job, err := scanJob(r.db.QueryRow(ctx, sqlinline.QFailJobFrom, jobID, statuses, errMsg, at))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return job, true, nil
}

func scanJob(row pgx.Row) (*domain.ConversionJob, error) {
	var (
		job                               domain.ConversionJob
		kind, status                      string
		resultIDs, failed, inputs, sceneJ []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&job.Authenticated,
		&kind,
		&status,
		&job.StyleID,
		&job.TotalImages,
		&job.CompletedImages,
		&job.CreditCost,
		&resultIDs,
		&failed,
		&inputs,
		&sceneJ,
		&job.StyleReferenceKey,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
	); err != nil {
		return nil, err
	}
	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)

	if err := decodeJSON(resultIDs, &job.ResultIDs); err != nil {
		return nil, fmt.Errorf("decode result ids: %w", err)
	}
	if err := decodeJSON(failed, &job.FailedIndices); err != nil {
		return nil, fmt.Errorf("decode failed indices: %w", err)
	}
	if err := decodeJSON(inputs, &job.InputKeys); err != nil {
		return nil, fmt.Errorf("decode input keys: %w", err)
	}
	if len(sceneJ) > 0 {
		var scene domain.SceneAnalysis
		if err := json.Unmarshal(sceneJ, &scene); err != nil {
			return nil, fmt.Errorf("decode scene analysis: %w", err)
		}
		job.SceneAnalysis = &scene
	}
	return &job, nil
}

func decodeJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func nonNilInts(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
