package memstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"illustrator/internal/domain"
)

// Jobs is an in-memory domain.JobRepository with the same status guards as the SQL one.
type Jobs struct {
	mu   sync.Mutex
	jobs map[string]domain.ConversionJob
}

func NewJobs() *Jobs {
	return &Jobs{jobs: make(map[string]domain.ConversionJob)}
}

func (s *Jobs) Create(ctx context.Context, job *domain.ConversionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return domain.ErrConflict
	}
	s.jobs[job.ID] = cloneJob(*job)
	return nil
}

func (s *Jobs) Get(ctx context.Context, jobID string) (*domain.ConversionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneJob(job)
	return &out, nil
}

func (s *Jobs) MarkProcessing(ctx context.Context, jobID string, startedAt time.Time) (bool, error) {
	return s.update(jobID, []domain.JobStatus{domain.JobStatusPending}, func(job *domain.ConversionJob) {
		job.Status = domain.JobStatusProcessing
		job.StartedAt = &startedAt
	})
}

func (s *Jobs) SaveProgress(ctx context.Context, jobID string, progress domain.Progress) (bool, error) {
	p := progress.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || job.Status != domain.JobStatusProcessing || job.CompletedImages > p.CompletedImages {
		return false, nil
	}
	job.CompletedImages = p.CompletedImages
	job.ResultIDs = p.ResultIDs
	job.FailedIndices = p.FailedIndices
	job.StyleReferenceKey = p.StyleReferenceKey
	s.jobs[jobID] = job
	return true, nil
}

func (s *Jobs) Finish(ctx context.Context, jobID string, status domain.JobStatus, errMsg string, completedAt time.Time) (bool, error) {
	return s.update(jobID, []domain.JobStatus{domain.JobStatusProcessing}, func(job *domain.ConversionJob) {
		job.Status = status
		job.ErrorMessage = errMsg
		job.CompletedAt = &completedAt
	})
}

func (s *Jobs) FailFrom(ctx context.Context, jobID string, from []domain.JobStatus, errMsg string, at time.Time) (*domain.ConversionJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || !slices.Contains(from, job.Status) {
		return nil, false, nil
	}
	job.Status = domain.JobStatusFailed
	job.ErrorMessage = errMsg
	job.CompletedAt = &at
	s.jobs[jobID] = job
	out := cloneJob(job)
	return &out, true, nil
}

// Put overwrites a job as-is.
func (s *Jobs) Put(job domain.ConversionJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = cloneJob(job)
}

func (s *Jobs) update(jobID string, from []domain.JobStatus, apply func(*domain.ConversionJob)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || !slices.Contains(from, job.Status) {
		return false, nil
	}
	apply(&job)
	s.jobs[jobID] = job
	return true, nil
}

func cloneJob(job domain.ConversionJob) domain.ConversionJob {
	out := job
	out.ResultIDs = slices.Clone(job.ResultIDs)
	out.FailedIndices = slices.Clone(job.FailedIndices)
	out.InputKeys = slices.Clone(job.InputKeys)
	if job.SceneAnalysis != nil {
		scene := *job.SceneAnalysis
		scene.Subjects = slices.Clone(job.SceneAnalysis.Subjects)
		scene.Background = slices.Clone(job.SceneAnalysis.Background)
		out.SceneAnalysis = &scene
	}
	return out
}

var _ domain.JobRepository = (*Jobs)(nil)
