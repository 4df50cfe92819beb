package conversion

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"illustrator/internal/domain"
	"illustrator/internal/infra"
)

const (
	defaultPendingStaleAfter    = 60 * time.Second
	defaultProcessingStaleAfter = 5 * time.Minute

	stalePendingMessage    = "processing never started"
	staleProcessingMessage = "processing timed out"
)

// Watchdog fails jobs whose background task evidently died. Only the caller whose
// conditional update wins refunds, so racing status reads refund once.
type Watchdog struct {
	jobs            domain.JobRepository
	blobs           domain.BlobStore
	refunds         refunder
	logger          zerolog.Logger
	metrics         *infra.Metrics
	now             func() time.Time
	pendingAfter    time.Duration
	processingAfter time.Duration
}

// Check returns job unchanged unless it is stale, in which case it returns the failed view.
func (w *Watchdog) Check(ctx context.Context, job *domain.ConversionJob) (*domain.ConversionJob, error) {
	now := w.now()
	switch {
	case job.Status == domain.JobStatusPending && now.Sub(job.CreatedAt) > w.pendingLimit():
		return w.expire(ctx, job, domain.JobStatusPending, stalePendingMessage, func(failed *domain.ConversionJob) int {
			return failed.ReservedCredits()
		})
	case job.Status == domain.JobStatusProcessing && job.StartedAt != nil && now.Sub(*job.StartedAt) > w.processingLimit():
		return w.expire(ctx, job, domain.JobStatusProcessing, staleProcessingMessage, func(failed *domain.ConversionJob) int {
			return failed.CreditCost * failed.Unresolved()
		})
	default:
		return job, nil
	}
}

func (w *Watchdog) expire(ctx context.Context, job *domain.ConversionJob, from domain.JobStatus, msg string, owed func(*domain.ConversionJob) int) (*domain.ConversionJob, error) {
	log := w.logger.With().Str("job_id", job.ID).Str("from", string(from)).Logger()
	failed, ok, err := w.jobs.FailFrom(ctx, job.ID, []domain.JobStatus{from}, msg, w.now().UTC())
	if err != nil {
		return nil, err
	}
	if !ok {
		// Someone else moved the job first; report what is stored now.
		return w.jobs.Get(ctx, job.ID)
	}

	log.Warn().Msg("conversion: stale job failed by watchdog")
	w.metrics.WatchdogRecovered(string(from))
	w.metrics.JobFinished(string(domain.JobStatusFailed))
	w.refunds.refund(ctx, ownerOf(failed), owed(failed), domain.ReasonRefundStale, failed.ID)
	if len(failed.InputKeys) > 0 {
		if err := w.blobs.Delete(context.WithoutCancel(ctx), failed.InputKeys); err != nil {
			log.Warn().Err(err).Msg("conversion: blob cleanup failed")
		}
	}
	return failed, nil
}

func (w *Watchdog) pendingLimit() time.Duration {
	if w.pendingAfter > 0 {
		return w.pendingAfter
	}
	return defaultPendingStaleAfter
}

func (w *Watchdog) processingLimit() time.Duration {
	if w.processingAfter > 0 {
		return w.processingAfter
	}
	return defaultProcessingStaleAfter
}
