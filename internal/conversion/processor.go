package conversion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"illustrator/internal/domain"
	"illustrator/internal/generation"
	"illustrator/internal/infra"
	"illustrator/internal/providers/image"
)

// errOwnershipLost means a guarded write found the job no longer processing, i.e. the
// watchdog has already failed it and refunded the unresolved inputs.
var errOwnershipLost = errors.New("job is no longer processing")

// Processor is the slow path: it converts the inputs of one job sequentially.
type Processor struct {
	jobs      domain.JobRepository
	blobs     domain.BlobStore
	generator Generator
	refunds   refunder
	logger    zerolog.Logger
	metrics   *infra.Metrics
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	delay     time.Duration
}

// run is the per-job state threaded through the loop.
type run struct {
	job    *domain.ConversionJob
	log    zerolog.Logger
	style  generation.Style
	anchor *image.Part
	// saved is the last progress the store accepted.
	saved    domain.Progress
	progress domain.Progress
	firstErr string
}

// Process drives a pending job to a terminal status. It never returns an error: failures
// end in a failed job and a refund.
func (p *Processor) Process(ctx context.Context, jobID string) {
	log := p.logger.With().Str("job_id", jobID).Logger()
	job, err := p.jobs.Get(ctx, jobID)
	if err != nil {
		log.Error().Err(err).Msg("conversion: load job failed")
		return
	}

	ok, err := p.jobs.MarkProcessing(ctx, jobID, p.now().UTC())
	if err != nil {
		p.fail(ctx, &run{job: job, log: log}, fmt.Errorf("mark processing: %w", err))
		return
	}
	if !ok {
		log.Warn().Str("status", string(job.Status)).Msg("conversion: job no longer pending, skipping")
		return
	}
	log.Info().Int("images", job.TotalImages).Msg("conversion: processing started")

	r := &run{job: job, log: log}
	if err := p.safeRun(ctx, r); err != nil {
		if errors.Is(err, errOwnershipLost) {
			p.abandon(ctx, r)
			return
		}
		p.fail(ctx, r, err)
	}
}

func (p *Processor) safeRun(ctx context.Context, r *run) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return p.runItems(ctx, r)
}

func (p *Processor) runItems(ctx context.Context, r *run) error {
	style, err := generation.LookupStyle(r.job.StyleID)
	if err != nil {
		return err
	}
	r.style = style

	for i, key := range r.job.InputKeys {
		if i > 0 {
			if err := p.sleep(ctx, p.delay); err != nil {
				return err
			}
		}
		if err := p.convertOne(ctx, r, i, key); err != nil {
			return err
		}
	}
	return p.finish(ctx, r)
}

func (p *Processor) convertOne(ctx context.Context, r *run, index int, key string) error {
	log := r.log.With().Int("index", index).Logger()
	data, err := p.blobs.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("load input %d: %w", index, err)
	}

	asset, genErr := p.generator.Attempt(ctx, generation.AttemptInput{
		Source: image.ImagePart(data, mimeForKey(key)),
		Style:  r.style,
		Scene:  r.job.SceneAnalysis,
		Anchor: r.anchor,
	})

	next := r.progress.Clone()
	var stored string
	if genErr == nil {
		stored = resultKey(r.job.ID, index, asset.MIME)
		if err := p.blobs.Put(ctx, stored, asset.Data, asset.MIME); err != nil {
			return fmt.Errorf("store result %d: %w", index, err)
		}
		next.ResultIDs = append(next.ResultIDs, stored)
		if r.anchor == nil {
			anchor := image.ImagePart(asset.Data, asset.MIME)
			r.anchor = &anchor
			next.StyleReferenceKey = stored
		}
		log.Info().Str("result", stored).Msg("conversion: input converted")
	} else {
		next.FailedIndices = append(next.FailedIndices, index)
		if r.firstErr == "" {
			r.firstErr = genErr.Error()
		}
		log.Warn().Err(genErr).Msg("conversion: input failed after retries")
	}
	next.CompletedImages++

	ok, err := p.jobs.SaveProgress(ctx, r.job.ID, next)
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	if !ok {
		if stored != "" {
			p.cleanup(ctx, r.log, []string{stored})
		}
		return errOwnershipLost
	}
	r.progress = next
	r.saved = next
	return nil
}

func (p *Processor) finish(ctx context.Context, r *run) error {
	succeeded, failed := len(r.progress.ResultIDs), len(r.progress.FailedIndices)
	status := domain.FinalStatus(succeeded, failed)

	ok, err := p.jobs.Finish(ctx, r.job.ID, status, r.firstErr, p.now().UTC())
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if !ok {
		return errOwnershipLost
	}
	p.metrics.JobFinished(string(status))
	r.log.Info().Str("status", string(status)).Int("succeeded", succeeded).Int("failed", failed).Msg("conversion: job finished")

	switch status {
	case domain.JobStatusPartial:
		p.refunds.refund(ctx, ownerOf(r.job), r.job.CreditCost*failed, domain.ReasonRefundPartial, r.job.ID)
	case domain.JobStatusFailed:
		p.refunds.refund(ctx, ownerOf(r.job), r.job.ReservedCredits(), domain.ReasonRefundFailed, r.job.ID)
	}
	p.cleanup(ctx, r.log, r.job.InputKeys)
	return nil
}

// fail is the fatal path: the job is forced to failed and the whole reservation refunded.
func (p *Processor) fail(ctx context.Context, r *run, cause error) {
	r.log.Error().Err(cause).Msg("conversion: processing aborted")
	from := []domain.JobStatus{domain.JobStatusPending, domain.JobStatusProcessing}
	_, ok, err := p.jobs.FailFrom(ctx, r.job.ID, from, cause.Error(), p.now().UTC())
	if err != nil {
		// The row may still say processing; the watchdog refunds the unresolved part once it is stale.
		r.log.Error().Err(err).Msg("conversion: could not mark job failed")
		return
	}
	if !ok {
		p.abandon(ctx, r)
		return
	}
	p.metrics.JobFinished(string(domain.JobStatusFailed))
	p.refunds.refund(ctx, ownerOf(r.job), r.job.ReservedCredits(), domain.ReasonRefundFatal, r.job.ID)
	p.cleanup(ctx, r.log, r.job.InputKeys)
}

// abandon handles a job the watchdog already failed. The watchdog refunded every input
// that had not resolved in the saved progress; the saved failures are still owed.
func (p *Processor) abandon(ctx context.Context, r *run) {
	r.log.Warn().Int("saved_failures", len(r.saved.FailedIndices)).Msg("conversion: job taken over by watchdog")
	p.refunds.refund(ctx, ownerOf(r.job), r.job.CreditCost*len(r.saved.FailedIndices), domain.ReasonRefundFailedItems, r.job.ID)
	p.cleanup(ctx, r.log, r.job.InputKeys)
}

func (p *Processor) cleanup(ctx context.Context, log zerolog.Logger, keys []string) {
	if len(keys) == 0 {
		return
	}
	if err := p.blobs.Delete(ctx, keys); err != nil {
		log.Warn().Err(err).Int("keys", len(keys)).Msg("conversion: blob cleanup failed")
	}
}
