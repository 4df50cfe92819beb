// Package conversion owns conversion jobs: submission, the detached processing loop,
// and the staleness watchdog that runs on status reads.
package conversion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"illustrator/internal/credits"
	"illustrator/internal/domain"
	"illustrator/internal/generation"
	"illustrator/internal/infra"
	"illustrator/internal/providers/image"
	"illustrator/pkg/zip"
)

// Ledger is the part of credits.Ledger the orchestrator needs.
type Ledger interface {
	Reserve(ctx context.Context, owner credits.Owner, cost int, reason, refID string) (credits.Reservation, error)
	Refund(ctx context.Context, owner credits.Owner, amount int, reason, refID string) error
}

// Generator produces one accepted image per input.
type Generator interface {
	Attempt(ctx context.Context, in generation.AttemptInput) (*image.Asset, error)
}

// Settings are the pricing, limits and timings of the service.
type Settings struct {
	CreditCostPhoto      int
	CreditCostVideo      int
	MaxImagesPerJob      int
	MaxImageBytes        int64
	InterItemDelay       time.Duration
	PendingStaleAfter    time.Duration
	ProcessingStaleAfter time.Duration
}

// SettingsFromConfig copies the conversion settings out of the service config.
func SettingsFromConfig(cfg *infra.Config) Settings {
	return Settings{
		CreditCostPhoto:      cfg.CreditCostPhoto,
		CreditCostVideo:      cfg.CreditCostVideo,
		MaxImagesPerJob:      cfg.MaxImagesPerJob,
		MaxImageBytes:        cfg.MaxImageBytes,
		InterItemDelay:       cfg.InterItemDelay,
		PendingStaleAfter:    cfg.PendingStaleAfter,
		ProcessingStaleAfter: cfg.ProcessingStaleAfter,
	}
}

// Deps groups the collaborators of the service.
type Deps struct {
	Ledger    Ledger
	Jobs      domain.JobRepository
	Blobs     domain.BlobStore
	Generator Generator
	Logger    zerolog.Logger
	Metrics   *infra.Metrics
	Now       func() time.Time
	Sleep     func(ctx context.Context, d time.Duration) error
}

// SubmitResult is returned as soon as the job row exists.
type SubmitResult struct {
	JobID       string           `json:"jobId"`
	TotalImages int              `json:"totalImages"`
	Status      domain.JobStatus `json:"status"`
}

type Service struct {
	cfg        Settings
	ledger     Ledger
	jobs       domain.JobRepository
	blobs      domain.BlobStore
	logger     zerolog.Logger
	metrics    *infra.Metrics
	now        func() time.Time
	processor  *Processor
	watchdog   *Watchdog
	dispatcher *Dispatcher
	reads      singleflight.Group
}

func NewService(cfg Settings, deps Deps) *Service {
	if cfg.CreditCostPhoto <= 0 {
		cfg.CreditCostPhoto = 1
	}
	if cfg.CreditCostVideo <= 0 {
		cfg.CreditCostVideo = 2
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Sleep == nil {
		deps.Sleep = generation.Sleep
	}

	s := &Service{
		cfg:     cfg,
		ledger:  deps.Ledger,
		jobs:    deps.Jobs,
		blobs:   deps.Blobs,
		logger:  deps.Logger,
		metrics: deps.Metrics,
		now:     deps.Now,
	}
	s.processor = &Processor{
		jobs:      deps.Jobs,
		blobs:     deps.Blobs,
		generator: deps.Generator,
		refunds:   refunder{ledger: deps.Ledger, logger: deps.Logger},
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		now:       deps.Now,
		sleep:     deps.Sleep,
		delay:     cfg.InterItemDelay,
	}
	s.watchdog = &Watchdog{
		jobs:            deps.Jobs,
		blobs:           deps.Blobs,
		refunds:         refunder{ledger: deps.Ledger, logger: deps.Logger},
		logger:          deps.Logger,
		metrics:         deps.Metrics,
		now:             deps.Now,
		pendingAfter:    cfg.PendingStaleAfter,
		processingAfter: cfg.ProcessingStaleAfter,
	}
	s.dispatcher = NewDispatcher(s.processor.Process, deps.Logger)
	return s
}

// Dispatcher exposes the background task tracker so callers can drain it on shutdown.
func (s *Service) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// CostPerImage returns the credit price of one input of the given kind.
func (s *Service) CostPerImage(kind domain.JobKind) int {
	if kind == domain.JobKindVideo {
		return s.cfg.CreditCostVideo
	}
	return s.cfg.CreditCostPhoto
}

// Submit validates the request, reserves credits, stores the inputs, creates the pending
// job and schedules processing. It never waits for generation.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if req.Kind == "" {
		req.Kind = domain.JobKindPhoto
	}
	images, err := s.validateRequest(req)
	if err != nil {
		return nil, err
	}
	style, err := generation.LookupStyle(req.StyleID)
	if err != nil {
		return nil, err
	}

	jobID := uuid.NewString()
	owner := credits.Owner{ID: req.OwnerID, Authenticated: req.Authenticated}
	perImage := s.CostPerImage(req.Kind)
	total := perImage * len(images)
	log := s.logger.With().Str("job_id", jobID).Str("owner_id", req.OwnerID).Logger()

	if _, err := s.ledger.Reserve(ctx, owner, total, domain.ReasonConversion, jobID); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(images))
	undo := func(cause error) error {
		refunder{ledger: s.ledger, logger: log}.refund(ctx, owner, total, domain.ReasonRefundSubmission, jobID)
		if len(keys) > 0 {
			if err := s.blobs.Delete(context.WithoutCancel(ctx), keys); err != nil {
				log.Warn().Err(err).Msg("conversion: cleanup of stored inputs failed")
			}
		}
		return cause
	}

	for i, img := range images {
		key := inputKey(jobID, i, img.mime)
		if err := s.blobs.Put(ctx, key, img.data, img.mime); err != nil {
			return nil, undo(fmt.Errorf("store input %d: %w", i, err))
		}
		keys = append(keys, key)
	}

	job := &domain.ConversionJob{
		ID:            jobID,
		OwnerID:       req.OwnerID,
		Authenticated: req.Authenticated,
		Kind:          req.Kind,
		Status:        domain.JobStatusPending,
		StyleID:       style.ID,
		TotalImages:   len(images),
		CreditCost:    perImage,
		InputKeys:     keys,
		SceneAnalysis: req.Scene,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, undo(fmt.Errorf("create job: %w", err))
	}

	s.metrics.JobSubmitted()
	s.dispatcher.Dispatch(ctx, jobID)
	log.Info().Int("images", len(images)).Int("credits", total).Str("style", style.ID).Msg("conversion: job accepted")

	return &SubmitResult{JobID: jobID, TotalImages: len(images), Status: domain.JobStatusPending}, nil
}

// Status reads a job owned by owner and runs the staleness watchdog on it. Jobs of other
// owners are ErrNotFound and never reach the watchdog. Concurrent reads of the same job
// share one store round trip.
func (s *Service) Status(ctx context.Context, owner credits.Owner, jobID string) (*domain.ConversionJob, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, domain.ErrNotFound
	}
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.reads.Do(jobID, func() (any, error) {
		return s.jobs.Get(shared, jobID)
	})
	if err != nil {
		return nil, err
	}
	job := *v.(*domain.ConversionJob)
	if ownerOf(&job) != owner {
		return nil, domain.ErrNotFound
	}
	return s.watchdog.Check(shared, &job)
}

// Archive loads every produced illustration of the job for zipping.
func (s *Service) Archive(ctx context.Context, job *domain.ConversionJob) ([]zip.Asset, error) {
	if len(job.ResultIDs) == 0 {
		return nil, fmt.Errorf("%w: job has no results", domain.ErrNotFound)
	}
	modified := job.CreatedAt
	if job.CompletedAt != nil {
		modified = *job.CompletedAt
	}
	assets := make([]zip.Asset, 0, len(job.ResultIDs))
	for _, key := range job.ResultIDs {
		data, err := s.blobs.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("load result %s: %w", key, err)
		}
		assets = append(assets, zip.Asset{Filename: key, Data: data, Modified: modified})
	}
	return assets, nil
}

// refunder issues best-effort refunds: failures are logged, never returned.
type refunder struct {
	ledger Ledger
	logger zerolog.Logger
}

func (r refunder) refund(ctx context.Context, owner credits.Owner, amount int, reason, jobID string) {
	if amount <= 0 {
		return
	}
	if err := r.ledger.Refund(context.WithoutCancel(ctx), owner, amount, reason, jobID); err != nil {
		r.logger.Error().Err(err).
			Str("job_id", jobID).
			Str("owner_id", owner.ID).
			Int("amount", amount).
			Str("reason", reason).
			Msg("conversion: refund failed")
		return
	}
	r.logger.Info().Str("job_id", jobID).Int("amount", amount).Str("reason", reason).Msg("conversion: refunded credits")
}

func ownerOf(job *domain.ConversionJob) credits.Owner {
	return credits.Owner{ID: job.OwnerID, Authenticated: job.Authenticated}
}
