package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"illustrator/internal/domain"
	"illustrator/internal/infra"
	"illustrator/internal/providers/image"
)

// MaxRetries is the number of extra tries after the first one.
const MaxRetries = 2

// ErrGenerationFailed wraps the last observed reason when no try produced an accepted image.
var ErrGenerationFailed = errors.New("generation failed")

var errNoImage = errors.New("model returned no image")

// AttemptInput describes one input of a job.
type AttemptInput struct {
	Source image.Part
	Style  Style
	Scene  *domain.SceneAnalysis
	Anchor *image.Part
}

// Attempter runs the bounded retry loop around the image model.
type Attempter struct {
	model   image.Model
	gate    *QualityGate
	logger  zerolog.Logger
	metrics *infra.Metrics

	timeout time.Duration
	backoff time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// AttempterOptions configures timings. Zero values use the defaults.
type AttempterOptions struct {
	Timeout time.Duration
	Backoff time.Duration
	Sleep   func(ctx context.Context, d time.Duration) error
	Metrics *infra.Metrics
}

func NewAttempter(model image.Model, gate *QualityGate, logger zerolog.Logger, opts AttempterOptions) *Attempter {
	a := &Attempter{
		model:   model,
		gate:    gate,
		logger:  logger,
		metrics: opts.Metrics,
		timeout: opts.Timeout,
		backoff: opts.Backoff,
		sleep:   opts.Sleep,
	}
	if a.timeout <= 0 {
		a.timeout = 60 * time.Second
	}
	if a.sleep == nil {
		a.sleep = Sleep
	}
	return a
}

// Attempt tries up to MaxRetries+1 times. Every try but the last is quality gated; the
// last try's image is accepted as is. A quota error from the model ends the loop early.
func (a *Attempter) Attempt(ctx context.Context, in AttemptInput) (*image.Asset, error) {
	lastErr := errNoImage
	for try := 0; try <= MaxRetries; try++ {
		final := try == MaxRetries
		parts, temperature := BuildPrompt(PromptInput{
			Source:     in.Source,
			Style:      in.Style,
			Scene:      in.Scene,
			Anchor:     in.Anchor,
			RetryLevel: try,
		})

		asset, err := a.generate(ctx, parts, temperature)
		log := a.logger.With().Int("attempt", try+1).Logger()
		switch {
		case errors.Is(err, domain.ErrQuotaExceeded):
			a.metrics.GenerationAttempt("quota")
			log.Warn().Err(err).Msg("generation: model quota exceeded")
			return nil, err
		case err != nil:
			a.metrics.GenerationAttempt("error")
			log.Warn().Err(err).Msg("generation: model call failed")
			lastErr = err
		case asset == nil || len(asset.Data) == 0:
			a.metrics.GenerationAttempt("no_image")
			log.Info().Msg("generation: no image returned")
			lastErr = errNoImage
		default:
			a.metrics.GenerationAttempt("image")
			if final {
				return asset, nil
			}
			verdict := a.gate.Assess(ctx, image.ImagePart(asset.Data, asset.MIME), in.Scene, in.Anchor != nil)
			if verdict.Pass {
				return asset, nil
			}
			log.Info().Strs("failed", verdict.FailedDimensions).Msg("generation: quality check rejected image")
			lastErr = fmt.Errorf("quality check failed: %s", strings.Join(verdict.FailedDimensions, ", "))
			continue
		}

		if !final {
			if err := a.sleep(ctx, a.backoff); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, lastErr)
}

// generate bounds one model call. A timeout counts as an error for that try only.
func (a *Attempter) generate(ctx context.Context, parts []image.Part, temperature float32) (*image.Asset, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	asset, err := a.model.Generate(callCtx, parts, temperature)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, fmt.Errorf("model call timed out after %s", a.timeout)
	}
	return asset, err
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
