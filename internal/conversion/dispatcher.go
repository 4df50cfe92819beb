package conversion

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Dispatcher runs job processing detached from the request that scheduled it. There is no
// handle to a running job; progress is only visible through the job row.
type Dispatcher struct {
	run    func(ctx context.Context, jobID string)
	logger zerolog.Logger
	wg     sync.WaitGroup
}

func NewDispatcher(run func(ctx context.Context, jobID string), logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{run: run, logger: logger}
}

// Dispatch starts processing jobID in the background. The request context's values are kept
// but its cancellation is not.
func (d *Dispatcher) Dispatch(ctx context.Context, jobID string) {
	detached := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error().Str("job_id", jobID).Str("panic", fmt.Sprint(r)).Msg("conversion: processing panicked")
			}
		}()
		d.run(detached, jobID)
	}()
}

// Wait blocks until every dispatched job has returned or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
