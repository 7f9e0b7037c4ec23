package publishing

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"seedctl/internal/logging"
	"seedctl/internal/seed"
)

// Request carries everything the publisher needs.
type Request struct {
	Passphrase string
	Descriptor *seed.Descriptor
	Source     string
}

// Publisher performs the publishing sequence.
type Publisher interface {
	Publish(ctx context.Context, req Request) (*Result, error)
}

// Outcome is the final state of a dispatched publish.
type Outcome struct {
	Result *Result
	Err    error
}

// Dispatcher launches a Publisher exactly once.
type Dispatcher struct {
	publisher  Publisher
	logger     *slog.Logger
	once       sync.Once
	dispatched atomic.Bool
	done       chan Outcome
}

// NewDispatcher wraps publisher.
func NewDispatcher(publisher Publisher, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		publisher: publisher,
		logger:    logging.NewComponentLogger(logger, "publishing"),
		done:      make(chan Outcome, 1),
	}
}

// Dispatch starts the publisher on a new goroutine and returns immediately.
// Calls after the first are no-ops.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) {
	d.once.Do(func() {
		d.dispatched.Store(true)
		d.logger.Info("publisher dispatched")
		go func() {
			defer close(d.done)
			result, err := d.publisher.Publish(ctx, req)
			if err != nil {
				d.logger.Error("publishing failed", logging.Error(err))
			}
			d.done <- Outcome{Result: result, Err: err}
		}()
	})
}

// Dispatched reports whether Dispatch has been called.
func (d *Dispatcher) Dispatched() bool {
	return d.dispatched.Load()
}

// Done yields the outcome once the publisher returns, then closes. It never
// yields if Dispatch was not called.
func (d *Dispatcher) Done() <-chan Outcome {
	return d.done
}
