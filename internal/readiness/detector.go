// Package readiness relays runtime output to the operator and fires a
// one-shot callback when the runtime reports that it is ready to be unlocked.
package readiness

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"seedctl/internal/faults"
	"seedctl/internal/logging"
)

// Marker is the substring the runtime prints once its GraphQL endpoint is up
// and the agent is waiting to be unlocked. The spelling matches the runtime.
const Marker = "GraphQL server started, Unlock the agent to start holohchain"

const component = "readiness"

// ErrNotReady reports that the stream ended after the readiness deadline
// passed without the marker.
var ErrNotReady = errors.New("runtime did not report readiness")

// Option configures a Detector.
type Option func(*Detector)

// WithWriter sets where relayed lines are printed.
func WithWriter(w io.Writer) Option {
	return func(d *Detector) {
		if w != nil {
			d.writer = w
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		d.logger = logging.NewComponentLogger(logger, component)
	}
}

// WithReadyTimeout bounds how long Watch waits for the marker. When the
// deadline passes, onTimeout is invoked once (typically to stop the child)
// and Watch keeps draining until the stream closes. Zero waits forever.
func WithReadyTimeout(timeout time.Duration, onTimeout func()) Option {
	return func(d *Detector) {
		d.readyTimeout = timeout
		d.onTimeout = onTimeout
	}
}

// Detector watches a line stream for Marker.
type Detector struct {
	writer       io.Writer
	logger       *slog.Logger
	readyTimeout time.Duration
	onTimeout    func()
}

// Result summarizes a completed watch.
type Result struct {
	Lines int
	Ready bool
	// ReadyAt is the 1-based line number of the first marker line, or zero.
	ReadyAt int
}

// New constructs a Detector relaying to stdout by default.
func New(opts ...Option) *Detector {
	d := &Detector{
		writer: os.Stdout,
		logger: logging.NewComponentLogger(nil, component),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Watch prints every line from lines in arrival order and calls dispatch on
// the first line containing Marker. dispatch is never called again during
// this watch, however many markers follow. Watch returns when lines is
// closed; a stream that ends without the marker is not an error unless a
// readiness deadline was configured and passed.
func (d *Detector) Watch(lines <-chan string, dispatch func()) (Result, error) {
	var (
		result   Result
		timedOut bool
		deadline <-chan time.Time
		timer    *time.Timer
	)
	if d.readyTimeout > 0 {
		timer = time.NewTimer(d.readyTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	writeFailed := false
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return d.finish(result, timedOut)
			}
			result.Lines++
			if _, err := fmt.Fprintln(d.writer, line); err != nil && !writeFailed {
				writeFailed = true
				d.logger.Warn("relay runtime output failed", logging.Error(err))
			}
			if !result.Ready && strings.Contains(line, Marker) {
				result.Ready = true
				result.ReadyAt = result.Lines
				deadline = nil
				d.logger.Info("runtime ready; starting publisher", slog.Int("line", result.Lines))
				if dispatch != nil {
					dispatch()
				}
			}
		case <-deadline:
			deadline = nil
			timedOut = true
			d.logger.Warn("readiness marker not seen before deadline", slog.Duration("timeout", d.readyTimeout))
			if d.onTimeout != nil {
				d.onTimeout()
			}
		}
	}
}

func (d *Detector) finish(result Result, timedOut bool) (Result, error) {
	d.logger.Info("runtime output closed",
		slog.Int("lines", result.Lines),
		slog.Bool("ready", result.Ready),
	)
	if timedOut && !result.Ready {
		return result, faults.Wrap(faults.ErrProcess, component, "watch",
			fmt.Sprintf("no readiness marker within %s", d.readyTimeout), ErrNotReady)
	}
	return result, nil
}
