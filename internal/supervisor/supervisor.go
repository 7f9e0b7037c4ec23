// Package supervisor launches the runtime executable for its two phases:
// a synchronous init that consumes the temporary bootstrap, and a long-lived
// serve whose stdout is relayed as a stream of lines.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"seedctl/internal/faults"
	"seedctl/internal/logging"
)

const (
	component = "supervisor"

	defaultLineBuffer = 256
)

// Option configures the supervisor.
type Option func(*Supervisor)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(s *Supervisor) {
		if exec != nil {
			s.exec = exec
		}
	}
}

// WithLineBuffer sets the capacity of the serve line channel.
func WithLineBuffer(size int) Option {
	return func(s *Supervisor) {
		if size >= 0 {
			s.lineBuffer = size
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		s.logger = logging.NewComponentLogger(logger, component)
	}
}

// WithServeArgs replaces the arguments used to start the long-lived phase.
func WithServeArgs(args ...string) Option {
	return func(s *Supervisor) {
		if len(args) > 0 {
			s.serveArgs = append([]string(nil), args...)
		}
	}
}

// WithInitTimeout bounds the init phase. Zero disables the bound.
func WithInitTimeout(timeout time.Duration) Option {
	return func(s *Supervisor) {
		s.initTimeout = timeout
	}
}

// WithOutput sets where init output and serve stderr are copied.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(s *Supervisor) {
		if stdout != nil {
			s.stdout = stdout
		}
		if stderr != nil {
			s.stderr = stderr
		}
	}
}

// Supervisor owns the runtime child processes.
type Supervisor struct {
	binary      string
	serveArgs   []string
	lineBuffer  int
	initTimeout time.Duration
	exec        Executor
	logger      *slog.Logger
	stdout      io.Writer
	stderr      io.Writer
}

// New constructs a supervisor for the given runtime executable.
func New(binary string, opts ...Option) (*Supervisor, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, faults.Wrap(faults.ErrValidation, component, "new", "runtime binary required", nil)
	}
	s := &Supervisor{
		binary:     binary,
		serveArgs:  []string{"serve"},
		lineBuffer: defaultLineBuffer,
		exec:       commandExecutor{},
		logger:     logging.NewComponentLogger(nil, component),
		stdout:     os.Stdout,
		stderr:     os.Stderr,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// InitArgs returns the arguments passed to the init phase.
func InitArgs(bootstrapPath string) []string {
	return []string{"init", "--networkBootstrapSeed", bootstrapPath, "--overrideConfig"}
}

// Initialize runs the init phase to completion, relaying its output.
func (s *Supervisor) Initialize(ctx context.Context, bootstrapPath string) error {
	if s.initTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.initTimeout)
		defer cancel()
	}

	args := InitArgs(bootstrapPath)
	s.logger.Info("initializing runtime",
		slog.String("binary", s.binary),
		slog.String("args", strings.Join(args, " ")),
	)
	started := time.Now()

	child, err := s.exec.Start(ctx, s.binary, args)
	if err != nil {
		return faults.Wrap(faults.ErrProcess, component, "init", "spawn "+s.binary, err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(s.stdout, child.Stdout())
	}()
	go func() {
		defer wg.Done()
		_, _ = io.Copy(s.stderr, child.Stderr())
	}()
	wg.Wait()

	if err := child.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w (%v)", ctxErr, err)
		}
		return faults.Wrap(faults.ErrProcess, component, "init", "runtime init failed", err)
	}
	s.logger.Info("runtime initialized", slog.Duration("elapsed", time.Since(started)))
	return nil
}

// Serve starts the serve phase and returns immediately. The returned channel
// carries every stdout line in order and is closed at end of stream. stderr
// is copied to the operator's error writer.
func (s *Supervisor) Serve(ctx context.Context) (<-chan string, *Process, error) {
	s.logger.Info("starting runtime",
		slog.String("binary", s.binary),
		slog.String("args", strings.Join(s.serveArgs, " ")),
	)
	child, err := s.exec.Start(ctx, s.binary, s.serveArgs)
	if err != nil {
		return nil, nil, faults.Wrap(faults.ErrProcess, component, "serve", "spawn "+s.binary, err)
	}

	lines := make(chan string, s.lineBuffer)
	proc := &Process{child: child, logger: s.logger, done: make(chan struct{})}

	proc.wg.Add(2)
	go func() {
		defer proc.wg.Done()
		defer close(lines)
		proc.readErr = readLines(child.Stdout(), lines)
	}()
	go func() {
		defer proc.wg.Done()
		_, _ = io.Copy(s.stderr, child.Stderr())
	}()
	return lines, proc, nil
}

// readLines forwards every line of r to out. Lines have no length limit; a
// final line without a trailing newline is still delivered.
func readLines(r io.Reader, out chan<- string) error {
	reader := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			line = strings.TrimSuffix(line, "\n")
			out <- strings.TrimSuffix(line, "\r")
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			// keep the child from blocking on a full pipe
			_, _ = io.Copy(io.Discard, reader)
			return err
		}
	}
}

// Process is the handle for a running serve phase.
type Process struct {
	child   Child
	logger  *slog.Logger
	wg      sync.WaitGroup
	readErr error

	stopOnce sync.Once
	stopped  bool
	mu       sync.Mutex

	waitOnce sync.Once
	waitErr  error
	done     chan struct{}
}

// Wait blocks until the output streams are drained and the child exits.
// A child that exits after Stop is not treated as a failure. Wait is safe to
// call more than once.
func (p *Process) Wait() error {
	p.waitOnce.Do(func() {
		defer close(p.done)
		p.wg.Wait()
		err := p.child.Wait()

		p.mu.Lock()
		stopped := p.stopped
		p.mu.Unlock()

		switch {
		case err != nil && !stopped:
			p.waitErr = faults.Wrap(faults.ErrProcess, component, "serve", "runtime exited", err)
		case p.readErr != nil:
			p.waitErr = faults.Wrap(faults.ErrProcess, component, "serve", "read runtime output", p.readErr)
		}
		if err != nil {
			p.logger.Info("runtime exited", slog.Bool("stopped", stopped), logging.Error(err))
		} else {
			p.logger.Info("runtime exited", slog.Bool("stopped", stopped))
		}
	})
	<-p.done
	return p.waitErr
}

// Stop signals the child to terminate. The line channel closes once the
// child's stdout reaches end of stream.
func (p *Process) Stop() error {
	var err error
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		p.logger.Info("stopping runtime")
		err = p.child.Signal()
		if errors.Is(err, os.ErrProcessDone) {
			err = nil
		}
	})
	if err != nil {
		return faults.Wrap(faults.ErrProcess, component, "stop", "signal runtime", err)
	}
	return nil
}
