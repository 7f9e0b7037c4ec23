package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"seedctl/internal/config"
	"seedctl/internal/faults"
	"seedctl/internal/history"
	"seedctl/internal/logging"
	"seedctl/internal/preflight"
	"seedctl/internal/publishing"
	"seedctl/internal/readiness"
	"seedctl/internal/seed"
	"seedctl/internal/staging"
	"seedctl/internal/supervisor"
)

const component = "bootstrap"

// Options are the per-run inputs.
type Options struct {
	AgentPath        string
	Passphrase       string
	DescriptorPath   string
	ReadyTimeout     time.Duration
	ExitAfterPublish bool
}

// Report summarizes a run.
type Report struct {
	RunID          string
	Status         history.Status
	DataDir        string
	BootstrapPath  string
	IdentityDigest string
	Lines          int
	Ready          bool
	Published      *publishing.Result
	PublishErr     error
	RuntimeErr     error
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithConfirmer replaces the interactive confirmation.
func WithConfirmer(c Confirmer) Option {
	return func(r *Runner) {
		if c != nil {
			r.confirmer = c
		}
	}
}

// WithOutput sets where runtime output is relayed.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		if stdout != nil {
			r.stdout = stdout
		}
		if stderr != nil {
			r.stderr = stderr
		}
	}
}

// WithExecutor injects a process executor (primarily for tests).
func WithExecutor(exec supervisor.Executor) Option {
	return func(r *Runner) {
		r.executor = exec
	}
}

// WithPublisher replaces the GraphQL publisher.
func WithPublisher(p publishing.Publisher) Option {
	return func(r *Runner) {
		if p != nil {
			r.publisher = p
		}
	}
}

// Ledger records the lifecycle of runs. *history.Store implements it.
type Ledger interface {
	MarkInterrupted(ctx context.Context, dataDir string) (int64, error)
	Begin(ctx context.Context, run history.Run) error
	MarkDispatched(ctx context.Context, id string) error
	Finish(ctx context.Context, id string, status history.Status, errorKind, errorMessage, seedPath string) error
}

// WithLedger records runs in an already open ledger.
func WithLedger(ledger Ledger) Option {
	return func(r *Runner) {
		r.ledger = ledger
	}
}

// WithLedgerOpener opens the run ledger once the operator has confirmed. The
// runner closes the store when the run ends. Ignored when WithLedger is set.
func WithLedgerOpener(open func() (*history.Store, error)) Option {
	return func(r *Runner) {
		r.openLedger = open
	}
}

// WithLogOpener supplies the logger used after confirmation, typically one
// that also writes a log file. Until then the WithLogger logger is used.
func WithLogOpener(open func() (*slog.Logger, error)) Option {
	return func(r *Runner) {
		r.openLog = open
	}
}

// Runner executes bootstrap runs for one configuration.
type Runner struct {
	cfg       *config.Config
	logger    *slog.Logger
	confirmer Confirmer
	stdout    io.Writer
	stderr    io.Writer
	executor  supervisor.Executor
	publisher publishing.Publisher
	ledger    Ledger

	openLedger func() (*history.Store, error)
	openLog    func() (*slog.Logger, error)
}

// NewRunner constructs a Runner.
func NewRunner(cfg *config.Config, opts ...Option) (*Runner, error) {
	if cfg == nil {
		return nil, faults.Wrap(faults.ErrValidation, component, "new runner", "config is required", nil)
	}
	r := &Runner{
		cfg:       cfg,
		logger:    logging.NewNop(),
		confirmer: PromptConfirmer{In: os.Stdin, Out: os.Stdout},
		stdout:    os.Stdout,
		stderr:    os.Stderr,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Runner) publisherFor(logger *slog.Logger) publishing.Publisher {
	if r.publisher != nil {
		return r.publisher
	}
	return publishing.NewGraphQLPublisher(publishing.Config{
		ExecutorURL:     r.cfg.Publishing.ExecutorURL,
		AdminCredential: r.cfg.Publishing.AdminCredential,
		OutputPath:      r.cfg.Publishing.OutputPath,
		RequestTimeout:  r.cfg.RequestTimeout(),
	}, publishing.WithLogger(logger))
}

type inputs struct {
	descriptor *seed.Descriptor
	source     string
	ledger     Ledger
}

// Run performs one bootstrap run. A declined confirmation returns an error
// tagged faults.ErrAborted and leaves the filesystem untouched.
func (r *Runner) Run(ctx context.Context, opts Options) (*Report, error) {
	runID := uuid.NewString()
	logger := logging.NewComponentLogger(logging.WithRunID(r.logger, runID), component)
	report := &Report{RunID: runID, DataDir: r.cfg.Paths.DataDir}

	in, err := r.prepare(ctx, opts, logger)
	if err != nil {
		report.Status = history.StatusFailed
		return report, err
	}

	ok, err := r.confirmer.Confirm(ctx, r.cfg.Paths.DataDir)
	if err != nil {
		report.Status = history.StatusAborted
		return report, err
	}
	if !ok {
		logger.Info("operator declined; nothing was changed")
		report.Status = history.StatusAborted
		return report, faults.Wrap(faults.ErrAborted, component, "confirm", "operator declined", nil)
	}

	lock := flock.New(r.cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		report.Status = history.StatusFailed
		return report, faults.Wrap(faults.ErrFilesystem, component, "lock", r.cfg.LockPath(), err)
	}
	if !locked {
		report.Status = history.StatusFailed
		return report, faults.Wrap(faults.ErrValidation, component, "lock",
			fmt.Sprintf("another run is using %s", r.cfg.Paths.DataDir), nil)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("release run lock failed", logging.Error(err))
		}
	}()

	if r.openLog != nil {
		fileLogger, err := r.openLog()
		if err != nil {
			logger.Warn("open run log failed; logging to stderr only", logging.Error(err))
		} else {
			logger = logging.NewComponentLogger(logging.WithRunID(fileLogger, runID), component)
		}
	}
	in.ledger = r.ledger
	if in.ledger == nil && r.openLedger != nil {
		store, err := r.openLedger()
		if err != nil {
			logger.Warn("run history unavailable", logging.Error(err))
		} else {
			defer store.Close()
			in.ledger = store
		}
	}

	r.beginLedger(ctx, in.ledger, logger, runID, in.descriptor.Source())
	err = r.execute(ctx, opts, in, report, logger)
	r.finishLedger(in.ledger, logger, report, err)
	return report, err
}

// prepare performs every read-only check so that nothing is touched when an
// input is bad.
func (r *Runner) prepare(ctx context.Context, opts Options, logger *slog.Logger) (*inputs, error) {
	if strings.TrimSpace(opts.AgentPath) == "" {
		return nil, faults.Wrap(faults.ErrValidation, component, "prepare", "agent path required", nil)
	}
	if strings.TrimSpace(opts.DescriptorPath) == "" {
		return nil, faults.Wrap(faults.ErrValidation, component, "prepare", "seed prototype path required", nil)
	}
	if err := preflight.Failures(preflight.Required(ctx, r.cfg)); err != nil {
		return nil, err
	}

	descriptor, err := seed.LoadDescriptor(opts.DescriptorPath)
	if err != nil {
		return nil, err
	}
	source, err := descriptor.LanguageLanguageSource()
	if err != nil {
		return nil, err
	}
	if err := staging.CheckIdentity(opts.AgentPath); err != nil {
		return nil, err
	}
	logger.Info("seed prototype loaded",
		slog.String(logging.FieldPath, descriptor.Source()),
		slog.Int("languages", len(descriptor.Languages())),
		slog.Int("trusted_agents", len(descriptor.TrustedAgents)),
	)
	return &inputs{descriptor: descriptor, source: source}, nil
}

func (r *Runner) execute(ctx context.Context, opts Options, in *inputs, report *Report, logger *slog.Logger) error {
	layout := staging.Layout{Base: r.cfg.Paths.DataDir, ConfigSubdir: r.cfg.Runtime.ConfigSubdir}
	staged, err := staging.Stage(layout, opts.AgentPath, logger)
	if err != nil {
		return err
	}
	report.IdentityDigest = staged.IdentityDigest

	bootstrapPath, err := seed.WriteTemporary(layout.Base, in.source)
	if err != nil {
		return err
	}
	report.BootstrapPath = bootstrapPath
	logger.Info("temporary publishing bootstrap written", slog.String(logging.FieldPath, bootstrapPath))

	supOpts := []supervisor.Option{
		supervisor.WithLogger(logger),
		supervisor.WithServeArgs(r.cfg.Runtime.ServeArgs...),
		supervisor.WithLineBuffer(r.cfg.Runtime.LineBuffer),
		supervisor.WithInitTimeout(r.cfg.InitTimeout()),
		supervisor.WithOutput(r.stdout, r.stderr),
	}
	if r.executor != nil {
		supOpts = append(supOpts, supervisor.WithExecutor(r.executor))
	}
	sup, err := supervisor.New(r.cfg.Runtime.Binary, supOpts...)
	if err != nil {
		return err
	}
	if err := sup.Initialize(ctx, bootstrapPath); err != nil {
		return err
	}

	lines, proc, err := sup.Serve(ctx)
	if err != nil {
		return err
	}

	dispatcher := publishing.NewDispatcher(r.publisherFor(logger), logger)
	outcomes := make(chan publishing.Outcome, 1)
	dispatch := func() {
		fmt.Fprintln(r.stdout, "Runtime ready for publishing")
		dispatcher.Dispatch(ctx, publishing.Request{
			Passphrase: opts.Passphrase,
			Descriptor: in.descriptor,
			Source:     in.source,
		})
		go func() {
			// the ledger write must not hold up the relay
			r.markDispatched(ctx, in.ledger, logger, report.RunID)
			outcome := <-dispatcher.Done()
			if outcome.Err == nil && opts.ExitAfterPublish {
				logger.Info("publishing complete; stopping runtime")
				if err := proc.Stop(); err != nil {
					logger.Warn("stop runtime failed", logging.Error(err))
				}
			}
			outcomes <- outcome
		}()
	}

	detectorOpts := []readiness.Option{readiness.WithWriter(r.stdout), readiness.WithLogger(logger)}
	if opts.ReadyTimeout > 0 {
		detectorOpts = append(detectorOpts, readiness.WithReadyTimeout(opts.ReadyTimeout, func() {
			if err := proc.Stop(); err != nil {
				logger.Warn("stop runtime failed", logging.Error(err))
			}
		}))
	}
	result, watchErr := readiness.New(detectorOpts...).Watch(lines, dispatch)
	report.Lines = result.Lines
	report.Ready = result.Ready

	if err := proc.Wait(); err != nil {
		report.RuntimeErr = err
		logger.Warn("runtime exited with an error", logging.Error(err))
	}

	if dispatcher.Dispatched() {
		// the publisher honours ctx, so this returns promptly on interrupt
		outcome := <-outcomes
		report.PublishErr = outcome.Err
		if outcome.Err == nil {
			report.Published = outcome.Result
		}
	}

	switch {
	case report.Published != nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case watchErr != nil:
		return watchErr
	case report.PublishErr != nil:
		return report.PublishErr
	}
	return nil
}

func (r *Runner) beginLedger(ctx context.Context, ledger Ledger, logger *slog.Logger, runID, descriptorPath string) {
	if ledger == nil {
		return
	}
	if n, err := ledger.MarkInterrupted(ctx, r.cfg.Paths.DataDir); err != nil {
		logger.Warn("close out interrupted runs failed", logging.Error(err))
	} else if n > 0 {
		logger.Info("closed out interrupted runs", slog.Int64("count", n))
	}
	if abs, err := filepath.Abs(descriptorPath); err == nil {
		descriptorPath = abs
	}
	err := ledger.Begin(ctx, history.Run{
		ID:             runID,
		StartedAt:      time.Now(),
		DescriptorPath: descriptorPath,
		DataDir:        r.cfg.Paths.DataDir,
	})
	if err != nil {
		logger.Warn("record run start failed", logging.Error(err))
	}
}

func (r *Runner) markDispatched(ctx context.Context, ledger Ledger, logger *slog.Logger, runID string) {
	if ledger == nil {
		return
	}
	if err := ledger.MarkDispatched(ctx, runID); err != nil {
		logger.Warn("record dispatch failed", logging.Error(err))
	}
}

func (r *Runner) finishLedger(ledger Ledger, logger *slog.Logger, report *Report, runErr error) {
	report.Status = statusFor(report, runErr)
	logger.Info("bootstrap run finished",
		slog.String("status", string(report.Status)),
		slog.Int("lines", report.Lines),
		slog.Bool("ready", report.Ready),
	)
	if ledger == nil {
		return
	}
	var seedPath string
	if report.Published != nil {
		seedPath = report.Published.SeedPath
	}
	detailErr := runErr
	if detailErr == nil {
		detailErr = report.RuntimeErr
	}
	var message string
	if detailErr != nil {
		message = detailErr.Error()
	}
	// the run context may already be cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ledger.Finish(ctx, report.RunID, report.Status, faults.Kind(detailErr), message, seedPath); err != nil {
		logger.Warn("record run outcome failed", logging.Error(err))
	}
}

func statusFor(report *Report, runErr error) history.Status {
	switch {
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, faults.ErrAborted):
		return history.StatusAborted
	case runErr != nil:
		return history.StatusFailed
	case report.Published != nil:
		return history.StatusPublished
	default:
		return history.StatusEnded
	}
}
