package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"seedctl/internal/bootstrap"
	"seedctl/internal/config"
	"seedctl/internal/history"
)

type generateOptions struct {
	assumeYes        bool
	dataDir          string
	output           string
	readyTimeout     time.Duration
	exitAfterPublish bool
}

func newGenerateBootstrapCommand(ctx *commandContext) *cobra.Command {
	var opts generateOptions

	cmd := &cobra.Command{
		Use:   "generate-bootstrap <agent-path> <passphrase|-> <runtime-path> <seed-proto>",
		Short: "Replace the runtime data directory with a publishing agent and publish a bootstrap seed",
		Long: `Replace the runtime data directory with the supplied publishing agent,
initialize and serve the runtime against a temporary bootstrap, and publish
the languages named by the seed prototype once the runtime reports that it is
ready. Runtime output is relayed until the runtime exits.

The existing data directory is DELETED. Pass "-" as the passphrase to be
prompted for it.`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cfg, err := applyGenerateOverrides(*base, args[2], opts)
			if err != nil {
				return err
			}

			stdin := bufio.NewReader(cmd.InOrStdin())
			stdout := cmd.OutOrStdout()
			passphrase, err := resolvePassphrase(args[1], stdin, cmd.InOrStdin(), stdout)
			if err != nil {
				return err
			}

			logger, err := ctx.newStderrLogger(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			runnerOpts := []bootstrap.Option{
				bootstrap.WithLogger(logger),
				bootstrap.WithOutput(stdout, cmd.ErrOrStderr()),
				bootstrap.WithLogOpener(func() (*slog.Logger, error) { return ctx.newLogger(cfg) }),
				bootstrap.WithLedgerOpener(func() (*history.Store, error) { return history.Open(cfg) }),
			}
			if opts.assumeYes {
				runnerOpts = append(runnerOpts, bootstrap.WithConfirmer(bootstrap.AssumeYes{}))
			} else {
				runnerOpts = append(runnerOpts, bootstrap.WithConfirmer(bootstrap.PromptConfirmer{In: stdin, Out: stdout}))
			}

			runner, err := bootstrap.NewRunner(cfg, runnerOpts...)
			if err != nil {
				return err
			}

			fmt.Fprintf(stdout, "Generating a bootstrap seed using runtime %s and agent %s\n\n", cfg.Runtime.Binary, args[0])
			report, err := runner.Run(cmd.Context(), bootstrap.Options{
				AgentPath:        args[0],
				Passphrase:       passphrase,
				DescriptorPath:   args[3],
				ReadyTimeout:     opts.readyTimeout,
				ExitAfterPublish: opts.exitAfterPublish,
			})
			if report != nil && report.Status != history.StatusAborted {
				printRunSummary(stdout, report)
			}
			return err
		},
	}

	cmd.Flags().BoolVarP(&opts.assumeYes, "yes", "y", false, "Skip the confirmation prompt")
	cmd.Flags().StringVar(&opts.dataDir, "data-dir", "", "Runtime data directory to replace (overrides paths.data_dir)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Where to write the published seed (overrides publishing.output_path)")
	cmd.Flags().DurationVar(&opts.readyTimeout, "ready-timeout", 0, "Stop the runtime if it is not ready within this duration (0 waits forever)")
	cmd.Flags().BoolVar(&opts.exitAfterPublish, "exit-after-publish", false, "Stop the runtime once publishing succeeds")
	return cmd
}

func applyGenerateOverrides(cfg config.Config, runtimePath string, opts generateOptions) (*config.Config, error) {
	runtimePath = strings.TrimSpace(runtimePath)
	if runtimePath == "" {
		return nil, fmt.Errorf("runtime path is required")
	}
	if strings.ContainsRune(runtimePath, filepath.Separator) || strings.HasPrefix(runtimePath, "~") {
		expanded, err := config.ExpandPath(runtimePath)
		if err != nil {
			return nil, fmt.Errorf("resolve runtime path: %w", err)
		}
		runtimePath = expanded
	}
	cfg.Runtime.Binary = runtimePath

	if dir := strings.TrimSpace(opts.dataDir); dir != "" {
		expanded, err := config.ExpandPath(dir)
		if err != nil {
			return nil, fmt.Errorf("resolve data dir: %w", err)
		}
		cfg.Paths.DataDir = expanded
	}
	if out := strings.TrimSpace(opts.output); out != "" {
		expanded, err := config.ExpandPath(out)
		if err != nil {
			return nil, fmt.Errorf("resolve output path: %w", err)
		}
		cfg.Publishing.OutputPath = expanded
	}
	if opts.readyTimeout < 0 {
		return nil, fmt.Errorf("--ready-timeout must not be negative")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func printRunSummary(out io.Writer, report *bootstrap.Report) {
	colorize := shouldColorize(out)
	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Run summary", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Run", statusInfo, report.RunID, colorize))
	fmt.Fprintln(out, renderStatusLine("Status", runStatusKind(report.Status), string(report.Status), colorize))
	fmt.Fprintln(out, renderStatusLine("Runtime ready", boolKind(report.Ready), yesNo(report.Ready), colorize))
	fmt.Fprintln(out, renderStatusLine("Lines relayed", statusInfo, fmt.Sprint(report.Lines), colorize))
	if report.RuntimeErr != nil {
		fmt.Fprintln(out, renderStatusLine("Runtime exit", statusWarn, report.RuntimeErr.Error(), colorize))
	}
	if report.PublishErr != nil {
		fmt.Fprintln(out, renderStatusLine("Publishing", statusError, report.PublishErr.Error(), colorize))
	}
	if report.Published == nil {
		return
	}
	fmt.Fprintln(out, renderStatusLine("Publishing agent", statusOK, report.Published.AgentDID, colorize))
	if report.Published.SeedPath != "" {
		fmt.Fprintln(out, renderStatusLine("Bootstrap seed", statusOK, report.Published.SeedPath, colorize))
	}
	if len(report.Published.Languages) == 0 {
		return
	}
	rows := make([][]string, 0, len(report.Published.Languages))
	for _, lang := range report.Published.Languages {
		rows = append(rows, []string{string(lang.Role), lang.Name, lang.Address, lang.Fingerprint})
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderTable([]string{"Role", "Name", "Address", "Fingerprint"}, rows, nil))
}

func runStatusKind(status history.Status) statusKind {
	switch status {
	case history.StatusPublished:
		return statusOK
	case history.StatusEnded, history.StatusAborted:
		return statusWarn
	case history.StatusFailed:
		return statusError
	default:
		return statusInfo
	}
}

func boolKind(ok bool) statusKind {
	if ok {
		return statusOK
	}
	return statusWarn
}
