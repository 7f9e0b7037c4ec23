package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"seedctl/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded bootstrap runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}
			store, err := history.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				run, err := store.Get(cmd.Context(), args[0])
				if errors.Is(err, history.ErrNotFound) {
					return fmt.Errorf("run %s not found", args[0])
				}
				if err != nil {
					return err
				}
				printRunDetail(out, run)
				return nil
			}

			runs, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					run.ID,
					run.StartedAt.Local().Format(time.DateTime),
					string(run.Status),
					formatDuration(run.Duration()),
					yesNo(run.Dispatched),
					run.DataDir,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Run", "Started", "Status", "Duration", "Dispatched", "Data Dir"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show (0 shows all)")
	return cmd
}

func printRunDetail(out io.Writer, run *history.Run) {
	colorize := shouldColorize(out)
	for _, line := range renderSectionHeader("Run "+run.ID, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Status", runStatusKind(run.Status), string(run.Status), colorize))
	fmt.Fprintln(out, renderStatusLine("Started", statusInfo, run.StartedAt.Local().Format(time.DateTime), colorize))
	if !run.FinishedAt.IsZero() {
		fmt.Fprintln(out, renderStatusLine("Finished", statusInfo, run.FinishedAt.Local().Format(time.DateTime), colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Seed prototype", statusInfo, run.DescriptorPath, colorize))
	fmt.Fprintln(out, renderStatusLine("Data dir", statusInfo, run.DataDir, colorize))
	fmt.Fprintln(out, renderStatusLine("Dispatched", boolKind(run.Dispatched), yesNo(run.Dispatched), colorize))
	if run.SeedPath != "" {
		fmt.Fprintln(out, renderStatusLine("Bootstrap seed", statusOK, run.SeedPath, colorize))
	}
	if run.ErrorMessage != "" {
		label := "Error"
		if run.ErrorKind != "" {
			label = "Error (" + run.ErrorKind + ")"
		}
		fmt.Fprintln(out, renderStatusLine(label, statusError, run.ErrorMessage, colorize))
	}
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}
