package preflight

import (
	"context"
	"fmt"
	"strings"

	"seedctl/internal/config"
	"seedctl/internal/deps"
	"seedctl/internal/faults"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// RunAll executes every check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := Required(ctx, cfg)
	results = append(results, CheckLogDirectory(cfg.Paths.LogDir))
	executor := CheckExecutor(ctx, cfg.Publishing.ExecutorURL, cfg.Publishing.AdminCredential)
	executor.Optional = true
	results = append(results, executor)
	return results
}

// Required returns the checks a bootstrap run cannot proceed without.
func Required(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	var results []Result
	for _, status := range CheckSystemDeps(ctx, cfg) {
		detail := status.Detail
		if status.Available {
			detail = status.Command
			if status.Version != "" {
				detail += " (" + status.Version + ")"
			}
		}
		results = append(results, Result{
			Name:     status.Name,
			Passed:   status.Available,
			Optional: status.Optional,
			Detail:   detail,
		})
	}
	results = append(results, CheckDataDirectory(cfg.Paths.DataDir))
	return results
}

// CheckSystemDeps evaluates the executables a bootstrap run launches.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(ctx, []deps.Requirement{
		{
			Name:        "Runtime",
			Command:     cfg.Runtime.Binary,
			Description: "Required to initialize and serve the publishing agent",
			VersionArgs: []string{"--version"},
		},
	})
}

// Failures converts failing non-optional results into a validation error.
func Failures(results []Result) error {
	var failed []string
	for _, r := range results {
		if r.Passed || r.Optional {
			continue
		}
		failed = append(failed, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	if len(failed) == 0 {
		return nil
	}
	return faults.Wrap(faults.ErrValidation, "preflight", "check", strings.Join(failed, "; "), nil)
}
