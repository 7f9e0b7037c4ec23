package bootstrap

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"seedctl/internal/faults"
)

// Warning is shown before the data directory is replaced.
const Warning = "WARNING... THIS WILL DELETE YOUR EXISTING AD4M AGENT AND REPLACE WITH SUPPLIED PUBLISHING AGENT, PLEASE BACKUP BEFORE PROCEEDING"

// Prompt is the confirmation question.
const Prompt = "y/n to continue..."

// Confirmer asks the operator whether to proceed with a destructive step.
type Confirmer interface {
	Confirm(ctx context.Context, dataDir string) (bool, error)
}

// PromptConfirmer reads a single line answer. Only "n" or "N" declines;
// any other answer, including an empty one, proceeds.
type PromptConfirmer struct {
	In  io.Reader
	Out io.Writer
}

// Confirm prints the warning and prompt and waits for an answer.
func (p PromptConfirmer) Confirm(ctx context.Context, dataDir string) (bool, error) {
	fmt.Fprintf(p.Out, "%s\n(data directory: %s)\n\n%s", Warning, dataDir, Prompt)

	answers := make(chan string, 1)
	errs := make(chan error, 1)
	go func() {
		line, err := bufio.NewReader(p.In).ReadString('\n')
		if err != nil && line == "" {
			errs <- err
			return
		}
		answers <- line
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(p.Out)
		return false, ctx.Err()
	case err := <-errs:
		fmt.Fprintln(p.Out)
		return false, faults.Wrap(faults.ErrAborted, "bootstrap", "confirm", "no answer", err)
	case answer := <-answers:
		return !Declined(answer), nil
	}
}

// Declined reports whether answer declines the prompt.
func Declined(answer string) bool {
	answer = strings.TrimSpace(answer)
	return answer == "n" || answer == "N"
}

// AssumeYes is a Confirmer that always proceeds.
type AssumeYes struct{}

// Confirm always returns true.
func (AssumeYes) Confirm(context.Context, string) (bool, error) { return true, nil }
