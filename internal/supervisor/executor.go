package supervisor

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"
)

// stopGrace bounds how long a signalled child may keep its pipes open.
const stopGrace = 5 * time.Second

// Executor abstracts process creation for testability.
type Executor interface {
	Start(ctx context.Context, binary string, args []string) (Child, error)
}

// Child is a started process with its output streams.
type Child interface {
	Stdout() io.Reader
	Stderr() io.Reader
	// Wait blocks until the process exits. Both output streams must be fully
	// read before it is called.
	Wait() error
	// Signal asks the process to terminate.
	Signal() error
}

type commandExecutor struct{}

func (commandExecutor) Start(ctx context.Context, binary string, args []string) (Child, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = stopGrace
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start command: %w", err)
	}
	return &commandChild{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

type commandChild struct {
	cmd    *exec.Cmd
	stdout io.Reader
	stderr io.Reader
}

func (c *commandChild) Stdout() io.Reader { return c.stdout }
func (c *commandChild) Stderr() io.Reader { return c.stderr }
func (c *commandChild) Wait() error       { return c.cmd.Wait() }

func (c *commandChild) Signal() error {
	if c.cmd.Process == nil {
		return nil
	}
	return c.cmd.Process.Signal(syscall.SIGTERM)
}
