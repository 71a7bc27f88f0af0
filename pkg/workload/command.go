package workload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

// Command runs an external program as the workload. The parameter is passed
// as the last argument.
type Command struct {
	Path string
	Args []string
}

// NewCommand splits a command line on whitespace.
func NewCommand(cmdline string) (*Command, error) {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return nil, errors.New("empty workload command")
	}
	return &Command{Path: fields[0], Args: fields[1:]}, nil
}

func (c *Command) Name() string { return "command" }

func (c *Command) Run(ctx context.Context, parameter int) error {
	args := append(append([]string{}, c.Args...), strconv.Itoa(parameter))
	cmd := exec.CommandContext(ctx, c.Path, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	// Own process group so a timeout kills any children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("workload command exited with %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return fmt.Errorf("failed to run workload command: %w", err)
	}
	return nil
}
