// pkg/command/command.go - execution of external system utilities.
//
// Every interaction with the OS (defaults, softwareupdate, profiles, dscl,
// plutil, open) goes through the Runner interface so that the calling
// packages can be exercised against a fake in tests.

package command

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/macadmins/deferral/pkg/logging"
)

// DefaultTimeout bounds a single utility invocation. External tools that
// prompt (profiles install on some OS builds) can otherwise hang a
// non-interactive run indefinitely.
const DefaultTimeout = 2 * time.Minute

// Runner executes external commands and returns their combined output.
type Runner interface {
	// Run executes name with args and returns trimmed combined output.
	Run(ctx context.Context, name string, args ...string) (string, error)
	// RunAs executes the command with the identity of username via sudo.
	RunAs(ctx context.Context, username, name string, args ...string) (string, error)
}

// ExecRunner is the Runner implementation backed by os/exec.
type ExecRunner struct {
	Timeout time.Duration
}

// NewExecRunner returns an ExecRunner with the default timeout.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{Timeout: DefaultTimeout}
}

func (r *ExecRunner) run(ctx context.Context, name string, args ...string) (string, error) {
	timeout := r.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	outputStr := strings.TrimSpace(string(output))

	logging.Debug("Executed command", "command", name, "args", strings.Join(args, " "))

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return outputStr, fmt.Errorf("%s timed out after %s", name, timeout)
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			return outputStr, fmt.Errorf("%s failed with exit code %d: %s", name, exitErr.ExitCode(), outputStr)
		}
		return outputStr, fmt.Errorf("%s failed: %w", name, err)
	}
	return outputStr, nil
}

// Run executes a command directly.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	return r.run(ctx, name, args...)
}

// RunAs executes a command as another user. The caller is expected to hold
// root already, so sudo never prompts.
func (r *ExecRunner) RunAs(ctx context.Context, username, name string, args ...string) (string, error) {
	sudoArgs := append([]string{"-u", username, name}, args...)
	return r.run(ctx, "/usr/bin/sudo", sudoArgs...)
}

// Require verifies that each named utility resolves on PATH. A missing
// system utility is a fatal misconfiguration, reported before any work.
func Require(names ...string) error {
	for _, name := range names {
		if _, err := exec.LookPath(name); err != nil {
			return fmt.Errorf("required command not found: %s", name)
		}
	}
	return nil
}
