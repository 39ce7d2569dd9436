// pkg/elevate/elevate.go - one-time privilege escalation by re-exec.
//
// Modes that write system state require euid 0. When invoked unprivileged,
// the whole original command line is re-run under sudo and the child's exit
// code becomes ours. Escalation happens before any other work, so a
// cancelled authentication prompt aborts the run cleanly.

package elevate

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// IsElevated reports whether the current process runs as root.
func IsElevated() bool {
	return os.Geteuid() == 0
}

// executablePath resolves our own binary to an absolute, symlink-free path
// so the re-exec does not depend on the working directory or PATH.
func executablePath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolving executable path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(exe)
	if err != nil {
		return "", fmt.Errorf("resolving executable symlinks: %w", err)
	}
	return filepath.Abs(resolved)
}

// Relaunch re-invokes the current command line under sudo, passing stdio
// through, and returns the child's exit code. A non-nil error means the
// escalation itself failed (sudo missing, prompt cancelled).
func Relaunch(args []string) (int, error) {
	exe, err := executablePath()
	if err != nil {
		return 1, err
	}

	cmd := exec.Command("/usr/bin/sudo", append([]string{exe}, args...)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return 1, fmt.Errorf("relaunching with sudo: %w", err)
	}
	return 0, nil
}
