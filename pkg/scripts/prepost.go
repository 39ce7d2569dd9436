// pkg/scripts/prepost.go - optional preflight and postflight hook scripts
// run around an apply.

package scripts

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const (
	preflightPath  = "/Library/ManagedDeferral/preflight.sh"
	postflightPath = "/Library/ManagedDeferral/postflight.sh"
)

// runScript executes the shell script at the provided path, logging each
// output line via logInfo and failures via logError. A missing script is a
// no-op.
func runScript(scriptPath, displayName string, logInfo func(string, ...interface{}), logError func(string, ...interface{})) error {
	if _, err := os.Stat(scriptPath); os.IsNotExist(err) {
		logInfo("%s script not present, skipping", displayName)
		return nil
	}

	cmd := exec.Command("/bin/sh", scriptPath)
	cmd.Dir = filepath.Dir(scriptPath)

	outputBytes, err := cmd.CombinedOutput()
	for _, line := range strings.Split(string(outputBytes), "\n") {
		txt := strings.TrimSpace(line)
		if txt == "" {
			continue
		}
		logInfo("%s: %s", displayName, txt)
	}

	if err != nil {
		logError("%s script error: %v", displayName, err)
		return fmt.Errorf("%s script error: %w", displayName, err)
	}

	logInfo("%s script completed successfully", displayName)
	return nil
}

// RunPreflight runs the preflight script if installed.
func RunPreflight(logInfo func(string, ...interface{}), logError func(string, ...interface{})) error {
	return runScript(preflightPath, "Preflight", logInfo, logError)
}

// RunPostflight runs the postflight script if installed.
func RunPostflight(logInfo func(string, ...interface{}), logError func(string, ...interface{})) error {
	return runScript(postflightPath, "Postflight", logInfo, logError)
}
