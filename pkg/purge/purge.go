// pkg/purge/purge.go - removal of downloaded major-OS installer bundles and
// the software-update download cache.
//
// Removal failures are warnings: a bundle held open by a running Installer
// must not abort the rest of the run.

package purge

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/macadmins/deferral/pkg/command"
	"github.com/macadmins/deferral/pkg/logging"
)

const (
	// ApplicationsDir is where macOS upgrade installers land.
	ApplicationsDir = "/Applications"
	// UpdatesCacheDir is the system download cache for software updates.
	UpdatesCacheDir = "/Library/Updates"
	// installerGlob matches major-OS installer bundle names.
	installerGlob = "Install macOS*.app"
)

// Purger finds and removes major-OS installer bundles.
type Purger struct {
	Runner command.Runner
	// AppsDir and CacheDir default to the system locations; tests point
	// them at temp directories.
	AppsDir  string
	CacheDir string
}

// NewPurger returns a Purger bound to the system directories.
func NewPurger(runner command.Runner) *Purger {
	return &Purger{Runner: runner, AppsDir: ApplicationsDir, CacheDir: UpdatesCacheDir}
}

// matchesUpgrade reports whether a bundle belongs to the named upgrade,
// by case-insensitive substring match on the bundle filename or its
// CFBundleDisplayName metadata.
func (p *Purger) matchesUpgrade(ctx context.Context, bundlePath, upgradeName string) bool {
	needle := strings.ToLower(upgradeName)
	if strings.Contains(strings.ToLower(filepath.Base(bundlePath)), needle) {
		return true
	}

	infoPlist := filepath.Join(bundlePath, "Contents", "Info")
	displayName, err := p.Runner.Run(ctx, "/usr/bin/defaults", "read", infoPlist, "CFBundleDisplayName")
	if err != nil {
		logging.Debug("No readable display name for bundle", "bundle", bundlePath, "error", err)
		return false
	}
	return strings.Contains(strings.ToLower(displayName), needle)
}

// FindInstallers returns the installer bundles matching the upgrade name.
// Read-only; shared with the status reporter.
func (p *Purger) FindInstallers(ctx context.Context, upgradeName string) ([]string, error) {
	candidates, err := filepath.Glob(filepath.Join(p.AppsDir, installerGlob))
	if err != nil {
		return nil, err
	}
	var matches []string
	for _, bundle := range candidates {
		if p.matchesUpgrade(ctx, bundle, upgradeName) {
			matches = append(matches, bundle)
		}
	}
	return matches, nil
}

// Purge removes matching installer bundles and clears the update cache.
// Returns whether any installer was removed.
func (p *Purger) Purge(ctx context.Context, upgradeName string) bool {
	matches, err := p.FindInstallers(ctx, upgradeName)
	if err != nil {
		logging.Warn("Failed to scan for installer bundles", "dir", p.AppsDir, "error", err)
		matches = nil
	}

	removed := false
	for _, bundle := range matches {
		if err := os.RemoveAll(bundle); err != nil {
			logging.Warn("Failed to remove installer bundle", "bundle", bundle, "error", err)
			continue
		}
		logging.Info("Removed installer bundle", "bundle", bundle)
		removed = true
	}
	if len(matches) == 0 {
		logging.Info("No matching installer bundles found", "upgrade", upgradeName)
	}

	p.ClearCache()
	return removed
}

// ClearCache empties the update cache directory without removing the
// directory itself. An absent cache directory is a no-op.
func (p *Purger) ClearCache() {
	entries, err := os.ReadDir(p.CacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Debug("Update cache directory does not exist", "dir", p.CacheDir)
			return
		}
		logging.Warn("Failed to read update cache directory", "dir", p.CacheDir, "error", err)
		return
	}
	for _, entry := range entries {
		target := filepath.Join(p.CacheDir, entry.Name())
		if err := os.RemoveAll(target); err != nil {
			logging.Warn("Failed to remove cached update", "path", target, "error", err)
		}
	}
	logging.Debug("Cleared update cache", "dir", p.CacheDir, "entries", len(entries))
}
