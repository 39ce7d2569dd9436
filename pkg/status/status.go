// pkg/status/status.go - read-only aggregation of the machine's deferral
// state. Collect never writes a preference, file, or profile.

package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	goversion "github.com/hashicorp/go-version"
	"github.com/shirou/gopsutil/v3/host"

	"github.com/macadmins/deferral/pkg/command"
	"github.com/macadmins/deferral/pkg/config"
	"github.com/macadmins/deferral/pkg/logging"
	"github.com/macadmins/deferral/pkg/policy"
	"github.com/macadmins/deferral/pkg/prefs"
	"github.com/macadmins/deferral/pkg/purge"
	"github.com/macadmins/deferral/pkg/users"
)

const (
	softwareupdatePath = "/usr/sbin/softwareupdate"
	swVersPath         = "/usr/bin/sw_vers"
)

// Unset marks a preference key that is not present. Never an error.
const Unset = "unset"

// Preference is one reported key/value pair, in write order.
type Preference struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Report is the collected machine state.
type Report struct {
	OSName        string       `json:"os_name"`
	OSVersion     string       `json:"os_version"`
	MajorVersion  string       `json:"major_version"`
	ExpectedMajor string       `json:"expected_major"`
	Schedule      string       `json:"schedule"`
	Preferences   []Preference `json:"preferences"`
	NagUser       string       `json:"nag_user,omitempty"`
	NagDate       string       `json:"nag_date"`
	Installers    []string     `json:"installers"`
	CacheExists   bool         `json:"cache_exists"`
	CacheEntries  []string     `json:"cache_entries"`
}

// MajorMatches compares the detected major version to the expected one.
// String equality only: MajorVersion may be a non-numeric placeholder when
// detection failed, and a numeric comparison would turn that into a crash
// or a silent false positive.
func (r *Report) MajorMatches() bool {
	return r.MajorVersion == r.ExpectedMajor
}

// Collector gathers the report. All collaborators are interfaces or
// path-configurable so tests run against fakes.
type Collector struct {
	Runner      command.Runner
	Store       prefs.Store
	Directory   users.DirectoryService
	Purger      *purge.Purger
	UpgradeName string
}

// Abstracted for testing.
var hostInfo = host.Info

// majorOf extracts the major component of an OS version string, or a
// placeholder when the string is not a parseable version.
func majorOf(osVersion string) string {
	if _, err := goversion.NewVersion(osVersion); err != nil {
		return "unknown"
	}
	return strings.SplitN(osVersion, ".", 2)[0]
}

// DetectOSMajor returns the OS version string and its major component,
// with "unknown" placeholders when detection fails.
func DetectOSMajor() (osVersion, major string) {
	info, err := hostInfo()
	if err != nil {
		return "unknown", "unknown"
	}
	return info.PlatformVersion, majorOf(info.PlatformVersion)
}

// Collect assembles the report. Individual probes that fail degrade to
// placeholder values rather than aborting the whole status run.
func (c *Collector) Collect(ctx context.Context) *Report {
	r := &Report{ExpectedMajor: config.ExpectedMajorVersion}

	if info, err := hostInfo(); err == nil {
		r.OSName = info.Platform
		r.OSVersion = info.PlatformVersion
	} else {
		logging.Debug("Host info unavailable, falling back to sw_vers", "error", err)
		r.OSName = "macOS"
		r.OSVersion = "unknown"
		if out, err := c.Runner.Run(ctx, swVersPath, "-productVersion"); err == nil && out != "" {
			r.OSVersion = out
		}
	}
	r.MajorVersion = majorOf(r.OSVersion)

	if out, err := c.Runner.Run(ctx, softwareupdatePath, "--schedule"); err == nil {
		r.Schedule = out
	} else {
		r.Schedule = "unknown"
	}

	for _, key := range policy.ManagedKeys {
		value, err := c.Store.Read(ctx, "", prefs.SoftwareUpdateDomain, key)
		switch {
		case errors.Is(err, prefs.ErrKeyMissing):
			value = Unset
		case err != nil:
			value = "unknown"
		}
		r.Preferences = append(r.Preferences, Preference{Key: key, Value: value})
	}

	if username, err := c.Directory.ConsoleUser(); err == nil {
		r.NagUser = username
		value, err := c.Store.Read(ctx, username, prefs.UserSoftwareUpdateDomain, policy.NagKey)
		switch {
		case errors.Is(err, prefs.ErrKeyMissing):
			r.NagDate = Unset
		case err != nil:
			r.NagDate = "unknown"
		default:
			r.NagDate = value
		}
	} else {
		r.NagDate = "unknown"
	}

	if installers, err := c.Purger.FindInstallers(ctx, c.UpgradeName); err == nil {
		r.Installers = installers
	}

	if entries, err := os.ReadDir(c.Purger.CacheDir); err == nil {
		r.CacheExists = true
		for _, entry := range entries {
			r.CacheEntries = append(r.CacheEntries, entry.Name())
		}
	}

	return r
}

// Print writes the report in human-readable form.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "OS: %s %s (major %s, expected %s", r.OSName, r.OSVersion, r.MajorVersion, r.ExpectedMajor)
	if r.MajorMatches() {
		fmt.Fprintln(w, ", match)")
	} else {
		fmt.Fprintln(w, ", MISMATCH)")
	}

	fmt.Fprintf(w, "\nUpdate schedule:\n  %s\n", strings.ReplaceAll(r.Schedule, "\n", "\n  "))

	fmt.Fprintln(w, "\nSoftwareUpdate preferences:")
	for _, p := range r.Preferences {
		fmt.Fprintf(w, "  %-35s %s\n", p.Key, p.Value)
	}

	if r.NagUser != "" {
		fmt.Fprintf(w, "\nUpgrade notification date for %s: %s\n", r.NagUser, r.NagDate)
	} else {
		fmt.Fprintf(w, "\nUpgrade notification date: %s\n", r.NagDate)
	}

	fmt.Fprintln(w, "\nInstaller bundles:")
	if len(r.Installers) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, bundle := range r.Installers {
		fmt.Fprintf(w, "  %s\n", bundle)
	}

	fmt.Fprintln(w, "\nUpdate cache:")
	if !r.CacheExists {
		fmt.Fprintln(w, "  does not exist")
	} else if len(r.CacheEntries) == 0 {
		fmt.Fprintln(w, "  empty")
	}
	for _, entry := range r.CacheEntries {
		fmt.Fprintf(w, "  %s\n", entry)
	}
}

// PrintJSON writes the report as indented JSON.
func (r *Report) PrintJSON(w io.Writer) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
