// pkg/profile/profile.go - generation, installation, and removal of the
// major-upgrade deferral configuration profile.
//
// The rendered document carries exactly one com.apple.applicationaccess
// payload: major-OS-update deferral forced on for the given day count, with
// minor-OS and app-update deferral explicitly forced off. Deferring major
// upgrades while never holding back security updates is the point of this
// tool, so that asymmetry is fixed here and covered by tests.

package profile

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/groob/plist"

	"github.com/macadmins/deferral/pkg/command"
	"github.com/macadmins/deferral/pkg/config"
	"github.com/macadmins/deferral/pkg/logging"
)

// Identifiers are constant across runs; the OS keys its installed-profile
// record on ProfileIdentifier. UUIDs are fresh per run.
const (
	ProfileIdentifier = "com.macadmins.deferral.majorupgrade"
	PayloadIdentifier = ProfileIdentifier + ".restrictions"
)

const (
	profilesPath = "/usr/bin/profiles"
	plutilPath   = "/usr/bin/plutil"
	openPath     = "/usr/bin/open"
)

// RestrictionsPayload is the single payload of the generated profile.
type RestrictionsPayload struct {
	PayloadType        string `plist:"PayloadType"`
	PayloadVersion     int    `plist:"PayloadVersion"`
	PayloadIdentifier  string `plist:"PayloadIdentifier"`
	PayloadUUID        string `plist:"PayloadUUID"`
	PayloadDisplayName string `plist:"PayloadDisplayName"`

	ForceDelayedMajorSoftwareUpdates bool `plist:"forceDelayedMajorSoftwareUpdates"`
	MajorOSDeferredInstallDelay      int  `plist:"enforcedSoftwareUpdateMajorOSDeferredInstallDelay"`
	ForceDelayedSoftwareUpdates      bool `plist:"forceDelayedSoftwareUpdates"`
	ForceDelayedAppSoftwareUpdates   bool `plist:"forceDelayedAppSoftwareUpdates"`
}

// Document is the top-level configuration profile.
type Document struct {
	PayloadContent           []RestrictionsPayload `plist:"PayloadContent"`
	PayloadDisplayName       string                `plist:"PayloadDisplayName"`
	PayloadIdentifier        string                `plist:"PayloadIdentifier"`
	PayloadRemovalDisallowed bool                  `plist:"PayloadRemovalDisallowed"`
	PayloadScope             string                `plist:"PayloadScope"`
	PayloadType              string                `plist:"PayloadType"`
	PayloadUUID              string                `plist:"PayloadUUID"`
	PayloadVersion           int                   `plist:"PayloadVersion"`
}

// FileName returns the deterministic document name for a deferral window.
func FileName(days int) string {
	return fmt.Sprintf("defer-macos-upgrade-%ddays.mobileconfig", days)
}

// New builds a Document for the given deferral window with fresh UUIDs.
// The day count is validated before anything is rendered or written.
func New(days int) (*Document, error) {
	if err := config.ValidateDeferralDays(days); err != nil {
		return nil, err
	}
	displayName := fmt.Sprintf("Defer macOS Major Upgrades (%d days)", days)
	return &Document{
		PayloadContent: []RestrictionsPayload{{
			PayloadType:        "com.apple.applicationaccess",
			PayloadVersion:     1,
			PayloadIdentifier:  PayloadIdentifier,
			PayloadUUID:        strings.ToUpper(uuid.NewString()),
			PayloadDisplayName: "Restrictions",

			ForceDelayedMajorSoftwareUpdates: true,
			MajorOSDeferredInstallDelay:      days,
			ForceDelayedSoftwareUpdates:      false,
			ForceDelayedAppSoftwareUpdates:   false,
		}},
		PayloadDisplayName:       displayName,
		PayloadIdentifier:        ProfileIdentifier,
		PayloadRemovalDisallowed: false,
		PayloadScope:             "System",
		PayloadType:              "Configuration",
		PayloadUUID:              strings.ToUpper(uuid.NewString()),
		PayloadVersion:           1,
	}, nil
}

// Render encodes the document as an XML property list.
func (d *Document) Render() ([]byte, error) {
	return plist.MarshalIndent(d, "\t")
}

// Generator renders, validates, persists, and installs deferral profiles.
type Generator struct {
	Runner command.Runner
	// Scratch is the run's working directory; documents are rendered and
	// linted there before being placed in the target user's Downloads.
	Scratch string
}

// Abstracted for testing.
var lookupUser = user.Lookup

// Generate writes the deferral profile into the target user's Downloads
// directory, owned by that user, and returns its path. Failing to write the
// document is fatal to the run; lint and ownership problems are warnings.
func (g *Generator) Generate(ctx context.Context, username, home string, days int) (string, error) {
	doc, err := New(days)
	if err != nil {
		return "", err
	}
	data, err := doc.Render()
	if err != nil {
		return "", fmt.Errorf("rendering profile: %w", err)
	}

	staged := filepath.Join(g.Scratch, FileName(days))
	if err := os.WriteFile(staged, data, 0644); err != nil {
		return "", fmt.Errorf("writing profile to working directory: %w", err)
	}

	// The document may still install even if plutil dislikes it.
	if out, err := g.Runner.Run(ctx, plutilPath, "-lint", staged); err != nil {
		logging.Warn("Profile failed property-list validation", "error", err, "output", out)
	}

	downloads := filepath.Join(home, "Downloads")
	if err := os.MkdirAll(downloads, 0755); err != nil {
		return "", fmt.Errorf("creating %s: %w", downloads, err)
	}
	dest := filepath.Join(downloads, FileName(days))
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return "", fmt.Errorf("writing profile to %s: %w", dest, err)
	}

	g.chownToUser(dest, username)

	logging.Info("Wrote deferral profile", "path", dest, "days", days)
	return dest, nil
}

// chownToUser hands the document to the target user. Best-effort: the file
// is still usable when owned by root.
func (g *Generator) chownToUser(path, username string) {
	u, err := lookupUser(username)
	if err != nil {
		logging.Warn("Could not look up profile owner", "user", username, "error", err)
		return
	}
	uid, err1 := strconv.Atoi(u.Uid)
	gid, err2 := strconv.Atoi(u.Gid)
	if err1 != nil || err2 != nil {
		logging.Warn("Could not parse uid/gid for profile owner", "user", username)
		return
	}
	if err := os.Chown(path, uid, gid); err != nil {
		logging.Warn("Could not set profile ownership", "path", path, "error", err)
	}
}

// Install attempts a silent command-line installation and falls back to
// opening the document in System Settings for manual approval. The CLI path
// being unsupported on this OS build is expected, not an error.
func (g *Generator) Install(ctx context.Context, path string) error {
	out, err := g.Runner.Run(ctx, profilesPath, "install", "-path", path)
	if err == nil {
		logging.Info("Installed deferral profile", "path", path)
		return nil
	}
	logging.Warn("Command-line profile installation failed, opening for manual approval", "error", err, "output", out)

	if _, err := g.Runner.Run(ctx, openPath, path); err != nil {
		return fmt.Errorf("opening profile for manual approval: %w", err)
	}
	logging.Info("Profile opened in System Settings")
	logging.Info("To finish: System Settings > Privacy & Security > Profiles, then double-click the profile and choose Install")
	return nil
}

// Remover removes the installed deferral profile by its fixed identifier.
type Remover struct {
	Runner command.Runner
}

// Remove looks up the installed profile and requests its removal. An absent
// profile means there is nothing to remove; a failed removal is a warning
// that points at manual removal through System Settings.
func (r *Remover) Remove(ctx context.Context) {
	out, err := r.Runner.Run(ctx, profilesPath, "list")
	if err != nil {
		logging.Warn("Could not list installed profiles", "error", err)
		return
	}
	if !strings.Contains(out, ProfileIdentifier) {
		logging.Info("Deferral profile not installed, nothing to remove")
		return
	}

	if out, err := r.Runner.Run(ctx, profilesPath, "remove", "-identifier", ProfileIdentifier); err != nil {
		logging.Warn("Failed to remove deferral profile", "error", err, "output", out)
		logging.Warn("Remove it manually: System Settings > Privacy & Security > Profiles")
		return
	}
	logging.Info("Removed deferral profile", "identifier", ProfileIdentifier)
}
