// pkg/policy/policy.go - software-update preference policy and the per-user
// upgrade notification suppression.
//
// Every write here is best-effort: the preference store rejects individual
// keys on some OS versions, so one refused key must never abort the rest.

package policy

import (
	"context"
	"errors"

	"github.com/macadmins/deferral/pkg/logging"
	"github.com/macadmins/deferral/pkg/prefs"
	"github.com/macadmins/deferral/pkg/users"
)

// NagKey is the per-user date key the update mechanism consults before
// showing the upgrade-available notification.
const NagKey = "MajorOSUserNotificationDate"

// System-wide SoftwareUpdate keys managed by Apply, in write order.
const (
	KeyAutomaticCheck    = "AutomaticCheckEnabled"
	KeyAutomaticDownload = "AutomaticDownload"
	KeyAutoInstallMacOS  = "AutomaticallyInstallMacOSUpdates"
	KeyConfigDataInstall = "ConfigDataInstall"
	KeyCriticalUpdates   = "CriticalUpdateInstall"
)

// ManagedKeys lists every key Apply touches, for status reporting.
var ManagedKeys = []string{
	KeyAutomaticCheck,
	KeyAutomaticDownload,
	KeyAutoInstallMacOS,
	KeyConfigDataInstall,
	KeyCriticalUpdates,
}

// Configurator applies the system-wide update policy.
type Configurator struct {
	Store prefs.Store
}

// Apply idempotently sets the managed SoftwareUpdate keys. Periodic checks,
// automatic downloads, config data, and critical updates are always enabled;
// automatic installation of macOS updates follows autoInstall. Returns the
// number of keys that could not be written.
func (c *Configurator) Apply(ctx context.Context, autoInstall bool) int {
	writes := []struct {
		key   string
		value bool
	}{
		{KeyAutomaticCheck, true},
		{KeyAutomaticDownload, true},
		{KeyAutoInstallMacOS, autoInstall},
		{KeyConfigDataInstall, true},
		{KeyCriticalUpdates, true},
	}

	failed := 0
	for _, w := range writes {
		if err := c.Store.WriteBool(ctx, "", prefs.SoftwareUpdateDomain, w.key, w.value); err != nil {
			logging.Warn("Failed to set update preference", "key", w.key, "error", err)
			failed++
			continue
		}
		logging.Debug("Set update preference", "key", w.key, "value", w.value)
	}
	return failed
}

// Suppressor manages the per-user notification date.
type Suppressor struct {
	Store prefs.Store
}

// Suppress writes the notification date into one user's domain, with that
// user's identity.
func (s *Suppressor) Suppress(ctx context.Context, username, date string) error {
	if err := s.Store.WriteDate(ctx, username, prefs.UserSoftwareUpdateDomain, NagKey, date); err != nil {
		return err
	}
	logging.Debug("Suppressed upgrade notification", "user", username, "until", date)
	return nil
}

// Unsuppress deletes the notification date from one user's domain. A key
// that was never set is already unsuppressed, not an error.
func (s *Suppressor) Unsuppress(ctx context.Context, username string) error {
	err := s.Store.Delete(ctx, username, prefs.UserSoftwareUpdateDomain, NagKey)
	if errors.Is(err, prefs.ErrKeyMissing) {
		logging.Debug("Upgrade notification already unsuppressed", "user", username)
		return nil
	}
	return err
}

// SuppressAll applies Suppress to every local user. One user's failure is a
// warning; the rest are still attempted. Returns how many users succeeded.
func (s *Suppressor) SuppressAll(ctx context.Context, svc users.DirectoryService, date string) (int, error) {
	locals, err := svc.LocalUsers(ctx)
	if err != nil {
		return 0, err
	}
	succeeded := 0
	for _, u := range locals {
		if err := s.Suppress(ctx, u.Name, date); err != nil {
			logging.Warn("Failed to suppress upgrade notification", "user", u.Name, "error", err)
			continue
		}
		succeeded++
	}
	return succeeded, nil
}

// UnsuppressAll applies Unsuppress to every local user, same failure policy
// as SuppressAll.
func (s *Suppressor) UnsuppressAll(ctx context.Context, svc users.DirectoryService) (int, error) {
	locals, err := svc.LocalUsers(ctx)
	if err != nil {
		return 0, err
	}
	succeeded := 0
	for _, u := range locals {
		if err := s.Unsuppress(ctx, u.Name); err != nil {
			logging.Warn("Failed to unsuppress upgrade notification", "user", u.Name, "error", err)
			continue
		}
		succeeded++
	}
	return succeeded, nil
}
