// pkg/prefs/prefs.go - access to the macOS preference store via defaults(1).
//
// Writes to the system SoftwareUpdate domain use the absolute plist path and
// require root. Per-user writes run with the target user's identity so a key
// is never applied to the wrong account.

package prefs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/macadmins/deferral/pkg/command"
)

const defaultsPath = "/usr/bin/defaults"

// SoftwareUpdateDomain is the system-wide update preference domain.
const SoftwareUpdateDomain = "/Library/Preferences/com.apple.SoftwareUpdate"

// UserSoftwareUpdateDomain is the per-user update preference domain.
const UserSoftwareUpdateDomain = "com.apple.SoftwareUpdate"

// ErrKeyMissing marks a read or delete of a key that is not set. Callers
// treat it as "unset", never as a failure.
var ErrKeyMissing = errors.New("preference key not set")

// Store reads and writes preference keys. An empty username addresses the
// system domain as the current (root) identity; a username addresses that
// user's own domain with their identity.
type Store interface {
	Read(ctx context.Context, username, domain, key string) (string, error)
	WriteBool(ctx context.Context, username, domain, key string, value bool) error
	WriteDate(ctx context.Context, username, domain, key, value string) error
	Delete(ctx context.Context, username, domain, key string) error
}

// ExecStore is the Store implementation backed by defaults(1).
type ExecStore struct {
	Runner command.Runner
	// Elevated controls whether per-user operations go through sudo -u.
	// Unprivileged runs (status) address the invoking user directly.
	Elevated bool
}

func (s *ExecStore) run(ctx context.Context, username string, args ...string) (string, error) {
	if username != "" && s.Elevated {
		return s.Runner.RunAs(ctx, username, defaultsPath, args...)
	}
	return s.Runner.Run(ctx, defaultsPath, args...)
}

// Read returns the key's value, or ErrKeyMissing when the domain or key
// does not exist.
func (s *ExecStore) Read(ctx context.Context, username, domain, key string) (string, error) {
	out, err := s.run(ctx, username, "read", domain, key)
	if err != nil {
		if strings.Contains(out, "does not exist") || strings.Contains(err.Error(), "does not exist") {
			return "", ErrKeyMissing
		}
		return "", fmt.Errorf("reading %s %s: %w", domain, key, err)
	}
	return strings.TrimSpace(out), nil
}

// WriteBool sets a boolean preference key.
func (s *ExecStore) WriteBool(ctx context.Context, username, domain, key string, value bool) error {
	boolArg := "FALSE"
	if value {
		boolArg = "TRUE"
	}
	if _, err := s.run(ctx, username, "write", domain, key, "-bool", boolArg); err != nil {
		return fmt.Errorf("writing %s %s: %w", domain, key, err)
	}
	return nil
}

// WriteDate sets a date-valued preference key. The value must already be
// validated against the defaults(1) date format.
func (s *ExecStore) WriteDate(ctx context.Context, username, domain, key, value string) error {
	if _, err := s.run(ctx, username, "write", domain, key, "-date", value); err != nil {
		return fmt.Errorf("writing %s %s: %w", domain, key, err)
	}
	return nil
}

// Delete removes a preference key. A key that was never set returns
// ErrKeyMissing so callers can treat the deletion as already done.
func (s *ExecStore) Delete(ctx context.Context, username, domain, key string) error {
	out, err := s.run(ctx, username, "delete", domain, key)
	if err != nil {
		if strings.Contains(out, "does not exist") || strings.Contains(err.Error(), "does not exist") {
			return ErrKeyMissing
		}
		return fmt.Errorf("deleting %s %s: %w", domain, key, err)
	}
	return nil
}
