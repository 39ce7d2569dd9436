// pkg/users/users.go - target-user resolution through Directory Services.
//
// The console user is the owner of /dev/console; home directories come from
// dscl, never from naming convention. All shell-outs go through a
// command.Runner so the logic is testable against a fake.

package users

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/macadmins/deferral/pkg/command"
	"github.com/macadmins/deferral/pkg/logging"
)

const dsclPath = "/usr/bin/dscl"

// Local accounts start at uid 501; everything below is a system or service
// account.
const minLocalUID = 501

// User is a resolved local account.
type User struct {
	Name string
	UID  int
}

// DirectoryService resolves target users for per-user preference writes.
type DirectoryService interface {
	// ConsoleUser returns the account owning the active GUI session,
	// falling back to the invoking user.
	ConsoleUser() (string, error)
	// Home returns the account's home directory from Directory Services.
	Home(ctx context.Context, username string) (string, error)
	// LocalUsers returns every local account with uid >= 501, in
	// directory-service enumeration order.
	LocalUsers(ctx context.Context) ([]User, error)
}

// DSCL is the DirectoryService implementation backed by the real directory
// service and /dev/console.
type DSCL struct {
	Runner command.Runner
}

// Abstracted for testing.
var (
	statConsoleUID = func() (uint32, error) {
		var st unix.Stat_t
		if err := unix.Stat("/dev/console", &st); err != nil {
			return 0, err
		}
		return st.Uid, nil
	}
	lookupUID = func(uid string) (string, error) {
		u, err := user.LookupId(uid)
		if err != nil {
			return "", err
		}
		return u.Username, nil
	}
	currentUsername = func() (string, error) {
		u, err := user.Current()
		if err != nil {
			return "", err
		}
		return u.Username, nil
	}
)

// ConsoleUser resolves the GUI session owner. When the console is owned by
// root or cannot be determined (headless or remote sessions), it falls back
// to SUDO_USER and then the invoking user.
func (d *DSCL) ConsoleUser() (string, error) {
	if uid, err := statConsoleUID(); err == nil {
		if name, err := lookupUID(strconv.FormatUint(uint64(uid), 10)); err == nil && name != "root" {
			return name, nil
		}
	}

	// Headless or pre-login: prefer the account that invoked sudo.
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" && sudoUser != "root" {
		logging.Debug("Console user undeterminable, using invoking sudo user", "user", sudoUser)
		return sudoUser, nil
	}

	name, err := currentUsername()
	if err != nil || name == "" || name == "root" {
		return "", fmt.Errorf("unable to determine a console user")
	}
	logging.Debug("Console user undeterminable, using current user", "user", name)
	return name, nil
}

// Home resolves the home directory via dscl. It fails loudly rather than
// guessing /Users/<name>.
func (d *DSCL) Home(ctx context.Context, username string) (string, error) {
	out, err := d.Runner.Run(ctx, dsclPath, ".", "-read", "/Users/"+username, "NFSHomeDirectory")
	if err != nil {
		return "", fmt.Errorf("looking up home directory for %s: %w", username, err)
	}
	// Output shape: "NFSHomeDirectory: /Users/name"
	for _, line := range strings.Split(out, "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), "NFSHomeDirectory:"); ok {
			home := strings.TrimSpace(rest)
			if home != "" {
				return home, nil
			}
		}
	}
	return "", fmt.Errorf("directory service returned no home directory for %s", username)
}

// LocalUsers enumerates local accounts with uid >= 501.
func (d *DSCL) LocalUsers(ctx context.Context) ([]User, error) {
	out, err := d.Runner.Run(ctx, dsclPath, ".", "-list", "/Users", "UniqueID")
	if err != nil {
		return nil, fmt.Errorf("listing local users: %w", err)
	}

	var users []User
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		uid, err := strconv.Atoi(fields[1])
		if err != nil || uid < minLocalUID {
			continue
		}
		users = append(users, User{Name: fields[0], UID: uid})
	}
	return users, nil
}
