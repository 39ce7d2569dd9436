package users

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macadmins/deferral/pkg/command"
)

func stubIdentity(t *testing.T, consoleUID uint32, uidNames map[string]string, current string) {
	t.Helper()
	origStat, origLookup, origCurrent := statConsoleUID, lookupUID, currentUsername
	statConsoleUID = func() (uint32, error) { return consoleUID, nil }
	lookupUID = func(uid string) (string, error) {
		name, ok := uidNames[uid]
		if !ok {
			return "", errors.New("no such uid")
		}
		return name, nil
	}
	currentUsername = func() (string, error) { return current, nil }
	t.Cleanup(func() {
		statConsoleUID, lookupUID, currentUsername = origStat, origLookup, origCurrent
	})
}

func TestConsoleUserFromConsoleOwner(t *testing.T) {
	stubIdentity(t, 501, map[string]string{"501": "alice"}, "root")
	t.Setenv("SUDO_USER", "bob")

	d := &DSCL{}
	name, err := d.ConsoleUser()
	require.NoError(t, err)
	assert.Equal(t, "alice", name)
}

func TestConsoleUserRootOwnerFallsBackToSudoUser(t *testing.T) {
	stubIdentity(t, 0, map[string]string{"0": "root"}, "root")
	t.Setenv("SUDO_USER", "bob")

	d := &DSCL{}
	name, err := d.ConsoleUser()
	require.NoError(t, err)
	assert.Equal(t, "bob", name)
}

func TestConsoleUserFallsBackToCurrentUser(t *testing.T) {
	stubIdentity(t, 0, map[string]string{"0": "root"}, "carol")
	t.Setenv("SUDO_USER", "")

	d := &DSCL{}
	name, err := d.ConsoleUser()
	require.NoError(t, err)
	assert.Equal(t, "carol", name)
}

func TestConsoleUserEverythingRoot(t *testing.T) {
	stubIdentity(t, 0, map[string]string{"0": "root"}, "root")
	t.Setenv("SUDO_USER", "")

	d := &DSCL{}
	_, err := d.ConsoleUser()
	require.Error(t, err)
}

func TestHome(t *testing.T) {
	runner := command.NewFakeRunner()
	runner.Respond("/usr/bin/dscl . -read /Users/alice NFSHomeDirectory",
		"NFSHomeDirectory: /Users/alice")
	d := &DSCL{Runner: runner}

	home, err := d.Home(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "/Users/alice", home)
}

func TestHomeMissingAttribute(t *testing.T) {
	runner := command.NewFakeRunner()
	runner.Respond("/usr/bin/dscl . -read /Users/alice NFSHomeDirectory",
		"RecordName: alice")
	d := &DSCL{Runner: runner}

	_, err := d.Home(context.Background(), "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alice")
}

func TestHomeLookupFailure(t *testing.T) {
	runner := command.NewFakeRunner()
	runner.DefaultErr = errors.New("eDSRecordNotFound")
	d := &DSCL{Runner: runner}

	_, err := d.Home(context.Background(), "ghost")
	require.Error(t, err)
}

func TestLocalUsersFiltersSystemAccounts(t *testing.T) {
	runner := command.NewFakeRunner()
	runner.Respond("/usr/bin/dscl . -list /Users UniqueID",
		"_mbsetupuser  248\ndaemon        1\nnobody        -2\nroot          0\nalice         501\nbob           502\n")
	d := &DSCL{Runner: runner}

	locals, err := d.LocalUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []User{{Name: "alice", UID: 501}, {Name: "bob", UID: 502}}, locals)
}

func TestLocalUsersEnumerationFailure(t *testing.T) {
	runner := command.NewFakeRunner()
	runner.DefaultErr = errors.New("dscl unavailable")
	d := &DSCL{Runner: runner}

	_, err := d.LocalUsers(context.Background())
	require.Error(t, err)
}
