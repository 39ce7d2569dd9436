package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macadmins/deferral/pkg/prefs"
	"github.com/macadmins/deferral/pkg/users"
)

func TestApplySetsAllManagedKeys(t *testing.T) {
	store := prefs.NewFakeStore()
	c := &Configurator{Store: store}

	failed := c.Apply(context.Background(), true)
	assert.Zero(t, failed)

	for _, key := range ManagedKeys {
		value, err := store.Read(context.Background(), "", prefs.SoftwareUpdateDomain, key)
		require.NoError(t, err, "key %s", key)
		assert.Equal(t, "1", value, "key %s", key)
	}
}

func TestApplyManualInstall(t *testing.T) {
	store := prefs.NewFakeStore()
	c := &Configurator{Store: store}

	failed := c.Apply(context.Background(), false)
	assert.Zero(t, failed)

	value, err := store.Read(context.Background(), "", prefs.SoftwareUpdateDomain, KeyAutoInstallMacOS)
	require.NoError(t, err)
	assert.Equal(t, "0", value)

	// The other keys stay enabled regardless.
	value, err = store.Read(context.Background(), "", prefs.SoftwareUpdateDomain, KeyCriticalUpdates)
	require.NoError(t, err)
	assert.Equal(t, "1", value)
}

func TestApplyContinuesPastRefusedKey(t *testing.T) {
	store := prefs.NewFakeStore()
	store.FailOn("", prefs.SoftwareUpdateDomain, KeyAutomaticDownload)
	c := &Configurator{Store: store}

	failed := c.Apply(context.Background(), true)
	assert.Equal(t, 1, failed)

	// Keys after the refused one were still written.
	for _, key := range []string{KeyAutoInstallMacOS, KeyConfigDataInstall, KeyCriticalUpdates} {
		_, err := store.Read(context.Background(), "", prefs.SoftwareUpdateDomain, key)
		assert.NoError(t, err, "key %s", key)
	}
}

func TestSuppressWritesUserDate(t *testing.T) {
	store := prefs.NewFakeStore()
	s := &Suppressor{Store: store}
	date := "2031-01-01 00:00:00 +0000"

	require.NoError(t, s.Suppress(context.Background(), "alice", date))

	value, err := store.Read(context.Background(), "alice", prefs.UserSoftwareUpdateDomain, NagKey)
	require.NoError(t, err)
	assert.Equal(t, date, value)
}

func TestUnsuppressRemovesDate(t *testing.T) {
	store := prefs.NewFakeStore()
	store.Set("alice", prefs.UserSoftwareUpdateDomain, NagKey, "2031-01-01 00:00:00 +0000")
	s := &Suppressor{Store: store}

	require.NoError(t, s.Unsuppress(context.Background(), "alice"))

	_, err := store.Read(context.Background(), "alice", prefs.UserSoftwareUpdateDomain, NagKey)
	assert.ErrorIs(t, err, prefs.ErrKeyMissing)
}

func TestUnsuppressMissingKeyIsNotAnError(t *testing.T) {
	store := prefs.NewFakeStore()
	s := &Suppressor{Store: store}

	assert.NoError(t, s.Unsuppress(context.Background(), "alice"))
}

func TestSuppressAll(t *testing.T) {
	store := prefs.NewFakeStore()
	svc := &users.FakeDirectory{Users: []users.User{
		{Name: "alice", UID: 501},
		{Name: "bob", UID: 502},
	}}
	s := &Suppressor{Store: store}
	date := "2031-01-01 00:00:00 +0000"

	count, err := s.SuppressAll(context.Background(), svc, date)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	for _, name := range []string{"alice", "bob"} {
		value, err := store.Read(context.Background(), name, prefs.UserSoftwareUpdateDomain, NagKey)
		require.NoError(t, err, "user %s", name)
		assert.Equal(t, date, value)
	}
}

func TestSuppressAllContinuesPastFailingUser(t *testing.T) {
	store := prefs.NewFakeStore()
	store.FailOn("bob", prefs.UserSoftwareUpdateDomain, NagKey)
	svc := &users.FakeDirectory{Users: []users.User{
		{Name: "alice", UID: 501},
		{Name: "bob", UID: 502},
		{Name: "carol", UID: 503},
	}}
	s := &Suppressor{Store: store}

	count, err := s.SuppressAll(context.Background(), svc, "2031-01-01 00:00:00 +0000")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = store.Read(context.Background(), "carol", prefs.UserSoftwareUpdateDomain, NagKey)
	assert.NoError(t, err)
}

func TestSuppressAllEnumerationFailure(t *testing.T) {
	store := prefs.NewFakeStore()
	svc := &users.FakeDirectory{ListErr: errors.New("dscl unavailable")}
	s := &Suppressor{Store: store}

	count, err := s.SuppressAll(context.Background(), svc, "2031-01-01 00:00:00 +0000")
	require.Error(t, err)
	assert.Zero(t, count)
}

func TestUnsuppressAll(t *testing.T) {
	store := prefs.NewFakeStore()
	store.Set("alice", prefs.UserSoftwareUpdateDomain, NagKey, "2031-01-01 00:00:00 +0000")
	svc := &users.FakeDirectory{Users: []users.User{
		{Name: "alice", UID: 501},
		{Name: "bob", UID: 502}, // never suppressed, still counts as done
	}}
	s := &Suppressor{Store: store}

	count, err := s.UnsuppressAll(context.Background(), svc)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = store.Read(context.Background(), "alice", prefs.UserSoftwareUpdateDomain, NagKey)
	assert.ErrorIs(t, err, prefs.ErrKeyMissing)
}
