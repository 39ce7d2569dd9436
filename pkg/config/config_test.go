package config

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) (*RunConfig, error) {
	t.Helper()
	return ParseWithDefaults(&FileConfig{}, args)
}

func TestParseDefaults(t *testing.T) {
	cfg, err := parse(t)
	require.NoError(t, err)

	assert.Equal(t, ModeApply, cfg.Mode)
	assert.True(t, cfg.AutoInstall)
	assert.True(t, cfg.MakeProfile)
	assert.False(t, cfg.AllUsers)
	assert.Equal(t, DefaultDeferralDays, cfg.DeferralDays)
	assert.Equal(t, DefaultNotificationDate, cfg.NotificationDate)
	assert.Equal(t, DefaultUpgradeName, cfg.UpgradeName)
}

func TestParseModes(t *testing.T) {
	tests := []struct {
		args []string
		want Mode
	}{
		{[]string{"--apply"}, ModeApply},
		{[]string{"--status"}, ModeStatus},
		{[]string{"--undo"}, ModeUndo},
		{[]string{"--uninstall-profile"}, ModeUninstallProfile},
		{[]string{"--profile-only"}, ModeProfileOnly},
		// The last mode-setting flag wins; several together are not a
		// conflict.
		{[]string{"--apply", "--status"}, ModeStatus},
		{[]string{"--status", "--undo", "--profile-only"}, ModeProfileOnly},
		{[]string{"--profile-only", "--apply"}, ModeApply},
	}
	for _, tt := range tests {
		cfg, err := parse(t, tt.args...)
		require.NoError(t, err, "args %v", tt.args)
		assert.Equal(t, tt.want, cfg.Mode, "args %v", tt.args)
	}
}

func TestParseToggles(t *testing.T) {
	cfg, err := parse(t, "--manual", "--no-profile", "--all-users")
	require.NoError(t, err)

	assert.False(t, cfg.AutoInstall)
	assert.False(t, cfg.MakeProfile)
	assert.True(t, cfg.AllUsers)
}

func TestParseDays(t *testing.T) {
	cfg, err := parse(t, "--days", "45")
	require.NoError(t, err)
	assert.Equal(t, 45, cfg.DeferralDays)

	for _, days := range []string{"0", "91", "-5"} {
		_, err := parse(t, "--days", days)
		require.Error(t, err, "days %s", days)
		assert.Contains(t, err.Error(), "days")
	}

	_, err = parse(t, "--days", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "days")
}

func TestParseDaysMissingValue(t *testing.T) {
	_, err := parse(t, "--days")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "days")
}

func TestParseDate(t *testing.T) {
	valid := "2030-06-15 08:30:00 +0200"
	cfg, err := parse(t, "--date", valid)
	require.NoError(t, err)
	assert.Equal(t, valid, cfg.NotificationDate)

	invalid := []string{
		"2030-06-15 08:30:00",       // missing timezone offset
		"2030/06/15 08:30:00 +0200", // wrong delimiter
		"someday soon",              // alphabetic
		"2030-06-15T08:30:00 +0200", // wrong separator
	}
	for _, date := range invalid {
		_, err := parse(t, "--date", date)
		require.Error(t, err, "date %q", date)
		assert.Contains(t, err.Error(), "date")
	}
}

func TestParseUnknownFlag(t *testing.T) {
	_, err := parse(t, "--bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}

func TestParseUnexpectedArgument(t *testing.T) {
	_, err := parse(t, "apply")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply")
}

func TestParseHelp(t *testing.T) {
	// Help is requested output and belongs on stdout.
	assert.Equal(t, io.Writer(os.Stdout), usageWriter)

	var buf bytes.Buffer
	orig := usageWriter
	usageWriter = &buf
	t.Cleanup(func() { usageWriter = orig })

	_, err := parse(t, "--help")
	assert.ErrorIs(t, err, pflag.ErrHelp)

	usage := buf.String()
	assert.Contains(t, usage, "Usage: manageddeferral")
	assert.Contains(t, usage, "--days")
	assert.Contains(t, usage, "--uninstall-profile")
}

func TestFileConfigOverrides(t *testing.T) {
	fileCfg := &FileConfig{
		DeferralDays:     30,
		NotificationDate: "2032-01-01 00:00:00 +0000",
		UpgradeName:      "Sequoia",
		AllUsers:         true,
	}

	cfg, err := ParseWithDefaults(fileCfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.DeferralDays)
	assert.Equal(t, "2032-01-01 00:00:00 +0000", cfg.NotificationDate)
	assert.Equal(t, "Sequoia", cfg.UpgradeName)
	assert.True(t, cfg.AllUsers)

	// Flags still override the file.
	cfg, err = ParseWithDefaults(fileCfg, []string{"--days", "10"})
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.DeferralDays)
}

func TestValidateDeferralDays(t *testing.T) {
	assert.NoError(t, ValidateDeferralDays(1))
	assert.NoError(t, ValidateDeferralDays(90))
	assert.Error(t, ValidateDeferralDays(0))
	assert.Error(t, ValidateDeferralDays(91))
	assert.Error(t, ValidateDeferralDays(-5))
}

func TestValidateNotificationDate(t *testing.T) {
	assert.NoError(t, ValidateNotificationDate("2031-01-01 00:00:00 +0000"))
	assert.NoError(t, ValidateNotificationDate("2030-12-31 23:59:59 -0800"))
	assert.Error(t, ValidateNotificationDate("2031-01-01 00:00:00"))
	assert.Error(t, ValidateNotificationDate("2031-01-01"))
	assert.Error(t, ValidateNotificationDate("not a date"))
}
