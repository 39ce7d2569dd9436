// pkg/config/config.go - run configuration for ManagedDeferral.
//
// A RunConfig is built once per invocation: defaults, then optional YAML
// overrides from ConfigPath, then command-line flags. It is never mutated
// after Parse returns.

package config

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// ConfigPath holds optional site-wide defaults in YAML form.
const ConfigPath = "/Library/ManagedDeferral/Config.yaml"

// ExpectedMajorVersion is the macOS major version this build is intended to
// hold machines at. Compared by string equality only: version detection can
// return a non-numeric placeholder.
const ExpectedMajorVersion = "15"

// DefaultUpgradeName is the marketing name of the major upgrade being
// deferred, matched against installer bundles.
const DefaultUpgradeName = "Tahoe"

const (
	// DefaultDeferralDays is the profile deferral window when --days is absent.
	DefaultDeferralDays = 90
	// DefaultNotificationDate is the distant-future date written by the nag
	// suppressor when --date is absent.
	DefaultNotificationDate = "2031-01-01 00:00:00 +0000"

	minDeferralDays = 1
	maxDeferralDays = 90
)

// dateFormat is the exact shape `defaults write -date` accepts.
var dateFormat = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2} [+-]\d{4}$`)

// usageWriter receives the help text. Help is requested output, so it goes
// to stdout, not the error stream.
var usageWriter io.Writer = os.Stdout

// Mode selects which component sequence the dispatcher runs.
type Mode string

const (
	ModeApply            Mode = "apply"
	ModeStatus           Mode = "status"
	ModeUndo             Mode = "undo"
	ModeUninstallProfile Mode = "uninstall_profile"
	ModeProfileOnly      Mode = "profile_only"
)

// RunConfig holds the validated options for one invocation.
type RunConfig struct {
	Mode             Mode   `yaml:"Mode"`
	AutoInstall      bool   `yaml:"AutoInstall"`
	MakeProfile      bool   `yaml:"MakeProfile"`
	AllUsers         bool   `yaml:"AllUsers"`
	DeferralDays     int    `yaml:"DeferralDays"`
	NotificationDate string `yaml:"NotificationDate"`
	UpgradeName      string `yaml:"UpgradeName"`

	Verbosity   int  `yaml:"-"`
	ShowConfig  bool `yaml:"-"`
	ShowVersion bool `yaml:"-"`
	JSONOutput  bool `yaml:"-"`
}

// FileConfig is the YAML overrides document. Zero values mean "not set".
type FileConfig struct {
	DeferralDays     int    `yaml:"DeferralDays"`
	NotificationDate string `yaml:"NotificationDate"`
	UpgradeName      string `yaml:"UpgradeName"`
	AllUsers         bool   `yaml:"AllUsers"`
}

// RequiresRoot reports whether the mode touches privileged state.
func (m Mode) RequiresRoot() bool {
	switch m {
	case ModeApply, ModeUndo, ModeUninstallProfile, ModeProfileOnly:
		return true
	}
	return false
}

// modeFlag makes each mode option a boolean-style flag that overwrites the
// shared mode field, so the last one on the command line wins.
type modeFlag struct {
	target *Mode
	mode   Mode
}

func (m modeFlag) String() string { return "" }

func (m modeFlag) Type() string { return "bool" }

func (m modeFlag) Set(s string) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	if v {
		*m.target = m.mode
	}
	return nil
}

// defaultConfig returns the flagless configuration: apply everything for the
// console user with the standard deferral window.
func defaultConfig() *RunConfig {
	return &RunConfig{
		Mode:             ModeApply,
		AutoInstall:      true,
		MakeProfile:      true,
		AllUsers:         false,
		DeferralDays:     DefaultDeferralDays,
		NotificationDate: DefaultNotificationDate,
		UpgradeName:      DefaultUpgradeName,
	}
}

// loadFileConfig reads ConfigPath if present. A missing file is not an
// error; a malformed one is.
func loadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &FileConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return &fc, nil
}

// Parse builds the RunConfig for this invocation from the optional site
// config file and the command-line arguments. On -h/--help it prints usage
// and returns pflag.ErrHelp.
func Parse(args []string) (*RunConfig, error) {
	fileCfg, err := loadFileConfig(ConfigPath)
	if err != nil {
		return nil, err
	}
	return ParseWithDefaults(fileCfg, args)
}

// ParseWithDefaults is Parse with an explicit overrides document, split out
// so tests can drive it without touching /Library.
func ParseWithDefaults(fileCfg *FileConfig, args []string) (*RunConfig, error) {
	cfg := defaultConfig()

	if fileCfg.DeferralDays != 0 {
		cfg.DeferralDays = fileCfg.DeferralDays
	}
	if fileCfg.NotificationDate != "" {
		cfg.NotificationDate = fileCfg.NotificationDate
	}
	if fileCfg.UpgradeName != "" {
		cfg.UpgradeName = fileCfg.UpgradeName
	}
	if fileCfg.AllUsers {
		cfg.AllUsers = true
	}

	fs := pflag.NewFlagSet("manageddeferral", pflag.ContinueOnError)
	fs.SortFlags = false
	fs.Usage = func() {
		fmt.Fprintf(usageWriter, "Usage: manageddeferral [flags]\n\nFlags:\n%s", fs.FlagUsages())
	}

	modes := []struct {
		name  string
		mode  Mode
		usage string
	}{
		{"apply", ModeApply, "Configure update preferences, purge the installer, suppress the upgrade nag, and install the deferral profile (default)."},
		{"status", ModeStatus, "Report current update, profile, and installer state without changing anything."},
		{"undo", ModeUndo, "Remove the per-user upgrade notification suppression."},
		{"uninstall-profile", ModeUninstallProfile, "Remove the installed deferral profile."},
		{"profile-only", ModeProfileOnly, "Generate and install the deferral profile, nothing else."},
	}
	for _, m := range modes {
		fs.Var(modeFlag{target: &cfg.Mode, mode: m.mode}, m.name, m.usage)
		fs.Lookup(m.name).NoOptDefVal = "true"
	}

	manual := fs.Bool("manual", false, "Do not enable automatic installation of macOS updates.")
	noProfile := fs.Bool("no-profile", false, "Skip generating and installing the deferral profile.")
	fs.IntVar(&cfg.DeferralDays, "days", cfg.DeferralDays, "Number of days to defer the major upgrade (1-90).")
	fs.StringVar(&cfg.NotificationDate, "date", cfg.NotificationDate, `Notification suppression date ("YYYY-MM-DD HH:MM:SS ±HHMM").`)
	fs.BoolVar(&cfg.AllUsers, "all-users", cfg.AllUsers, "Suppress the upgrade notification for every local user (uid >= 501).")
	fs.BoolVar(&cfg.JSONOutput, "json", false, "Emit status output as JSON.")
	fs.BoolVar(&cfg.ShowConfig, "show-config", false, "Display the effective configuration and exit.")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Print the version and exit.")
	fs.CountVarP(&cfg.Verbosity, "verbose", "v", "Increase verbosity (repeatable).")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	cfg.AutoInstall = !*manual
	cfg.MakeProfile = !*noProfile

	if err := ValidateDeferralDays(cfg.DeferralDays); err != nil {
		return nil, fmt.Errorf("--days: %w", err)
	}
	if err := ValidateNotificationDate(cfg.NotificationDate); err != nil {
		return nil, fmt.Errorf("--date: %w", err)
	}

	return cfg, nil
}

// ValidateDeferralDays enforces the 1-90 day window Apple's MDM key accepts.
func ValidateDeferralDays(days int) error {
	if days < minDeferralDays || days > maxDeferralDays {
		return fmt.Errorf("deferral days must be between %d and %d, got %d", minDeferralDays, maxDeferralDays, days)
	}
	return nil
}

// ValidateNotificationDate enforces the exact timestamp shape that
// `defaults write -date` parses.
func ValidateNotificationDate(date string) error {
	if !dateFormat.MatchString(date) {
		return fmt.Errorf(`date %q does not match "YYYY-MM-DD HH:MM:SS ±HHMM"`, date)
	}
	return nil
}
