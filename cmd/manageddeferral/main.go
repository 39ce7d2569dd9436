// cmd/manageddeferral/main.go

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/macadmins/deferral/pkg/command"
	"github.com/macadmins/deferral/pkg/config"
	"github.com/macadmins/deferral/pkg/elevate"
	"github.com/macadmins/deferral/pkg/logging"
	"github.com/macadmins/deferral/pkg/policy"
	"github.com/macadmins/deferral/pkg/prefs"
	"github.com/macadmins/deferral/pkg/profile"
	"github.com/macadmins/deferral/pkg/purge"
	"github.com/macadmins/deferral/pkg/scripts"
	"github.com/macadmins/deferral/pkg/status"
	"github.com/macadmins/deferral/pkg/users"
	"github.com/macadmins/deferral/pkg/version"
)

var logger *logging.Logger

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "manageddeferral: %v\n", err)
		os.Exit(2)
	}

	if cfg.ShowVersion {
		version.Print()
		os.Exit(0)
	}

	if err := logging.Init(cfg.Verbosity); err != nil {
		fmt.Fprintf(os.Stderr, "manageddeferral: initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.CloseLogger()
	// Dispatcher output goes through the singleton so it reaches the run
	// log as well as the console.
	logger = logging.Default()

	if cfg.ShowConfig {
		if cfgYaml, err := yaml.Marshal(cfg); err == nil {
			logger.Printf("Current configuration:\n%s", string(cfgYaml))
		}
		os.Exit(0)
	}

	// One-time, all-or-nothing escalation: parse and validate ran
	// unprivileged, everything after this line runs as root.
	if cfg.Mode.RequiresRoot() && !elevate.IsElevated() {
		logger.Info("Mode %s requires elevated privileges, relaunching with sudo", cfg.Mode)
		code, err := elevate.Relaunch(os.Args[1:])
		if err != nil {
			logger.Fatal("Privilege escalation failed: %v", err)
		}
		os.Exit(code)
	}

	if err := command.Require(requiredTools(cfg.Mode)...); err != nil {
		logger.Fatal("%v", err)
	}

	// Scratch working directory, removed on every exit path.
	workDir, err := os.MkdirTemp("", "manageddeferral-")
	if err != nil {
		logger.Fatal("Failed to create working directory: %v", err)
	}
	cleanup := func() { os.RemoveAll(workDir) }
	defer cleanup()
	// Fatal exits bypass deferred functions; the hook keeps the workdir
	// removal on those paths too.
	logging.RegisterExitHook(cleanup)

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-signalChan
		logger.Warning("Signal received, exiting: %s", sig.String())
		cleanup()
		logging.CloseLogger()
		os.Exit(1)
	}()

	ctx := context.Background()
	runner := command.NewExecRunner()
	store := &prefs.ExecStore{Runner: runner, Elevated: elevate.IsElevated()}
	directory := &users.DSCL{Runner: runner}
	purger := purge.NewPurger(runner)

	switch cfg.Mode {
	case config.ModeStatus:
		runStatus(ctx, cfg, runner, store, directory, purger)
	case config.ModeApply:
		runApply(ctx, cfg, runner, store, directory, purger, workDir)
	case config.ModeUndo:
		runUndo(ctx, cfg, store, directory)
	case config.ModeUninstallProfile:
		remover := &profile.Remover{Runner: runner}
		remover.Remove(ctx)
	case config.ModeProfileOnly:
		runProfileOnly(ctx, cfg, runner, directory, workDir)
	}
}

// requiredTools lists the external utilities a mode shells out to. A missing
// one fails the run before any work starts.
func requiredTools(mode config.Mode) []string {
	switch mode {
	case config.ModeApply:
		return []string{"/usr/bin/defaults", "/usr/bin/dscl", "/usr/bin/plutil", "/usr/bin/profiles", "/usr/bin/open", "/usr/bin/sudo"}
	case config.ModeStatus:
		// An elevated status run reads the console user's nag key through
		// sudo -u, so sudo is required here as well.
		return []string{"/usr/bin/defaults", "/usr/bin/dscl", "/usr/sbin/softwareupdate", "/usr/bin/sudo"}
	case config.ModeUndo:
		return []string{"/usr/bin/defaults", "/usr/bin/dscl", "/usr/bin/sudo"}
	case config.ModeUninstallProfile:
		return []string{"/usr/bin/profiles"}
	case config.ModeProfileOnly:
		return []string{"/usr/bin/dscl", "/usr/bin/plutil", "/usr/bin/profiles", "/usr/bin/open"}
	}
	return nil
}

func runStatus(ctx context.Context, cfg *config.RunConfig, runner command.Runner, store prefs.Store, directory users.DirectoryService, purger *purge.Purger) {
	collector := &status.Collector{
		Runner:      runner,
		Store:       store,
		Directory:   directory,
		Purger:      purger,
		UpgradeName: cfg.UpgradeName,
	}
	report := collector.Collect(ctx)
	if cfg.JSONOutput {
		if err := report.PrintJSON(os.Stdout); err != nil {
			logger.Fatal("Failed to encode status report: %v", err)
		}
		return
	}
	report.Print(os.Stdout)
}

func runApply(ctx context.Context, cfg *config.RunConfig, runner command.Runner, store prefs.Store, directory users.DirectoryService, purger *purge.Purger, workDir string) {
	runPreflight()

	osVersion, major := status.DetectOSMajor()
	if major != config.ExpectedMajorVersion {
		logger.Warning("This build targets macOS %s but the system reports %s (major %s); proceeding anyway",
			config.ExpectedMajorVersion, osVersion, major)
	}

	configurator := &policy.Configurator{Store: store}
	if failed := configurator.Apply(ctx, cfg.AutoInstall); failed > 0 {
		logger.Warning("%d update preference(s) could not be set", failed)
	} else {
		logger.Info("Update preferences configured")
	}

	if purger.Purge(ctx, cfg.UpgradeName) {
		logger.Info("Removed %s installer", cfg.UpgradeName)
	}

	suppressor := &policy.Suppressor{Store: store}
	if cfg.AllUsers {
		count, err := suppressor.SuppressAll(ctx, directory, cfg.NotificationDate)
		if err != nil {
			logger.Fatal("Unable to enumerate local users: %v", err)
		}
		logger.Info("Suppressed upgrade notification for %d user(s)", count)
	} else {
		username := mustConsoleUser(directory)
		if err := suppressor.Suppress(ctx, username, cfg.NotificationDate); err != nil {
			logger.Warning("Failed to suppress upgrade notification for %s: %v", username, err)
		} else {
			logger.Info("Suppressed upgrade notification for %s until %s", username, cfg.NotificationDate)
		}
	}

	if cfg.MakeProfile {
		generateAndInstall(ctx, cfg, runner, directory, workDir)
	}

	runPostflight()
	logger.Success("Apply complete")
}

func runUndo(ctx context.Context, cfg *config.RunConfig, store prefs.Store, directory users.DirectoryService) {
	suppressor := &policy.Suppressor{Store: store}
	if cfg.AllUsers {
		count, err := suppressor.UnsuppressAll(ctx, directory)
		if err != nil {
			logger.Fatal("Unable to enumerate local users: %v", err)
		}
		logger.Success("Unsuppressed upgrade notification for %d user(s)", count)
		return
	}
	username := mustConsoleUser(directory)
	if err := suppressor.Unsuppress(ctx, username); err != nil {
		logger.Warning("Failed to unsuppress upgrade notification for %s: %v", username, err)
		return
	}
	logger.Success("Upgrade notification unsuppressed for %s", username)
}

func runProfileOnly(ctx context.Context, cfg *config.RunConfig, runner command.Runner, directory users.DirectoryService, workDir string) {
	generateAndInstall(ctx, cfg, runner, directory, workDir)
	logger.Success("Profile generated and installed")
}

// generateAndInstall renders the deferral profile for the console user and
// attempts installation. Failure to persist the document is fatal; install
// problems fall back to manual approval.
func generateAndInstall(ctx context.Context, cfg *config.RunConfig, runner command.Runner, directory users.DirectoryService, workDir string) {
	username := mustConsoleUser(directory)
	home, err := directory.Home(ctx, username)
	if err != nil {
		logger.Fatal("Unable to resolve home directory for %s: %v", username, err)
	}

	generator := &profile.Generator{Runner: runner, Scratch: workDir}
	path, err := generator.Generate(ctx, username, home, cfg.DeferralDays)
	if err != nil {
		logger.Fatal("Failed to generate deferral profile: %v", err)
	}
	if err := generator.Install(ctx, path); err != nil {
		logger.Warning("Profile installation needs manual follow-up: %v", err)
	}
}

func mustConsoleUser(directory users.DirectoryService) string {
	username, err := directory.ConsoleUser()
	if err != nil {
		logger.Fatal("Unable to resolve target user: %v", err)
	}
	return username
}

func runPreflight() {
	if err := scripts.RunPreflight(logger.Debug, logger.Error); err != nil {
		logger.Warning("Preflight script failed: %v", err)
	}
}

func runPostflight() {
	if err := scripts.RunPostflight(logger.Debug, logger.Error); err != nil {
		logger.Warning("Postflight script failed: %v", err)
	}
}
