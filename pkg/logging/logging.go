// pkg/logging/logging.go - timestamped logging for ManagedDeferral.
//
// Console output goes through a Logger with colored severity levels; a
// package-level singleton additionally appends every message to the run log
// under /Library/ManagedDeferral/Logs. Opening the log file is best-effort:
// unprivileged runs (for example --status) fall back to console-only output.

package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LogDir is where run logs are written. Creating it requires root; a failure
// to open the file never prevents console logging.
const LogDir = "/Library/ManagedDeferral/Logs"

// LogLevel represents the severity of the log message.
type LogLevel int

const (
	LevelError LogLevel = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// String returns the string representation of the LogLevel.
func (ll LogLevel) String() string {
	switch ll {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARNING"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGreen  = "\033[32m"
)

// Logger encapsulates console and file logging for a single run.
type Logger struct {
	mu       sync.RWMutex
	out      *log.Logger
	errOut   *log.Logger
	logLevel LogLevel
	logFile  *os.File
}

// singleton instance and sync.Once for thread-safe initialization
var (
	instance *Logger
	once     sync.Once
)

// Exit hooks run before Fatal terminates the process, so run-scoped
// resources (the scratch workdir) are released on fatal paths too.
var (
	exitHooks []func()
	osExit    = os.Exit
)

// RegisterExitHook adds a function that Fatal runs before exiting.
func RegisterExitHook(hook func()) {
	exitHooks = append(exitHooks, hook)
}

// Default returns the singleton Logger. Init must have been called first.
func Default() *Logger {
	return instance
}

// Init initializes the singleton Logger. It must be called before the
// package-level logging functions are used. verbosity > 0 enables DEBUG.
func Init(verbosity int) error {
	var initErr error
	once.Do(func() {
		instance, initErr = newLogger(verbosity)
	})
	return initErr
}

func newLogger(verbosity int) (*Logger, error) {
	l := New(verbosity > 0)

	// Only root can write under /Library; everyone else logs to console only.
	if err := os.MkdirAll(LogDir, 0755); err == nil {
		logPath := filepath.Join(LogDir, "deferral.log")
		if f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
			l.logFile = f
		}
	}
	return l, nil
}

// New creates a console-only Logger. Verbose enables DEBUG output.
func New(verbose bool) *Logger {
	level := LevelInfo
	if verbose {
		level = LevelDebug
	}
	return &Logger{
		out:      log.New(os.Stdout, "", 0),
		errOut:   log.New(os.Stderr, "", 0),
		logLevel: level,
	}
}

// CloseLogger closes the singleton's log file if it is open.
func CloseLogger() {
	if instance == nil {
		return
	}
	instance.mu.Lock()
	defer instance.mu.Unlock()
	if instance.logFile != nil {
		if err := instance.logFile.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close log file: %v\n", err)
		}
		instance.logFile = nil
	}
}

// SetOutput redirects both console streams (used by tests).
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = log.New(w, "", 0)
	l.errOut = log.New(w, "", 0)
}

// logLine writes one formatted line to the chosen console stream and, when a
// log file is open, to the run log without color codes. Warnings and errors
// go to stderr with a distinguishing severity prefix.
func (l *Logger) logLine(level LogLevel, color, format string, v ...interface{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if level > l.logLevel {
		return
	}

	ts := time.Now().Format("2006-01-02 15:04:05")
	msg := fmt.Sprintf(format, v...)

	line := fmt.Sprintf("[%s] %s", ts, msg)
	target := l.out
	if level == LevelError || level == LevelWarn {
		line = fmt.Sprintf("[%s] %s: %s", ts, level.String(), msg)
		target = l.errOut
	}

	if color != "" {
		target.Printf("%s%s%s", color, line, colorReset)
	} else {
		target.Println(line)
	}

	if l.logFile != nil {
		fmt.Fprintln(l.logFile, line)
	}
}

// Printf prints a regular message.
func (l *Logger) Printf(format string, v ...interface{}) {
	l.logLine(LevelInfo, "", format, v...)
}

// Info prints an informational message.
func (l *Logger) Info(format string, v ...interface{}) {
	l.logLine(LevelInfo, "", format, v...)
}

// Success prints a success message in green.
func (l *Logger) Success(format string, v ...interface{}) {
	l.logLine(LevelInfo, colorGreen, format, v...)
}

// Warning prints a warning message in yellow on stderr. Warnings never
// affect the process exit code.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.logLine(LevelWarn, colorYellow, format, v...)
}

// Error prints an error message in red on stderr.
func (l *Logger) Error(format string, v ...interface{}) {
	l.logLine(LevelError, colorRed, format, v...)
}

// Debug prints a debug message in blue.
func (l *Logger) Debug(format string, v ...interface{}) {
	l.logLine(LevelDebug, colorBlue, format, v...)
}

// Fatal prints an error message in red, runs the registered exit hooks,
// and exits with a non-zero status.
func (l *Logger) Fatal(format string, v ...interface{}) {
	l.Error(format, v...)
	for _, hook := range exitHooks {
		hook()
	}
	CloseLogger()
	osExit(1)
}

// withKeyValues appends optional key/value pairs as key=value.
func withKeyValues(message string, keyValues ...interface{}) string {
	for i := 0; i+1 < len(keyValues); i += 2 {
		message += fmt.Sprintf(" %v=%v", keyValues[i], keyValues[i+1])
	}
	return message
}

// Info logs an informational message through the singleton.
func Info(message string, keyValues ...interface{}) {
	if instance == nil {
		fmt.Printf("LOGGING NOT INITIALIZED: INFO %s %v\n", message, keyValues)
		return
	}
	instance.Info("%s", withKeyValues(message, keyValues...))
}

// Debug logs a debug message through the singleton.
func Debug(message string, keyValues ...interface{}) {
	if instance == nil {
		return
	}
	instance.Debug("%s", withKeyValues(message, keyValues...))
}

// Warn logs a warning message through the singleton.
func Warn(message string, keyValues ...interface{}) {
	if instance == nil {
		fmt.Printf("LOGGING NOT INITIALIZED: WARNING %s %v\n", message, keyValues)
		return
	}
	instance.Warning("%s", withKeyValues(message, keyValues...))
}

// Error logs an error message through the singleton.
func Error(message string, keyValues ...interface{}) {
	if instance == nil {
		fmt.Printf("LOGGING NOT INITIALIZED: ERROR %s %v\n", message, keyValues)
		return
	}
	instance.Error("%s", withKeyValues(message, keyValues...))
}
