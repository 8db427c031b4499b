// Package logger provides levelled logging for LegalVault.
//
// The package-level printf helpers serve the CLI and core services. In the
// default "plain" format they print "[LEVEL] message" lines; the "text" and
// "json" formats route the same calls through log/slog handlers so service
// deployments get structured output. WithComponent returns a *slog.Logger
// for adapters that log key/value pairs.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Output formats accepted by Setup.
const (
	FormatPlain = "plain"
	FormatText  = "text"
	FormatJSON  = "json"
)

var (
	mu      sync.RWMutex
	verbose bool
	level   = slog.LevelWarn
	format  = FormatPlain
	output  io.Writer = os.Stderr
	base    = newSlog(output, FormatPlain, slog.LevelWarn)
)

// Setup configures the minimum level ("debug", "info", "warn", "error") and
// output format, and installs the matching slog.Default.
func Setup(lvl, fmtName string) {
	mu.Lock()
	defer mu.Unlock()
	level = ParseLevel(lvl)
	switch fmtName {
	case FormatText, FormatJSON:
		format = fmtName
	default:
		format = FormatPlain
	}
	rebuild()
}

// SetVerbose enables or disables verbose logging.
// Verbose mode emits everything down to debug regardless of Setup.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
	rebuild()
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	rebuild()
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent returns a structured logger tagged with the component name.
func WithComponent(component string) *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.With("component", component)
}

// Debug logs a debug message.
func Debug(format string, args ...any) {
	logf(slog.LevelDebug, format, args...)
}

// Info logs an informational message.
func Info(format string, args ...any) {
	logf(slog.LevelInfo, format, args...)
}

// Warn logs a warning message.
func Warn(format string, args ...any) {
	logf(slog.LevelWarn, format, args...)
}

// Error logs an error message.
func Error(format string, args ...any) {
	logf(slog.LevelError, format, args...)
}

// Section prints a section header when debug output is enabled.
func Section(name string) {
	mu.RLock()
	defer mu.RUnlock()
	if !enabled(slog.LevelDebug) {
		return
	}
	if format == FormatPlain {
		fmt.Fprintf(output, "\n=== %s ===\n", name)
		return
	}
	base.Debug("section", "name", name)
}

func logf(lvl slog.Level, msg string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if !enabled(lvl) {
		return
	}
	if format == FormatPlain {
		fmt.Fprintf(output, "["+levelTag(lvl)+"] "+msg+"\n", args...)
		return
	}
	base.Log(context.Background(), lvl, fmt.Sprintf(msg, args...))
}

// enabled must be called with mu held.
func enabled(lvl slog.Level) bool {
	if verbose {
		return true
	}
	return lvl >= level
}

func levelTag(lvl slog.Level) string {
	switch {
	case lvl >= slog.LevelError:
		return "ERROR"
	case lvl >= slog.LevelWarn:
		return "WARN"
	case lvl >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

// rebuild must be called with mu held.
func rebuild() {
	floor := level
	if verbose {
		floor = slog.LevelDebug
	}
	base = newSlog(output, format, floor)
	slog.SetDefault(base)
}

func newSlog(w io.Writer, fmtName string, floor slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: floor}
	if fmtName == FormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
