// Package logging provides file logging for the farmd coordinator and worker.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultLogDir returns the default log directory following XDG Base Directory Spec.
// Uses $XDG_STATE_HOME/farmd/logs, defaulting to ~/.local/state/farmd/logs.
func DefaultLogDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "farmd", "logs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home can't be determined
		return filepath.Join(".", "farmd", "logs")
	}
	return filepath.Join(home, ".local", "state", "farmd", "logs")
}

// level represents the logging level.
type level int

const (
	levelInfo level = iota
	levelDebug
)

// Logger wraps the standard logger with level filtering and file output.
type Logger struct {
	level    level
	logger   *log.Logger
	file     *os.File
	filePath string
}

// Setup creates a new logger that writes to a timestamped log file.
// Returns nil if logging is disabled (noLog=true).
// cmdArgs should be os.Args to log the command that was run.
func Setup(logDir string, verbose, noLog bool, cmdArgs []string) (*Logger, error) {
	if noLog {
		return nil, nil
	}

	// Create log directory
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
	}

	// Generate timestamped filename
	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("farmd_run_%s.log", timestamp)
	filePath := filepath.Join(logDir, filename)

	// Open log file
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file %s: %w", filePath, err)
	}

	level := levelInfo
	if verbose {
		level = levelDebug
	}

	logger := log.New(file, "", 0) // No flags - we add timestamps manually for consistent format

	l := &Logger{
		level:    level,
		logger:   logger,
		file:     file,
		filePath: filePath,
	}

	// Log startup
	l.Info("Command: %s", strings.Join(cmdArgs, " "))
	l.Info("farmd starting")
	if verbose {
		l.Info("Debug level logging enabled")
	}
	l.Info("Log file: %s", filePath)

	return l, nil
}

// Close closes the log file.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// logAt writes one line tagged with levelTag, regardless of the
// logger's configured level; Info/Debug/Warn/ErrorLog all funnel
// through here so every line shares one timestamp/tag format.
func (l *Logger) logAt(levelTag, format string, args ...any) {
	if l == nil {
		return
	}
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	l.logger.Printf("%s [%s] "+format, append([]any{timestamp, levelTag}, args...)...)
}

// Info logs an info-level message.
func (l *Logger) Info(format string, args ...any) {
	l.logAt("INFO", format, args...)
}

// Debug logs a debug-level message (only if verbose mode is enabled).
func (l *Logger) Debug(format string, args ...any) {
	if l == nil || l.level < levelDebug {
		return
	}
	l.logAt("DEBUG", format, args...)
}

// Warn logs a warning-level message.
func (l *Logger) Warn(format string, args ...any) {
	l.logAt("WARN", format, args...)
}

// ErrorLog logs an error-level message.
func (l *Logger) ErrorLog(format string, args ...any) {
	l.logAt("ERROR", format, args...)
}

// SceneEvent logs an info-level message tagged with the scene it
// concerns, so a scene's full history (queued, chunked, completed) can
// be grepped out of a multi-scene run by its path.
func (l *Logger) SceneEvent(scenePath, format string, args ...any) {
	l.logAt("INFO", "scene=%s "+format, append([]any{scenePath}, args...)...)
}

// JobEvent logs an info-level message tagged with the job id and its
// dispatch target (local or a worker id), mirroring SceneEvent for the
// per-job diagnostics the scheduler and worker job server emit.
func (l *Logger) JobEvent(jobID, target, format string, args ...any) {
	l.logAt("INFO", "job=%s target=%s "+format, append([]any{jobID, target}, args...)...)
}

