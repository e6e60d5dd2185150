// Package logger provides the console and per-session file loggers used by ada.
//
// Components depend on the small Logger interface; ConsoleLogger implements
// it for operator-facing output and Nop discards everything.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Log level constants for filtering
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// Logger is the logging surface components accept
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Nop is a Logger that discards every message
type Nop struct{}

func (Nop) Debugf(string, ...interface{}) {}
func (Nop) Infof(string, ...interface{})  {}
func (Nop) Warnf(string, ...interface{})  {}
func (Nop) Errorf(string, ...interface{}) {}

// OrNop returns l, or Nop when l is nil
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop{}
	}
	return l
}

// ConsoleLogger writes leveled, timestamped lines to a writer.
// Output is prefixed with [HH:MM:SS] and coloured by level on a terminal.
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
}

// NewConsoleLogger creates a ConsoleLogger for writer at logLevel.
// A nil writer discards messages. Empty or invalid levels default to "info".
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: isTerminal(writer),
	}
}

// isTerminal reports whether w is stdout or stderr and colour is enabled.
// fatih/color already folds in NO_COLOR and the isatty check.
func isTerminal(w io.Writer) bool {
	if w == nil {
		return false
	}
	if w == os.Stdout || w == os.Stderr {
		return !color.NoColor
	}
	return false
}

// normalizeLogLevel lowercases level and falls back to "info"
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))
	switch normalized {
	case "trace", "debug", "info", "warn", "error":
		return normalized
	}
	return "info"
}

func logLevelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

// LogTrace logs a trace-level message
func (cl *ConsoleLogger) LogTrace(message string) { cl.logWithLevel("trace", message) }

// LogDebug logs a debug-level message
func (cl *ConsoleLogger) LogDebug(message string) { cl.logWithLevel("debug", message) }

// LogInfo logs an info-level message
func (cl *ConsoleLogger) LogInfo(message string) { cl.logWithLevel("info", message) }

// LogWarn logs a warn-level message
func (cl *ConsoleLogger) LogWarn(message string) { cl.logWithLevel("warn", message) }

// LogError logs an error-level message
func (cl *ConsoleLogger) LogError(message string) { cl.logWithLevel("error", message) }

func (cl *ConsoleLogger) Debugf(format string, args ...interface{}) {
	cl.LogDebug(fmt.Sprintf(format, args...))
}

func (cl *ConsoleLogger) Infof(format string, args ...interface{}) {
	cl.LogInfo(fmt.Sprintf(format, args...))
}

func (cl *ConsoleLogger) Warnf(format string, args ...interface{}) {
	cl.LogWarn(fmt.Sprintf(format, args...))
}

func (cl *ConsoleLogger) Errorf(format string, args ...interface{}) {
	cl.LogError(fmt.Sprintf(format, args...))
}

// logWithLevel writes "[HH:MM:SS] [LEVEL] message" if the level passes the filter
func (cl *ConsoleLogger) logWithLevel(level, message string) {
	if cl.writer == nil || !cl.shouldLog(level) {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := time.Now().Format("15:04:05")
	label := "[" + strings.ToUpper(level) + "]"
	if cl.colorOutput {
		label = levelColor(level).Sprint(label)
	}
	fmt.Fprintf(cl.writer, "[%s] %s %s\n", ts, label, message)
}

func levelColor(level string) *color.Color {
	switch level {
	case "trace":
		return color.New(color.FgHiBlack)
	case "debug":
		return color.New(color.FgCyan)
	case "warn":
		return color.New(color.FgYellow)
	case "error":
		return color.New(color.FgRed)
	default:
		return color.New(color.FgBlue)
	}
}
