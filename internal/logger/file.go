package logger

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// SessionLog is the append-only log of one agent session.
// Each line reads "[YYYY-MM-DD HH:MM:SS] [LEVEL] message" with LEVEL one of
// INFO, WARN or ERROR. It implements Logger; Debugf lines are written as INFO.
type SessionLog struct {
	path string
	file *os.File
	mu   sync.Mutex
	now  func() time.Time
}

// OpenSessionLog opens (or creates) the log file at path for appending
func OpenSessionLog(path string) (*SessionLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open session log: %w", err)
	}

	return &SessionLog{path: path, file: file, now: time.Now}, nil
}

// Path returns the log file path
func (l *SessionLog) Path() string {
	return l.path
}

// Write appends one entry. Multi-line messages are written as-is.
func (l *SessionLog) Write(level, message string) error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("session log %s is closed", l.path)
	}
	ts := l.now().Format("2006-01-02 15:04:05")
	_, err := fmt.Fprintf(l.file, "[%s] [%s] %s\n", ts, strings.ToUpper(level), message)
	return err
}

func (l *SessionLog) Debugf(format string, args ...interface{}) {
	l.Write("INFO", fmt.Sprintf(format, args...))
}

func (l *SessionLog) Infof(format string, args ...interface{}) {
	l.Write("INFO", fmt.Sprintf(format, args...))
}

func (l *SessionLog) Warnf(format string, args ...interface{}) {
	l.Write("WARN", fmt.Sprintf(format, args...))
}

func (l *SessionLog) Errorf(format string, args ...interface{}) {
	l.Write("ERROR", fmt.Sprintf(format, args...))
}

// Close closes the underlying file. Further writes fail.
func (l *SessionLog) Close() error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// ReadLines returns the last n lines of the log at path, or every line when n <= 0
func ReadLines(path string, n int) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// Multi fans one message out to several loggers
type Multi []Logger

func (m Multi) Debugf(format string, args ...interface{}) {
	for _, l := range m {
		OrNop(l).Debugf(format, args...)
	}
}

func (m Multi) Infof(format string, args ...interface{}) {
	for _, l := range m {
		OrNop(l).Infof(format, args...)
	}
}

func (m Multi) Warnf(format string, args ...interface{}) {
	for _, l := range m {
		OrNop(l).Warnf(format, args...)
	}
}

func (m Multi) Errorf(format string, args ...interface{}) {
	for _, l := range m {
		OrNop(l).Errorf(format, args...)
	}
}
