// Package runlog provides the per-run append-only log sink. A Log is opened
// once per batch or sweep invocation and must be closed on every exit path;
// Close flushes and syncs the underlying file.
package runlog

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Log is an append-only text sink for one run. It mirrors entries to stderr
// via the standard logger and records them in the run's log file.
type Log struct {
	mu     sync.Mutex
	file   *os.File
	logger *log.Logger
	closed bool
}

// Open creates the run log file under dir, named by the run identifier.
// The returned Log must be closed by the caller; defer Close immediately.
func Open(dir, runID string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("run-%s.log", runID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	l := &Log{
		file:   f,
		logger: log.New(io.MultiWriter(f, os.Stderr), "", log.LstdFlags),
	}
	l.logger.Printf("[runlog] run %s started at %s", runID, time.Now().Format(time.RFC3339))
	return l, nil
}

// Discard returns a Log that writes nowhere. Used by tests and by callers
// that have no run directory.
func Discard() *Log {
	return &Log{logger: log.New(io.Discard, "", 0)}
}

// Printf appends one formatted entry. Safe for concurrent use.
func (l *Log) Printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.logger.Printf(format, args...)
}

// Path returns the log file path, or "" for a discard log.
func (l *Log) Path() string {
	if l.file == nil {
		return ""
	}
	return l.file.Name()
}

// Close flushes and closes the log file. Idempotent; later writes are
// dropped rather than panicking so deferred failure paths stay safe.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		l.file.Close()
		return fmt.Errorf("sync run log: %w", err)
	}
	return l.file.Close()
}
