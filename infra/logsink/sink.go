// Package logsink serializes concurrent subscription writes into
// possibly-shared append-only log files.
package logsink

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cmdscript/cmdscript/core/logger"
)

// stampLayout is the stable timestamp prefix of every record, UTC.
const stampLayout = "2006-01-02_15:04:05.000"

// Sink owns every log file the script writes to. A single mutex
// serializes all writes, so records from concurrently arriving messages
// never interleave even when different topics share one file. Handles
// open lazily on first write and stay open until Close.
type Sink struct {
	mu    sync.Mutex
	files map[string]*os.File
	log   logger.Logger
}

// New creates an empty Sink.
func New(log logger.Logger) *Sink {
	return &Sink{files: make(map[string]*os.File), log: log}
}

// Write appends one message record to path. Line format, stable across
// runs: [YYYY-MM-DD_hh:mm:ss.mmm] [topic] payload
func (s *Sink) Write(path, topic, payload string, ts time.Time) error {
	line := fmt.Sprintf("[%s] [%s] %s\n", ts.UTC().Format(stampLayout), topic, payload)
	return s.append(path, line)
}

// WriteMarker appends a session-state marker line (for example
// "-- MQTT Connected --") to path using the same timestamp prefix.
func (s *Sink) WriteMarker(path, marker string, ts time.Time) error {
	line := fmt.Sprintf("[%s] %s\n", ts.UTC().Format(stampLayout), marker)
	return s.append(path, line)
}

func (s *Sink) append(path, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.handle(path)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// handle returns the open file for path, opening it on first use.
// Callers must hold s.mu.
func (s *Sink) handle(path string) (*os.File, error) {
	if f, ok := s.files[path]; ok {
		return f, nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	s.files[path] = f
	s.log.Debugf("opened log file %s", path)
	return f, nil
}

// Close syncs and closes every open handle. The Sink must not be used
// afterwards.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for path, f := range s.files {
		if err := f.Sync(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("sync %s: %w", path, err)
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", path, err)
		}
		delete(s.files, path)
	}
	return firstErr
}
