// Package dutlog provides the append-only per-run log file a Supervisor
// writes raw telemetry datagrams to, finalized with an EndStatus tag when
// the run that produced it ends (§4.5/§4.6, §6 "Persisted state").
package dutlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/radhelper/radiation-setup/internal/logger"
)

// EndStatus tags how a log file's run ended.
type EndStatus int

const (
	NormalEnd EndStatus = iota
	SoftAppReboot
	SoftOSReboot
	HardReboot
)

func (s EndStatus) String() string {
	switch s {
	case NormalEnd:
		return "NORMAL_END"
	case SoftAppReboot:
		return "SOFT_APP_REBOOT"
	case SoftOSReboot:
		return "SOFT_OS_REBOOT"
	case HardReboot:
		return "HARD_REBOOT"
	default:
		return "UNKNOWN_END"
	}
}

// Logger is the interface the Supervisor consumes: append raw datagram
// bytes as they arrive, and finalize exactly once with an EndStatus.
type Logger interface {
	Write(datagram []byte) error
	Finalize(status EndStatus) error
}

// FileLogger is the file-backed Logger implementation: one append-only
// file per run, under a per-DUT directory.
type FileLogger struct {
	mu        sync.Mutex
	f         *os.File
	path      string
	finalized bool
}

// New creates a fresh log file under dir named after testName, header and
// hostname plus a creation timestamp, and opens it for appending. The
// directory is created if it does not already exist.
func New(dir, testName, header, hostname string) (*FileLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("dutlog: creating log directory %s: %w", dir, err)
	}

	name := fmt.Sprintf("%s_%s_%s_%s.log", testName, header, hostname, filenameTimestamp(time.Now()))
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("dutlog: opening log file %s: %w", path, err)
	}

	logger.Debugf("dutlog: opened %s", path)
	return &FileLogger{f: f, path: path}, nil
}

// Write appends a raw datagram verbatim.
func (l *FileLogger) Write(datagram []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.finalized {
		return fmt.Errorf("dutlog: write to %s after it was finalized", l.path)
	}
	_, err := l.f.Write(datagram)
	return err
}

// Finalize appends the EndStatus tag and closes the file. Calling it more
// than once is an error: a DUTLogger is finalized at most once, mirroring
// the "no two DUTLoggers simultaneously open" invariant that makes each
// one's lifetime single-shot.
func (l *FileLogger) Finalize(status EndStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.finalized {
		return fmt.Errorf("dutlog: %s already finalized", l.path)
	}
	l.finalized = true

	if _, err := fmt.Fprintf(l.f, "\n#%s\n", status); err != nil {
		l.f.Close()
		return fmt.Errorf("dutlog: writing end status to %s: %w", l.path, err)
	}
	if err := l.f.Close(); err != nil {
		return fmt.Errorf("dutlog: closing %s: %w", l.path, err)
	}
	logger.Debugf("dutlog: finalized %s with %s", l.path, status)
	return nil
}

// filenameTimestamp formats t as a filesystem-safe timestamp (no colons).
func filenameTimestamp(t time.Time) string {
	return t.UTC().Format("20060102T150405.000Z")
}
