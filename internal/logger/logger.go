// Package logger provides the process-wide logging facility used by every
// package in this module. It is a small, deliberately minimal interface
// modeled on canonical/pebble's internals/logger: a package-level Logger
// behind a mutex, swappable for testing.
package logger

import (
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
	"time"
)

// A Logger is a fairly minimal logging tool.
type Logger interface {
	// Noticef is for messages that the operator should see.
	Noticef(format string, v ...any)
	// Debugf is for messages that help debug something.
	Debugf(format string, v ...any)
}

type nullLogger struct{}

func (nullLogger) Noticef(format string, v ...any) {}
func (nullLogger) Debugf(format string, v ...any)  {}

// NullLogger discards everything written to it.
var NullLogger = nullLogger{}

var (
	logger     Logger = NullLogger
	loggerLock sync.Mutex
)

// Noticef notifies the operator of something.
func Noticef(format string, v ...any) {
	loggerLock.Lock()
	defer loggerLock.Unlock()
	logger.Noticef(format, v...)
}

// Debugf records something in the debug log.
func Debugf(format string, v ...any) {
	loggerLock.Lock()
	defer loggerLock.Unlock()
	logger.Debugf(format, v...)
}

// SetLogger sets the global logger to the given one. It must be called from
// a single goroutine before any logs are written.
func SetLogger(l Logger) (old Logger) {
	loggerLock.Lock()
	defer loggerLock.Unlock()
	old = logger
	logger = l
	return old
}

type lockedBytesBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *lockedBytesBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *lockedBytesBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// MockLogger replaces the existing logger with a buffer and returns a
// Stringer returning the log buffer content and a restore function.
func MockLogger(prefix string) (fmt.Stringer, func()) {
	buf := &lockedBytesBuffer{}
	oldLogger := SetLogger(New(buf, prefix))
	return buf, func() {
		SetLogger(oldLogger)
	}
}

type defaultLogger struct {
	w      io.Writer
	prefix string

	mu  sync.Mutex
	buf []byte
}

// Debugf only prints if RADIATION_SETUP_DEBUG is set.
func (l *defaultLogger) Debugf(format string, v ...any) {
	if os.Getenv("RADIATION_SETUP_DEBUG") == "1" {
		l.Noticef("DEBUG "+format, v...)
	}
}

// Noticef writes a timestamped, prefixed line to the underlying writer.
func (l *defaultLogger) Noticef(format string, v ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = l.buf[:0]
	l.buf = AppendTimestamp(l.buf, time.Now())
	l.buf = append(l.buf, ' ')
	l.buf = append(l.buf, l.prefix...)
	l.buf = fmt.Appendf(l.buf, format, v...)
	if l.buf[len(l.buf)-1] != '\n' {
		l.buf = append(l.buf, '\n')
	}
	l.w.Write(l.buf)
}

// New creates a Logger using the given io.Writer and prefix, which is
// printed between the timestamp and the message.
func New(w io.Writer, prefix string) Logger {
	return &defaultLogger{
		w:      w,
		prefix: prefix,
		buf:    make([]byte, 0, 256),
	}
}

// AppendTimestamp appends a timestamp in format "YYYY-MM-DDTHH:mm:ss.sssZ" to
// the given byte slice and returns the extended slice. The timestamp is
// always in UTC and has exactly 3 fractional digits (millisecond precision).
func AppendTimestamp(b []byte, t time.Time) []byte {
	const capacity = 24

	utc := t.UTC()
	year := utc.Year()
	month := int(utc.Month())
	day := utc.Day()
	hour := utc.Hour()
	minute := utc.Minute()
	second := utc.Second()
	millisecond := utc.Nanosecond() / 1_000_000

	b = slices.Grow(b, capacity)
	b = b[:capacity]

	b[0] = byte('0' + year/1000%10)
	b[1] = byte('0' + year/100%10)
	b[2] = byte('0' + year/10%10)
	b[3] = byte('0' + year%10)
	b[4] = '-'
	b[5] = byte('0' + month/10)
	b[6] = byte('0' + month%10)
	b[7] = '-'
	b[8] = byte('0' + day/10)
	b[9] = byte('0' + day%10)
	b[10] = 'T'
	b[11] = byte('0' + hour/10)
	b[12] = byte('0' + hour%10)
	b[13] = ':'
	b[14] = byte('0' + minute/10)
	b[15] = byte('0' + minute%10)
	b[16] = ':'
	b[17] = byte('0' + second/10)
	b[18] = byte('0' + second%10)
	b[19] = '.'
	b[20] = byte('0' + millisecond/100)
	b[21] = byte('0' + millisecond/10%10)
	b[22] = byte('0' + millisecond%10)
	b[23] = 'Z'

	return b
}

// Named returns a child logger whose messages are prefixed with
// "[name] " in addition to whatever prefix the global logger already
// applies, so each supervised DUT's log lines are easy to tell apart.
func Named(name string) Logger {
	return &namedLogger{name: name}
}

type namedLogger struct{ name string }

func (n *namedLogger) Noticef(format string, v ...any) {
	Noticef("["+n.name+"] "+format, v...)
}

func (n *namedLogger) Debugf(format string, v ...any) {
	Debugf("["+n.name+"] "+format, v...)
}
