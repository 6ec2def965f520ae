// Package events implements the per-supervisor event accounting described
// in §4.5: benchmark-wide and per-run counters, timestamps of firsts and
// lasts, and derivation of a Status and Summary.
package events

import (
	"sync"
	"time"

	"github.com/radhelper/radiation-setup/internal/eventparser"
	"github.com/radhelper/radiation-setup/internal/logger"
)

// ConsecutiveCounts is satisfied by the Supervisor: Status derivation
// needs the Supervisor's own consecutive-reboot counters, which live
// outside MachineEvents (§4.5: "where consecutive_* are read from the
// Supervisor").
type ConsecutiveCounts interface {
	ConsecutiveSoftReboots() int
	ConsecutiveHardReboots() int
}

// Events is the per-DUT accounting object. A Supervisor owns exactly one
// for its lifetime.
type Events struct {
	mu sync.Mutex

	machineName string
	counts      ConsecutiveCounts
	log         logger.Logger

	// benchmark-scope cumulative
	benchmarkStart       *time.Time
	benchmarkLogs        int
	benchmarkIterations  int
	benchmarkSDCs        int
	benchmarkDUEs        int
	benchmarkSoftReboots int
	benchmarkHardReboots int
	benchmarkAccTime     float64

	// run-scope, reset per new run
	runStart      *time.Time
	runLogs       int
	runIterations int
	runSDCs       int
	runAccTime    float64

	// firsts and lasts
	firstLogTime       *time.Time
	lastLogTime        *time.Time
	firstSDCTime       *time.Time
	lastSDCTime        *time.Time
	firstDUETime       *time.Time
	lastDUETime        *time.Time
	lastSoftRebootTime *time.Time
	lastHardRebootTime *time.Time
	lastRunStart       *time.Time
	lastRunEnd         *time.Time
}

// New creates an Events accumulator for the named machine. counts supplies
// the consecutive-reboot figures needed for Status derivation, and log
// (which may be logger.NullLogger) receives diagnostics, mirroring the
// original's EmptyLogger fallback.
func New(machineName string, counts ConsecutiveCounts, log logger.Logger) *Events {
	if log == nil {
		log = logger.NullLogger
	}
	return &Events{machineName: machineName, counts: counts, log: log}
}

// StartBenchmark marks the beginning of the benchmark-wide session. It is
// idempotent in the sense that calling it again only logs a warning; it
// never resets an already-set benchmark_start.
func (e *Events) StartBenchmark() {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()
	if e.benchmarkStart != nil {
		e.log.Noticef("machine %s already has a benchmark start timestamp (%s)", e.machineName, e.benchmarkStart)
		return
	}
	e.benchmarkStart = &now
}

// StartRun begins a new run: resets run-scope counters and clears the
// last-reboot timestamps (a fresh run means the DUT proved it could start).
func (e *Events) StartRun() {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()
	if e.runStart != nil {
		e.log.Noticef("machine %s already has a run start timestamp, did you forget to end the run?", e.machineName)
	}
	e.runStart = &now
	e.runLogs = 0
	e.runIterations = 0
	e.runSDCs = 0
	e.runAccTime = 0
	e.lastSoftRebootTime = nil
	e.lastHardRebootTime = nil
}

// EndRun folds run counters into the benchmark-wide totals, zeroes them,
// and clears run_start. Calling it with no run in progress adds nothing to
// the totals; it still records last_run_end and copies the unset run_start
// into last_run_start.
func (e *Events) EndRun() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.endRunLocked(time.Now())
}

func (e *Events) endRunLocked(now time.Time) {
	e.lastRunStart = e.runStart
	e.lastRunEnd = &now
	e.runStart = nil
	e.benchmarkSDCs += e.runSDCs
	e.benchmarkAccTime += e.runAccTime
	e.benchmarkIterations += e.runIterations
	e.runLogs = 0
	e.runIterations = 0
	e.runSDCs = 0
	e.runAccTime = 0
}

// Iteration records an "#IT" event: the run's accumulated time and
// iteration count are replaced with the reported values (not accumulated),
// and a log tick is recorded.
func (e *Events) Iteration(ev eventparser.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runAccTime = ev.AccTime
	e.runIterations = ev.Iter
	e.logLocked(1, time.Now())
}

// Log records n log lines (default 1), updating first/last log timestamps
// and both the benchmark-wide and run-scope log counters.
func (e *Events) Log(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logLocked(n, time.Now())
}

func (e *Events) logLocked(n int, now time.Time) {
	if e.firstLogTime == nil {
		e.firstLogTime = &now
	}
	e.lastLogTime = &now
	e.benchmarkLogs += n
	e.runLogs += n
}

// SDC records a silent-data-corruption event.
func (e *Events) SDC() {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()
	e.runSDCs++
	if e.firstSDCTime == nil {
		e.firstSDCTime = &now
	}
	e.lastSDCTime = &now
	e.logLocked(1, now)
}

// Due records a detected-unrecoverable-error event, which also ends the
// current run.
func (e *Events) Due() {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()
	e.benchmarkDUEs++
	if e.firstDUETime == nil {
		e.firstDUETime = &now
	}
	e.lastDUETime = &now
	e.endRunLocked(now)
}

// SoftReboot records that a soft (app) reboot happened.
func (e *Events) SoftReboot() {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()
	e.benchmarkSoftReboots++
	e.lastSoftRebootTime = &now
}

// HardReboot records that a hard (power-cycle) reboot happened.
func (e *Events) HardReboot() {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()
	e.benchmarkHardReboots++
	e.lastHardRebootTime = &now
}

// Handle dispatches a parsed Event to the corresponding accounting method,
// per the §4.5 dispatch table. Parse errors are not passed here: the
// caller (Supervisor) drops them after logging, per §7.
func (e *Events) Handle(ev eventparser.Event) {
	switch ev.Kind {
	case eventparser.KindIteration:
		e.Iteration(ev)
	case eventparser.KindHeader:
		e.StartRun()
	case eventparser.KindEnd:
		e.EndRun()
	case eventparser.KindInfo, eventparser.KindErr:
		e.Log(1)
	case eventparser.KindSDC:
		e.SDC()
	case eventparser.KindAbort:
		e.Due()
	case eventparser.KindLogFile, eventparser.KindUnknown:
		// no-op
	}
}

// Status derives the current Status from (run_start, consecutive_soft,
// consecutive_hard), per §4.5's single source of truth.
func (e *Events) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

func (e *Events) statusLocked() Status {
	if e.runStart != nil {
		return StatusActive
	}
	consecutiveHard := e.counts.ConsecutiveHardReboots()
	consecutiveSoft := e.counts.ConsecutiveSoftReboots()
	if consecutiveHard < MaxConsecutiveHardReboots && consecutiveSoft > 0 {
		return StatusRebooting
	}
	if consecutiveHard == MaxConsecutiveHardReboots {
		return StatusSleeping
	}
	return StatusUnknown
}

// Summary builds the current Summary snapshot, whose populated fields
// depend on the derived Status (§4.5).
func (e *Events) Summary() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()

	status := e.statusLocked()
	now := time.Now()
	summary := Summary{
		Machine:   e.machineName,
		Benchmark: e.machineName,
		Status:    status,
	}

	switch status {
	case StatusActive:
		var logsPerSec float64
		if e.benchmarkStart != nil {
			if d := now.Sub(*e.benchmarkStart); d > 0 {
				logsPerSec = float64(e.benchmarkLogs) / d.Seconds()
			}
		}
		var iterationsPerSec float64
		if e.runStart != nil {
			if d := now.Sub(*e.runStart); d > 0 {
				iterationsPerSec = float64(e.runIterations) / d.Seconds()
			}
		}
		summary.LogsPerSec = logsPerSec
		summary.IterationsPerSec = iterationsPerSec
		summary.SDCCountTotal = e.benchmarkSDCs
		summary.SDCCountRun = e.runSDCs
		summary.LastLogTime = derefTime(e.lastLogTime)
		summary.BenchmarkStart = derefTime(e.benchmarkStart)
	case StatusRebooting:
		consecutiveSoft := e.counts.ConsecutiveSoftReboots()
		consecutiveHard := e.counts.ConsecutiveHardReboots()
		summary.RebootAttempts = safeMaxInt(consecutiveSoft, consecutiveHard)
		summary.LastActive = derefTime(e.lastRunEnd)
		summary.LastRebootAttempt = safeMaxTime(e.lastHardRebootTime, e.lastSoftRebootTime)
		summary.MaxRebootAttempts = MaxConsecutiveHardReboots
	case StatusSleeping:
		summary.RebootAttempts = safeMaxInt(e.counts.ConsecutiveSoftReboots(), e.counts.ConsecutiveHardReboots())
		summary.LastActive = derefTime(e.lastRunEnd)
		last := safeMaxTime(e.lastHardRebootTime, e.lastSoftRebootTime)
		summary.LastRebootAttempt = last
		summary.MaxRebootAttempts = MaxConsecutiveHardReboots
		summary.NextReboot = last.Add(SleepAfterFailedReboots * time.Second)
	}

	return summary
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// safeMaxTime mirrors utils.safe_max from the original implementation: it
// is tolerant of either (or both) timestamps being unset.
func safeMaxTime(a, b *time.Time) time.Time {
	if a == nil && b == nil {
		return time.Time{}
	}
	if a == nil {
		return *b
	}
	if b == nil {
		return *a
	}
	if a.After(*b) {
		return *a
	}
	return *b
}

func safeMaxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
