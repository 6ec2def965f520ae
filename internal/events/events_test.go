package events_test

import (
	"testing"
	"time"

	"github.com/radhelper/radiation-setup/internal/eventparser"
	"github.com/radhelper/radiation-setup/internal/events"
)

type fakeCounts struct {
	soft, hard int
}

func (f fakeCounts) ConsecutiveSoftReboots() int { return f.soft }
func (f fakeCounts) ConsecutiveHardReboots() int { return f.hard }

func TestStatusUnknownBeforeAnyRun(t *testing.T) {
	e := events.New("dut0", fakeCounts{}, nil)
	if got := e.Status(); got != events.StatusUnknown {
		t.Fatalf("Status() = %v, want StatusUnknown", got)
	}
}

func TestStatusActiveDuringRun(t *testing.T) {
	e := events.New("dut0", fakeCounts{}, nil)
	e.StartBenchmark()
	e.StartRun()
	if got := e.Status(); got != events.StatusActive {
		t.Fatalf("Status() = %v, want StatusActive", got)
	}
}

func TestStatusRebootingWhenSoftRebootsPending(t *testing.T) {
	e := events.New("dut0", fakeCounts{soft: 1, hard: 0}, nil)
	if got := e.Status(); got != events.StatusRebooting {
		t.Fatalf("Status() = %v, want StatusRebooting", got)
	}
}

func TestStatusSleepingAtMaxHardReboots(t *testing.T) {
	e := events.New("dut0", fakeCounts{soft: 1, hard: events.MaxConsecutiveHardReboots}, nil)
	if got := e.Status(); got != events.StatusSleeping {
		t.Fatalf("Status() = %v, want StatusSleeping", got)
	}
}

func TestIterationReplacesNotAccumulates(t *testing.T) {
	e := events.New("dut0", fakeCounts{}, nil)
	e.StartBenchmark()
	beforeRun := time.Now()
	e.StartRun()
	afterRun := time.Now()
	e.Handle(eventparser.Event{Kind: eventparser.KindIteration, Iter: 5, AccTime: 1.0})
	e.Handle(eventparser.Event{Kind: eventparser.KindIteration, Iter: 9, AccTime: 3.5})
	time.Sleep(50 * time.Millisecond)

	// IterationsPerSec is run_iterations over the run's age; bracketing that
	// age recovers run_iterations, which must be the last reported 9, not 5+9.
	beforeSummary := time.Now()
	active := e.Summary()
	afterSummary := time.Now()
	lo := active.IterationsPerSec * beforeSummary.Sub(afterRun).Seconds()
	hi := active.IterationsPerSec * afterSummary.Sub(beforeRun).Seconds()
	if lo > 9.001 || hi < 8.999 {
		t.Fatalf("run iterations within [%.3f, %.3f], want 9 (replaced, not accumulated)", lo, hi)
	}

	e.EndRun()
	s := e.Summary()
	if s.Status != events.StatusUnknown {
		t.Fatalf("Status after EndRun() = %v, want StatusUnknown", s.Status)
	}
}

func TestEndRunFoldsCountersIntoBenchmark(t *testing.T) {
	e := events.New("dut0", fakeCounts{}, nil)
	e.StartBenchmark()
	e.StartRun()
	e.Handle(eventparser.Event{Kind: eventparser.KindSDC})
	e.Handle(eventparser.Event{Kind: eventparser.KindSDC})
	e.EndRun()

	e.StartRun()
	s := e.Summary()
	if s.SDCCountTotal != 2 {
		t.Fatalf("SDCCountTotal = %d, want 2", s.SDCCountTotal)
	}
	if s.SDCCountRun != 0 {
		t.Fatalf("SDCCountRun = %d, want 0 (reset by StartRun)", s.SDCCountRun)
	}
}

func TestDueEndsTheRun(t *testing.T) {
	e := events.New("dut0", fakeCounts{}, nil)
	e.StartBenchmark()
	e.StartRun()
	e.Handle(eventparser.Event{Kind: eventparser.KindAbort})
	if got := e.Status(); got == events.StatusActive {
		t.Fatalf("Status() = %v after #ABORT, want not-ACTIVE", got)
	}
}

func TestSleepingSummaryComputesNextReboot(t *testing.T) {
	e := events.New("dut0", fakeCounts{soft: 1, hard: events.MaxConsecutiveHardReboots}, nil)
	e.HardReboot()
	s := e.Summary()
	if s.Status != events.StatusSleeping {
		t.Fatalf("Status() = %v, want StatusSleeping", s.Status)
	}
	if !s.NextReboot.After(s.LastRebootAttempt) {
		t.Fatalf("NextReboot %v should be after LastRebootAttempt %v", s.NextReboot, s.LastRebootAttempt)
	}
	if d := s.NextReboot.Sub(s.LastRebootAttempt); d != events.SleepAfterFailedReboots*time.Second {
		t.Fatalf("NextReboot - LastRebootAttempt = %v, want %v", d, events.SleepAfterFailedReboots*time.Second)
	}
}
