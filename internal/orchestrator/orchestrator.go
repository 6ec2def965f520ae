// Package orchestrator wires one Supervisor per enabled DUT together with
// a StatusAggregator and drives their shared lifecycle (§4.8): it starts
// every unit, installs the process's global interrupt handler, and joins
// everything on shutdown or on an unhandled Supervisor failure.
package orchestrator

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/radhelper/radiation-setup/internal/aggregator"
	"github.com/radhelper/radiation-setup/internal/config"
	"github.com/radhelper/radiation-setup/internal/logger"
	"github.com/radhelper/radiation-setup/internal/supervisor"
)

// failure reports that a Supervisor's run loop exited on its own, with
// the error it died with.
type failure struct {
	hostname string
	err      error
}

// joinTimeoutPerUnit bounds how long Stop waits for any one Supervisor or
// the aggregator to unwind before giving up on it and moving on; the
// process is exiting regardless (§5).
const joinTimeoutPerUnit = time.Second

// unit is anything the Orchestrator starts and stops as one of its N+1
// parallel execution units.
type unit interface {
	Start()
	Stop() error
}

// Orchestrator owns the supervised DUTs' full lifecycle: construction
// from config, concurrent execution, signal-driven shutdown, and the
// process exit code that shutdown reason maps to.
type Orchestrator struct {
	supervisors []*supervisor.Supervisor
	aggregator  *aggregator.StatusAggregator

	sigs chan os.Signal
}

// New loads cfg's machine list, constructing one Supervisor per enabled
// entry, and a StatusAggregator polling all of them. httpAddr is the
// aggregator's status/metrics listen address; an empty string disables
// the HTTP surface (the poll loop still runs).
func New(cfg *config.Server, httpAddr string, refreshInterval time.Duration) (*Orchestrator, error) {
	var sups []*supervisor.Supervisor
	var asSupervisors []aggregator.Supervisor

	for _, m := range cfg.Machines {
		if !m.Enabled {
			logger.Debugf("orchestrator: skipping disabled machine %s", m.CfgFile)
			continue
		}
		dutCfg, err := config.LoadDUT(m.CfgFile)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: loading %s: %w", m.CfgFile, err)
		}
		sup, err := supervisor.New(*dutCfg, cfg.IP, cfg.LogStoreDir)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: constructing supervisor for %s: %w", dutCfg.Hostname, err)
		}
		sups = append(sups, sup)
		asSupervisors = append(asSupervisors, sup)
	}
	if len(sups) == 0 {
		return nil, fmt.Errorf("orchestrator: no enabled machines in %d configured", len(cfg.Machines))
	}

	agg := aggregator.New(asSupervisors, refreshInterval)
	if httpAddr != "" {
		if err := agg.Serve(httpAddr); err != nil {
			return nil, fmt.Errorf("orchestrator: %w", err)
		}
	}

	return &Orchestrator{
		supervisors: sups,
		aggregator:  agg,
		sigs:        make(chan os.Signal, 2),
	}, nil
}

// units returns every execution unit the Orchestrator owns, in start
// order: the StatusAggregator last so it observes Supervisors that are
// already running.
func (o *Orchestrator) units() []unit {
	units := make([]unit, 0, len(o.supervisors)+1)
	for _, s := range o.supervisors {
		units = append(units, s)
	}
	return append(units, o.aggregator)
}

// Run starts every Supervisor and the StatusAggregator, installs the
// global interrupt handler, and blocks until shutdown. It returns the
// process exit code described in §6: 130 on interrupt, or the numeric
// value of ECHILD if any Supervisor's execution unit fails on its own.
// It never returns 0.
func (o *Orchestrator) Run() int {
	signal.Notify(o.sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(o.sigs)

	for _, u := range o.units() {
		u.Start()
	}

	failed := make(chan failure, len(o.supervisors))
	for _, s := range o.supervisors {
		go func(s *supervisor.Supervisor) {
			<-s.Done()
			if err := s.Err(); err != nil {
				failed <- failure{hostname: s.String(), err: err}
			}
		}(s)
	}

	select {
	case <-o.sigs:
		logger.Noticef("orchestrator: interrupt received, stopping all units")
		o.stopAll()
		return 130
	case f := <-failed:
		logger.Noticef("orchestrator: supervisor %s failed (%v), stopping all peers", f.hostname, f.err)
		o.stopAll()
		return int(syscall.ECHILD)
	}
}

// stopAll requests a cooperative stop on every unit the Orchestrator
// owns and waits for each, bounded by joinTimeoutPerUnit.
func (o *Orchestrator) stopAll() {
	stopUnits(o.units())
}

// stopUnits requests a cooperative stop on every unit concurrently and
// waits for each, bounded by joinTimeoutPerUnit; a unit that exceeds its
// budget is abandoned since the process is exiting regardless (§5).
func stopUnits(units []unit) {
	var wg sync.WaitGroup
	for _, u := range units {
		wg.Add(1)
		go func(u unit) {
			defer wg.Done()
			joined := make(chan error, 1)
			go func() { joined <- u.Stop() }()
			select {
			case err := <-joined:
				if err != nil {
					logger.Noticef("orchestrator: unit stopped with error: %v", err)
				}
			case <-time.After(joinTimeoutPerUnit):
				logger.Noticef("orchestrator: unit did not stop within %s, abandoning it", joinTimeoutPerUnit)
			}
		}(u)
	}
	wg.Wait()
}
