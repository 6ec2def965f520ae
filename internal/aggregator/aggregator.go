// Package aggregator implements the StatusAggregator (§4.7): it polls
// every supervised DUT's Summary on a fixed interval, hands each one to
// an exporter sink, and serves a read-only HTTP status/metrics surface
// over the accumulated state.
package aggregator

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/tomb.v2"

	"github.com/radhelper/radiation-setup/internal/events"
	"github.com/radhelper/radiation-setup/internal/logger"
)

// Supervisor is the subset of supervisor.Supervisor the aggregator
// depends on: its stable identity string and its derived Summary. Kept
// as a local interface (rather than importing internal/supervisor) so
// neither package needs to know about the other's internals.
type Supervisor interface {
	fmt.Stringer
	Summary() events.Summary
}

// Exporter receives every freshly-polled Summary, in poll order. The
// aggregator always updates its HTTP cache and Prometheus registry
// itself; Exporters passed to New are notified in addition, so tests can
// observe polls directly.
type Exporter interface {
	Export(summary events.Summary)
}

// ExporterFunc adapts a plain function to Exporter.
type ExporterFunc func(events.Summary)

func (f ExporterFunc) Export(summary events.Summary) { f(summary) }

// StatusAggregator owns the poll loop and the read-only HTTP surface
// over the Supervisors it was constructed with.
type StatusAggregator struct {
	supervisors []Supervisor
	interval    time.Duration
	exporters   []Exporter

	metrics *metricsSet

	mu    sync.RWMutex
	cache map[string]events.Summary

	t        tomb.Tomb
	listener net.Listener
	server   *http.Server
}

// New constructs a StatusAggregator over supervisors, polling every
// interval. extra exporters are notified alongside the built-in
// cache/metrics update on every poll.
func New(supervisors []Supervisor, interval time.Duration, extra ...Exporter) *StatusAggregator {
	a := &StatusAggregator{
		supervisors: supervisors,
		interval:    interval,
		metrics:     newMetricsSet(),
		cache:       make(map[string]events.Summary, len(supervisors)),
		exporters:   extra,
	}
	return a
}

// Serve starts the HTTP status/metrics surface listening on addr. It must
// be called before Start if an HTTP surface is wanted at all; an
// aggregator with no listener still runs its poll loop.
func (a *StatusAggregator) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("aggregator: listening on %s: %w", addr, err)
	}
	a.listener = ln

	router := mux.NewRouter()
	router.HandleFunc("/v1/status", a.handleStatusAll).Methods(http.MethodGet)
	router.HandleFunc("/v1/status/{hostname}", a.handleStatusOne).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(a.metrics.registry, promhttp.HandlerOpts{}))

	a.server = &http.Server{Handler: router}
	return nil
}

// Addr returns the HTTP surface's actual listening address; useful when
// Serve was called with a ":0" port. Only valid after Serve succeeds.
func (a *StatusAggregator) Addr() string {
	return a.listener.Addr().String()
}

// Start launches the poll loop (and the HTTP server, if Serve was
// called) in the background.
func (a *StatusAggregator) Start() {
	a.t.Go(a.run)
	if a.server != nil {
		a.t.Go(func() error {
			err := a.server.Serve(a.listener)
			if err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}
}

// Stop requests a cooperative shutdown of both the poll loop and the
// HTTP server, and waits for both to unwind.
func (a *StatusAggregator) Stop() error {
	a.t.Kill(nil)
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		a.server.Shutdown(ctx)
	}
	return a.t.Wait()
}

func (a *StatusAggregator) run() error {
	for {
		a.pollOnce()

		timer := time.NewTimer(a.interval)
		select {
		case <-timer.C:
		case <-a.t.Dying():
			timer.Stop()
			return nil
		}
	}
}

func (a *StatusAggregator) pollOnce() {
	for _, sup := range a.supervisors {
		summary := sup.Summary()

		a.mu.Lock()
		a.cache[summary.Machine] = summary
		a.mu.Unlock()

		a.metrics.update(summary)
		for _, exp := range a.exporters {
			exp.Export(summary)
		}
		logger.Debugf("aggregator: polled %s: status=%s", sup, summary.Status)
	}
}

func (a *StatusAggregator) handleStatusAll(w http.ResponseWriter, r *http.Request) {
	a.mu.RLock()
	summaries := make([]events.Summary, 0, len(a.cache))
	for _, s := range a.cache {
		summaries = append(summaries, s)
	}
	a.mu.RUnlock()

	writeJSON(w, http.StatusOK, summaries)
}

func (a *StatusAggregator) handleStatusOne(w http.ResponseWriter, r *http.Request) {
	hostname := mux.Vars(r)["hostname"]

	a.mu.RLock()
	summary, ok := a.cache[hostname]
	a.mu.RUnlock()

	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no status cached for %q yet", hostname))
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
