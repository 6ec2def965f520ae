package aggregator

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/radhelper/radiation-setup/internal/events"
)

// metricsSet is the per-process Prometheus registry backing the
// aggregator's /metrics endpoint: one gauge family per tracked Summary
// field, labeled by hostname, refreshed from each Supervisor's Summary on every
// poll (§4.7, SPEC_FULL.md §B).
type metricsSet struct {
	registry *prometheus.Registry

	status           *prometheus.GaugeVec
	iterationsPerSec *prometheus.GaugeVec
	logsPerSec       *prometheus.GaugeVec
	sdcCountTotal    *prometheus.GaugeVec
	sdcCountRun      *prometheus.GaugeVec
	rebootAttempts   *prometheus.GaugeVec
}

func newMetricsSet() *metricsSet {
	registry := prometheus.NewRegistry()

	m := &metricsSet{
		registry: registry,
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "radiation_setup_dut_status",
			Help: "Derived lifecycle status of a DUT (0=UNKNOWN,1=ACTIVE,2=REBOOTING,3=SLEEPING).",
		}, []string{"hostname"}),
		iterationsPerSec: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "radiation_setup_dut_iterations_per_second",
			Help: "Current run's benchmark iteration rate.",
		}, []string{"hostname"}),
		logsPerSec: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "radiation_setup_dut_logs_per_second",
			Help: "Benchmark-wide telemetry log rate.",
		}, []string{"hostname"}),
		sdcCountTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "radiation_setup_dut_sdc_count_total",
			Help: "Benchmark-wide silent-data-corruption count.",
		}, []string{"hostname"}),
		sdcCountRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "radiation_setup_dut_sdc_count_run",
			Help: "Current run's silent-data-corruption count.",
		}, []string{"hostname"}),
		rebootAttempts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "radiation_setup_dut_reboot_attempts",
			Help: "Consecutive reboot attempts since the DUT last proved liveness.",
		}, []string{"hostname"}),
	}

	registry.MustRegister(m.status, m.iterationsPerSec, m.logsPerSec, m.sdcCountTotal, m.sdcCountRun, m.rebootAttempts)
	return m
}

// update refreshes every metric family for one DUT from its latest Summary.
func (m *metricsSet) update(s events.Summary) {
	labels := prometheus.Labels{"hostname": s.Machine}
	m.status.With(labels).Set(float64(s.Status))
	m.iterationsPerSec.With(labels).Set(s.IterationsPerSec)
	m.logsPerSec.With(labels).Set(s.LogsPerSec)
	m.sdcCountTotal.With(labels).Set(float64(s.SDCCountTotal))
	m.sdcCountRun.With(labels).Set(float64(s.SDCCountRun))
	m.rebootAttempts.With(labels).Set(float64(s.RebootAttempts))
}
