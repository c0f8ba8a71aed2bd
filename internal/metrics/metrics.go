// Package metrics exposes sampling outcomes and round timing as Prometheus
// collectors on a private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/fridge-sensor/internal/logic"
)

// OutcomeOK labels a successful decode in decode counters.
const OutcomeOK = "OK"

// Metrics holds the daemon's Prometheus collectors on a private registry.
// It is both a scheduler sink and a round observer.
type Metrics struct {
	reg *prometheus.Registry

	decodes     *prometheus.CounterVec
	roundTime   prometheus.Histogram
	overruns    prometheus.Counter
	sinkErrors  *prometheus.CounterVec
	temperature *prometheus.GaugeVec
	humidity    *prometheus.GaugeVec
	lastSample  prometheus.Gauge
}

// New creates and registers every collector, including the Go runtime and
// process collectors. Decode outcomes start at zero for both channels.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		decodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fridge_decodes_total",
			Help: "Decode attempts by channel and outcome (OK or failure kind).",
		}, []string{"channel", "outcome"}),
		roundTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fridge_round_duration_seconds",
			Help:    "Time from round start until every sink has been dispatched.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}),
		overruns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fridge_round_overruns_total",
			Help: "Rounds that took at least the sampling interval.",
		}),
		sinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fridge_sink_errors_total",
			Help: "Failed sink dispatches by sink.",
		}, []string{"sink"}),
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fridge_temperature_celsius",
			Help: "Last valid temperature per channel.",
		}, []string{"channel"}),
		humidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fridge_humidity_percent",
			Help: "Last valid relative humidity per channel.",
		}, []string{"channel"}),
		lastSample: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fridge_last_sample_timestamp_seconds",
			Help: "Unix time of the last completed batch.",
		}),
	}

	m.reg.MustRegister(
		m.decodes,
		m.roundTime,
		m.overruns,
		m.sinkErrors,
		m.temperature,
		m.humidity,
		m.lastSample,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	for _, ch := range []logic.Channel{logic.Refrigerator, logic.Freezer} {
		for _, outcome := range []string{OutcomeOK, string(logic.NoResponse), string(logic.MalformedBit), string(logic.ChecksumMismatch), string(logic.LineFault)} {
			m.decodes.WithLabelValues(string(ch), outcome)
		}
	}

	return m
}

// Registry returns the registry all collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Name identifies the sink in logs.
func (m *Metrics) Name() string { return "metrics" }

// Dispatch counts both outcomes and updates the value gauges. A failed
// channel keeps its previous gauge values; the failure shows in the counter.
func (m *Metrics) Dispatch(b logic.Batch) error {
	for _, r := range b.Results() {
		ch := string(r.Channel)
		if !r.OK() {
			m.decodes.WithLabelValues(ch, string(logic.KindOf(r.Err))).Inc()
			continue
		}
		m.decodes.WithLabelValues(ch, OutcomeOK).Inc()
		m.temperature.WithLabelValues(ch).Set(r.Reading.Temperature())
		m.humidity.WithLabelValues(ch).Set(r.Reading.Humidity())
	}
	m.lastSample.Set(float64(b.Timestamp.Unix()))
	return nil
}

// ObserveRound records the round duration and counts overruns.
func (m *Metrics) ObserveRound(elapsed time.Duration, overran bool) {
	m.roundTime.Observe(elapsed.Seconds())
	if overran {
		m.overruns.Inc()
	}
}

// ObserveSinkError counts a failed dispatch for the named sink.
func (m *Metrics) ObserveSinkError(sink string) {
	m.sinkErrors.WithLabelValues(sink).Inc()
}
