// Package metrics exposes per channel tracking metrics for Prometheus
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go1575/internal/navbits"
	"go1575/internal/tracking"
)

const namespace = "go1575"

// Metrics holds the collectors of one run on a private registry. It
// implements tracking.Observer and is safe for concurrent channels.
type Metrics struct {
	registry *prometheus.Registry

	epochs        *prometheus.CounterVec // completed epochs (by prn)
	lostLock      *prometheus.CounterVec // epochs with a degenerate discriminator (by prn)
	status        *prometheus.GaugeVec   // channel status code (by prn)
	codeFrequency *prometheus.GaugeVec   // latest code frequency (by prn)
	carrFrequency *prometheus.GaugeVec   // latest carrier frequency (by prn)
	promptPower   *prometheus.GaugeVec   // latest prompt power I²+Q² (by prn)
	bits          *prometheus.CounterVec // decided navigation bits (by prn)
	erasures      *prometheus.CounterVec // bit erasures (by prn)
	finished      *prometheus.CounterVec // finished channels (by status)
}

// New creates the collectors and registers them with a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		epochs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "epochs_total",
			Help:      "Completed tracking epochs",
		}, []string{"prn"}),
		lostLock: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lost_lock_epochs_total",
			Help:      "Epochs with a degenerate discriminator",
		}, []string{"prn"}),
		status: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_status",
			Help:      "Channel status (0 initializing, 1 tracking, 2 completed, 3 failed, 4 canceled, 5 not tracked)",
		}, []string{"prn"}),
		codeFrequency: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "code_frequency_hz",
			Help:      "Latest code frequency",
		}, []string{"prn"}),
		carrFrequency: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "carrier_frequency_hz",
			Help:      "Latest carrier frequency",
		}, []string{"prn"}),
		promptPower: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "prompt_power",
			Help:      "Latest prompt correlator power",
		}, []string{"prn"}),
		bits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "navigation_bits_total",
			Help:      "Decided navigation bits",
		}, []string{"prn"}),
		erasures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bit_erasures_total",
			Help:      "Navigation bit windows with a zero mean",
		}, []string{"prn"}),
		finished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channels_finished_total",
			Help:      "Channels that reached a terminal state",
		}, []string{"status"}),
	}
}

func label(prn int) string {
	return strconv.Itoa(prn)
}

// EpochCompleted records one tracking epoch
func (m *Metrics) EpochCompleted(prn int, r tracking.Record) {
	l := label(prn)
	m.epochs.WithLabelValues(l).Inc()
	if r.LostLock {
		m.lostLock.WithLabelValues(l).Inc()
	}
	m.status.WithLabelValues(l).Set(float64(tracking.StatusTracking))
	m.codeFrequency.WithLabelValues(l).Set(r.CodeFrequency)
	m.carrFrequency.WithLabelValues(l).Set(r.CarrierFrequency)

	c := r.Correlation
	m.promptPower.WithLabelValues(l).Set(c.IP*c.IP + c.QP*c.QP)
}

// ChannelFinished records the terminal state of a channel
func (m *Metrics) ChannelFinished(prn int, status tracking.Status, epochs int) {
	m.status.WithLabelValues(label(prn)).Set(float64(status))
	m.finished.WithLabelValues(status.String()).Inc()
}

// BitsExtracted records the bit stream of a channel
func (m *Metrics) BitsExtracted(prn int, s navbits.Stream) {
	l := label(prn)
	m.bits.WithLabelValues(l).Add(float64(len(s.Bits)))
	m.erasures.WithLabelValues(l).Add(float64(s.Erasures()))
}

// Registry returns the registry holding the run metrics
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
