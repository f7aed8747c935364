// ABOUTME: Prometheus metrics for one manager session
// ABOUTME: Registered per manager and labelled with its session id
package manager

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	callbacks prometheus.Counter
	opens     prometheus.Counter
	fallbacks prometheus.Counter
	rollbacks prometheus.Counter
}

func newMetrics(reg prometheus.Registerer, m *Manager) *metrics {
	labels := prometheus.Labels{"session": m.session}
	f := promauto.With(reg)

	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{
			Namespace:   "audioio",
			Subsystem:   "manager",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}
	}

	f.NewGaugeFunc(
		prometheus.GaugeOpts(opts("xruns", "Overruns reported by the open device, -1 when unknown")),
		func() float64 { return float64(m.XRunCount()) },
	)
	f.NewGaugeFunc(
		prometheus.GaugeOpts(opts("cpu_load", "Smoothed share of the block period spent in callbacks")),
		m.CPUUsage,
	)
	f.NewCounterFunc(
		prometheus.CounterOpts(opts("midi_dropped_total", "MIDI events dropped because the collector was full")),
		func() float64 { return float64(m.collector.Dropped()) },
	)
	f.NewCounterFunc(
		prometheus.CounterOpts(opts("midi_late_total", "MIDI events that arrived after their block was rendered")),
		func() float64 { return float64(m.collector.Late()) },
	)

	return &metrics{
		callbacks: f.NewCounter(prometheus.CounterOpts(opts("callbacks_total", "Audio callbacks rendered"))),
		opens:     f.NewCounter(prometheus.CounterOpts(opts("device_opens_total", "Devices opened"))),
		fallbacks: f.NewCounter(prometheus.CounterOpts(opts("fallbacks_total", "Attempts to fall back after a device was lost"))),
		rollbacks: f.NewCounter(prometheus.CounterOpts(opts("rollbacks_total", "Setup changes rolled back to the previous device"))),
	}
}
