// Package metrics exposes Prometheus collectors for the noise engine.
package metrics

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nois"

// Metrics holds the engine collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Sessions       prometheus.Counter
	BuffersWritten prometheus.Counter
	SamplesWritten prometheus.Counter
	WriteErrors    prometheus.Counter
	Saturations    prometheus.Counter
	Playing        prometheus.Gauge
	Volume         prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Number of playback sessions started.",
		}),
		BuffersWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffers_written_total",
			Help:      "Number of buffers written to the sink.",
		}),
		SamplesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_written_total",
			Help:      "Number of samples written to the sink.",
		}),
		WriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_errors_total",
			Help:      "Number of failed sink writes.",
		}),
		Saturations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filter_saturations_total",
			Help:      "Number of buffers that ended with the noise filter pinned at a bound.",
		}),
		Playing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playing",
			Help:      "1 while a playback session is active.",
		}),
		Volume: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "volume",
			Help:      "Current volume in [0, 1].",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "metrics: register")
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Sessions, m.BuffersWritten, m.SamplesWritten, m.WriteErrors,
		m.Saturations, m.Playing, m.Volume,
	}
}

// SessionStarted records the start of a playback session.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.Sessions.Inc()
	m.Playing.Set(1)
}

// SessionEnded records the end of a playback session.
func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.Playing.Set(0)
}

// BufferWritten records a successful write of n samples.
func (m *Metrics) BufferWritten(n int, saturated bool) {
	if m == nil {
		return
	}
	m.BuffersWritten.Inc()
	m.SamplesWritten.Add(float64(n))
	if saturated {
		m.Saturations.Inc()
	}
}

// WriteFailed records a failed write.
func (m *Metrics) WriteFailed() {
	if m == nil {
		return
	}
	m.WriteErrors.Inc()
}

// VolumeChanged records the current volume.
func (m *Metrics) VolumeChanged(v float64) {
	if m == nil {
		return
	}
	m.Volume.Set(v)
}
