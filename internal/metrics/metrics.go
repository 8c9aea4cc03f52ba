// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "adsbtrack"

// Metrics holds every collector of the pipeline
type Metrics struct {
	Frames      *prometheus.CounterVec // by result
	Messages    *prometheus.CounterVec // by DF and kind
	Positions   *prometheus.CounterVec // by method and result
	Tracks      prometheus.Gauge
	Evictions   prometheus.Counter
	Records     prometheus.Counter
	SinkErrors  *prometheus.CounterVec // by sink
	SourceError prometheus.Counter
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_total",
				Help:      "Raw frames read from the source, by decode result.",
			},
			[]string{"result"},
		),
		Messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_total",
				Help:      "Decoded messages by downlink format and kind.",
			},
			[]string{"df", "kind"},
		),
		Positions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "position_decodes_total",
				Help:      "CPR decode attempts by method and result.",
			},
			[]string{"method", "result"},
		),
		Tracks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracks",
			Help:      "Aircraft currently tracked.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Tracks removed after going stale.",
		}),
		Records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_emitted_total",
			Help:      "Snapshot records handed to sinks.",
		}),
		SinkErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sink_errors_total",
				Help:      "Failed sink writes.",
			},
			[]string{"sink"},
		),
		SourceError: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_errors_total",
			Help:      "Source read failures (disconnects, I/O errors).",
		}),
	}

	reg.MustRegister(
		m.Frames,
		m.Messages,
		m.Positions,
		m.Tracks,
		m.Evictions,
		m.Records,
		m.SinkErrors,
		m.SourceError,
	)
	return m
}

// Handler returns the metrics HTTP handler for a gatherer
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
