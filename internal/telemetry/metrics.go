package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tracelane"

// Metrics holds the collector's own counters and gauges
type Metrics struct {
	// Segment parsing
	SegmentsReceived  prometheus.Counter
	SegmentsCommitted prometheus.Counter
	ParseErrors       prometheus.Counter

	// Retry buffer
	BufferFileRetry   prometheus.Counter
	BufferFileOut     prometheus.Counter
	BufferWriteErrors prometheus.Counter
	BufferLength      prometheus.Gauge

	// Listeners
	ListenerErrors *prometheus.CounterVec

	// Meter
	MeterSamples     *prometheus.CounterVec
	MeterFlushErrors prometheus.Counter
	MeterRowsFlushed prometheus.Counter

	// Alarm
	AlarmsFired *prometheus.CounterVec
}

// NewMetrics registers every metric on reg. Pass prometheus.DefaultRegisterer in production and
// a fresh prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SegmentsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_received_total",
			Help:      "Total number of segment envelopes handed to the parser",
		}),
		SegmentsCommitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_committed_total",
			Help:      "Total number of segments dispatched to listeners",
		}),
		ParseErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_error_total",
			Help:      "Total number of segment envelopes that could not be parsed",
		}),
		BufferFileRetry: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffer_file_retry_total",
			Help:      "Total number of buffered segments that were still unresolved on replay",
		}),
		BufferFileOut: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffer_file_out_total",
			Help:      "Total number of buffered segments committed on replay",
		}),
		BufferWriteErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffer_write_error_total",
			Help:      "Total number of segments dropped because the retry buffer could not store them",
		}),
		BufferLength: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffer_length",
			Help:      "Number of segments currently waiting in the retry buffer",
		}),
		ListenerErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "listener_errors_total",
				Help:      "Total number of failed or panicking listener callbacks",
			},
			[]string{"listener"},
		),
		MeterSamples: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "meter_samples_total",
				Help:      "Total number of samples accepted by the meter, per metric",
			},
			[]string{"metric"},
		),
		MeterFlushErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "meter_flush_errors_total",
			Help:      "Total number of meter rows that failed to persist",
		}),
		MeterRowsFlushed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "meter_rows_flushed_total",
			Help:      "Total number of meter rows persisted",
		}),
		AlarmsFired: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alarms_fired_total",
				Help:      "Total number of alarm rule firings, per rule",
			},
			[]string{"rule"},
		),
	}
}

// NewNopMetrics registers on a private registry. Used by tests that do not inspect metrics.
func NewNopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
