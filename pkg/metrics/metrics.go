package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Save metrics
	SavesTotal     *prometheus.CounterVec
	SectionResults *prometheus.CounterVec
	SaveDuration   prometheus.Histogram

	// Clinic API metrics
	RemoteCalls   *prometheus.CounterVec
	RemoteLatency *prometheus.HistogramVec

	// Session metrics
	SessionsOpened prometheus.Counter

	// Retention metrics
	SaveRecordsPurged prometheus.Counter
}

// NewMetrics creates all application metrics and registers them with reg.
// A nil reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer, namespace, subsystem string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SavesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "saves_total",
			Help:      "Total number of settings saves by outcome",
		}, []string{"status"}),
		SectionResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "save_sections_total",
			Help:      "Per-domain results of settings saves",
		}, []string{"domain", "status"}),
		SaveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "save_duration_seconds",
			Help:      "Time spent saving settings",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		RemoteCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "clinic_api_requests_total",
			Help:      "Total number of clinic API requests",
		}, []string{"operation", "status"}),
		RemoteLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "clinic_api_request_duration_seconds",
			Help:      "Duration of clinic API requests",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"operation"}),
		SessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_opened_total",
			Help:      "Total number of settings editing sessions opened",
		}),
		SaveRecordsPurged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "save_records_purged_total",
			Help:      "Total number of save records removed by retention",
		}),
	}
}

func (m *Metrics) ObserveSave(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.SavesTotal.WithLabelValues(status).Inc()
	m.SaveDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveSection(domain, status string) {
	if m == nil {
		return
	}
	m.SectionResults.WithLabelValues(domain, status).Inc()
}

func (m *Metrics) ObserveRemoteCall(operation, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RemoteCalls.WithLabelValues(operation, status).Inc()
	m.RemoteLatency.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsOpened.Inc()
}

func (m *Metrics) RecordsPurged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.SaveRecordsPurged.Add(float64(n))
}
