// Package metrics exposes Prometheus collectors for recognition, enrollment and
// attendance. All methods are no-ops on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/face-attendance/internal/matcher"
)

const namespace = "face_attendance"

// Metrics holds the application collectors and the registry they are served from.
type Metrics struct {
	registry *prometheus.Registry

	opLatency      *prometheus.HistogramVec
	identifyTotal  *prometheus.CounterVec
	matchDistance  prometheus.Histogram
	galleryRecords prometheus.Gauge
	attendance     prometheus.Counter
	sessions       prometheus.Gauge
}

// New creates the collectors on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_seconds",
			Help:      "Latency of recognition operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"}),
		identifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identify_total",
			Help:      "Identifications by outcome.",
		}, []string{"outcome"}),
		matchDistance: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_distance",
			Help:      "Cosine distance to the nearest enrolled record.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 21),
		}),
		galleryRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gallery_records",
			Help:      "Number of enrolled records.",
		}),
		attendance: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attendance_events_total",
			Help:      "Attendance events emitted.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Attendance sessions currently open.",
		}),
	}

	m.registry.MustRegister(
		m.opLatency,
		m.identifyTotal,
		m.matchDistance,
		m.galleryRecords,
		m.attendance,
		m.sessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveOp records the latency of an operation such as "extract" or "enroll".
func (m *Metrics) ObserveOp(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.opLatency.WithLabelValues(op, status(err)).Observe(d.Seconds())
}

// ObserveIdentify records the latency and outcome of one identification.
func (m *Metrics) ObserveIdentify(d time.Duration, res matcher.Result, err error) {
	if m == nil {
		return
	}
	m.ObserveOp("identify", d, err)
	switch {
	case err != nil:
		m.identifyTotal.WithLabelValues("error").Inc()
	case res.Index < 0:
		m.identifyTotal.WithLabelValues("empty_gallery").Inc()
	case res.Classified:
		m.identifyTotal.WithLabelValues("match").Inc()
		m.matchDistance.Observe(res.Distance)
	default:
		m.identifyTotal.WithLabelValues("unknown").Inc()
		m.matchDistance.Observe(res.Distance)
	}
}

// SetGalleryRecords reports the current gallery size.
func (m *Metrics) SetGalleryRecords(n int) {
	if m == nil {
		return
	}
	m.galleryRecords.Set(float64(n))
}

// IncAttendance counts one attendance event.
func (m *Metrics) IncAttendance() {
	if m == nil {
		return
	}
	m.attendance.Inc()
}

// SessionOpened counts a newly opened attendance session.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

// SessionClosed counts down an attendance session that ended.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}
