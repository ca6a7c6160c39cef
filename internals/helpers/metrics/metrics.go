package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus metrics for the service. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	RequestCounter    *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	UpstreamCalls     *prometheus.CounterVec
	UpstreamDuration  *prometheus.HistogramVec
	ExamSubmissions   *prometheus.CounterVec
	ActiveAttempts    prometheus.Gauge
	PaymentVerifies   *prometheus.CounterVec
	PaymentInitiation *prometheus.CounterVec
}

// NewMetrics registers every collector on reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		RequestCounter: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edumarket",
				Subsystem: "bff",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "edumarket",
				Subsystem: "bff",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		UpstreamCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edumarket",
				Subsystem: "upstream",
				Name:      "calls_total",
				Help:      "Calls made to the upstream REST API by outcome kind",
			},
			[]string{"method", "endpoint", "kind"},
		),
		UpstreamDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "edumarket",
				Subsystem: "upstream",
				Name:      "call_duration_seconds",
				Help:      "Upstream call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		ExamSubmissions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edumarket",
				Subsystem: "cbt",
				Name:      "submissions_total",
				Help:      "Exam submissions by trigger (manual, timeout, sweep) and outcome",
			},
			[]string{"trigger", "outcome"},
		),
		ActiveAttempts: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "edumarket",
				Subsystem: "cbt",
				Name:      "active_attempts",
				Help:      "Exam attempts currently held in memory",
			},
		),
		PaymentVerifies: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edumarket",
				Subsystem: "payments",
				Name:      "verifications_total",
				Help:      "Payment verifications by gateway and outcome",
			},
			[]string{"gateway", "outcome"},
		),
		PaymentInitiation: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edumarket",
				Subsystem: "payments",
				Name:      "initiations_total",
				Help:      "Payment initiations by gateway and outcome",
			},
			[]string{"gateway", "outcome"},
		),
	}
}

// Middleware records request count and latency per matched route.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m == nil {
			return c.Next()
		}
		start := time.Now()
		err := c.Next()

		route := c.Route().Path
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		m.RequestCounter.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

func (m *Metrics) ObserveUpstream(method, endpoint, kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamCalls.WithLabelValues(method, endpoint, kind).Inc()
	m.UpstreamDuration.WithLabelValues(method, endpoint).Observe(d.Seconds())
}

func (m *Metrics) ObserveSubmission(trigger, outcome string) {
	if m == nil {
		return
	}
	m.ExamSubmissions.WithLabelValues(trigger, outcome).Inc()
}

func (m *Metrics) SetActiveAttempts(n int) {
	if m == nil {
		return
	}
	m.ActiveAttempts.Set(float64(n))
}

func (m *Metrics) ObserveVerification(gateway, outcome string) {
	if m == nil {
		return
	}
	m.PaymentVerifies.WithLabelValues(gateway, outcome).Inc()
}

func (m *Metrics) ObserveInitiation(gateway, outcome string) {
	if m == nil {
		return
	}
	m.PaymentInitiation.WithLabelValues(gateway, outcome).Inc()
}
