package gateway

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
)

type httpMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	resSize  prometheus.Histogram
	reqSize  prometheus.Histogram
}

var defaultMetrics *httpMetrics

// register adds c to reg, reusing the collector already registered under
// the same descriptor.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	return &httpMetrics{
		requests: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lumina",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Number of requests per route and status",
		}, []string{"code", "method", "route"})),
		latency: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lumina",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Request latency per route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"})),
		resSize: register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lumina",
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "Response body size",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		})),
		reqSize: register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lumina",
			Subsystem: "http",
			Name:      "request_size_bytes",
			Help:      "Request body size",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		})),
	}
}

// Instrumentation records request metrics on reg, the default registerer
// when nil. /metrics itself is not counted.
func Instrumentation(reg prometheus.Registerer) fiber.Handler {
	var m *httpMetrics
	if reg == nil {
		if defaultMetrics == nil {
			defaultMetrics = newHTTPMetrics(prometheus.DefaultRegisterer)
		}
		m = defaultMetrics
	} else {
		m = newHTTPMetrics(reg)
	}
	return func(c *fiber.Ctx) error {
		if c.Path() == "/metrics" {
			return c.Next()
		}
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = errorStatus(err)
		}
		route := "unmatched"
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path
		}
		m.requests.WithLabelValues(strconv.Itoa(status), c.Method(), route).Inc()
		m.latency.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		m.resSize.Observe(float64(len(c.Response().Body())))
		m.reqSize.Observe(float64(len(c.Body())))
		return err
	}
}
