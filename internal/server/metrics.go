package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the service's Prometheus registry.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	upstreamCalls   *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	turns           *prometheus.CounterVec
	polls           prometheus.Histogram
	sources         prometheus.Histogram
	neutralized     prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mascot_http_requests_total",
			Help: "Inbound requests by route and status code.",
		}, []string{"route", "code"}),
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mascot_upstream_calls_total",
			Help: "Calls to the assistant service by operation and status code (0 = transport error).",
		}, []string{"op", "code"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mascot_upstream_call_duration_seconds",
			Help:    "Latency of calls to the assistant service.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"op"}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mascot_turns_total",
			Help: "Turns by outcome.",
		}, []string{"outcome"}),
		polls: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mascot_polls_per_turn",
			Help:    "Status polls issued while waiting for one turn.",
			Buckets: prometheus.LinearBuckets(1, 4, 10),
		}),
		sources: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mascot_sources_per_answer",
			Help:    "Curated sources attached to an answer.",
			Buckets: prometheus.LinearBuckets(0, 1, 7),
		}),
		neutralized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mascot_links_neutralized_total",
			Help: "Links in answers marked unavailable.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.upstreamCalls, m.upstreamLatency, m.turns, m.polls, m.sources, m.neutralized,
	)
	return m
}

// ObserveCall records one outbound call to the assistant service.
func (m *Metrics) ObserveCall(op string, status int, elapsed time.Duration) {
	m.upstreamCalls.WithLabelValues(op, strconv.Itoa(status)).Inc()
	m.upstreamLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) observeTurn(outcome string, polls int) {
	m.turns.WithLabelValues(outcome).Inc()
	if polls > 0 {
		m.polls.Observe(float64(polls))
	}
}

func (m *Metrics) observeAnswer(sources, neutralized int) {
	m.sources.Observe(float64(sources))
	m.neutralized.Add(float64(neutralized))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware counts requests by route pattern once the response status is
// final.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			code := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok && !c.Response().Committed {
				code = he.Code
			} else if err != nil && !c.Response().Committed {
				code = http.StatusInternalServerError
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
			return err
		}
	}
}
