// Package metrics owns the Prometheus collectors for workflow transitions,
// gateway calls, realtime fan-out and HTTP traffic. A nil *Metrics is valid
// and records nothing.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/safar/renew-path-trade/internal/apperr"
)

type Metrics struct {
	registry        *prometheus.Registry
	transitions     *prometheus.CounterVec
	gatewayRequests *prometheus.CounterVec
	gatewayLatency  prometheus.Histogram
	realtimeEvents  *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
}

func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "workflow_transitions_total",
			Help: "Status transitions attempted, by entity, transition and outcome.",
		}, []string{"entity", "transition", "outcome"}),
		gatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "gateway_requests_total",
			Help: "Checkout session requests sent to the payment gateway.",
		}, []string{"outcome"}),
		gatewayLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "gateway_request_duration_seconds",
			Help:    "Latency of payment gateway calls.",
			Buckets: prometheus.DefBuckets,
		}),
		realtimeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "realtime_events_total",
			Help: "Change notifications fanned out to subscribers, by table.",
		}, []string{"table"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP requests served, by route pattern, method and status code.",
		}, []string{"route", "method", "code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.transitions,
		m.gatewayRequests,
		m.gatewayLatency,
		m.realtimeEvents,
		m.httpRequests,
		m.httpLatency,
	)

	return m
}

// Outcome buckets an error into the label values used across collectors.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperr.ErrConflict):
		return "conflict"
	case errors.Is(err, apperr.ErrValidation), errors.Is(err, apperr.ErrPermission):
		return "rejected"
	default:
		return "error"
	}
}

func (m *Metrics) Transition(entity, transition string, err error) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(entity, transition, Outcome(err)).Inc()
}

func (m *Metrics) GatewayRequest(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.gatewayRequests.WithLabelValues(Outcome(err)).Inc()
	m.gatewayLatency.Observe(elapsed.Seconds())
}

func (m *Metrics) RealtimeEvent(table string) {
	if m == nil {
		return
	}
	m.realtimeEvents.WithLabelValues(table).Inc()
}

func (m *Metrics) HTTPRequest(route, method string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.httpLatency.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests that gather collector values.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
