// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridgeme_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridgeme_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	AICalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridgeme_ai_calls_total",
			Help: "Generative AI calls by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	CallsEnded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridgeme_calls_ended_total",
			Help: "Finished audio/video calls.",
		},
		[]string{"medium", "recorded"},
	)

	ChatMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridgeme_chat_messages_total",
			Help: "Chat messages appended by kind.",
		},
		[]string{"kind"},
	)

	Checkouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bridgeme_checkouts_total",
		Help: "Completed marketplace checkouts.",
	})

	WSClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bridgeme_ws_clients",
		Help: "Connected websocket clients on this instance.",
	})
)

func init() {
	prometheus.MustRegister(HTTPRequests, HTTPDuration, AICalls, CallsEnded, ChatMessages, Checkouts, WSClients)
}

// Outcome maps an error to the "outcome" label.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
