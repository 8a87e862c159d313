// Package metrics provides Prometheus instrumentation for the chat server.
// It exposes gauges for presence, pool, and session counts, counters for
// relay and friend-graph activity, and a dispatch latency histogram.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "driftchat_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// OnlineUsers tracks the current number of registered users.
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "driftchat_online_users",
		Help: "Current number of registered (online) users",
	})

	// AvailableUsers tracks the current size of the matchmaking pool.
	AvailableUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "driftchat_available_users",
		Help: "Current number of users waiting for a match",
	})

	// ActiveSessions tracks the current number of active chat sessions.
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "driftchat_active_sessions",
		Help: "Current number of active chat sessions",
	})

	// MessagesTotal counts chat messages by outcome: "relayed", "blocked",
	// or "rate_limited".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "driftchat_messages_total",
		Help: "Total number of chat messages processed",
	}, []string{"outcome"})

	// MatchesTotal counts successfully created chat sessions.
	MatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "driftchat_matches_total",
		Help: "Total number of matches made",
	})

	// FriendRequestsTotal counts friend-request operations by action:
	// "sent", "accepted", or "rejected".
	FriendRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "driftchat_friend_requests_total",
		Help: "Total number of friend request operations",
	}, []string{"action"})

	// DispatchLatency records per-message dispatch latency in seconds.
	DispatchLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "driftchat_dispatch_latency_seconds",
		Help:    "Message dispatch latency in seconds",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		OnlineUsers,
		AvailableUsers,
		ActiveSessions,
		MessagesTotal,
		MatchesTotal,
		FriendRequestsTotal,
		DispatchLatency,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
