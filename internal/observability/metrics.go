package observability

import "github.com/prometheus/client_golang/prometheus"

// Domain collectors. Labels are drawn from fixed sets (event names, delivery
// outcome, task types) so cardinality stays bounded.
var (
	WSConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections",
		Help: "Open push-channel connections.",
	})

	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "presence_online_users",
		Help: "Users with a registered connection.",
	})

	MessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "messages_sent_total",
		Help: "Persisted direct messages by delivery outcome (pushed|stored_only).",
	}, []string{"delivery"})

	PushDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "push_dropped_total",
		Help: "Server events dropped because a connection could not accept them.",
	}, []string{"event"})

	OrderTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Order transition attempts by event and result.",
	}, []string{"event", "result"})

	AlertsEnqueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alerts_enqueued_total",
		Help: "Background alert enqueue attempts by task type and result.",
	}, []string{"task", "result"})
)

func init() {
	prometheus.MustRegister(WSConnections, OnlineUsers, MessagesSent, PushDropped, OrderTransitions, AlertsEnqueued)
}
