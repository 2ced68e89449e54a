package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MailPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chipdesk_mail_polls_total",
		Help: "Mailbox poll cycles, labeled by account and outcome",
	}, []string{"account", "outcome"})

	MailMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chipdesk_mail_messages_total",
		Help: "Mail messages inspected, labeled by account and result",
	}, []string{"account", "result"})

	LedgerInserts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chipdesk_ledger_inserts_total",
		Help: "Ledger insert attempts, labeled by result (recorded, duplicate, error)",
	}, []string{"result"})

	LedgerSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chipdesk_ledger_swept_total",
		Help: "Transactions removed by the retention sweep",
	})

	LedgerUnavailable = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chipdesk_ledger_unavailable_total",
		Help: "Ledger operations that exhausted their retry budget",
	}, []string{"op"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chipdesk_notifications_total",
		Help: "Notification deliveries, labeled by outcome",
	}, []string{"outcome"})

	ActuatorCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chipdesk_actuator_calls_total",
		Help: "Console actuator calls, labeled by operation and outcome",
	}, []string{"op", "outcome"})

	ActuatorLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chipdesk_actuator_call_duration_seconds",
		Help:    "Latency distribution of console actuator calls",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"op"})

	ConversationTurns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chipdesk_conversation_turns_total",
		Help: "Inbound chat turns, labeled by handling path",
	}, []string{"path"})

	ActiveWatchers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chipdesk_active_watchers",
		Help: "Mailbox watchers currently supervised",
	})
)
