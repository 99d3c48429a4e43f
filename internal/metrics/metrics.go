package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "directmsg"

// Push results.
const (
	ResultDelivered = "delivered"
	ResultFailed    = "failed"
)

type Metrics struct {
	MessagesSent    prometheus.Counter
	SendFailures    *prometheus.CounterVec
	Pushes          *prometheus.CounterVec
	LiveConnections prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MessagesSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages persisted by the message store.",
		}),
		SendFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Rejected or failed send operations by reason.",
		}, []string{"reason"}),
		Pushes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pushes_total",
			Help:      "Events pushed to live connections.",
		}, []string{"event", "result"}),
		LiveConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_connections",
			Help:      "Joined websocket connections on this node.",
		}),
	}
}
