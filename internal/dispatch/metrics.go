package dispatch

import "github.com/prometheus/client_golang/prometheus"

var envelopesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "chat_client_dispatched_envelopes_total",
		Help: "Total websocket envelopes dispatched, by type and outcome.",
	},
	[]string{"type", "outcome"},
)

func init() {
	prometheus.MustRegister(envelopesTotal)
}
