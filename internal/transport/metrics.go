package transport

import "github.com/prometheus/client_golang/prometheus"

var (
	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_client_ws_connections",
			Help: "Current number of open websocket connections.",
		},
	)
	wsFramesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_client_ws_frames_received_total",
			Help: "Total websocket text frames received.",
		},
	)
	wsFramesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_client_ws_frames_sent_total",
			Help: "Total websocket text frames written.",
		},
	)
	wsSendsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_client_ws_sends_dropped_total",
			Help: "Sends dropped because the socket was not open or the buffer was full.",
		},
	)
	wsReconnectAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_client_ws_reconnect_attempts_total",
			Help: "Total reconnect attempts scheduled.",
		},
	)
)

func init() {
	prometheus.MustRegister(wsConnections, wsFramesReceived, wsFramesSent, wsSendsDropped, wsReconnectAttempts)
}
