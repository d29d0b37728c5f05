package connection

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var dataPointsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "unshub",
	Subsystem: "connection",
	Name:      "data_points_received_total",
	Help:      "Decoded data points routed to subscribers, per connection.",
}, []string{"connection"})

var decodeFallbacks = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "unshub",
	Subsystem: "connection",
	Name:      "decode_fallbacks_total",
	Help:      "Payloads that were not valid JSON and were passed through as strings.",
})
