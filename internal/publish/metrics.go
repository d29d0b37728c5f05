package publish

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var publishedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "unshub",
	Subsystem: "publish",
	Name:      "data_points_published_total",
	Help:      "Data points emitted to outbound connections, per output.",
}, []string{"output"})
