package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	processedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unshub_queue_processed_total",
		Help: "Items successfully processed, per processor.",
	}, []string{"processor"})

	errorCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unshub_queue_errors_total",
		Help: "Items whose processor call failed, per processor.",
	}, []string{"processor"})
)
