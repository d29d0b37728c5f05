package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	hitCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unshub_cache_hits_total",
		Help: "Cache hits by tier (l1, l2) and l3 hint touches.",
	}, []string{"tier"})

	missCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "unshub_cache_misses_total",
		Help: "Lookups that missed every tier and the repository.",
	})
)
