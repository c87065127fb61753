package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Matching pass metrics, incremented in the service layer so the engine
// itself stays side-effect free.
var (
	HangPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hp_hang_passes_total",
		Help: "Number of hanging protocol matching passes",
	}, []string{"tenant_id"})

	ProtocolFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hp_protocol_fallbacks_total",
		Help: "Passes where no protocol matched and the default was substituted",
	})

	StageFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hp_stage_fallbacks_total",
		Help: "Passes where no stage met its activation threshold and the last stage was substituted",
	})

	HangDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hp_hang_duration_seconds",
		Help:    "Duration of one matching pass",
		Buckets: prometheus.DefBuckets,
	})

	LibraryCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hp_library_cache_total",
		Help: "Protocol library cache lookups by outcome",
	}, []string{"outcome"})
)
