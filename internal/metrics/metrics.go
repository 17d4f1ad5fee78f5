package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	DiscoveredPosts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "requestwatch",
			Subsystem: "discovery",
			Name:      "posts_total",
			Help:      "Posts seen by discovery passes, by result",
		},
		[]string{"result"},
	)
	RecheckedPosts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "requestwatch",
			Subsystem: "recheck",
			Name:      "posts_total",
			Help:      "Posts visited by reconciliation passes, by result",
		},
		[]string{"result"},
	)
	ProbeResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "requestwatch",
			Name:      "probe_total",
			Help:      "Community probes, by resulting access state",
		},
		[]string{"state"},
	)
	PassDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "requestwatch",
			Name:      "pass_duration_seconds",
			Help:      "Duration of a full discovery or reconciliation pass",
			Buckets:   []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		},
		[]string{"task"},
	)
)

// Результаты обработки поста.
const (
	ResultInserted = "inserted"
	ResultSkipped  = "skipped"
	ResultUpdated  = "updated"
	ResultMissing  = "missing"
	ResultFailed   = "failed"
)

var registerOnce sync.Once

func init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(DiscoveredPosts, RecheckedPosts, ProbeResults, PassDuration)
	})
}
