package entities

// CacheMetricsSnapshot is the polled view of process-lifetime cache counters.
type CacheMetricsSnapshot struct {
	Hits         int64   `json:"hits"`
	Misses       int64   `json:"misses"`
	Errors       int64   `json:"errors"`
	HitRate      float64 `json:"hit_rate_percent"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	Samples      int     `json:"samples"`
}
