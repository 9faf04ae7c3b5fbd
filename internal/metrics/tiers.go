package metrics

import (
	"sync"
	"time"
)

// TierSnapshot is the aggregate for one tier at a point in time.
// Latencies are milliseconds.
type TierSnapshot struct {
	Count        uint64  `json:"count"`
	ThreatCount  uint64  `json:"threat_count"`
	TotalLatency float64 `json:"total_latency_ms"`
	AvgLatency   float64 `json:"avg_latency_ms"`
	MinLatency   float64 `json:"min_latency_ms"`
	MaxLatency   float64 `json:"max_latency_ms"`
}

// TierMetrics keeps running latency and threat aggregates per tier for
// the stats routes. Prometheus histograms cover the same ground for
// scraping; this aggregate exists so the JSON monitoring surface can
// answer without a metrics backend.
type TierMetrics struct {
	mu    sync.Mutex
	tiers [3]tierAgg
}

type tierAgg struct {
	count        uint64
	threats      uint64
	totalLatency float64
	minLatency   float64
	maxLatency   float64
}

// NewTierMetrics returns an empty aggregate.
func NewTierMetrics() *TierMetrics { return &TierMetrics{} }

// Observe folds one request into the aggregate. Tiers outside 1..3 are
// ignored.
func (m *TierMetrics) Observe(tier int, latency time.Duration, threat bool) {
	if tier < 1 || tier > 3 {
		return
	}
	ms := float64(latency.Microseconds()) / 1000.0

	m.mu.Lock()
	defer m.mu.Unlock()

	agg := &m.tiers[tier-1]
	if agg.count == 0 || ms < agg.minLatency {
		agg.minLatency = ms
	}
	if ms > agg.maxLatency {
		agg.maxLatency = ms
	}
	agg.count++
	agg.totalLatency += ms
	if threat {
		agg.threats++
	}
}

// Snapshot returns the per-tier aggregates keyed 1..3.
func (m *TierMetrics) Snapshot() map[int]TierSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[int]TierSnapshot, 3)
	for i, agg := range m.tiers {
		snap := TierSnapshot{
			Count:        agg.count,
			ThreatCount:  agg.threats,
			TotalLatency: agg.totalLatency,
			MinLatency:   agg.minLatency,
			MaxLatency:   agg.maxLatency,
		}
		if agg.count > 0 {
			snap.AvgLatency = agg.totalLatency / float64(agg.count)
		}
		out[i+1] = snap
	}
	return out
}

// Reset restores the zero aggregate.
func (m *TierMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tiers = [3]tierAgg{}
}
