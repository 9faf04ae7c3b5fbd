package router

import (
	"fmt"
	"sync/atomic"
)

// WarmupRequests is the request count below which the monitor reports
// healthy unconditionally; percentages over tiny samples are noise.
const WarmupRequests = 50

// Healthy tier distribution bands, in percent. Derived from the 95/4/1
// steady-state target with slack for normal traffic variation.
const (
	tier1Low, tier1High = 92.0, 98.0
	tier2Low, tier2High = 2.0, 7.0
	tier3Low, tier3High = 0.0, 3.0
)

// Distribution is the tier share snapshot, in percent of total.
type Distribution struct {
	Total    uint64  `json:"total"`
	Tier1    uint64  `json:"tier1"`
	Tier2    uint64  `json:"tier2"`
	Tier3    uint64  `json:"tier3"`
	Tier1Pct float64 `json:"tier1_pct"`
	Tier2Pct float64 `json:"tier2_pct"`
	Tier3Pct float64 `json:"tier3_pct"`
}

// Monitor keeps the four monotonic tier counters. All increments are
// atomic; tier1+tier2+tier3 == total holds at every observable instant
// because Record bumps the tier counter before the total.
type Monitor struct {
	total atomic.Uint64
	tier1 atomic.Uint64
	tier2 atomic.Uint64
	tier3 atomic.Uint64
}

// NewMonitor creates a zeroed monitor.
func NewMonitor() *Monitor { return &Monitor{} }

// Record counts one request against tier. Unknown tiers count as tier 1,
// which is where sanitation verdicts land.
func (m *Monitor) Record(tier int) {
	switch tier {
	case 2:
		m.tier2.Add(1)
	case 3:
		m.tier3.Add(1)
	default:
		m.tier1.Add(1)
	}
	m.total.Add(1)
}

// Total returns the request count, which may momentarily trail the tier
// sum while a Record is in flight.
func (m *Monitor) Total() uint64 { return m.total.Load() }

// Distribution returns the counter snapshot with percentages. Total is
// derived from the tier counters so the snapshot is internally
// consistent even against concurrent Records.
func (m *Monitor) Distribution() Distribution {
	d := Distribution{
		Tier1: m.tier1.Load(),
		Tier2: m.tier2.Load(),
		Tier3: m.tier3.Load(),
	}
	d.Total = d.Tier1 + d.Tier2 + d.Tier3
	if d.Total > 0 {
		d.Tier1Pct = float64(d.Tier1) / float64(d.Total) * 100
		d.Tier2Pct = float64(d.Tier2) / float64(d.Total) * 100
		d.Tier3Pct = float64(d.Tier3) / float64(d.Total) * 100
	}
	return d
}

// Health reports whether the observed distribution sits inside the
// healthy bands. Below the warm-up count it always reports healthy.
func (m *Monitor) Health() (bool, string) {
	if total := m.Total(); total < WarmupRequests {
		return true, fmt.Sprintf("healthy - insufficient data (%d requests)", total)
	}

	d := m.Distribution()

	if d.Tier1Pct < tier1Low || d.Tier1Pct > tier1High {
		return false, fmt.Sprintf("degraded - tier 1 at %.1f%% (expected %.0f-%.0f%%)", d.Tier1Pct, tier1Low, tier1High)
	}
	if d.Tier2Pct < tier2Low || d.Tier2Pct > tier2High {
		return false, fmt.Sprintf("degraded - tier 2 at %.1f%% (expected %.0f-%.0f%%)", d.Tier2Pct, tier2Low, tier2High)
	}
	if d.Tier3Pct > tier3High {
		return false, fmt.Sprintf("degraded - tier 3 at %.1f%% (expected %.0f-%.0f%%)", d.Tier3Pct, tier3Low, tier3High)
	}

	return true, fmt.Sprintf("healthy - distribution %.1f/%.1f/%.1f", d.Tier1Pct, d.Tier2Pct, d.Tier3Pct)
}

// Reset zeroes every counter. Used by the admin surface and tests.
func (m *Monitor) Reset() {
	m.tier1.Store(0)
	m.tier2.Store(0)
	m.tier3.Store(0)
	m.total.Store(0)
}
