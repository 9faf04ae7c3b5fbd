package router

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"warden/internal/contracts"
)

func TestRouteAcceptsStrongTier1(t *testing.T) {
	r := New()

	cases := []contracts.Signal{
		{Method: contracts.MethodRegexStrong, Confidence: 0.95, FailureClass: contracts.PromptInjection},
		{Method: contracts.MethodRegexStrong, Confidence: 0.8},
		{Method: contracts.MethodRegexAnti, Confidence: 0.9, ShouldAllow: contracts.Bool(true)},
	}
	for _, sig := range cases {
		d := r.Route(sig)
		assert.Equal(t, 1, d.Tier, "method=%s conf=%.2f", sig.Method, sig.Confidence)
	}
}

func TestRouteGrayZoneToTier2(t *testing.T) {
	r := New()

	cases := []contracts.Signal{
		{Method: contracts.MethodRegexUncertain, Confidence: 0.5},
		{Method: contracts.MethodRegexStrong, Confidence: 0.79}, // strong method, weak confidence
		{Method: contracts.MethodRegexAnti, Confidence: 0.31},
		{Method: contracts.MethodRegexSkipped, Confidence: 0.5, ShouldAllow: contracts.Bool(true)},
	}
	for _, sig := range cases {
		d := r.Route(sig)
		assert.Equal(t, 2, d.Tier, "method=%s conf=%.2f", sig.Method, sig.Confidence)
	}
}

func TestRouteEdgeCasesToTier3(t *testing.T) {
	r := New()

	cases := []contracts.Signal{
		{Method: contracts.MethodRegexUncertain, Confidence: 0.2},
		{Method: contracts.MethodRegexStrong, Confidence: 0.3},
		{Method: "something_unrecognized", Confidence: 0.6},
	}
	for _, sig := range cases {
		d := r.Route(sig)
		assert.Equal(t, 3, d.Tier, "method=%s conf=%.2f", sig.Method, sig.Confidence)
	}
}

func TestRouteDecisionCarriesReason(t *testing.T) {
	r := New()

	d := r.Route(contracts.Signal{Method: contracts.MethodRegexUncertain, Confidence: 0.5})
	assert.Contains(t, d.Reason, "semantic")
	assert.Equal(t, 0.5, d.Confidence)
}

func TestMonitorCountersConsistent(t *testing.T) {
	m := NewMonitor()

	for i := 0; i < 95; i++ {
		m.Record(1)
	}
	for i := 0; i < 4; i++ {
		m.Record(2)
	}
	m.Record(3)

	d := m.Distribution()
	assert.Equal(t, uint64(100), d.Total)
	assert.Equal(t, d.Total, d.Tier1+d.Tier2+d.Tier3)
	assert.Equal(t, 95.0, d.Tier1Pct)
	assert.Equal(t, 4.0, d.Tier2Pct)
	assert.Equal(t, 1.0, d.Tier3Pct)
}

func TestMonitorConcurrentRecord(t *testing.T) {
	m := NewMonitor()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(tier int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				m.Record(tier%3 + 1)
			}
		}(w)
	}
	wg.Wait()

	d := m.Distribution()
	assert.Equal(t, uint64(8000), d.Total)
	assert.Equal(t, d.Total, d.Tier1+d.Tier2+d.Tier3)
	assert.Equal(t, d.Total, m.Total(), "request counter agrees with the tier sum at rest")
}

func TestMonitorTotalCounter(t *testing.T) {
	m := NewMonitor()

	for i := 0; i < 7; i++ {
		m.Record(i%3 + 1)
	}
	assert.Equal(t, uint64(7), m.Total())

	m.Reset()
	assert.Zero(t, m.Total())
}

func TestMonitorHealthWarmup(t *testing.T) {
	m := NewMonitor()

	// Below warm-up the monitor never reports degraded, even with a
	// pathological distribution.
	for i := 0; i < WarmupRequests-1; i++ {
		m.Record(3)
	}
	healthy, msg := m.Health()
	assert.True(t, healthy)
	assert.Contains(t, msg, "insufficient data")
}

func TestMonitorHealthBands(t *testing.T) {
	healthyLoad := func(m *Monitor) {
		for i := 0; i < 95; i++ {
			m.Record(1)
		}
		for i := 0; i < 4; i++ {
			m.Record(2)
		}
		m.Record(3)
	}

	t.Run("target distribution is healthy", func(t *testing.T) {
		m := NewMonitor()
		healthyLoad(m)
		healthy, _ := m.Health()
		assert.True(t, healthy)
	})

	t.Run("tier2 overload is degraded", func(t *testing.T) {
		m := NewMonitor()
		for i := 0; i < 80; i++ {
			m.Record(1)
		}
		for i := 0; i < 20; i++ {
			m.Record(2)
		}
		healthy, msg := m.Health()
		assert.False(t, healthy)
		assert.Contains(t, msg, "tier 1")
	})

	t.Run("tier3 overload names tier3", func(t *testing.T) {
		m := NewMonitor()
		for i := 0; i < 94; i++ {
			m.Record(1)
		}
		for i := 0; i < 2; i++ {
			m.Record(2)
		}
		for i := 0; i < 4; i++ {
			m.Record(3)
		}
		healthy, msg := m.Health()
		assert.False(t, healthy)
		assert.Contains(t, msg, "tier 3")
	})
}

func TestMonitorReset(t *testing.T) {
	m := NewMonitor()
	for i := 0; i < 100; i++ {
		m.Record(1)
	}
	m.Reset()
	assert.Zero(t, m.Distribution().Total)
}

func TestMonitorPercentagesSum(t *testing.T) {
	m := NewMonitor()
	for i := 0; i < 7; i++ {
		m.Record(i%3 + 1)
	}
	d := m.Distribution()
	sum := d.Tier1Pct + d.Tier2Pct + d.Tier3Pct
	assert.InDelta(t, 100.0, sum, 0.0001, fmt.Sprintf("%+v", d))
}
