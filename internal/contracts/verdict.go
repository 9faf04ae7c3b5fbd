package contracts

import (
	"time"

	"github.com/google/uuid"
)

// Verdict is the immutable decision record emitted for every evaluated
// request. Enums marshal as lowercase strings and the timestamp as RFC 3339
// UTC, which is the stable wire representation consumed by the audit store
// and the HTTP surface. A verdict is never mutated after Evaluate returns
// it.
type Verdict struct {
	VerdictID        string        `json:"verdict_id"`
	Severity         Severity      `json:"severity"`
	Action           Action        `json:"action"`
	FailureClass     FailureClass  `json:"failure_class,omitempty"`
	FiredSignals     []FiredSignal `json:"fired_signals"`
	Reason           string        `json:"reason"`
	Confidence       float64       `json:"confidence"`
	PolicyVersion    string        `json:"policy_version"`
	Timestamp        time.Time     `json:"timestamp"`
	TierUsed         int           `json:"tier_used"`
	Method           string        `json:"method"`
	ProcessingTimeMS float64       `json:"processing_time_ms"`
}

// NewAllow builds the default clean verdict: no failure class, INFO/ALLOW,
// full confidence.
func NewAllow(policyVersion string) *Verdict {
	return &Verdict{
		VerdictID:     uuid.NewString(),
		Severity:      SeverityInfo,
		Action:        ActionAllow,
		FiredSignals:  []FiredSignal{},
		Reason:        "No issues detected",
		Confidence:    1.0,
		PolicyVersion: policyVersion,
		Timestamp:     time.Now().UTC(),
	}
}

// ShouldBlock reports whether the response must be suppressed.
func (v *Verdict) ShouldBlock() bool { return v.Action == ActionBlock }

// VerdictSummary aggregates verdicts for reporting. Not safe for concurrent
// use; callers own the locking.
type VerdictSummary struct {
	Total          int                  `json:"total_verdicts"`
	BySeverity     map[Severity]int     `json:"by_severity"`
	ByAction       map[Action]int       `json:"by_action"`
	ByFailureClass map[FailureClass]int `json:"by_failure_class"`
	ConfidenceSum  float64              `json:"-"`
	AvgConfidence  float64              `json:"avg_confidence"`
	BlockRate      float64              `json:"block_rate"`
}

// NewVerdictSummary returns an empty summary with initialized maps.
func NewVerdictSummary() *VerdictSummary {
	return &VerdictSummary{
		BySeverity:     make(map[Severity]int),
		ByAction:       make(map[Action]int),
		ByFailureClass: make(map[FailureClass]int),
	}
}

// Add folds one verdict into the summary and refreshes the derived rates.
func (s *VerdictSummary) Add(v *Verdict) {
	s.Total++
	s.BySeverity[v.Severity]++
	s.ByAction[v.Action]++
	if v.FailureClass != "" {
		s.ByFailureClass[v.FailureClass]++
	}
	s.ConfidenceSum += v.Confidence
	s.AvgConfidence = s.ConfidenceSum / float64(s.Total)
	s.BlockRate = float64(s.ByAction[ActionBlock]) / float64(s.Total)
}
