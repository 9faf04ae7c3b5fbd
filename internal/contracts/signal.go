package contracts

import "time"

// Detection method identifiers recorded in signals and verdicts. The tier
// router branches on these strings, so they are part of the wire contract
// and must stay stable.
const (
	// Tier-1 sanitation outcomes.
	MethodSkipped         = "skipped"
	MethodDoSProtection   = "dos_protection"
	MethodPatternAnalysis = "pattern_analysis"
	MethodRegexSkipped    = "regex_skipped"

	// Tier-1 matcher outcomes.
	MethodRegexAnti      = "regex_anti"
	MethodRegexStrong    = "regex_strong"
	MethodRegexUncertain = "regex_uncertain"

	// Tier-2 outcomes.
	MethodSemantic            = "semantic"
	MethodSemanticClean       = "semantic_clean"
	MethodPathologicalSkipped = "pathological_skipped"
	MethodTooShort            = "too_short"
	MethodTimeout             = "timeout"

	// Tier-3 outcomes.
	MethodLLMAgent       = "llm_agent"
	MethodLLMAgentCached = "llm_agent_cached"
)

// Signal is the transient output of a single detection tier. FailureClass
// is empty when no class was identified. ShouldAllow is tri-state: nil
// marks the Tier-1 gray zone that triggers escalation.
type Signal struct {
	FailureClass FailureClass `json:"failure_class,omitempty"`
	Confidence   float64      `json:"confidence"`
	Method       string       `json:"method"`
	ShouldAllow  *bool        `json:"should_allow,omitempty"`
	Explanation  string       `json:"explanation,omitempty"`
}

// Allows reports whether the signal decided the text is benign.
func (s Signal) Allows() bool { return s.ShouldAllow != nil && *s.ShouldAllow }

// Denies reports whether the signal decided the text is a problem.
func (s Signal) Denies() bool { return s.ShouldAllow != nil && !*s.ShouldAllow }

// Gray reports whether the signal left the decision open.
func (s Signal) Gray() bool { return s.ShouldAllow == nil }

// Bool returns a pointer to b, for populating Signal.ShouldAllow.
func Bool(b bool) *bool { return &b }

// FiredSignal records one detector contribution embedded in a verdict and
// persisted alongside it in the audit store.
type FiredSignal struct {
	SignalName  string    `json:"signal_name"`
	Confidence  float64   `json:"confidence"`
	Explanation string    `json:"explanation"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewFiredSignal stamps a fired signal with the current UTC time.
func NewFiredSignal(name string, confidence float64, explanation string) FiredSignal {
	return FiredSignal{
		SignalName:  name,
		Confidence:  confidence,
		Explanation: explanation,
		Timestamp:   time.Now().UTC(),
	}
}
