// Package router holds the tier selection rules and the distribution
// monitor. The router decides, from a Tier-1 signal alone, whether that
// signal stands or the request escalates to semantic or LLM analysis; the
// monitor keeps the running tier counts that back the health surface.
package router

import (
	"fmt"

	"warden/internal/contracts"
)

// Routing thresholds on Tier-1 confidence.
const (
	// AcceptConfidence is the floor above which a recognized Tier-1
	// verdict stands on its own.
	AcceptConfidence = 0.8

	// EscalateConfidence is the floor below which the signal is too weak
	// even for semantic analysis and goes straight to the LLM agent.
	EscalateConfidence = 0.3
)

// Decision is the routing outcome for one request.
type Decision struct {
	Tier       int     `json:"tier"`
	Method     string  `json:"method"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Router applies the tier selection table. Stateless; safe for concurrent
// use.
type Router struct{}

// New creates a router.
func New() *Router { return &Router{} }

// Route picks the tier for a Tier-1 signal:
//
//	confidence >= 0.8 and a recognized regex method  -> tier 1 (accept)
//	confidence in (0.3, 0.8) or gray zone            -> tier 2 (semantic)
//	confidence <= 0.3 or unrecognized method         -> tier 3 (LLM agent)
//
// The router never enforces the 95/4/1 target distribution; it reports
// actuals to the monitor and the pattern catalog is tuned to meet it.
func (r *Router) Route(sig contracts.Signal) Decision {
	recognized := sig.Method == contracts.MethodRegexStrong || sig.Method == contracts.MethodRegexAnti

	if recognized && sig.Confidence >= AcceptConfidence {
		return Decision{
			Tier:       1,
			Method:     sig.Method,
			Confidence: sig.Confidence,
			Reason:     fmt.Sprintf("high-confidence %s accepted at tier 1", sig.Method),
		}
	}

	if sig.Confidence <= EscalateConfidence || (!recognized && sig.Method != contracts.MethodRegexUncertain && sig.Method != contracts.MethodRegexSkipped) {
		return Decision{
			Tier:       3,
			Method:     sig.Method,
			Confidence: sig.Confidence,
			Reason:     "edge case - escalating to LLM analysis",
		}
	}

	return Decision{
		Tier:       2,
		Method:     sig.Method,
		Confidence: sig.Confidence,
		Reason:     "gray zone - escalating to semantic analysis",
	}
}
