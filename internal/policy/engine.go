// Package policy maps detections to enforcement. The engine is a pure
// function from (failure class, confidence) to (severity, action, reason)
// parameterized by a declarative document loaded once at startup.
package policy

import (
	"go.uber.org/zap"

	"warden/internal/contracts"
)

// Decision is the enforcement mapping for one detection.
type Decision struct {
	Severity contracts.Severity `json:"severity"`
	Action   contracts.Action   `json:"action"`
	Reason   string             `json:"reason"`
	Message  string             `json:"message"`
}

// Engine applies the policy document. Immutable after construction; safe
// for concurrent use.
type Engine struct {
	doc    *Document
	logger *zap.Logger
}

// NewEngine wraps a validated document. A nil document gets the default.
func NewEngine(doc *Document, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if doc == nil {
		doc = DefaultDocument()
	}
	logger.Info("policy engine loaded",
		zap.String("version", doc.Version),
		zap.Int("classes", len(doc.FailurePolicies)))
	return &Engine{doc: doc, logger: logger}
}

// Version returns the document version stamped into verdicts.
func (e *Engine) Version() string { return e.doc.Version }

// Decide maps a detection signal to its enforcement.
//
// A classified detection takes the class policy, demoted to LOG when the
// confidence sits below the severity's threshold (severity is kept, so
// the audit record still shows how bad it would have been). A detection
// with no class but an explicit deny becomes MEDIUM/WARN; everything else
// is INFO/ALLOW. For a fixed class, raising confidence never weakens the
// action.
func (e *Engine) Decide(sig contracts.Signal) Decision {
	if sig.FailureClass != "" {
		cp, ok := e.doc.FailurePolicies[sig.FailureClass]
		if !ok {
			return e.finish(Decision{
				Severity: contracts.SeverityLow,
				Action:   contracts.ActionLog,
				Reason:   "default policy",
			})
		}

		threshold := e.doc.Threshold(cp.Severity)
		if cp.ConfidenceThreshold != nil {
			threshold = *cp.ConfidenceThreshold
		}

		action := cp.Action
		if sig.Confidence < threshold && action.Strength() > contracts.ActionLog.Strength() {
			e.logger.Debug("demoting action below confidence threshold",
				zap.String("class", string(sig.FailureClass)),
				zap.Float64("confidence", sig.Confidence),
				zap.Float64("threshold", threshold))
			action = contracts.ActionLog
		}

		return e.finish(Decision{
			Severity: cp.Severity,
			Action:   action,
			Reason:   cp.Reason,
		})
	}

	if sig.Denies() {
		return e.finish(Decision{
			Severity: contracts.SeverityMedium,
			Action:   contracts.ActionWarn,
			Reason:   "unclassified concern",
		})
	}

	return e.finish(Decision{
		Severity: contracts.SeverityInfo,
		Action:   contracts.ActionAllow,
		Reason:   "No issues detected",
	})
}

func (e *Engine) finish(d Decision) Decision {
	d.Message = e.doc.Message(d.Action)
	return d
}
