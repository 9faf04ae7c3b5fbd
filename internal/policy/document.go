package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"warden/internal/contracts"
)

// ClassPolicy is the enforcement rule for one failure class.
type ClassPolicy struct {
	Severity contracts.Severity `yaml:"severity"`
	Action   contracts.Action   `yaml:"action"`
	Reason   string             `yaml:"reason"`

	// ConfidenceThreshold overrides the severity default when set.
	ConfidenceThreshold *float64 `yaml:"confidence_threshold,omitempty"`
}

// Document is the declarative policy in force. Construct once at startup
// and never mutate; the version string is copied verbatim into every
// verdict so audits can be joined with the policy that produced them.
type Document struct {
	Version         string                                    `yaml:"version"`
	Thresholds      map[contracts.Severity]float64            `yaml:"thresholds"`
	FailurePolicies map[contracts.FailureClass]ClassPolicy    `yaml:"failure_policies"`
	Messages        map[contracts.Action]string               `yaml:"messages"`
}

// DefaultDocument is the policy shipped with the gateway: security
// classes block, quality classes warn or log.
func DefaultDocument() *Document {
	return &Document{
		Version: "1.0.0",
		Thresholds: map[contracts.Severity]float64{
			contracts.SeverityCritical: 0.8,
			contracts.SeverityHigh:     0.7,
			contracts.SeverityMedium:   0.6,
			contracts.SeverityLow:      0.5,
		},
		FailurePolicies: map[contracts.FailureClass]ClassPolicy{
			contracts.PromptInjection: {
				Severity: contracts.SeverityCritical,
				Action:   contracts.ActionBlock,
				Reason:   "Prompt injection attempt detected",
			},
			contracts.Toxicity: {
				Severity: contracts.SeverityCritical,
				Action:   contracts.ActionBlock,
				Reason:   "Toxic content detected",
			},
			contracts.Bias: {
				Severity: contracts.SeverityHigh,
				Action:   contracts.ActionWarn,
				Reason:   "Biased or stereotyping content detected",
			},
			contracts.FabricatedFact: {
				Severity: contracts.SeverityHigh,
				Action:   contracts.ActionWarn,
				Reason:   "Fabricated factual claim detected",
			},
			contracts.FabricatedConcept: {
				Severity: contracts.SeverityHigh,
				Action:   contracts.ActionWarn,
				Reason:   "Fabricated concept or terminology detected",
			},
			contracts.MissingGrounding: {
				Severity: contracts.SeverityMedium,
				Action:   contracts.ActionWarn,
				Reason:   "Claim lacks source attribution",
			},
			contracts.DomainMismatch: {
				Severity: contracts.SeverityMedium,
				Action:   contracts.ActionWarn,
				Reason:   "Response off-topic for the question asked",
			},
			contracts.Overconfidence: {
				Severity: contracts.SeverityLow,
				Action:   contracts.ActionLog,
				Reason:   "Overconfident phrasing without qualification",
			},
		},
		Messages: map[contracts.Action]string{
			contracts.ActionBlock: "Response blocked due to critical safety issue.",
			contracts.ActionWarn:  "Response flagged for review: potential quality issue.",
			contracts.ActionLog:   "Response logged for analysis.",
			contracts.ActionAllow: "Response allowed.",
		},
	}
}

// LoadDocument reads and validates a policy document from disk.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy %s: %w", path, err)
	}

	doc := &Document{}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to parse policy %s: %w", path, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy %s: %w", path, err)
	}
	return doc, nil
}

// Validate rejects documents that would produce undefined enforcement.
func (d *Document) Validate() error {
	if d.Version == "" {
		return fmt.Errorf("policy version is required")
	}
	for sev, threshold := range d.Thresholds {
		if !sev.Valid() {
			return fmt.Errorf("unknown severity %q in thresholds", sev)
		}
		if threshold < 0 || threshold > 1 {
			return fmt.Errorf("threshold for %s out of range: %f", sev, threshold)
		}
	}
	for fc, cp := range d.FailurePolicies {
		if !fc.Valid() {
			return fmt.Errorf("unknown failure class %q", fc)
		}
		if !cp.Severity.Valid() {
			return fmt.Errorf("unknown severity %q for class %s", cp.Severity, fc)
		}
		if !cp.Action.Valid() {
			return fmt.Errorf("unknown action %q for class %s", cp.Action, fc)
		}
		if cp.ConfidenceThreshold != nil && (*cp.ConfidenceThreshold < 0 || *cp.ConfidenceThreshold > 1) {
			return fmt.Errorf("confidence_threshold for %s out of range", fc)
		}
	}
	return nil
}

// Threshold returns the confidence floor for a severity, defaulting to
// 0.5 when the document does not specify one.
func (d *Document) Threshold(sev contracts.Severity) float64 {
	if t, ok := d.Thresholds[sev]; ok {
		return t
	}
	return 0.5
}

// Message returns the user-facing template for an action.
func (d *Document) Message(action contracts.Action) string {
	if m, ok := d.Messages[action]; ok {
		return m
	}
	return ""
}
