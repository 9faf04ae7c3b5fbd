// Package contracts provides the shared vocabulary of the detection
// pipeline: failure classes, severities, enforcement actions, per-tier
// signals, and the verdict record emitted for every request. This package
// exists to break import cycles between the detectors, the policy engine,
// and the control tower. Types here are foundational data structures with
// no complex dependencies.
package contracts

// FailureClass tags a verdict with the category of undesirable output that
// was detected. Values are persisted as stable lowercase strings; the set
// is append-only and existing tags are never renamed.
type FailureClass string

const (
	PromptInjection   FailureClass = "prompt_injection"
	Bias              FailureClass = "bias"
	Toxicity          FailureClass = "toxicity"
	FabricatedConcept FailureClass = "fabricated_concept"
	FabricatedFact    FailureClass = "fabricated_fact"
	MissingGrounding  FailureClass = "missing_grounding"
	Overconfidence    FailureClass = "overconfidence"
	DomainMismatch    FailureClass = "domain_mismatch"
)

// AllFailureClasses lists every known class in canonical order.
func AllFailureClasses() []FailureClass {
	return []FailureClass{
		PromptInjection,
		Bias,
		Toxicity,
		FabricatedConcept,
		FabricatedFact,
		MissingGrounding,
		Overconfidence,
		DomainMismatch,
	}
}

// SecurityClasses are evaluated first by the semantic detector with lower
// (more sensitive) thresholds.
func SecurityClasses() []FailureClass {
	return []FailureClass{PromptInjection, Bias, Toxicity}
}

// QualityClasses are evaluated after the security classes.
func QualityClasses() []FailureClass {
	return []FailureClass{
		FabricatedConcept,
		FabricatedFact,
		MissingGrounding,
		Overconfidence,
		DomainMismatch,
	}
}

// Valid reports whether fc is one of the canonical classes.
func (fc FailureClass) Valid() bool {
	switch fc {
	case PromptInjection, Bias, Toxicity, FabricatedConcept,
		FabricatedFact, MissingGrounding, Overconfidence, DomainMismatch:
		return true
	}
	return false
}

func (fc FailureClass) String() string { return string(fc) }

// Severity is the ordered impact level of a detection.
// The total order is CRITICAL > HIGH > MEDIUM > LOW > INFO.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Rank returns the position of s in the severity order. Higher is worse.
// Unknown severities rank below INFO.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	case SeverityInfo:
		return 0
	}
	return -1
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool { return s.Rank() >= 0 }

func (s Severity) String() string { return string(s) }

// Action is the enforcement outcome attached to a verdict. BLOCK suppresses
// response delivery, WARN annotates, LOG is silent, ALLOW is a no-op.
type Action string

const (
	ActionBlock Action = "block"
	ActionWarn  Action = "warn"
	ActionLog   Action = "log"
	ActionAllow Action = "allow"
)

// Strength orders actions by how strongly they intervene. Higher is
// stronger. Unknown actions rank below ALLOW.
func (a Action) Strength() int {
	switch a {
	case ActionBlock:
		return 3
	case ActionWarn:
		return 2
	case ActionLog:
		return 1
	case ActionAllow:
		return 0
	}
	return -1
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool { return a.Strength() >= 0 }

func (a Action) String() string { return string(a) }

// DefaultActionForSeverity is the severity→action mapping used when a
// policy document does not override it.
func DefaultActionForSeverity(s Severity) Action {
	switch s {
	case SeverityCritical:
		return ActionBlock
	case SeverityHigh, SeverityMedium:
		return ActionWarn
	case SeverityLow:
		return ActionLog
	default:
		return ActionAllow
	}
}
