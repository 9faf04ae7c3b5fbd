// Package patterns implements Tier-1 detection: a static catalog of
// compiled regexes tagged with failure classes and fixed confidences, plus
// the bounded matcher that evaluates them. Patterns with a nil failure
// class are allow-patterns: strong evidence the text is benign.
//
// Authoring rules for the catalog: repetitions are bounded ({0,N}),
// alternations do not nest, and there are no look-arounds. Go's RE2 engine
// guarantees linear-time matching on top of that, so Tier-1 needs neither
// timeouts nor worker threads to stay safe.
package patterns

import (
	"regexp"

	"go.uber.org/zap"

	"warden/internal/contracts"
)

// StrongConfidence is the floor above which a pattern counts as strong.
const StrongConfidence = 0.8

// Pattern is one compiled catalog entry. FailureClass is empty for
// allow-patterns. Confidence is fixed at compile time; the catalog encodes
// domain intent, not learned weights.
type Pattern struct {
	Name         string
	Regex        *regexp.Regexp
	FailureClass contracts.FailureClass
	Confidence   float64
	Description  string
}

// Allow reports whether the pattern marks benign text.
func (p Pattern) Allow() bool { return p.FailureClass == "" }

type patternSpec struct {
	name        string
	expr        string
	class       contracts.FailureClass
	confidence  float64
	description string
}

// builtinSpecs is the full catalog in canonical order. Order matters: the
// matcher resolves confidence ties by taking the first match.
var builtinSpecs = []patternSpec{
	// Fabricated concepts.
	{
		name:        "fake_acronym_definition",
		expr:        `\b([A-Z]{2,})\s+(?:stands for|means)\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,4}\b`,
		class:       contracts.FabricatedConcept,
		confidence:  0.85,
		description: "Detects fake acronym definitions",
	},
	{
		name:        "impossible_chemical_formula",
		expr:        `\b[A-Z][a-z]?[0-9]*(?:[A-Z][a-z]?[0-9]*){2,}(?:-[A-Z][a-z]?[0-9]*)+\b`,
		class:       contracts.FabricatedConcept,
		confidence:  0.75,
		description: "Detects unlikely chemical formulas",
	},
	{
		name:        "nonsense_technical_term",
		expr:        `\b(?:quantum|neural|crypto|cyber|nano|meta)[-]?(?:synergy|paradigm|convergence|nexus)\b`,
		class:       contracts.FabricatedConcept,
		confidence:  0.80,
		description: "Detects buzzword combinations",
	},
	{
		name:        "fake_law_theorem",
		expr:        `\b(?:Law|Theorem|Principle|Effect)\s+of\s+[A-Z][a-z]+(?:'s)?\s+(?:Conservation|Paradox|Constant)\b`,
		class:       contracts.FabricatedConcept,
		confidence:  0.70,
		description: "Detects fabricated scientific laws",
	},

	// Missing grounding.
	{
		name:        "vague_research_claim",
		expr:        `\b(?:studies show|research suggests|experts say|scientists believe)\b`,
		class:       contracts.MissingGrounding,
		confidence:  0.90,
		description: "Detects vague unattributed claims",
	},
	{
		name:        "weasel_words",
		expr:        `\b(?:many believe|some say|it is thought|commonly accepted|widely known)\b`,
		class:       contracts.MissingGrounding,
		confidence:  0.85,
		description: "Detects weasel words",
	},
	{
		// RE2 has no lookahead to exclude cited statistics; the citation
		// allow-patterns run first and cover that case.
		name:        "percentage_without_source",
		expr:        `\b[0-9]+(?:\.[0-9]+)?%\s+of\s+(?:people|users|customers|respondents)\b`,
		class:       contracts.MissingGrounding,
		confidence:  0.80,
		description: "Detects statistics without citation",
	},

	// Prompt injection.
	{
		name:        "ignore_instructions",
		expr:        `\b(?:ignore|disregard|forget)\s+(?:previous|prior|above|all|everything)\s+(?:instructions|commands|rules|prompts|directions)\b`,
		class:       contracts.PromptInjection,
		confidence:  0.95,
		description: "Detects instruction override attempts",
	},
	{
		name:        "forget_everything",
		expr:        `\b(?:forget|erase|clear)\s+(?:everything|all)\s+(?:above|before|previous)`,
		class:       contracts.PromptInjection,
		confidence:  0.95,
		description: "Detects memory reset attempts",
	},
	{
		name:        "admin_override",
		expr:        `\b(?:ADMIN|ROOT|SUPERUSER|SYSTEM)\s+(?:OVERRIDE|MODE|ACCESS|RESET)\b`,
		class:       contracts.PromptInjection,
		confidence:  0.95,
		description: "Detects admin privilege escalation",
	},
	{
		name:        "system_reset",
		expr:        `\[\[\s*(?:SYSTEM|ADMIN)\s+(?:RESET|OVERRIDE|BYPASS)\s*\]\]`,
		class:       contracts.PromptInjection,
		confidence:  0.95,
		description: "Detects system reset commands",
	},
	{
		name:        "system_prompt_extraction",
		expr:        `\b(?:show|tell|reveal|print|display|give)(?:\s+me)?\s+(?:your|the)?\s*(?:system\s+)?(?:prompt|instructions|rules)\b`,
		class:       contracts.PromptInjection,
		confidence:  0.90,
		description: "Detects system prompt extraction",
	},
	{
		name:        "secret_extraction",
		expr:        `\b(?:show|tell|reveal|display)(?:.{0,20})?(?:secret|password|key|token|credential)s?\b`,
		class:       contracts.PromptInjection,
		confidence:  0.92,
		description: "Detects secret extraction attempts",
	},
	{
		name:        "database_access",
		expr:        `\b(?:show|list|display|access)(?:.{0,20})?(?:database|users|passwords|tables)\b`,
		class:       contracts.PromptInjection,
		confidence:  0.90,
		description: "Detects database access attempts",
	},
	{
		name:        "role_manipulation",
		expr:        `\b(?:you are now|act as|pretend to be|simulate|roleplay as)\s+(?:a\s+)?(?:different|new|another|hacker|unethical)(?:\s+\w+){0,3}\b`,
		class:       contracts.PromptInjection,
		confidence:  0.85,
		description: "Detects role manipulation",
	},
	{
		name:        "security_expert_bypass",
		expr:        `\b(?:pretend|act as|you are)(?:.{0,30})?(?:security expert|hacker|pentester)(?:.{0,30})?(?:teach|show|help).{0,20}(?:bypass|hack|break)`,
		class:       contracts.PromptInjection,
		confidence:  0.88,
		description: "Detects social engineering via security expertise",
	},
	{
		name:        "delimiter_injection",
		expr:        "(?:</?system>|</?user>|</?assistant>|```\\s*system|###\\s*system)",
		class:       contracts.PromptInjection,
		confidence:  0.85,
		description: "Detects delimiter injection",
	},
	{
		name:        "jailbreak_attempt",
		expr:        `\b(?:DAN|developer\s+mode|sudo\s+mode|god\s+mode|admin\s+mode|training\s+mode)\b`,
		class:       contracts.PromptInjection,
		confidence:  0.95,
		description: "Detects jailbreak keywords",
	},
	{
		name:        "ethics_bypass",
		expr:        `\b(?:ignore|bypass|without)\s+(?:safety|ethical|ethics|moral)\s+(?:guidelines|restrictions|constraints|rules)\b`,
		class:       contracts.PromptInjection,
		confidence:  0.90,
		description: "Detects ethics bypass attempts",
	},
	{
		name:        "hypothetical_evasion",
		expr:        `\b(?:hypothetically|in\s+(?:an\s+)?alternate\s+universe|imagine|let's\s+play\s+a\s+game)(?:.{0,100})?\b(?:no\s+(?:restrictions|rules)|rules\s+don't\s+apply)\b`,
		class:       contracts.PromptInjection,
		confidence:  0.80,
		description: "Detects hypothetical evasion",
	},
	{
		name:        "sql_injection_basic",
		expr:        `\b(?:SELECT|INSERT|UPDATE|DELETE|DROP)\s+(?:\*|\w+)\s+FROM\s+\w+`,
		class:       contracts.PromptInjection,
		confidence:  0.95,
		description: "Detects basic SQL injection",
	},
	{
		name:        "sql_injection_comment",
		expr:        `(?:--|#|/\*)(?:.{0,50})?(?:SELECT|DROP|UPDATE|DELETE)`,
		class:       contracts.PromptInjection,
		confidence:  0.90,
		description: "Detects SQL comment injection",
	},
	{
		name:        "sql_injection_where",
		expr:        `\bWHERE\s+(?:\w+)\s*=\s*['"].{0,50}(?:--|'|")`,
		class:       contracts.PromptInjection,
		confidence:  0.92,
		description: "Detects SQL WHERE clause injection",
	},
	{
		name:        "xss_script_tag",
		expr:        `<script[^>]{0,100}?>|</script>`,
		class:       contracts.PromptInjection,
		confidence:  0.95,
		description: "Detects script tag injection",
	},
	{
		name:        "xss_javascript_protocol",
		expr:        `javascript:\s*(?:alert|eval|document|window)\s*\(`,
		class:       contracts.PromptInjection,
		confidence:  0.95,
		description: "Detects javascript: protocol injection",
	},
	{
		name:        "xss_event_handler",
		expr:        `\bon(?:error|load|click|mouseover|submit)\s*=\s*['"]?`,
		class:       contracts.PromptInjection,
		confidence:  0.92,
		description: "Detects event handler injection",
	},
	{
		name:        "path_traversal_dots",
		expr:        `(?:\.\./|\.\.\\){2,}`,
		class:       contracts.PromptInjection,
		confidence:  0.95,
		description: "Detects path traversal with dots",
	},
	{
		name:        "path_traversal_sensitive",
		expr:        `/etc/(?:passwd|shadow)|C:\\Windows\\System32|/var/log`,
		class:       contracts.PromptInjection,
		confidence:  0.98,
		description: "Detects sensitive file access",
	},
	{
		name:        "command_injection_pipe",
		expr:        `[|&;]\s*(?:cat|ls|rm|wget|curl|bash|sh|cmd|powershell)\b`,
		class:       contracts.PromptInjection,
		confidence:  0.92,
		description: "Detects command injection via pipes",
	},
	{
		name:        "command_injection_backtick",
		expr:        "`[^`]{1,50}`|\\$\\([^)]{1,50}\\)",
		class:       contracts.PromptInjection,
		confidence:  0.88,
		description: "Detects command substitution",
	},

	// Bias and toxicity.
	{
		name:        "stereotyping",
		expr:        `\b(?:all|every|most)\s+(?:women|men|blacks|whites|asians|muslims|christians|jews)\s+(?:are|do|have|like)\b`,
		class:       contracts.Bias,
		confidence:  0.90,
		description: "Detects stereotyping language",
	},
	{
		name:        "slurs",
		expr:        `\b(?:retard|fag|nigger|chink|kike|spic)(?:s|ed)?\b`,
		class:       contracts.Toxicity,
		confidence:  0.99,
		description: "Detects hate speech",
	},

	// Strong citations (allow these).
	{
		name:        "academic_citation",
		expr:        `\([A-Z][a-z]+(?:\s+et al\.)?[,\s]+[12][0-9]{3}\)`,
		confidence:  0.95,
		description: "Academic citation (allow)",
	},
	{
		name:        "url_reference",
		expr:        `https?://[^\s]+`,
		confidence:  0.90,
		description: "URL reference (allow)",
	},
	{
		name:        "according_to_source",
		expr:        `\baccording to\s+(?:the\s+)?[A-Z][a-z]+`,
		confidence:  0.85,
		description: "Attributed statement (allow)",
	},
}

// LibraryStats summarizes the compiled catalog.
type LibraryStats struct {
	Total   int                            `json:"total_patterns"`
	Strong  int                            `json:"strong_patterns"`
	Weak    int                            `json:"weak_patterns"`
	Allow   int                            `json:"allow_patterns"`
	Failure int                            `json:"failure_patterns"`
	ByClass map[contracts.FailureClass]int `json:"patterns_by_class"`
}

// Library is the compiled, immutable pattern catalog. Construct once at
// process start and share freely; it is safe for concurrent use.
type Library struct {
	all     []Pattern
	allow   []Pattern
	failure []Pattern
	strong  []Pattern
	byClass map[contracts.FailureClass][]Pattern
}

// NewLibrary compiles the builtin catalog. A pattern that fails to compile
// is dropped and logged; startup never aborts over a bad pattern.
func NewLibrary(logger *zap.Logger) *Library {
	if logger == nil {
		logger = zap.NewNop()
	}
	lib := &Library{
		byClass: make(map[contracts.FailureClass][]Pattern),
	}
	for _, spec := range builtinSpecs {
		re, err := regexp.Compile("(?i)" + spec.expr)
		if err != nil {
			logger.Warn("pattern failed to compile, dropping",
				zap.String("pattern", spec.name),
				zap.Error(err))
			continue
		}
		p := Pattern{
			Name:         spec.name,
			Regex:        re,
			FailureClass: spec.class,
			Confidence:   spec.confidence,
			Description:  spec.description,
		}
		lib.all = append(lib.all, p)
		if p.Allow() {
			lib.allow = append(lib.allow, p)
		} else {
			lib.failure = append(lib.failure, p)
			lib.byClass[p.FailureClass] = append(lib.byClass[p.FailureClass], p)
		}
		if p.Confidence >= StrongConfidence {
			lib.strong = append(lib.strong, p)
		}
	}
	logger.Info("pattern library compiled",
		zap.Int("total", len(lib.all)),
		zap.Int("allow", len(lib.allow)),
		zap.Int("failure", len(lib.failure)))
	return lib
}

// All returns every compiled pattern in canonical order.
func (l *Library) All() []Pattern { return l.all }

// AllowPatterns returns the allow-patterns in canonical order.
func (l *Library) AllowPatterns() []Pattern { return l.allow }

// FailurePatterns returns the failure patterns in canonical order.
func (l *Library) FailurePatterns() []Pattern { return l.failure }

// Strong returns patterns with confidence >= StrongConfidence.
func (l *Library) Strong() []Pattern { return l.strong }

// ByClass returns the failure patterns for one class.
func (l *Library) ByClass(fc contracts.FailureClass) []Pattern {
	return l.byClass[fc]
}

// Stats summarizes the catalog composition.
func (l *Library) Stats() LibraryStats {
	stats := LibraryStats{
		Total:   len(l.all),
		Allow:   len(l.allow),
		Failure: len(l.failure),
		Strong:  len(l.strong),
		Weak:    len(l.all) - len(l.strong),
		ByClass: make(map[contracts.FailureClass]int, len(l.byClass)),
	}
	for fc, ps := range l.byClass {
		stats.ByClass[fc] = len(ps)
	}
	return stats
}
