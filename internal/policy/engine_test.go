package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"warden/internal/contracts"
)

func TestDecideKnownClass(t *testing.T) {
	e := NewEngine(nil, nil)

	d := e.Decide(contracts.Signal{
		FailureClass: contracts.PromptInjection,
		Confidence:   0.95,
	})
	assert.Equal(t, contracts.SeverityCritical, d.Severity)
	assert.Equal(t, contracts.ActionBlock, d.Action)
	assert.NotEmpty(t, d.Reason)
	assert.Equal(t, "Response blocked due to critical safety issue.", d.Message)
}

func TestDecideDemotesBelowThreshold(t *testing.T) {
	e := NewEngine(nil, nil)

	// Critical threshold is 0.8; a weaker detection logs but keeps its
	// severity for the audit trail.
	d := e.Decide(contracts.Signal{
		FailureClass: contracts.PromptInjection,
		Confidence:   0.6,
	})
	assert.Equal(t, contracts.SeverityCritical, d.Severity)
	assert.Equal(t, contracts.ActionLog, d.Action)
}

func TestDecideClassThresholdOverride(t *testing.T) {
	doc := DefaultDocument()
	override := 0.95
	cp := doc.FailurePolicies[contracts.Bias]
	cp.ConfidenceThreshold = &override
	doc.FailurePolicies[contracts.Bias] = cp
	e := NewEngine(doc, nil)

	d := e.Decide(contracts.Signal{FailureClass: contracts.Bias, Confidence: 0.9})
	assert.Equal(t, contracts.ActionLog, d.Action, "class override beats severity default")
}

func TestDecideUnknownClassInDocument(t *testing.T) {
	doc := DefaultDocument()
	delete(doc.FailurePolicies, contracts.DomainMismatch)
	e := NewEngine(doc, nil)

	d := e.Decide(contracts.Signal{FailureClass: contracts.DomainMismatch, Confidence: 0.9})
	assert.Equal(t, contracts.SeverityLow, d.Severity)
	assert.Equal(t, contracts.ActionLog, d.Action)
	assert.Equal(t, "default policy", d.Reason)
}

func TestDecideUnclassifiedDeny(t *testing.T) {
	e := NewEngine(nil, nil)

	d := e.Decide(contracts.Signal{Confidence: 0.6, ShouldAllow: contracts.Bool(false)})
	assert.Equal(t, contracts.SeverityMedium, d.Severity)
	assert.Equal(t, contracts.ActionWarn, d.Action)
}

func TestDecideCleanSignal(t *testing.T) {
	e := NewEngine(nil, nil)

	for _, sig := range []contracts.Signal{
		{Confidence: 0.9, ShouldAllow: contracts.Bool(true)},
		{Confidence: 0.5}, // gray zone with no class
	} {
		d := e.Decide(sig)
		assert.Equal(t, contracts.SeverityInfo, d.Severity)
		assert.Equal(t, contracts.ActionAllow, d.Action)
	}
}

// Raising confidence for a fixed class never weakens the action.
func TestDecideMonotonicity(t *testing.T) {
	e := NewEngine(nil, nil)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	classes := contracts.AllFailureClasses()

	properties.Property("action monotone in confidence", prop.ForAll(
		func(classIdx int, c1, c2 float64) bool {
			lo, hi := c1, c2
			if lo > hi {
				lo, hi = hi, lo
			}
			fc := classes[classIdx%len(classes)]
			dLo := e.Decide(contracts.Signal{FailureClass: fc, Confidence: lo})
			dHi := e.Decide(contracts.Signal{FailureClass: fc, Confidence: hi})
			return dHi.Action.Strength() >= dLo.Action.Strength()
		},
		gen.IntRange(0, len(classes)-1),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}

func TestLoadDocumentRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	body := `
version: "2.1.0"
thresholds:
  critical: 0.8
  high: 0.7
  medium: 0.6
  low: 0.5
failure_policies:
  prompt_injection:
    severity: critical
    action: block
    reason: "Injection attempt"
  bias:
    severity: high
    action: warn
    reason: "Biased content"
messages:
  block: "Blocked."
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	doc, err := LoadDocument(path)
	require.NoError(t, err)
	assert.Equal(t, "2.1.0", doc.Version)
	assert.Equal(t, contracts.ActionBlock, doc.FailurePolicies[contracts.PromptInjection].Action)
	assert.Equal(t, 0.8, doc.Threshold(contracts.SeverityCritical))
	assert.Equal(t, "Blocked.", doc.Message(contracts.ActionBlock))
}

func TestLoadDocumentRejectsInvalid(t *testing.T) {
	dir := t.TempDir()

	cases := map[string]string{
		"missing version": `
thresholds: { critical: 0.8 }
`,
		"unknown class": `
version: "1.0.0"
failure_policies:
  made_up_class: { severity: high, action: warn, reason: "x" }
`,
		"unknown action": `
version: "1.0.0"
failure_policies:
  bias: { severity: high, action: obliterate, reason: "x" }
`,
		"threshold out of range": `
version: "1.0.0"
thresholds: { critical: 1.5 }
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, "bad.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := LoadDocument(path)
			assert.Error(t, err)
		})
	}
}

func TestDefaultDocumentValid(t *testing.T) {
	require.NoError(t, DefaultDocument().Validate())
}

func TestWatcherWarnsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"1.0.0\"\n"), 0o644))

	core, logs := observer.New(zap.WarnLevel)
	w, err := Watch(path, zap.New(core))
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("version: \"1.0.1\"\n"), 0o644))

	assert.Eventually(t, func() bool {
		return logs.FilterMessageSnippet("policy document changed").Len() > 0
	}, 2*time.Second, 10*time.Millisecond)
}
