package patterns

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"warden/internal/contracts"
)

// Input sanitation bounds. Lengths are character counts, so multibyte
// scripts get the same budget as ASCII.
const (
	// MaxTextLength is the absolute input cap; anything longer is treated
	// as a denial-of-service probe.
	MaxTextLength = 10000

	// RegexSafeLength is the prefix the matcher evaluates patterns on.
	RegexSafeLength = 500

	longInputThreshold  = 5000
	uniqueSampleLength  = 1000
	minUniqueRunes      = 10
	minAnalyzableLength = 3
)

// Matcher is the Tier-1 detector. It is stateless and safe for concurrent
// use; all state lives in the immutable Library.
type Matcher struct {
	lib    *Library
	logger *zap.Logger
}

// NewMatcher wraps a compiled library. A nil logger is replaced with a nop.
func NewMatcher(lib *Library, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{lib: lib, logger: logger}
}

// Sanitize runs the input validation that precedes any pattern work. It
// returns the text to analyze plus a non-nil signal when validation alone
// decides the request (empty input, oversized input, degenerate repetition).
func (m *Matcher) Sanitize(text string) (string, *contracts.Signal) {
	if strings.TrimSpace(text) == "" {
		return "", &contracts.Signal{
			Confidence:  0.5,
			Method:      contracts.MethodSkipped,
			ShouldAllow: contracts.Bool(true),
			Explanation: "Empty input - allowing",
		}
	}

	charCount := utf8.RuneCountInString(text)

	if charCount > MaxTextLength {
		return truncate(text, MaxTextLength), &contracts.Signal{
			FailureClass: contracts.PromptInjection,
			Confidence:   0.85,
			Method:       contracts.MethodDoSProtection,
			ShouldAllow:  contracts.Bool(false),
			Explanation:  fmt.Sprintf("Input too long (%d chars) - potential DoS attack", charCount),
		}
	}

	if charCount > longInputThreshold {
		if uniqueRunes(text, uniqueSampleLength) < minUniqueRunes {
			return truncate(text, RegexSafeLength), &contracts.Signal{
				FailureClass: contracts.PromptInjection,
				Confidence:   0.80,
				Method:       contracts.MethodPatternAnalysis,
				ShouldAllow:  contracts.Bool(false),
				Explanation:  "Suspicious repeating pattern in long input",
			}
		}
	}

	return text, nil
}

// Detect evaluates the catalog against text and returns a Tier-1 signal.
// Allow-patterns are scanned first and short-circuit; otherwise the
// highest-confidence failure match wins, ties going to the first pattern in
// canonical order. With no match the result is the gray-zone signal that
// sends the request to semantic analysis. Detect never fails.
func (m *Matcher) Detect(text string) contracts.Signal {
	if utf8.RuneCountInString(strings.TrimSpace(text)) < minAnalyzableLength {
		return contracts.Signal{
			Confidence:  0.5,
			Method:      contracts.MethodRegexSkipped,
			ShouldAllow: contracts.Bool(true),
			Explanation: "Text too short for analysis",
		}
	}

	regexText := truncate(text, RegexSafeLength)

	for _, p := range m.lib.AllowPatterns() {
		if p.Regex.MatchString(regexText) {
			return contracts.Signal{
				Confidence:  p.Confidence,
				Method:      contracts.MethodRegexAnti,
				ShouldAllow: contracts.Bool(true),
				Explanation: "Strong indicator: " + p.Description,
			}
		}
	}

	failures := m.lib.FailurePatterns()
	var best *Pattern
	for i := range failures {
		p := &failures[i]
		if !p.Regex.MatchString(regexText) {
			continue
		}
		if best == nil || p.Confidence > best.Confidence {
			best = p
		}
	}
	if best != nil {
		return contracts.Signal{
			FailureClass: best.FailureClass,
			Confidence:   best.Confidence,
			Method:       contracts.MethodRegexStrong,
			ShouldAllow:  contracts.Bool(false),
			Explanation:  fmt.Sprintf("%s: %s", best.FailureClass, best.Description),
		}
	}

	return contracts.Signal{
		Confidence:  0.5,
		Method:      contracts.MethodRegexUncertain,
		Explanation: "No strong patterns detected - routing to semantic analysis",
	}
}

// truncate cuts s to at most max characters, always on a rune boundary
// so the result stays valid UTF-8.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}

// uniqueRunes counts distinct characters in the first n characters of s.
func uniqueRunes(s string, n int) int {
	seen := make(map[rune]struct{}, n)
	count := 0
	for _, r := range s {
		if count == n {
			break
		}
		count++
		seen[r] = struct{}{}
	}
	return len(seen)
}
