// Package semantic implements Tier-2 detection: sentence-embedding
// similarity between the input text and per-class prototype embeddings.
// The prototype set is built once at startup and never mutated; the only
// runtime state is a bounded LRU memo of past results.
//
// Tier 2 fails open. It is reached only on the Tier-1 gray-zone path, after
// the DoS checks have already passed, so an embedding timeout or backend
// error yields an allow signal rather than a block.
package semantic

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"warden/internal/contracts"
	"warden/internal/embedding"
)

// SemanticSafeLength is the maximum text length passed to the embedding
// engine, cut at a word boundary.
const SemanticSafeLength = 1000

const minSemanticLength = 10

// Detector scores text against the prototype embedding set. Safe for
// concurrent use; the prototype map is immutable after construction.
type Detector struct {
	engine   embedding.Engine
	protos   map[contracts.FailureClass][][]float32
	memo     *memo
	timeout  time.Duration
	logger   *zap.Logger
	classSig string
}

// NewDetector embeds the exemplar corpus with engine and returns a ready
// detector. Classes are embedded in parallel; any failure aborts
// construction so the router can degrade Tier-2 traffic to Tier 3.
func NewDetector(ctx context.Context, engine embedding.Engine, timeout time.Duration, memoCapacity int, logger *zap.Logger) (*Detector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		return nil, fmt.Errorf("semantic detector requires an embedding engine")
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	protos := make(map[contracts.FailureClass][][]float32, len(prototypeExemplars))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for fc, exemplars := range prototypeExemplars {
		fc, exemplars := fc, exemplars
		g.Go(func() error {
			vecs, err := engine.EmbedBatch(gctx, exemplars)
			if err != nil {
				return fmt.Errorf("failed to embed %s prototypes: %w", fc, err)
			}
			for i, v := range vecs {
				vecs[i] = embedding.Normalize(v)
			}
			mu.Lock()
			protos[fc] = vecs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	classes := make([]string, 0, len(protos))
	for fc := range protos {
		classes = append(classes, string(fc))
	}
	sort.Strings(classes)

	logger.Info("semantic detector ready",
		zap.String("engine", engine.Name()),
		zap.Int("classes", len(protos)))

	return &Detector{
		engine:   engine,
		protos:   protos,
		memo:     newMemo(memoCapacity),
		timeout:  timeout,
		logger:   logger,
		classSig: strings.Join(classes, ","),
	}, nil
}

// MemoLen reports the current memo occupancy.
func (d *Detector) MemoLen() int { return d.memo.len() }

// Detect scores text against the prototype set and returns a Tier-2
// signal. Security classes are checked first with their lower thresholds
// and short-circuit; otherwise the best above-threshold quality class wins.
// Detect never returns an error: encode failures produce the fail-open
// timeout signal.
func (d *Detector) Detect(ctx context.Context, text string) contracts.Signal {
	if len(strings.TrimSpace(text)) < minSemanticLength {
		return contracts.Signal{
			Confidence:  0.5,
			Method:      contracts.MethodTooShort,
			ShouldAllow: contracts.Bool(true),
			Explanation: "Text too short for semantic analysis",
		}
	}

	if reason, ok := pathological(text); ok {
		return contracts.Signal{
			Confidence:  0,
			Method:      contracts.MethodPathologicalSkipped,
			ShouldAllow: contracts.Bool(true),
			Explanation: "Pathological input skipped: " + reason,
		}
	}

	text = truncateAtWord(text, SemanticSafeLength)

	memoKey := text + "\x1f" + d.classSig
	if sig, ok := d.memo.get(memoKey); ok {
		return sig
	}

	encodeCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	vec, err := d.engine.Embed(encodeCtx, text)
	if err != nil {
		d.logger.Warn("embedding failed, allowing conservatively", zap.Error(err))
		return contracts.Signal{
			Confidence:  0,
			Method:      contracts.MethodTimeout,
			ShouldAllow: contracts.Bool(true),
			Explanation: "Embedding unavailable or timed out - allowing conservatively",
		}
	}
	vec = embedding.Normalize(vec)

	sig := d.score(vec)
	d.memo.put(memoKey, sig)
	return sig
}

func (d *Detector) score(vec []float32) contracts.Signal {
	overallBest := 0.0

	// Stage 1: security classes, first over-threshold hit wins.
	for _, fc := range contracts.SecurityClasses() {
		best, err := embedding.MaxSimilarity(vec, d.protos[fc])
		if err != nil {
			continue
		}
		if best > overallBest {
			overallBest = best
		}
		if best >= Threshold(fc) {
			return contracts.Signal{
				FailureClass: fc,
				Confidence:   best,
				Method:       contracts.MethodSemantic,
				ShouldAllow:  contracts.Bool(false),
				Explanation:  fmt.Sprintf("Security threat detected: %s (similarity: %.2f)", fc, best),
			}
		}
	}

	// Stage 2: quality classes, best above-threshold score wins.
	var bestClass contracts.FailureClass
	bestScore := 0.0
	for _, fc := range contracts.QualityClasses() {
		best, err := embedding.MaxSimilarity(vec, d.protos[fc])
		if err != nil {
			continue
		}
		if best > overallBest {
			overallBest = best
		}
		if best >= Threshold(fc) && best > bestScore {
			bestClass = fc
			bestScore = best
		}
	}
	if bestClass != "" {
		return contracts.Signal{
			FailureClass: bestClass,
			Confidence:   bestScore,
			Method:       contracts.MethodSemantic,
			ShouldAllow:  contracts.Bool(false),
			Explanation:  fmt.Sprintf("Issue detected: %s (similarity: %.2f)", bestClass, bestScore),
		}
	}

	return contracts.Signal{
		Confidence:  1 - overallBest,
		Method:      contracts.MethodSemanticClean,
		ShouldAllow: contracts.Bool(true),
		Explanation: fmt.Sprintf("No issues detected (max similarity: %.2f)", overallBest),
	}
}

// pathological reports whether text is degenerate input that would waste
// an encode: one character dominating the body, too few distinct
// characters, or a long identical run. Tier-1 applies similar checks at
// the gateway edge; this second layer covers the gray-zone path.
func pathological(text string) (string, bool) {
	counts := make(map[rune]int)
	total := 0
	maxRun := 0
	run := 0
	var prev rune = -1
	for _, r := range text {
		counts[r]++
		total++
		if r == prev {
			run++
		} else {
			run = 1
			prev = r
		}
		if run > maxRun {
			maxRun = run
		}
	}
	if maxRun >= 20 {
		return "repeated character run", true
	}
	if total >= 100 && len(counts) < 5 {
		return "too few distinct characters", true
	}
	for _, c := range counts {
		if total > 0 && float64(c) > 0.8*float64(total) {
			return "single character dominates", true
		}
	}
	return "", false
}

// truncateAtWord cuts s to at most max bytes, backing up to the last space
// so words stay whole. With no space in range, a hard cut is used.
func truncateAtWord(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := strings.LastIndex(s[:max], " ")
	if cut <= 0 {
		return s[:max]
	}
	return s[:cut]
}
