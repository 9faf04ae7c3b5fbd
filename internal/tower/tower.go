// Package tower orchestrates the per-request detection pipeline: Tier-1
// sanitation and pattern matching, tier routing, the optional semantic
// and LLM tiers, policy enforcement, and verdict assembly. Evaluate
// never returns a Go error; every failure mode collapses into a verdict.
package tower

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"warden/internal/contracts"
	"warden/internal/metrics"
	"warden/internal/patterns"
	"warden/internal/policy"
	"warden/internal/router"
)

// Tier2 is the semantic detection capability. Nil when no embedding
// engine is configured, in which case gray-zone traffic escalates
// straight to Tier 3.
type Tier2 interface {
	Detect(ctx context.Context, text string) contracts.Signal
}

// Tier3 is the LLM judgment capability.
type Tier3 interface {
	Detect(ctx context.Context, text string, contextMap map[string]any) contracts.Signal
	Available() bool
}

// Sink receives finished verdicts for persistence. Append errors are
// logged by the tower and never fail the request.
type Sink interface {
	Append(ctx context.Context, v *contracts.Verdict, textHash string) error
}

// Tower drives the pipeline. All fields are set at construction and
// never mutated; safe for concurrent use.
type Tower struct {
	matcher    *patterns.Matcher
	router     *router.Router
	tier2      Tier2
	tier3      Tier3
	policy     *policy.Engine
	monitor    *router.Monitor
	tierStats  *metrics.TierMetrics
	collectors *metrics.Collectors
	sink       Sink
	logger     *zap.Logger
}

// Options carries the optional pipeline stages. Any field may be nil.
type Options struct {
	Tier2      Tier2
	Tier3      Tier3
	Collectors *metrics.Collectors
	Sink       Sink
	Logger     *zap.Logger
}

// New assembles a tower over the mandatory Tier-1 stages and policy
// engine plus whatever optional stages are configured.
func New(matcher *patterns.Matcher, engine *policy.Engine, opts Options) *Tower {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tower{
		matcher:    matcher,
		router:     router.New(),
		tier2:      opts.Tier2,
		tier3:      opts.Tier3,
		policy:     engine,
		monitor:    router.NewMonitor(),
		tierStats:  metrics.NewTierMetrics(),
		collectors: opts.Collectors,
		sink:       opts.Sink,
		logger:     logger,
	}
	logger.Info("control tower ready",
		zap.Bool("tier2", t.tier2 != nil),
		zap.Bool("tier3", t.tier3 != nil && t.tier3.Available()),
		zap.String("policy_version", engine.Version()))
	return t
}

// Evaluate runs the full pipeline for one response text and returns its
// verdict. It never returns an error and never panics: an internal panic
// is recovered into a fail-closed BLOCK verdict, while external
// dependency failures surface as the fail-open signals of their tiers.
func (t *Tower) Evaluate(ctx context.Context, text string, contextMap map[string]any) (v *contracts.Verdict) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("pipeline panic, failing closed", zap.Any("panic", r))
			v = t.finalize(ctx, contracts.Signal{
				FailureClass: contracts.PromptInjection,
				Confidence:   1.0,
				Method:       "internal_error",
				ShouldAllow:  contracts.Bool(false),
				Explanation:  "system error - blocking for safety",
			}, policy.Decision{
				Severity: contracts.SeverityHigh,
				Action:   contracts.ActionBlock,
				Reason:   "system error - blocking for safety",
			}, 1, text, start)
		}
	}()

	sanitized, sanSig := t.matcher.Sanitize(text)
	if sanSig != nil {
		return t.finalize(ctx, *sanSig, t.policy.Decide(*sanSig), 1, text, start)
	}

	tier1 := t.matcher.Detect(sanitized)
	route := t.router.Route(tier1)

	sig, tierUsed := t.dispatch(ctx, route, tier1, sanitized, contextMap)
	return t.finalize(ctx, sig, t.policy.Decide(sig), tierUsed, text, start)
}

// dispatch resolves the routed tier to a concrete signal, degrading
// through the tiers when a stage is not configured: a missing Tier 2
// escalates to Tier 3, and a missing Tier 3 falls back to the Tier-1
// signal.
func (t *Tower) dispatch(ctx context.Context, route router.Decision, tier1 contracts.Signal, text string, contextMap map[string]any) (contracts.Signal, int) {
	tier := route.Tier

	if tier == 2 {
		if t.tier2 != nil {
			return t.tier2.Detect(ctx, text), 2
		}
		t.logger.Debug("tier 2 unavailable, escalating", zap.String("method", tier1.Method))
		tier = 3
	}

	if tier == 3 {
		if t.tier3 != nil && t.tier3.Available() {
			return t.tier3.Detect(ctx, text, contextMap), 3
		}
		t.logger.Debug("tier 3 unavailable, using tier-1 signal", zap.String("method", tier1.Method))
	}

	return tier1, 1
}

func (t *Tower) finalize(ctx context.Context, sig contracts.Signal, d policy.Decision, tierUsed int, text string, start time.Time) *contracts.Verdict {
	elapsed := time.Since(start)

	fired := []contracts.FiredSignal{}
	if sig.FailureClass != "" || sig.Denies() {
		fired = append(fired, contracts.NewFiredSignal(sig.Method, sig.Confidence, sig.Explanation))
	}

	reason := d.Reason
	if sig.Explanation != "" && sig.FailureClass != "" {
		reason = fmt.Sprintf("%s: %s", d.Reason, sig.Explanation)
	}

	v := &contracts.Verdict{
		VerdictID:        uuid.NewString(),
		Severity:         d.Severity,
		Action:           d.Action,
		FailureClass:     sig.FailureClass,
		FiredSignals:     fired,
		Reason:           reason,
		Confidence:       sig.Confidence,
		PolicyVersion:    t.policy.Version(),
		Timestamp:        time.Now().UTC(),
		TierUsed:         tierUsed,
		Method:           sig.Method,
		ProcessingTimeMS: float64(elapsed.Microseconds()) / 1000.0,
	}

	t.monitor.Record(tierUsed)
	t.tierStats.Observe(tierUsed, elapsed, v.ShouldBlock())
	if t.collectors != nil {
		tierLabel := strconv.Itoa(tierUsed)
		t.collectors.RequestsTotal.WithLabelValues(tierLabel, string(v.Action)).Inc()
		t.collectors.RequestDuration.WithLabelValues(tierLabel).Observe(elapsed.Seconds())
	}

	if t.sink != nil {
		hash := sha256.Sum256([]byte(text))
		if err := t.sink.Append(ctx, v, hex.EncodeToString(hash[:])); err != nil {
			t.logger.Warn("audit append failed", zap.Error(err))
		}
	}

	return v
}

// TierStats is the monitoring aggregate behind the stats routes.
type TierStats struct {
	Distribution router.Distribution          `json:"distribution"`
	Healthy      bool                         `json:"healthy"`
	Message      string                       `json:"message"`
	Tiers        map[int]metrics.TierSnapshot `json:"tiers"`
}

// Stats returns the current tier distribution, health, and latency
// aggregates.
func (t *Tower) Stats() TierStats {
	healthy, msg := t.monitor.Health()
	return TierStats{
		Distribution: t.monitor.Distribution(),
		Healthy:      healthy,
		Message:      msg,
		Tiers:        t.tierStats.Snapshot(),
	}
}

// ResetStats zeroes the distribution counters and latency aggregates.
func (t *Tower) ResetStats() {
	t.monitor.Reset()
	t.tierStats.Reset()
}

// Healthy reports the distribution health for the liveness route.
func (t *Tower) Healthy() (bool, string) {
	return t.monitor.Health()
}
