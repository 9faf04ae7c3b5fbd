// Package ratelimit enforces per-principal request limits by rate tier.
// The limiter fronts a pluggable store: in-memory token buckets for a
// single instance, Redis fixed windows when gateways share state.
package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"warden/internal/config"
)

// Rate tiers understood by the limiter.
const (
	TierFree       = "free"
	TierPro        = "pro"
	TierEnterprise = "enterprise"
)

// Window is the accounting period for every tier limit.
const Window = time.Hour

// Result is one admission decision.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Store tracks request counts per principal. Implementations must be
// safe for concurrent use.
type Store interface {
	// Allow accounts one request for principal against limit per window.
	Allow(ctx context.Context, principal string, limit int, window time.Duration) (Result, error)
	Close() error
}

// Limiter maps principals to their tier limits and consults the store.
// Store errors fail open: an unreachable Redis must not take the
// gateway down with it.
type Limiter struct {
	store  Store
	limits map[string]int
	logger *zap.Logger
}

// New builds a limiter from the rate-limit config section.
func New(store Store, cfg config.RateLimitConfig, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		store: store,
		limits: map[string]int{
			TierFree:       cfg.FreeLimit,
			TierPro:        cfg.ProLimit,
			TierEnterprise: cfg.EnterpriseLimit,
		},
		logger: logger,
	}
}

// Allow accounts one request for the principal at the given rate tier.
// Unknown tiers get the free limit.
func (l *Limiter) Allow(ctx context.Context, principal, tier string) Result {
	limit, ok := l.limits[tier]
	if !ok {
		limit = l.limits[TierFree]
	}

	res, err := l.store.Allow(ctx, principal, limit, Window)
	if err != nil {
		l.logger.Warn("rate limit store failure, allowing",
			zap.String("principal", principal),
			zap.Error(err))
		return Result{Allowed: true, Limit: limit, Remaining: limit}
	}
	return res
}

// Close releases the underlying store.
func (l *Limiter) Close() error { return l.store.Close() }
