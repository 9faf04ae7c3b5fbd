// Package llm provides the Tier-3 completion providers and the ordered
// fallback manager the agent calls through. Providers share a single
// Generate operation; the manager tries each configured provider in order
// and the first success wins, with no per-provider retries.
package llm

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

// Provider is a single LLM backend.
type Provider interface {
	// Generate sends a system prompt plus user prompt and returns the raw
	// completion text.
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// Name identifies the provider in logs and metrics.
	Name() string
}

// ErrNoProviders is returned when the manager has an empty provider list.
var ErrNoProviders = errors.New("no llm providers configured")

// ManagerStats counts provider outcomes since process start.
type ManagerStats struct {
	Requests  uint64 `json:"requests"`
	Successes uint64 `json:"successes"`
	Failures  uint64 `json:"failures"`
}

// Manager holds the ordered provider chain. Order is primary-first: the
// construction site decides precedence (typically remote, then local).
type Manager struct {
	providers []Provider
	logger    *zap.Logger

	requests  atomic.Uint64
	successes atomic.Uint64
	failures  atomic.Uint64
}

// NewManager builds a manager over providers in the given order.
func NewManager(logger *zap.Logger, providers ...Provider) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{providers: providers, logger: logger}
}

// Available reports whether at least one provider is configured.
func (m *Manager) Available() bool { return len(m.providers) > 0 }

// ProviderNames lists the chain in fallback order.
func (m *Manager) ProviderNames() []string {
	names := make([]string, len(m.providers))
	for i, p := range m.providers {
		names[i] = p.Name()
	}
	return names
}

// Generate walks the chain and returns the first successful completion.
// Every provider failing (or none configured) returns an error wrapping
// the last failure.
func (m *Manager) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.requests.Add(1)
	if len(m.providers) == 0 {
		m.failures.Add(1)
		return "", ErrNoProviders
	}

	var lastErr error
	for _, p := range m.providers {
		if ctx.Err() != nil {
			m.failures.Add(1)
			return "", ctx.Err()
		}
		content, err := p.Generate(ctx, systemPrompt, userPrompt)
		if err == nil {
			m.successes.Add(1)
			return content, nil
		}
		lastErr = err
		m.logger.Warn("provider failed, trying next",
			zap.String("provider", p.Name()),
			zap.Error(err))
	}

	m.failures.Add(1)
	return "", fmt.Errorf("all llm providers failed: %w", lastErr)
}

// Stats returns a snapshot of the outcome counters.
func (m *Manager) Stats() ManagerStats {
	return ManagerStats{
		Requests:  m.requests.Load(),
		Successes: m.successes.Load(),
		Failures:  m.failures.Load(),
	}
}
