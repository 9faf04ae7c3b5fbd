package main

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"warden/internal/agent"
	"warden/internal/cache"
	"warden/internal/config"
	"warden/internal/embedding"
	"warden/internal/llm"
	"warden/internal/logging"
	"warden/internal/metrics"
	"warden/internal/patterns"
	"warden/internal/policy"
	"warden/internal/semantic"
	"warden/internal/tower"
)

// pipeline is the assembled detection core shared by serve and check.
type pipeline struct {
	tower   *tower.Tower
	agent   *agent.Agent
	closers []io.Closer
}

func (p *pipeline) close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		_ = p.closers[i].Close()
	}
}

// buildPipeline constructs the detection core from config. Degradation
// is deliberate: a missing embedding backend disables Tier 2, missing
// provider keys disable Tier 3, and the gateway still runs on Tier 1.
func buildPipeline(ctx context.Context, cfg *config.Config, collectors *metrics.Collectors, sink tower.Sink, logger *zap.Logger) (*pipeline, error) {
	p := &pipeline{}

	lib := patterns.NewLibrary(logging.Component(logger, "patterns"))
	matcher := patterns.NewMatcher(lib, logging.Component(logger, "matcher"))

	doc, err := loadPolicy(cfg.Policy.Path, logger)
	if err != nil {
		return nil, err
	}
	engine := policy.NewEngine(doc, logging.Component(logger, "policy"))

	if cfg.Policy.WatchForChanges {
		watcher, werr := policy.Watch(cfg.Policy.Path, logging.Component(logger, "policy"))
		if werr != nil {
			logger.Warn("policy watcher unavailable", zap.Error(werr))
		} else {
			p.closers = append(p.closers, watcher)
		}
	}

	var tier2 tower.Tier2
	if detector := buildTier2(ctx, cfg, logger); detector != nil {
		tier2 = detector
	}

	var tier3 tower.Tier3
	if ag := buildTier3(cfg, logger); ag != nil {
		tier3 = ag
		p.agent = ag
	}

	p.tower = tower.New(matcher, engine, tower.Options{
		Tier2:      tier2,
		Tier3:      tier3,
		Collectors: collectors,
		Sink:       sink,
		Logger:     logging.Component(logger, "tower"),
	})
	return p, nil
}

// loadPolicy reads the configured document, falling back to the default
// policy when the file does not exist.
func loadPolicy(path string, logger *zap.Logger) (*policy.Document, error) {
	doc, err := policy.LoadDocument(path)
	if err == nil {
		return doc, nil
	}
	logger.Info("no policy document loaded, using defaults",
		zap.String("path", path), zap.Error(err))
	return policy.DefaultDocument(), nil
}

// buildTier2 constructs the semantic detector, or nil when the
// embedding backend is unavailable.
func buildTier2(ctx context.Context, cfg *config.Config, logger *zap.Logger) *semantic.Detector {
	ec := cfg.Detection.Embedding
	engine, err := embedding.NewEngine(embedding.Config{
		Provider:       ec.Provider,
		OllamaEndpoint: ec.OllamaEndpoint,
		OllamaModel:    ec.OllamaModel,
		GenAIAPIKey:    ec.GenAIAPIKey,
		GenAIModel:     ec.GenAIModel,
	}, logging.Component(logger, "embedding"))
	if err != nil {
		logger.Warn("embedding engine unavailable, tier 2 disabled", zap.Error(err))
		return nil
	}

	detector, err := semantic.NewDetector(ctx, engine,
		cfg.Detection.EmbedTimeout,
		cfg.Detection.MemoCapacity,
		logging.Component(logger, "semantic"))
	if err != nil {
		logger.Warn("prototype embedding failed, tier 2 disabled", zap.Error(err))
		return nil
	}
	return detector
}

// buildTier3 constructs the LLM agent over whatever providers have
// credentials, or nil when Tier 3 is disabled or no provider is usable.
func buildTier3(cfg *config.Config, logger *zap.Logger) *agent.Agent {
	if !cfg.Detection.EnableTier3 {
		return nil
	}

	var providers []llm.Provider
	if cfg.Providers.GroqAPIKey != "" {
		gc := llm.DefaultGroqConfig(cfg.Providers.GroqAPIKey)
		gc.Model = cfg.Providers.GroqModel
		providers = append(providers, llm.NewGroqClientWithConfig(gc))
	}
	if cfg.Providers.GeminiAPIKey != "" {
		gemini, err := llm.NewGeminiClient(cfg.Providers.GeminiAPIKey, cfg.Providers.GeminiModel)
		if err != nil {
			logger.Warn("gemini provider unavailable", zap.Error(err))
		} else {
			providers = append(providers, gemini)
		}
	}
	if cfg.Providers.OllamaURL != "" {
		providers = append(providers, llm.NewOllamaClient(cfg.Providers.OllamaURL, cfg.Providers.OllamaModel))
	}
	if len(providers) == 0 {
		logger.Warn("tier 3 enabled but no providers configured")
		return nil
	}

	manager := llm.NewManager(logging.Component(logger, "llm"), providers...)
	decisions := cache.New(cfg.Cache.Dir, cfg.Cache.TTL, logging.Component(logger, "cache"))
	return agent.New(manager, decisions, logging.Component(logger, "agent"))
}

// newCollectors registers the gateway metrics once per process.
func newCollectors() *metrics.Collectors {
	return metrics.New(prometheus.DefaultRegisterer)
}
