package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"warden/internal/api"
	"warden/internal/audit"
	"warden/internal/auth"
	"warden/internal/config"
	"warden/internal/logging"
	"warden/internal/ratelimit"
	"warden/internal/tower"
)

// serveCmd runs the full gateway
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the governance gateway (HTTP API + detection pipeline)",
	Long: `Starts the gateway: loads config and policy, embeds the prototype
corpus, connects the LLM provider chain, opens the audit store, and
serves the HTTP API until SIGINT/SIGTERM.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collectors := newCollectors()

	var sink tower.Sink
	if cfg.Audit.Enabled {
		store, err := audit.Open(cfg.Audit.DBPath, logging.Component(logger, "audit"))
		if err != nil {
			return fmt.Errorf("failed to open audit store: %w", err)
		}
		defer store.Close()
		sink = store
	}

	p, err := buildPipeline(ctx, cfg, collectors, sink, logger)
	if err != nil {
		return err
	}
	defer p.close()

	authn, err := auth.New(cfg.Auth, logging.Component(logger, "auth"))
	if err != nil {
		return err
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		store, err := buildRateLimitStore(ctx, cfg)
		if err != nil {
			return err
		}
		limiter = ratelimit.New(store, cfg.RateLimit, logging.Component(logger, "ratelimit"))
		defer limiter.Close()
	}

	deps := api.Deps{
		Tower:      p.tower,
		Auth:       authn,
		Limiter:    limiter,
		Collectors: collectors,
		Logger:     logging.Component(logger, "api"),
	}
	if p.agent != nil {
		deps.Cache = p.agent
	}

	srv, err := api.NewServer(*cfg, deps)
	if err != nil {
		return err
	}

	logger.Info("gateway starting",
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)),
		zap.Bool("audit", cfg.Audit.Enabled),
		zap.Bool("rate_limit", cfg.RateLimit.Enabled))

	return srv.Run(ctx, cfg.Server.ShutdownTimeout)
}

func buildRateLimitStore(ctx context.Context, cfg *config.Config) (ratelimit.Store, error) {
	switch cfg.RateLimit.Store {
	case "redis":
		return ratelimit.NewRedisStore(ctx,
			cfg.RateLimit.Redis.Addr,
			cfg.RateLimit.Redis.Password,
			cfg.RateLimit.Redis.DB)
	default:
		return ratelimit.NewMemoryStore(), nil
	}
}
