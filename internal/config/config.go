// Package config loads the gateway configuration from YAML with
// environment overrides for secrets. The loaded Config is immutable after
// startup; components receive the sections they need by value.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full gateway configuration tree.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Detection DetectionConfig `yaml:"detection"`
	Providers ProvidersConfig `yaml:"providers"`
	Cache     CacheConfig     `yaml:"cache"`
	Policy    PolicyConfig    `yaml:"policy"`
	Audit     AuditConfig     `yaml:"audit"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DetectionConfig controls the three-tier pipeline.
type DetectionConfig struct {
	// RequestBudget is the total per-request deadline applied by the
	// control tower when the caller supplies none.
	RequestBudget time.Duration `yaml:"request_budget"`

	// EmbedTimeout bounds a single Tier-2 encode.
	EmbedTimeout time.Duration `yaml:"embed_timeout"`

	// EnableTier3 gates the LLM agent; Tier-3-bound requests fall back to
	// the Tier-1 signal when disabled.
	EnableTier3 bool `yaml:"enable_tier3"`

	// MemoCapacity bounds the Tier-2 result memo.
	MemoCapacity int `yaml:"memo_capacity"`

	Embedding EmbeddingConfig `yaml:"embedding"`
}

// EmbeddingConfig selects the sentence-embedding backend.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"` // "ollama" or "genai"
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`
	GenAIAPIKey    string `yaml:"genai_api_key"`
	GenAIModel     string `yaml:"genai_model"`
}

// ProvidersConfig configures the Tier-3 provider fallback chain in order.
type ProvidersConfig struct {
	GroqAPIKey   string `yaml:"groq_api_key"`
	GroqModel    string `yaml:"groq_model"`
	GeminiAPIKey string `yaml:"gemini_api_key"`
	GeminiModel  string `yaml:"gemini_model"`
	OllamaURL    string `yaml:"ollama_url"`
	OllamaModel  string `yaml:"ollama_model"`
}

// CacheConfig controls the Tier-3 decision cache.
type CacheConfig struct {
	Dir string        `yaml:"dir"`
	TTL time.Duration `yaml:"ttl"`
}

// PolicyConfig names the policy document.
type PolicyConfig struct {
	Path string `yaml:"path"`

	// WatchForChanges logs a warning when the document changes on disk
	// after load. The running policy is never hot-swapped.
	WatchForChanges bool `yaml:"watch_for_changes"`
}

// AuditConfig controls the append-only verdict store.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// AuthConfig controls JWT issuance and the static credential list.
type AuthConfig struct {
	JWTSecret string           `yaml:"jwt_secret"`
	TokenTTL  time.Duration    `yaml:"token_ttl"`
	Users     []CredentialSpec `yaml:"users"`
}

// CredentialSpec is one configured principal. PasswordHash is a bcrypt
// hash; plaintext passwords never appear in config.
type CredentialSpec struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	Role         string `yaml:"role"`      // "user" or "admin"
	RateTier     string `yaml:"rate_tier"` // "free", "pro", "enterprise"
}

// RateLimitConfig controls per-principal request limits.
type RateLimitConfig struct {
	Enabled bool   `yaml:"enabled"`
	Store   string `yaml:"store"` // "memory" or "redis"
	Redis   struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	// Requests per hour by rate tier.
	FreeLimit       int `yaml:"free_limit"`
	ProLimit        int `yaml:"pro_limit"`
	EnterpriseLimit int `yaml:"enterprise_limit"`
}

// LoggingConfig controls zap construction.
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

// DefaultConfig returns the configuration used when no file is supplied:
// a local gateway with Tier 3 disabled and in-memory rate limiting.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	if c.Detection.RequestBudget == 0 {
		c.Detection.RequestBudget = 5 * time.Second
	}
	if c.Detection.EmbedTimeout == 0 {
		c.Detection.EmbedTimeout = 3 * time.Second
	}
	if c.Detection.MemoCapacity == 0 {
		c.Detection.MemoCapacity = 10000
	}
	if c.Detection.Embedding.Provider == "" {
		c.Detection.Embedding.Provider = "ollama"
	}
	if c.Detection.Embedding.OllamaEndpoint == "" {
		c.Detection.Embedding.OllamaEndpoint = "http://localhost:11434"
	}
	if c.Detection.Embedding.OllamaModel == "" {
		c.Detection.Embedding.OllamaModel = "embeddinggemma"
	}
	if c.Detection.Embedding.GenAIModel == "" {
		c.Detection.Embedding.GenAIModel = "gemini-embedding-001"
	}

	if c.Providers.GroqModel == "" {
		c.Providers.GroqModel = "llama-3.3-70b-versatile"
	}
	if c.Providers.GeminiModel == "" {
		c.Providers.GeminiModel = "gemini-2.0-flash"
	}
	if c.Providers.OllamaURL == "" {
		c.Providers.OllamaURL = "http://localhost:11434"
	}
	if c.Providers.OllamaModel == "" {
		c.Providers.OllamaModel = "llama3.2"
	}

	if c.Cache.Dir == "" {
		c.Cache.Dir = ".cache/decisions"
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 168 * time.Hour
	}

	if c.Policy.Path == "" {
		c.Policy.Path = "config/policy.yaml"
	}

	if c.Audit.DBPath == "" {
		c.Audit.DBPath = "data/audit.db"
	}

	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}

	if c.RateLimit.Store == "" {
		c.RateLimit.Store = "memory"
	}
	if c.RateLimit.FreeLimit == 0 {
		c.RateLimit.FreeLimit = 100
	}
	if c.RateLimit.ProLimit == 0 {
		c.RateLimit.ProLimit = 1000
	}
	if c.RateLimit.EnterpriseLimit == 0 {
		c.RateLimit.EnterpriseLimit = 10000
	}
}

// Load reads the YAML file at path, applies defaults for unset fields,
// then applies environment overrides. A missing file is an error; use
// DefaultConfig when no file is expected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load when path exists, DefaultConfig (with env
// overrides) otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}
	return Load(path)
}

// LoadDotenv loads a .env file into the process environment when one is
// present. Missing files are not an error.
func LoadDotenv() {
	_ = godotenv.Load()
}

// applyEnvOverrides pulls secrets from the environment so they never need
// to live in the YAML file. Environment always wins.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("WARDEN_GROQ_API_KEY"); v != "" {
		c.Providers.GroqAPIKey = v
	}
	if v := os.Getenv("WARDEN_GEMINI_API_KEY"); v != "" {
		c.Providers.GeminiAPIKey = v
		if c.Detection.Embedding.GenAIAPIKey == "" {
			c.Detection.Embedding.GenAIAPIKey = v
		}
	}
	if v := os.Getenv("WARDEN_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("WARDEN_REDIS_ADDR"); v != "" {
		c.RateLimit.Redis.Addr = v
	}
}

// Validate rejects configurations that cannot produce a working gateway.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Detection.RequestBudget <= 0 {
		return fmt.Errorf("request_budget must be positive")
	}
	if c.Detection.EmbedTimeout <= 0 {
		return fmt.Errorf("embed_timeout must be positive")
	}
	if c.Detection.EmbedTimeout > c.Detection.RequestBudget {
		return fmt.Errorf("embed_timeout %s exceeds request_budget %s",
			c.Detection.EmbedTimeout, c.Detection.RequestBudget)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}
	switch c.RateLimit.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown rate limit store %q (use 'memory' or 'redis')", c.RateLimit.Store)
	}
	switch c.Detection.Embedding.Provider {
	case "ollama", "genai":
	default:
		return fmt.Errorf("unknown embedding provider %q (use 'ollama' or 'genai')", c.Detection.Embedding.Provider)
	}
	return nil
}
