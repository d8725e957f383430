package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Google     GoogleConfig     `yaml:"google" mapstructure:"google"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Stages     StagesConfig     `yaml:"stages" mapstructure:"stages"`
	Providers  ProvidersConfig  `yaml:"providers" mapstructure:"providers"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Image      ImageConfig      `yaml:"image" mapstructure:"image"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// GeminiConfig holds Gemini API settings.
type GeminiConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// GoogleConfig holds Google Custom Search credentials.
type GoogleConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	CX      string `yaml:"cx" mapstructure:"cx"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// JinaConfig holds Jina search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// NotionConfig holds Notion credentials for queue intake.
type NotionConfig struct {
	Token      string  `yaml:"token" mapstructure:"token"`
	QueueDB    string  `yaml:"queue_db" mapstructure:"queue_db"`
	RateLimit  float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	MaxRetries int     `yaml:"max_retries" mapstructure:"max_retries"`
}

// RedisConfig configures the stage event broadcaster. Empty Addr disables it.
type RedisConfig struct {
	Addr    string `yaml:"addr" mapstructure:"addr"`
	Channel string `yaml:"channel" mapstructure:"channel"`
}

// StagesConfig selects providers and per-call timeouts for stages.
type StagesConfig struct {
	BackgroundProvider string `yaml:"background_provider" mapstructure:"background_provider"`
	BackgroundTimeout  int    `yaml:"background_timeout_secs" mapstructure:"background_timeout_secs"`
	SearchTimeout      int    `yaml:"search_timeout_secs" mapstructure:"search_timeout_secs"`
}

// ProvidersConfig holds per-provider minimum intervals in milliseconds.
type ProvidersConfig struct {
	IntervalsMs       map[string]int `yaml:"intervals_ms" mapstructure:"intervals_ms"`
	DefaultIntervalMs int            `yaml:"default_interval_ms" mapstructure:"default_interval_ms"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentEntities int `yaml:"max_concurrent_entities" mapstructure:"max_concurrent_entities"`
}

// RetryConfig configures provider call retries.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// CircuitConfig configures per-provider circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ImageConfig configures the image candidate filter.
type ImageConfig struct {
	ExcludedHosts []string `yaml:"excluded_hosts" mapstructure:"excluded_hosts"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultExcludedHosts are social-media hosts whose images are rejected.
var DefaultExcludedHosts = []string{
	"facebook.com", "fbcdn.net", "instagram.com", "cdninstagram.com",
	"twitter.com", "x.com", "twimg.com", "tiktok.com", "pinterest.com",
	"pinimg.com", "linkedin.com", "licdn.com", "reddit.com", "redd.it",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PROFILE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "profiles.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("batch.max_concurrent_entities", 5)
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("google.base_url", "https://www.googleapis.com/customsearch/v1")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("redis.channel", "profile-stages")
	v.SetDefault("notion.rate_limit", 3.0)
	v.SetDefault("notion.max_retries", 3)
	v.SetDefault("stages.background_provider", "perplexity")
	v.SetDefault("stages.background_timeout_secs", 60)
	v.SetDefault("stages.search_timeout_secs", 15)
	v.SetDefault("providers.intervals_ms", map[string]int{
		"perplexity": 1000,
		"anthropic":  500,
		"gemini":     500,
		"google":     600,
		"jina":       300,
	})
	v.SetDefault("retry.max_attempts", 1)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("image.excluded_hosts", DefaultExcludedHosts)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode needs. Modes: enrich, persist,
// serve, status.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be postgres or sqlite", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case "enrich", "serve":
		errs = append(errs, c.validateProviders()...)
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "persist", "status":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateProviders() []string {
	var errs []string

	if !c.HasAnyProvider() {
		errs = append(errs, "at least one of perplexity.key, anthropic.key, gemini.key, google.key, jina.key is required")
	}

	switch c.Stages.BackgroundProvider {
	case "perplexity", "anthropic", "gemini":
	default:
		errs = append(errs, fmt.Sprintf("stages.background_provider %q must be perplexity, anthropic or gemini", c.Stages.BackgroundProvider))
	}
	if c.Google.Key != "" && c.Google.CX == "" {
		errs = append(errs, "google.cx is required with google.key")
	}

	if c.Batch.MaxConcurrentEntities < 1 || c.Batch.MaxConcurrentEntities > 50 {
		errs = append(errs, fmt.Sprintf("batch.max_concurrent_entities must be between 1 and 50, got %d", c.Batch.MaxConcurrentEntities))
	}
	for name, ms := range c.Providers.IntervalsMs {
		if ms < 0 {
			errs = append(errs, fmt.Sprintf("providers.intervals_ms.%s must be >= 0", name))
		}
	}
	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, "retry.max_attempts must be >= 0")
	}
	return errs
}

// HasAnyProvider reports whether any provider credential is configured.
func (c *Config) HasAnyProvider() bool {
	return c.Perplexity.Key != "" || c.Anthropic.Key != "" || c.Gemini.Key != "" ||
		c.Google.Key != "" || c.Jina.Key != ""
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
