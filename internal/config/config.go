package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Env    string       `yaml:"env" mapstructure:"env"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
	Redis  RedisConfig  `yaml:"redis" mapstructure:"redis"`
	Cache  CacheConfig  `yaml:"cache" mapstructure:"cache"`
	LLM    LLMConfig    `yaml:"llm" mapstructure:"llm"`
	PDF    PDFConfig    `yaml:"pdf" mapstructure:"pdf"`
	Batch  BatchConfig  `yaml:"batch" mapstructure:"batch"`
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`

	// Pricing overrides the built-in per-model token rates.
	Pricing map[string]ModelPricing `yaml:"pricing" mapstructure:"pricing"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// RedisConfig locates the cache store. URL, when set, wins over Host/Port.
type RedisConfig struct {
	URL           string `yaml:"url" mapstructure:"url"`
	Host          string `yaml:"host" mapstructure:"host"`
	Port          int    `yaml:"port" mapstructure:"port"`
	Password      string `yaml:"password" mapstructure:"password"`
	DB            int    `yaml:"db" mapstructure:"db"`
	DialTimeoutMs int    `yaml:"dial_timeout_ms" mapstructure:"dial_timeout_ms"`
}

// CacheConfig configures result caching.
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled" mapstructure:"enabled"`
	TTLSeconds int           `yaml:"ttl_seconds" mapstructure:"ttl_seconds"`
	Breaker    BreakerConfig `yaml:"breaker" mapstructure:"breaker"`
}

// BreakerConfig configures the circuit breaker in front of the cache store.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// LLMConfig configures the language-model provider.
type LLMConfig struct {
	Provider         string  `yaml:"provider" mapstructure:"provider"`
	Model            string  `yaml:"model" mapstructure:"model"`
	MaxOutputTokens  int     `yaml:"max_output_tokens" mapstructure:"max_output_tokens"`
	Temperature      float64 `yaml:"temperature" mapstructure:"temperature"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	OpenAIKey        string  `yaml:"openai_key" mapstructure:"openai_key"`
	OpenAIBaseURL    string  `yaml:"openai_base_url" mapstructure:"openai_base_url"`
	AnthropicKey     string  `yaml:"anthropic_key" mapstructure:"anthropic_key"`
	AnthropicBaseURL string  `yaml:"anthropic_base_url" mapstructure:"anthropic_base_url"`
}

// APIKey returns the key of the configured provider.
func (c LLMConfig) APIKey() string {
	switch c.Provider {
	case "anthropic":
		return c.AnthropicKey
	default:
		return c.OpenAIKey
	}
}

// PDFConfig configures document loading and text extraction.
type PDFConfig struct {
	BasePath      string `yaml:"base_path" mapstructure:"base_path"`
	Engine        string `yaml:"engine" mapstructure:"engine"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MaxUploadMB   int    `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	MaxSize       int `yaml:"max_size" mapstructure:"max_size"`
}

// StoreConfig configures the database backend for evaluation runs.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks the settings required by a command mode: "serve",
// "extract" or "eval".
func (c *Config) Validate(mode string) error {
	var missing []string

	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return eris.Errorf("config: unknown llm provider %q", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		missing = append(missing, "llm.model")
	}
	if c.Cache.TTLSeconds < 0 {
		return eris.New("config: cache.ttl_seconds must not be negative")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port")
		}
		if c.Batch.MaxConcurrent <= 0 || c.Batch.MaxSize <= 0 {
			return eris.New("config: batch.max_concurrent and batch.max_size must be positive")
		}
	case "eval":
		if c.Batch.MaxConcurrent <= 0 {
			return eris.New("config: batch.max_concurrent must be positive")
		}
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url")
		}
	case "extract":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: missing required settings for %s: %s", mode, strings.Join(missing, ", "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("EXTRACT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("env", "development")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dial_timeout_ms", 2000)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl_seconds", 600)
	v.SetDefault("cache.breaker.failure_threshold", 5)
	v.SetDefault("cache.breaker.reset_timeout_secs", 30)
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-5-mini")
	v.SetDefault("llm.max_output_tokens", 2000)
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.timeout_secs", 120)
	v.SetDefault("pdf.engine", "native")
	v.SetDefault("pdf.pdftotext_path", "pdftotext")
	v.SetDefault("pdf.max_upload_mb", 10)
	v.SetDefault("batch.max_concurrent", 5)
	v.SetDefault("batch.max_size", 100)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "extract.db")

	// Secrets are commonly provided without a prefix.
	_ = v.BindEnv("llm.openai_key", "EXTRACT_LLM_OPENAI_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("llm.anthropic_key", "EXTRACT_LLM_ANTHROPIC_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("redis.url", "EXTRACT_REDIS_URL", "REDIS_URL")
	_ = v.BindEnv("pdf.base_path", "EXTRACT_PDF_BASE_PATH", "PDF_BASE_PATH")

	// Read config file (optional)
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
