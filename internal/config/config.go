package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	Addr    string `env:"AGENTK_ADDR" envDefault:":8080"`
	DataDir string `env:"AGENTK_DATA_DIR" envDefault:"~/.agentk"`

	// storage
	DBDriver string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBDSN    string `env:"DB_DSN"`

	// AI provider
	DefaultProvider   string `env:"AI_DEFAULT_PROVIDER" envDefault:"ollama"`
	OllamaBaseURL     string `env:"OLLAMA_BASE_URL" envDefault:"http://localhost:11434"`
	OpenRouterBaseURL string `env:"OPENROUTER_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	OpenRouterAPIKey  string `env:"OPENROUTER_API_KEY"`
	OpenRouterSiteURL string `env:"OPENROUTER_SITE_URL"`
	OpenRouterAppName string `env:"OPENROUTER_APP_NAME" envDefault:"AgentK"`

	TokenLimitMode string `env:"TOKEN_LIMIT_MODE" envDefault:"auto"`
	TokenLimit     int    `env:"TOKEN_LIMIT" envDefault:"0"`

	ProviderOrder []string `env:"PROVIDER_ORDER" envSeparator:"," envDefault:"OpenAI,Anthropic,xAI,Google,Groq,Cohere,Perplexity,OpenRouter,DeepInfra,HuggingFace,Ollama"`

	// redis (catalog cache)
	RedisAddr       string        `env:"REDIS_ADDR"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	RedisDB         int           `env:"REDIS_DB" envDefault:"0"`
	CatalogCacheTTL time.Duration `env:"CATALOG_CACHE_TTL" envDefault:"1m"`

	// rabbitMQ (change events)
	RabbitURL   string `env:"RABBIT_URL"`
	RabbitQueue string `env:"RABBIT_QUEUE" envDefault:"agentk.events"`

	KeysSecret string `env:"KEYS_SECRET"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load parses the environment into a Config and fills derived defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}

	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	cfg.TokenLimitMode = strings.ToLower(strings.TrimSpace(cfg.TokenLimitMode))
	cfg.DataDir = expandHome(cfg.DataDir)

	if cfg.DBDSN == "" && cfg.DBDriver == "sqlite" {
		// app-specific database name
		cfg.DBDSN = filepath.Join(cfg.DataDir, "agentk_db.sqlite")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("unsupported DB_DRIVER=%q", c.DBDriver)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("DB_DSN is required for driver %s", c.DBDriver)
	}
	switch c.TokenLimitMode {
	case "auto":
	case "custom":
		if c.TokenLimit <= 0 {
			return fmt.Errorf("TOKEN_LIMIT must be positive in custom mode, got %d", c.TokenLimit)
		}
	default:
		return fmt.Errorf("unsupported TOKEN_LIMIT_MODE=%q", c.TokenLimitMode)
	}
	return nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p
}
