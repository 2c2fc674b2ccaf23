package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/gradeflow/internal/common"
	"github.com/Veraticus/gradeflow/internal/grading"
	"github.com/Veraticus/gradeflow/internal/llm"
	"github.com/Veraticus/gradeflow/internal/transcribe"
)

// DefaultCacheTTL is used when llm.cache_ttl is unset or not positive.
const DefaultCacheTTL = 24 * time.Hour

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DatabaseConfig selects and locates the result store.
type DatabaseConfig struct {
	Driver string
	Path   string
	DSN    string
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string
	Format string
}

// Config is the typed application configuration.
type Config struct {
	Log                LogConfig
	Database           DatabaseConfig
	TranscriptionModel string
	LLM                llm.Config
	Transcription      transcribe.Config
	Grading            grading.Config
	Workers            int
}

// providerKeyEnv lists the conventional API key variables per provider.
var providerKeyEnv = map[string][]string{
	"openai":    {"OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_API_KEY"},
	"gemini":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.rate_limit", 0)
	v.SetDefault("llm.cache_ttl", "24h")

	defaults := transcribe.DefaultConfig()
	v.SetDefault("transcribe.max_concurrent", defaults.MaxConcurrent)
	v.SetDefault("transcribe.parallel", defaults.Parallel)
	v.SetDefault("transcribe.call_timeout", defaults.CallTimeout.String())
	v.SetDefault("transcribe.max_retries", defaults.MaxRetries)
	v.SetDefault("transcribe.base_delay", defaults.BaseDelay.String())

	v.SetDefault("grading.call_timeout", "120s")
	v.SetDefault("grading.workers", 1)

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "~/.local/share/grade/grade.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads the configuration from v. Provider API keys fall back to the
// provider's conventional environment variable when not configured.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		LLM: llm.Config{
			Provider:    strings.ToLower(strings.TrimSpace(v.GetString("llm.provider"))),
			APIKey:      v.GetString("llm.api_key"),
			Model:       v.GetString("llm.model"),
			BaseURL:     v.GetString("llm.base_url"),
			Temperature: v.GetFloat64("llm.temperature"),
			MaxTokens:   v.GetInt("llm.max_tokens"),
			RateLimit:   v.GetInt("llm.rate_limit"),
			CacheTTL:    v.GetDuration("llm.cache_ttl"),
		},
		TranscriptionModel: v.GetString("llm.transcription_model"),
		Transcription: transcribe.Config{
			MaxConcurrent: v.GetInt("transcribe.max_concurrent"),
			Parallel:      v.GetBool("transcribe.parallel"),
			CallTimeout:   v.GetDuration("transcribe.call_timeout"),
			MaxRetries:    v.GetInt("transcribe.max_retries"),
			BaseDelay:     v.GetDuration("transcribe.base_delay"),
		},
		Grading: grading.Config{
			CallTimeout: v.GetDuration("grading.call_timeout"),
		},
		Workers: v.GetInt("grading.workers"),
		Database: DatabaseConfig{
			Driver: strings.ToLower(v.GetString("database.driver")),
			Path:   ExpandPath(v.GetString("database.path")),
			DSN:    v.GetString("database.dsn"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if cfg.LLM.CacheTTL <= 0 {
		cfg.LLM.CacheTTL = DefaultCacheTTL
	}

	if cfg.LLM.APIKey == "" {
		for _, name := range providerKeyEnv[cfg.LLM.Provider] {
			if key := os.Getenv(name); key != "" {
				cfg.LLM.APIKey = key
				break
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that do not depend on which command runs.
func (c *Config) Validate() error {
	if _, ok := providerKeyEnv[c.LLM.Provider]; !ok {
		return fmt.Errorf("%w: unknown llm.provider %q (want openai, anthropic or gemini)", common.ErrInvalidConfig, c.LLM.Provider)
	}
	if c.Transcription.MaxConcurrent < 1 {
		return fmt.Errorf("%w: transcribe.max_concurrent must be at least 1", common.ErrInvalidConfig)
	}
	if c.Transcription.MaxRetries < 0 {
		return fmt.Errorf("%w: transcribe.max_retries cannot be negative", common.ErrInvalidConfig)
	}
	if c.Transcription.CallTimeout <= 0 || c.Grading.CallTimeout <= 0 {
		return fmt.Errorf("%w: call timeouts must be positive", common.ErrInvalidConfig)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: grading.workers must be at least 1", common.ErrInvalidConfig)
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("%w: database.path is required for sqlite", common.ErrInvalidConfig)
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("%w: database.dsn is required for postgres", common.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown database.driver %q", common.ErrInvalidConfig, c.Database.Driver)
	}

	if _, err := common.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}
	return nil
}

// RequireAPIKey reports a missing provider key, naming where to set it.
func (c *Config) RequireAPIKey() error {
	if c.LLM.APIKey != "" {
		return nil
	}
	return fmt.Errorf("%w: no API key for %s; set llm.api_key or %s",
		common.ErrMissingConfig, c.LLM.Provider, strings.Join(providerKeyEnv[c.LLM.Provider], " or "))
}

// TranscriptionLLM returns the client config for transcription calls.
func (c *Config) TranscriptionLLM() llm.Config {
	out := c.LLM
	if c.TranscriptionModel != "" {
		out.Model = c.TranscriptionModel
	}
	return out
}
