package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr           string        `yaml:"addr"`
		Env            string        `yaml:"env"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
	} `yaml:"server"`
	AI struct {
		Provider        string  `yaml:"provider"` // gemini, openai or none
		Model           string  `yaml:"model"`
		APIKey          string  `yaml:"api_key"`
		BaseURL         string  `yaml:"base_url"`
		MaxOutputTokens int     `yaml:"max_output_tokens"`
		Temperature     float32 `yaml:"temperature"`
	} `yaml:"ai"`
	Generation struct {
		MaxAttempts    int           `yaml:"max_attempts"`
		AttemptTimeout time.Duration `yaml:"attempt_timeout"`
		InitialBackoff time.Duration `yaml:"initial_backoff"`
		MaxBackoff     time.Duration `yaml:"max_backoff"`
		Multiplier     float64       `yaml:"multiplier"`
		OnExhausted    string        `yaml:"on_exhausted"` // fallback or fail
	} `yaml:"generation"`
	Knowledge struct {
		TablesPath string `yaml:"tables_path"` // empty uses the embedded tables
	} `yaml:"knowledge"`
	Storage struct {
		Path string `yaml:"path"` // empty disables the archive
	} `yaml:"storage"`
	Practice struct {
		Practitioner string `yaml:"practitioner"`
		Title        string `yaml:"title"`
		Registration string `yaml:"registration"`
		Organisation string `yaml:"organisation"`
		City         string `yaml:"city"`
	} `yaml:"practice"`
}

// RequiredMaxAttempts is the only accepted generation.max_attempts value.
const RequiredMaxAttempts = 3

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	cfg.Server.Addr = ":8080"
	cfg.Server.Env = "development"
	cfg.Server.RequestTimeout = 90 * time.Second
	cfg.AI.Provider = "gemini"
	cfg.AI.Model = "gemini-2.5-flash"
	cfg.AI.MaxOutputTokens = 8192
	cfg.AI.Temperature = 0.3
	cfg.Generation.MaxAttempts = RequiredMaxAttempts
	cfg.Generation.AttemptTimeout = 45 * time.Second
	cfg.Generation.InitialBackoff = 500 * time.Millisecond
	cfg.Generation.MaxBackoff = 8 * time.Second
	cfg.Generation.Multiplier = 2
	cfg.Generation.OnExhausted = "fallback"
	cfg.Storage.Path = "consultdoc.db"
	cfg.Practice.Practitioner = "Attending physician"
	cfg.Practice.Title = "MD"
	cfg.Practice.Organisation = "Teleconsultation service"
	return &cfg
}

func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	// 2. Load YAML config on top of the defaults
	cfg := Default()
	if path != "" {
		file, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(file, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	// 3. Override with Environment Variables if present
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CONSULTDOC_API_KEY"); v != "" {
		cfg.AI.APIKey = v
	}
	if v := os.Getenv("CONSULTDOC_AI_PROVIDER"); v != "" {
		cfg.AI.Provider = v
	}
	if v := os.Getenv("CONSULTDOC_AI_MODEL"); v != "" {
		cfg.AI.Model = v
	}
	if v := os.Getenv("CONSULTDOC_ENV"); v != "" {
		cfg.Server.Env = v
	}
	if v := os.Getenv("CONSULTDOC_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v, ok := os.LookupEnv("CONSULTDOC_DB"); ok {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("CONSULTDOC_ON_EXHAUSTED"); v != "" {
		cfg.Generation.OnExhausted = v
	}
	if v := os.Getenv("CONSULTDOC_TABLES"); v != "" {
		cfg.Knowledge.TablesPath = v
	}
	if v := os.Getenv("CONSULTDOC_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Generation.MaxAttempts = n
		}
	}
}

// Validate checks enum values and numeric ranges.
func (c *Config) Validate() error {
	var problems []string

	switch strings.ToLower(c.AI.Provider) {
	case "gemini", "openai", "none":
	default:
		problems = append(problems, fmt.Sprintf("ai.provider %q is not one of gemini, openai, none", c.AI.Provider))
	}
	switch strings.ToLower(c.Generation.OnExhausted) {
	case "fallback", "fail":
	default:
		problems = append(problems, fmt.Sprintf("generation.on_exhausted %q is not one of fallback, fail", c.Generation.OnExhausted))
	}
	// The retry bound is fixed; the key exists so a stray value is reported.
	if c.Generation.MaxAttempts != RequiredMaxAttempts {
		problems = append(problems, fmt.Sprintf("generation.max_attempts must be %d", RequiredMaxAttempts))
	}
	if c.Generation.Multiplier < 1 {
		problems = append(problems, "generation.multiplier must be >= 1")
	}
	if c.Generation.InitialBackoff < 0 || c.Generation.MaxBackoff < 0 {
		problems = append(problems, "generation backoff durations must not be negative")
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
		problems = append(problems, "ai.temperature must be between 0 and 2")
	}
	if c.AI.MaxOutputTokens < 0 {
		problems = append(problems, "ai.max_output_tokens must not be negative")
	}
	if c.Server.RequestTimeout < 0 {
		problems = append(problems, "server.request_timeout must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// IsProduction hides diagnostics and error details from API responses.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Env, "production")
}
