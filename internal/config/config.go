// Package config loads the service configuration.
//
// Values are resolved in order: built-in defaults, then the YAML file named
// by --config or ASCEND_CONFIG, then ASCEND_* environment variables. When
// the selected LLM provider has no key, the standard provider key variables
// (GEMINI_API_KEY, OPENAI_API_KEY, ...) are probed.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abhisek/ascend/internal/assessment"
	"github.com/abhisek/ascend/internal/content"
	"github.com/abhisek/ascend/internal/llm"
	"github.com/abhisek/ascend/internal/logger"
	"github.com/abhisek/ascend/internal/store"
)

// Config is the complete service configuration.
type Config struct {
	// DBPath is the SQLite database file. Default: XDG data dir.
	DBPath string `yaml:"db_path"`

	HTTP       HTTPConfig        `yaml:"http"`
	Auth       AuthConfig        `yaml:"auth"`
	Redis      RedisConfig       `yaml:"redis"`
	Log        LogConfig         `yaml:"log"`
	LLM        llm.Config        `yaml:"llm"`
	Content    content.Config    `yaml:"content"`
	Assessment assessment.Config `yaml:"assessment"`
}

// HTTPConfig configures the API listener. WriteTimeout must leave room
// for question generation to wait out LLM retries.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// RedisConfig enables cross-instance locking when URL is set. Held locks
// are renewed, so LockTTL only bounds how long a crashed instance blocks
// the others.
type RedisConfig struct {
	URL     string        `yaml:"url"`
	LockTTL time.Duration `yaml:"lock_ttl"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Mode     string `yaml:"mode"`
	Level    string `yaml:"level"`
	HashSalt string `yaml:"hash_salt"`
}

// Options returns the logger options for c.
func (c LogConfig) Options() logger.Options {
	return logger.Options{Mode: c.Mode, Level: c.Level, HashSalt: c.HashSalt}
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    90 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Auth:       AuthConfig{Issuer: "ascend"},
		Redis:      RedisConfig{LockTTL: 30 * time.Second},
		Log:        LogConfig{Mode: "dev"},
		LLM:        llm.DefaultConfig(),
		Content:    content.DefaultConfig(),
		Assessment: assessment.DefaultConfig(),
	}
}

// Load resolves the configuration. An empty path falls back to
// ASCEND_CONFIG; with neither set only defaults and the environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("ASCEND_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := llm.ApplyEnv(&cfg.LLM); err != nil {
		return nil, err
	}
	if !cfg.LLM.HasKey() && os.Getenv("ASCEND_LLM_PROVIDER") == "" {
		if found, ok := llm.DiscoverConfig(); ok {
			cfg.adoptProvider(found)
		}
	}

	if cfg.DBPath == "" {
		p, err := store.DefaultDBPath()
		if err != nil {
			return nil, err
		}
		cfg.DBPath = p
	}
	return cfg, nil
}

// loadFile merges the YAML file at path into c. Unknown keys are errors so
// typos do not silently fall back to defaults.
func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"ASCEND_DB":            &c.DBPath,
		"ASCEND_HTTP_ADDR":     &c.HTTP.Addr,
		"ASCEND_JWT_SECRET":    &c.Auth.JWTSecret,
		"ASCEND_JWT_ISSUER":    &c.Auth.Issuer,
		"ASCEND_REDIS_URL":     &c.Redis.URL,
		"ASCEND_LOG_MODE":      &c.Log.Mode,
		"ASCEND_LOG_LEVEL":     &c.Log.Level,
		"ASCEND_LOG_HASH_SALT": &c.Log.HashSalt,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("ASCEND_REDIS_LOCK_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ASCEND_REDIS_LOCK_TTL: %w", err)
		}
		c.Redis.LockTTL = d
	}
	return nil
}

// adoptProvider switches to a discovered provider, keeping the configured
// models, retry policy and timeout.
func (c *Config) adoptProvider(found llm.Config) {
	c.LLM.Provider = found.Provider
	switch found.Provider {
	case "gemini":
		c.LLM.Gemini.APIKey = found.Gemini.APIKey
	case "openai":
		c.LLM.OpenAI.APIKey = found.OpenAI.APIKey
	case "anthropic":
		c.LLM.Anthropic.APIKey = found.Anthropic.APIKey
	case "openrouter":
		c.LLM.OpenRouter.APIKey = found.OpenRouter.APIKey
	}
}

// Validate checks what the API server needs to start.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http addr is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("ASCEND_JWT_SECRET (auth.jwt_secret) is required")
	}
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if err := c.Assessment.Validate(); err != nil {
		return fmt.Errorf("assessment: %w", err)
	}
	if c.Redis.URL != "" && c.Redis.LockTTL < time.Second {
		return fmt.Errorf("redis lock_ttl %s is below 1s", c.Redis.LockTTL)
	}
	return nil
}
