// Package config loads service configuration from an optional YAML file
// with ANOTA_* environment overrides on top.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every runtime knob of the service.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	DataDir    string `yaml:"data_dir"`
	AuthToken  string `yaml:"auth_token"`
	LogLevel   string `yaml:"log_level"`

	LLM struct {
		APIKey         string        `yaml:"api_key"`
		BaseURL        string        `yaml:"base_url"`
		Model          string        `yaml:"model"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
		MaxInputChars  int           `yaml:"max_input_chars"`
	} `yaml:"llm"`

	Quota struct {
		DailyLimit int `yaml:"daily_limit"`
	} `yaml:"quota"`

	Cache struct {
		TTL      time.Duration `yaml:"ttl"`
		Capacity int           `yaml:"capacity"`
	} `yaml:"cache"`

	Breaker struct {
		FailureThreshold int           `yaml:"failure_threshold"`
		OpenTimeout      time.Duration `yaml:"open_timeout"`
		SuccessThreshold int           `yaml:"success_threshold"`
	} `yaml:"breaker"`
}

func defaults() Config {
	var cfg Config
	cfg.ListenAddr = ":8080"
	cfg.DataDir = "./data"
	cfg.LogLevel = "info"
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.LLM.RequestTimeout = 30 * time.Second
	cfg.LLM.MaxInputChars = 2000
	cfg.Quota.DailyLimit = 50
	cfg.Cache.TTL = time.Hour
	cfg.Cache.Capacity = 1000
	cfg.Breaker.FailureThreshold = 5
	cfg.Breaker.OpenTimeout = time.Minute
	cfg.Breaker.SuccessThreshold = 2
	return cfg
}

// Load reads path (when it exists) over the built-in defaults, then
// applies environment overrides. A missing file is not an error; a
// malformed one is.
func Load(path string) (Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Debug("config file not found, using defaults", "path", path)
	case err != nil:
		return Config{}, fmt.Errorf("reading config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	envString("ANOTA_LISTEN_ADDR", &cfg.ListenAddr)
	envString("ANOTA_DATA_DIR", &cfg.DataDir)
	envString("ANOTA_AUTH_TOKEN", &cfg.AuthToken)
	envString("ANOTA_LOG_LEVEL", &cfg.LogLevel)
	envString("ANOTA_LLM_BASE_URL", &cfg.LLM.BaseURL)
	envString("ANOTA_LLM_MODEL", &cfg.LLM.Model)
	envInt("ANOTA_QUOTA_DAILY_LIMIT", &cfg.Quota.DailyLimit)
	envInt("ANOTA_CACHE_CAPACITY", &cfg.Cache.Capacity)

	// The API key is commonly provided only through the environment.
	envString("ANOTA_LLM_API_KEY", &cfg.LLM.APIKey)
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring non-numeric environment override", "key", key, "value", v)
		return
	}
	*dst = n
}

func (c Config) validate() error {
	if c.Quota.DailyLimit <= 0 {
		return fmt.Errorf("quota.daily_limit must be positive, got %d", c.Quota.DailyLimit)
	}
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity must be positive, got %d", c.Cache.Capacity)
	}
	if c.Breaker.FailureThreshold <= 0 || c.Breaker.SuccessThreshold <= 0 {
		return errors.New("breaker thresholds must be positive")
	}
	return nil
}

// SlogLevel maps the configured log level onto slog's levels, defaulting
// to info.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
