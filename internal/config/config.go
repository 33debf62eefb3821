// Package config loads the research pipeline configuration from built-in
// defaults, an optional TOML file, .env files and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/sources"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const (
	// AppName names the directory under the user config dir.
	AppName = "resale-research"
	// EnvFileName is the env file loaded from that directory.
	EnvFileName = "config.env"
	envPrefix   = "RESALE_"
)

// Config is the full application configuration.
type Config struct {
	Gemini    GeminiConfig    `toml:"gemini"`
	Fetch     FetchConfig     `toml:"fetch"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Verify    VerifyConfig    `toml:"verify"`
	Photos    PhotosConfig    `toml:"photos"`
	Redis     RedisConfig     `toml:"redis"`
	Storage   StorageConfig   `toml:"storage"`
	// Sources lists the enabled marketplaces. Empty enables all of them.
	Sources  []string `toml:"sources"`
	LogLevel string   `toml:"log_level"`
}

// GeminiConfig selects the models used for extraction and verification.
type GeminiConfig struct {
	APIKey string `toml:"api_key"`
	// Model is used for feature extraction.
	Model string `toml:"model"`
	// VerifyModel is used for match verification.
	VerifyModel string `toml:"verify_model"`
	WebSearch   bool   `toml:"web_search"`
}

// FetchConfig bounds marketplace page fetches and their result cache.
type FetchConfig struct {
	Timeout    duration `toml:"timeout"`
	CacheTTL   duration `toml:"cache_ttl"`
	MaxResults int      `toml:"max_results"`
}

// SchedulerConfig tunes the source fan-out admission limits.
type SchedulerConfig struct {
	MaxConcurrent int      `toml:"max_concurrent"`
	MinSpacing    duration `toml:"min_spacing"`
	Burst         int      `toml:"burst"`
}

// VerifyConfig controls match verification batching.
type VerifyConfig struct {
	BatchSize   int `toml:"batch_size"`
	Parallelism int `toml:"parallelism"`
}

// PhotosConfig bounds photo downloads.
type PhotosConfig struct {
	Timeout duration `toml:"timeout"`
	MaxSize int64    `toml:"max_size"`
}

// RedisConfig enables the shared result cache when Addr is set.
type RedisConfig struct {
	Addr     string   `toml:"addr"`
	Password string   `toml:"password"`
	DB       int      `toml:"db"`
	Expiry   duration `toml:"expiry"`
}

// StorageConfig enables the feature cache when SQLitePath is set.
type StorageConfig struct {
	SQLitePath      string   `toml:"sqlite_path"`
	FeatureCacheTTL duration `toml:"feature_cache_ttl"`
}

// duration wraps time.Duration so TOML files can use strings like "8s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Gemini: GeminiConfig{
			Model:       "gemini-2.5-flash",
			VerifyModel: "gemini-2.5-flash-lite",
		},
		Fetch: FetchConfig{
			Timeout:    duration{8 * time.Second},
			CacheTTL:   duration{time.Hour},
			MaxResults: 20,
		},
		Scheduler: SchedulerConfig{
			MaxConcurrent: 3,
			MinSpacing:    duration{500 * time.Millisecond},
			Burst:         3,
		},
		Verify: VerifyConfig{
			BatchSize:   10,
			Parallelism: 2,
		},
		Photos: PhotosConfig{
			Timeout: duration{30 * time.Second},
			MaxSize: 10 * 1024 * 1024,
		},
		Redis: RedisConfig{
			Expiry: duration{2 * time.Hour},
		},
		Storage: StorageConfig{
			FeatureCacheTTL: duration{7 * 24 * time.Hour},
		},
		LogLevel: "info",
	}
}

// Load builds the configuration. path is an optional TOML file; an empty
// path skips it. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	LoadEnvFile()
	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// LoadEnvFile loads environment variables from the config file in the user's
// config directory. Errors are ignored since the file may not exist.
func LoadEnvFile() {
	configBase, err := os.UserConfigDir()
	if err != nil {
		return
	}
	configPath := filepath.Join(configBase, AppName, EnvFileName)
	_ = godotenv.Load(configPath)
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Gemini.APIKey, "GEMINI_API_KEY")
	setStr(&cfg.Gemini.APIKey, envPrefix+"GEMINI_API_KEY")
	setStr(&cfg.Gemini.Model, envPrefix+"GEMINI_MODEL")
	setStr(&cfg.Gemini.VerifyModel, envPrefix+"GEMINI_VERIFY_MODEL")
	setBool(&cfg.Gemini.WebSearch, envPrefix+"GEMINI_WEB_SEARCH")

	setDuration(&cfg.Fetch.Timeout, envPrefix+"FETCH_TIMEOUT")
	setDuration(&cfg.Fetch.CacheTTL, envPrefix+"FETCH_CACHE_TTL")
	setInt(&cfg.Fetch.MaxResults, envPrefix+"FETCH_MAX_RESULTS")

	setInt(&cfg.Scheduler.MaxConcurrent, envPrefix+"SCHEDULER_MAX_CONCURRENT")
	setDuration(&cfg.Scheduler.MinSpacing, envPrefix+"SCHEDULER_MIN_SPACING")
	setInt(&cfg.Scheduler.Burst, envPrefix+"SCHEDULER_BURST")

	setInt(&cfg.Verify.BatchSize, envPrefix+"VERIFY_BATCH_SIZE")
	setInt(&cfg.Verify.Parallelism, envPrefix+"VERIFY_PARALLELISM")

	setDuration(&cfg.Photos.Timeout, envPrefix+"PHOTOS_TIMEOUT")
	setInt64(&cfg.Photos.MaxSize, envPrefix+"PHOTOS_MAX_SIZE")

	setStr(&cfg.Redis.Addr, envPrefix+"REDIS_ADDR")
	setStr(&cfg.Redis.Password, envPrefix+"REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, envPrefix+"REDIS_DB")
	setDuration(&cfg.Redis.Expiry, envPrefix+"REDIS_EXPIRY")

	setStr(&cfg.Storage.SQLitePath, envPrefix+"SQLITE_PATH")
	setDuration(&cfg.Storage.FeatureCacheTTL, envPrefix+"FEATURE_CACHE_TTL")

	setStringSlice(&cfg.Sources, envPrefix+"SOURCES")
	setStr(&cfg.LogLevel, "LOG_LEVEL")
	setStr(&cfg.LogLevel, envPrefix+"LOG_LEVEL")
}

// Validate checks the configuration and reports every problem at once.
// The Gemini API key is checked separately by RequireAPIKey so commands
// that make no model call can run without one.
func (c *Config) Validate() error {
	var errs []string

	if c.Gemini.Model == "" {
		errs = append(errs, "gemini: model must not be empty")
	}
	if c.Fetch.Timeout.Duration <= 0 {
		errs = append(errs, "fetch: timeout must be positive")
	}
	if c.Fetch.CacheTTL.Duration <= 0 {
		errs = append(errs, "fetch: cache_ttl must be positive")
	}
	if c.Fetch.MaxResults <= 0 {
		errs = append(errs, "fetch: max_results must be positive")
	}
	if c.Scheduler.MaxConcurrent <= 0 {
		errs = append(errs, "scheduler: max_concurrent must be positive")
	}
	if c.Scheduler.MinSpacing.Duration < 0 {
		errs = append(errs, "scheduler: min_spacing must not be negative")
	}
	if c.Scheduler.Burst <= 0 {
		errs = append(errs, "scheduler: burst must be positive")
	}
	if c.Verify.BatchSize <= 0 {
		errs = append(errs, "verify: batch_size must be positive")
	}
	if c.Verify.Parallelism <= 0 {
		errs = append(errs, "verify: parallelism must be positive")
	}
	if c.Photos.MaxSize <= 0 {
		errs = append(errs, "photos: max_size must be positive")
	}
	for _, name := range c.Sources {
		if _, ok := sources.DefinitionByName(name); !ok {
			errs = append(errs, fmt.Sprintf("unknown source %q", name))
		}
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil || c.LogLevel == "" {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// RequireAPIKey reports a missing Gemini API key.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.Gemini.APIKey) == "" {
		return errors.New("gemini: api_key is required (set GEMINI_API_KEY)")
	}
	return nil
}

// Level returns the configured zerolog level, info when unparsable.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return level
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
