// Package config centralizes how schoolpost reads its settings and exposes
// them as strongly typed Go values. Values come from, in increasing order of
// precedence: built-in defaults, an optional YAML file named by
// SCHOOLPOST_CONFIG, a .env file in the working directory, and the process
// environment.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents runtime configuration for every schoolpost binary.
// Nested structs group related settings the same way the YAML file does.
type Config struct {
	Address     string `yaml:"address" validate:"required"`
	DatabaseURL string `yaml:"database_url"`
	LogLevel    string `yaml:"log_level" validate:"oneof=debug info warn error"`

	// RedisAddr enables the task queue; empty runs triggers inline.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db" validate:"min=0"`

	S3         S3Config       `yaml:"s3"`
	Scrape     ScrapeConfig   `yaml:"scrape"`
	Schedule   ScheduleConfig `yaml:"schedule"`
	Providers  ProviderConfig `yaml:"providers"`
	Generation GenConfig      `yaml:"generation"`

	// TriggerSecret signs machine trigger calls; it is never read from YAML.
	TriggerSecret []byte        `yaml:"-"`
	SignedTTL     time.Duration `yaml:"signed_ttl" validate:"gt=0"`

	WorkerConcurrency int `yaml:"worker_concurrency" validate:"min=1"`
}

// S3Config points at the MinIO/S3 bucket holding document binaries. An empty
// endpoint keeps binaries inline in the database instead.
type S3Config struct {
	Endpoint   string        `yaml:"endpoint"`
	AccessKey  string        `yaml:"access_key"`
	SecretKey  string        `yaml:"secret_key"`
	Region     string        `yaml:"region"`
	UseSSL     bool          `yaml:"use_ssl"`
	Bucket     string        `yaml:"bucket" validate:"required_with=Endpoint"`
	PresignTTL time.Duration `yaml:"presign_ttl" validate:"gt=0"`
}

// ScrapeConfig controls the acquisition session.
type ScrapeConfig struct {
	URL               string        `yaml:"url"`
	Password          string        `yaml:"password"`
	BrowserBin        string        `yaml:"browser_bin"`
	Headless          bool          `yaml:"headless"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" validate:"gt=0"`
	ConsentTimeout    time.Duration `yaml:"consent_timeout" validate:"gt=0"`
	AuthTimeout       time.Duration `yaml:"auth_timeout" validate:"gt=0"`
	DownloadTimeout   time.Duration `yaml:"download_timeout" validate:"gt=0"`
	SettleDelay       time.Duration `yaml:"settle_delay" validate:"gte=0"`
	TabAttempts       int           `yaml:"tab_attempts" validate:"min=0"`
	Suffixes          []string      `yaml:"suffixes" validate:"min=1,dive,required"`
}

// ScheduleConfig holds the publishing calendar.
type ScheduleConfig struct {
	PublishDay int    `yaml:"publish_day" validate:"min=0,max=6"`
	CutoffHour int    `yaml:"cutoff_hour" validate:"min=0,max=23"`
	Timezone   string `yaml:"timezone" validate:"required"`
	ScrapeCron string `yaml:"scrape_cron"`
}

// ProviderConfig carries credentials for the generation providers. A blank
// key leaves that provider out of the chain.
type ProviderConfig struct {
	GeminiAPIKey string `yaml:"gemini_api_key"`
	GeminiModel  string `yaml:"gemini_model"`

	AnthropicAPIKey  string `yaml:"anthropic_api_key"`
	AnthropicBaseURL string `yaml:"anthropic_base_url"`
	AnthropicModel   string `yaml:"anthropic_model"`

	KimiAPIKey  string `yaml:"kimi_api_key"`
	KimiBaseURL string `yaml:"kimi_base_url"`
	KimiModel   string `yaml:"kimi_model"`

	OpenRouterAPIKey  string `yaml:"openrouter_api_key"`
	OpenRouterBaseURL string `yaml:"openrouter_base_url"`
	OpenRouterModel   string `yaml:"openrouter_model"`

	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

// GenConfig tunes artifact generation.
type GenConfig struct {
	Parallelism    int  `yaml:"parallelism" validate:"min=1"`
	PerGroupSheets bool `yaml:"per_group_sheets"`
}

const (
	defaultAddress     = ":8080"
	defaultLogLevel    = "info"
	defaultSignedTTL   = 5 * time.Minute
	defaultWorkerCount = 2
	defaultBucket      = "schoolpost-documents"
	defaultPresignTTL  = 15 * time.Minute
	defaultTimezone    = "Europe/London"
	defaultScrapeCron  = "0 9 * * 5"
)

// Defaults returns the configuration used when nothing else is supplied.
func Defaults() *Config {
	return &Config{
		Address:  defaultAddress,
		LogLevel: defaultLogLevel,
		S3: S3Config{
			Region:     "us-east-1",
			Bucket:     defaultBucket,
			PresignTTL: defaultPresignTTL,
		},
		Scrape: ScrapeConfig{
			Headless:          true,
			NavigationTimeout: 30 * time.Second,
			ConsentTimeout:    3 * time.Second,
			AuthTimeout:       15 * time.Second,
			DownloadTimeout:   time.Minute,
			SettleDelay:       10 * time.Second,
			TabAttempts:       10,
			Suffixes:          []string{".pdf"},
		},
		Schedule: ScheduleConfig{
			PublishDay: int(time.Friday),
			CutoffHour: 10,
			Timezone:   defaultTimezone,
			ScrapeCron: defaultScrapeCron,
		},
		Providers:         ProviderConfig{Timeout: 2 * time.Minute},
		Generation:        GenConfig{Parallelism: 2},
		SignedTTL:         defaultSignedTTL,
		WorkerConcurrency: defaultWorkerCount,
	}
}

// Load reads configuration from the YAML overlay, .env and the environment,
// then validates it. It follows Go's convention of returning (value, error)
// so callers can handle failures rather than panicking.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Defaults()
	if path := os.Getenv("SCHOOLPOST_CONFIG"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if cfg.TriggerSecret == nil {
		// If no secret was supplied we generate one using crypto/rand.
		cfg.TriggerSecret = randomSecret()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct tags and the fields tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("invalid config: timezone %q: %w", c.Schedule.Timezone, err)
	}
	return nil
}

// Location resolves the configured timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// PublishDay returns the configured publish weekday.
func (c *Config) PublishDay() time.Weekday {
	return time.Weekday(c.Schedule.PublishDay)
}

func (c *Config) overlayFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	// yaml.Unmarshal only touches keys present in the file, so defaults
	// survive for everything else.
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// applyEnv lets SCHOOLPOST_* variables override whatever is already set.
func (c *Config) applyEnv() {
	c.Address = readEnv("SCHOOLPOST_ADDRESS", c.Address)
	c.DatabaseURL = readEnv("SCHOOLPOST_DATABASE_URL", c.DatabaseURL)
	c.RedisAddr = readEnv("SCHOOLPOST_REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = readEnv("SCHOOLPOST_REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = parseInt("SCHOOLPOST_REDIS_DB", c.RedisDB)
	c.LogLevel = readEnv("SCHOOLPOST_LOG_LEVEL", c.LogLevel)

	c.S3.Endpoint = readEnv("SCHOOLPOST_S3_ENDPOINT", c.S3.Endpoint)
	c.S3.AccessKey = readEnv("SCHOOLPOST_S3_ACCESS_KEY", c.S3.AccessKey)
	c.S3.SecretKey = readEnv("SCHOOLPOST_S3_SECRET_KEY", c.S3.SecretKey)
	c.S3.Region = readEnv("SCHOOLPOST_S3_REGION", c.S3.Region)
	c.S3.UseSSL = parseBool("SCHOOLPOST_S3_USE_SSL", c.S3.UseSSL)
	c.S3.Bucket = readEnv("SCHOOLPOST_S3_BUCKET", c.S3.Bucket)
	c.S3.PresignTTL = parseDuration("SCHOOLPOST_S3_PRESIGN_TTL", c.S3.PresignTTL)

	c.Scrape.URL = readEnv("SCHOOLPOST_SCRAPE_URL", c.Scrape.URL)
	c.Scrape.Password = readEnv("SCHOOLPOST_SCRAPE_PASSWORD", c.Scrape.Password)
	c.Scrape.BrowserBin = readEnv("SCHOOLPOST_BROWSER_BIN", c.Scrape.BrowserBin)
	c.Scrape.Headless = parseBool("SCHOOLPOST_HEADLESS", c.Scrape.Headless)
	c.Scrape.NavigationTimeout = parseDuration("SCHOOLPOST_NAVIGATION_TIMEOUT", c.Scrape.NavigationTimeout)
	c.Scrape.ConsentTimeout = parseDuration("SCHOOLPOST_CONSENT_TIMEOUT", c.Scrape.ConsentTimeout)
	c.Scrape.AuthTimeout = parseDuration("SCHOOLPOST_AUTH_TIMEOUT", c.Scrape.AuthTimeout)
	c.Scrape.DownloadTimeout = parseDuration("SCHOOLPOST_DOWNLOAD_TIMEOUT", c.Scrape.DownloadTimeout)
	c.Scrape.SettleDelay = parseDuration("SCHOOLPOST_SETTLE_DELAY", c.Scrape.SettleDelay)
	c.Scrape.TabAttempts = parseInt("SCHOOLPOST_TAB_ATTEMPTS", c.Scrape.TabAttempts)
	c.Scrape.Suffixes = parseList("SCHOOLPOST_DOCUMENT_SUFFIXES", c.Scrape.Suffixes)

	c.Schedule.PublishDay = parseInt("SCHOOLPOST_PUBLISH_DAY", c.Schedule.PublishDay)
	c.Schedule.CutoffHour = parseInt("SCHOOLPOST_CUTOFF_HOUR", c.Schedule.CutoffHour)
	c.Schedule.Timezone = readEnv("SCHOOLPOST_TIMEZONE", c.Schedule.Timezone)
	c.Schedule.ScrapeCron = readEnv("SCHOOLPOST_SCRAPE_CRON", c.Schedule.ScrapeCron)

	p := &c.Providers
	p.GeminiAPIKey = readEnv("GEMINI_API_KEY", p.GeminiAPIKey)
	p.GeminiModel = readEnv("SCHOOLPOST_GEMINI_MODEL", p.GeminiModel)
	p.AnthropicAPIKey = readEnv("ANTHROPIC_API_KEY", p.AnthropicAPIKey)
	p.AnthropicBaseURL = readEnv("SCHOOLPOST_ANTHROPIC_BASE_URL", p.AnthropicBaseURL)
	p.AnthropicModel = readEnv("SCHOOLPOST_ANTHROPIC_MODEL", p.AnthropicModel)
	p.KimiAPIKey = readEnv("KIMI_API_KEY", p.KimiAPIKey)
	p.KimiBaseURL = readEnv("SCHOOLPOST_KIMI_BASE_URL", p.KimiBaseURL)
	p.KimiModel = readEnv("SCHOOLPOST_KIMI_MODEL", p.KimiModel)
	p.OpenRouterAPIKey = readEnv("OPENROUTER_API_KEY", p.OpenRouterAPIKey)
	p.OpenRouterBaseURL = readEnv("SCHOOLPOST_OPENROUTER_BASE_URL", p.OpenRouterBaseURL)
	p.OpenRouterModel = readEnv("SCHOOLPOST_OPENROUTER_MODEL", p.OpenRouterModel)
	p.Timeout = parseDuration("SCHOOLPOST_PROVIDER_TIMEOUT", p.Timeout)

	c.Generation.Parallelism = parseInt("SCHOOLPOST_GENERATION_PARALLELISM", c.Generation.Parallelism)
	c.Generation.PerGroupSheets = parseBool("SCHOOLPOST_PER_GROUP_SHEETS", c.Generation.PerGroupSheets)

	if secret := parseSecret("SCHOOLPOST_TRIGGER_SECRET"); secret != nil {
		c.TriggerSecret = secret
	}
	c.SignedTTL = parseDuration("SCHOOLPOST_SIGNED_TTL", c.SignedTTL)
	c.WorkerConcurrency = parseInt("SCHOOLPOST_WORKERS", c.WorkerConcurrency)
}

func readEnv(key, def string) string {
	// LookupEnv returns (value, true) when the variable is present, mirroring
	// Go's pattern of providing extra information via multiple return values.
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseList(key string, def []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	out := strings.Split(v, ",")
	for i := range out {
		out[i] = strings.TrimSpace(out[i])
	}
	return out
}

func parseInt(key string, def int) int {
	// strconv.Atoi converts strings to integers; invalid input falls back to
	// the current value and validation catches anything out of range.
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	// time.ParseDuration understands inputs like "5m" or "30s".
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseSecret(key string) []byte {
	// In Go, a string can be converted to a []byte slice to work with binary
	// data such as HMAC secrets.
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return []byte(v)
	}
	return nil
}

func randomSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return []byte(hex.EncodeToString([]byte("fallbacksecret")))
	}
	return buf
}
