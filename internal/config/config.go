// The application's root configuration: target site, browser lifecycle knobs,
// session persistence and pacing parameters.
package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	instance *Config
	mu       sync.RWMutex
)

// Config is the root configuration structure for the entire application.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger"`
	Target  TargetConfig  `mapstructure:"target"`
	Browser BrowserConfig `mapstructure:"browser"`
	Session SessionConfig `mapstructure:"session"`
	Engine  EngineConfig  `mapstructure:"engine"`
	History HistoryConfig `mapstructure:"history"`
}

// ColorConfig defines the color settings for different log levels.
// These are used for console output to make logs more readable.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" json:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" json:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" json:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" json:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" json:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" json:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" json:"fatal" yaml:"fatal"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" json:"level" yaml:"level"`
	Format      string      `mapstructure:"format" json:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" json:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" json:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" json:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" json:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" json:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" json:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" json:"colors" yaml:"colors"`
}

// TargetConfig identifies the single site this tool is tuned against.
type TargetConfig struct {
	URL            string `mapstructure:"url"`
	ExpectedDomain string `mapstructure:"expected_domain"`
}

// BrowserConfig holds settings for the managed browser process and the
// timeout tiers applied to individual awaited steps.
type BrowserConfig struct {
	Headless           bool          `mapstructure:"headless"`
	UserAgent          string        `mapstructure:"user_agent"`
	ExtraArgs          []string      `mapstructure:"extra_args"`
	AllowDangerousArgs bool          `mapstructure:"allow_dangerous_args"`
	PageLoadTimeout    time.Duration `mapstructure:"page_load_timeout"`
	SelectorTimeout    time.Duration `mapstructure:"selector_timeout"`
	AnswerTimeout      time.Duration `mapstructure:"answer_timeout"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	PageRecycleAfter   int           `mapstructure:"page_recycle_after"`
}

// SessionConfig controls on-disk persistence of authentication state.
type SessionConfig struct {
	StoragePath string `mapstructure:"storage_path"`
	ExpiryHours int    `mapstructure:"expiry_hours"`
}

// EngineConfig holds settings for the ask/retry loop.
type EngineConfig struct {
	MaxRetries int `mapstructure:"max_retries"`
}

// HistoryConfig holds settings for the chat-history database.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// SessionExpiry converts the configured expiry window to a duration.
func (s SessionConfig) SessionExpiry() time.Duration {
	return time.Duration(s.ExpiryHours) * time.Hour
}

// Validate performs basic sanity checks on loaded values.
func (c *Config) Validate() error {
	if c.Target.URL == "" {
		return fmt.Errorf("target.url must be configured")
	}
	if c.Engine.MaxRetries < 0 {
		return fmt.Errorf("engine.max_retries must not be negative")
	}
	if c.Session.ExpiryHours <= 0 {
		return fmt.Errorf("session.expiry_hours must be positive")
	}
	if c.Browser.PageRecycleAfter < 0 {
		return fmt.Errorf("browser.page_recycle_after must not be negative")
	}
	return nil
}

// SetDefaults installs default values so the app can run with a minimal config.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "perplexity-zerver")

	v.SetDefault("target.url", "https://www.perplexity.ai")
	v.SetDefault("target.expected_domain", "www.perplexity.ai")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	v.SetDefault("browser.page_load_timeout", 60*time.Second)
	v.SetDefault("browser.selector_timeout", 5*time.Second)
	v.SetDefault("browser.answer_timeout", 120*time.Second)
	v.SetDefault("browser.idle_timeout", 5*time.Minute)
	v.SetDefault("browser.page_recycle_after", 50)

	v.SetDefault("session.storage_path", ".sessions")
	v.SetDefault("session.expiry_hours", 24)

	v.SetDefault("engine.max_retries", 3)

	v.SetDefault("history.enabled", false)
}

// Load initializes the configuration from Viper and stores it globally.
func Load(v *viper.Viper) error {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	Set(&cfg)
	return nil
}

// Set stores the configuration instance. Exposed for tests and early bootstrap.
func Set(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = cfg
}

// Get returns the loaded configuration instance.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if instance == nil {
		panic("Configuration not initialized. Call config.Load() in the root command.")
	}
	return instance
}
