package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"fundingwatch/internal/symbols"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Logging    LoggingConfig    `yaml:"logging"`
	Reader     ReaderConfig     `yaml:"reader"`
	Exchanges  ExchangesConfig  `yaml:"exchanges"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Refresh    RefreshConfig    `yaml:"refresh"`
	Symbols    []string         `yaml:"symbols"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type ReaderConfig struct {
	Timeout   time.Duration   `yaml:"timeout"`
	UserAgent string          `yaml:"user_agent"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	Burst             int `yaml:"burst"`
}

type ExchangesConfig struct {
	Binance BinanceConfig `yaml:"binance"`
	Bybit   BybitConfig   `yaml:"bybit"`
}

type BinanceConfig struct {
	BaseURL string `yaml:"base_url"`
}

type BybitConfig struct {
	BaseURL  string `yaml:"base_url"`
	Category string `yaml:"category"`
}

type ReconcilerConfig struct {
	MaxWorkers int `yaml:"max_workers"`
}

type RefreshConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// DashboardConfig configures the embedded web dashboard.
type DashboardConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Address    string `yaml:"address"`
	LogHistory int    `yaml:"log_history"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Region          string `yaml:"region"`
	Namespace       string `yaml:"namespace"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

const (
	DefaultBinanceURL = "https://fapi.binance.com"
	DefaultBybitURL   = "https://api.bybit.com"
	DefaultUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

// Default returns the configuration used when a key is absent from the file.
func Default() Config {
	return Config{
		App: AppConfig{Name: "fundingwatch", Version: "dev"},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Reader: ReaderConfig{
			Timeout:   5 * time.Second,
			UserAgent: DefaultUserAgent,
			RateLimit: RateLimitConfig{RequestsPerSecond: 10, Burst: 5},
		},
		Exchanges: ExchangesConfig{
			Binance: BinanceConfig{BaseURL: DefaultBinanceURL},
			Bybit:   BybitConfig{BaseURL: DefaultBybitURL, Category: "linear"},
		},
		Reconciler: ReconcilerConfig{MaxWorkers: 8},
		Refresh:    RefreshConfig{Interval: 30 * time.Second},
		Symbols:    symbols.Default(),
		Dashboard: DashboardConfig{
			Enabled:    true,
			Address:    ":8080",
			LogHistory: 200,
		},
		Metrics: MetricsConfig{
			CloudWatch: CloudWatchConfig{Namespace: "FundingWatch"},
		},
	}
}

// LoadConfig reads the YAML file at path on top of Default, applies
// environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse is LoadConfig without the file read.
func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyEnv(config *Config) {
	if v := os.Getenv("FUNDINGWATCH_SYMBOLS"); strings.TrimSpace(v) != "" {
		config.Symbols = symbols.Parse(v)
	}
	if v := os.Getenv("DASHBOARD_ADDRESS"); v != "" {
		config.Dashboard.Address = strings.TrimSpace(v)
	}

	cw := &config.Metrics.CloudWatch
	if cw.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			cw.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			cw.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			cw.Region = strings.TrimSpace(v)
		}
	}
}

func validateConfig(cfg *Config) error {
	if cfg.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}

	if cfg.App.Version == "" {
		return fmt.Errorf("app.version is required")
	}

	if cfg.Reader.Timeout <= 0 {
		return fmt.Errorf("reader.timeout must be greater than 0")
	}
	if cfg.Reader.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("reader.rate_limit.requests_per_second must be greater than 0")
	}
	if cfg.Reader.RateLimit.Burst <= 0 {
		return fmt.Errorf("reader.rate_limit.burst must be greater than 0")
	}

	if err := validateBaseURL("exchanges.binance.base_url", cfg.Exchanges.Binance.BaseURL); err != nil {
		return err
	}
	if err := validateBaseURL("exchanges.bybit.base_url", cfg.Exchanges.Bybit.BaseURL); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Exchanges.Bybit.Category) == "" {
		return fmt.Errorf("exchanges.bybit.category is required")
	}

	if cfg.Reconciler.MaxWorkers <= 0 {
		return fmt.Errorf("reconciler.max_workers must be greater than 0")
	}

	if cfg.Refresh.Interval <= 0 {
		return fmt.Errorf("refresh.interval must be greater than 0")
	}

	if err := symbols.Validate(cfg.Symbols); err != nil {
		return fmt.Errorf("symbols: %w", err)
	}

	if cfg.Metrics.CloudWatch.Enabled && cfg.Metrics.CloudWatch.Region == "" {
		return fmt.Errorf("metrics.cloudwatch.region is required when CloudWatch is enabled")
	}

	return nil
}

func validateBaseURL(key, raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", key, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", key, raw)
	}
	return nil
}
