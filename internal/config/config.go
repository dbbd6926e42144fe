package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
	Exchanges ExchangesConfig `yaml:"exchanges"`
	Collector CollectorConfig `yaml:"collector"`
	Analyzer  AnalyzerConfig  `yaml:"analyzer"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Sink      SinkConfig      `yaml:"sink"`
}

// AppConfig represents application configuration
type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	DBName         string        `yaml:"dbname"`
	SSLMode        string        `yaml:"sslmode"`
	MaxOpen        int           `yaml:"max_open"`
	MaxIdle        int           `yaml:"max_idle"`
	Timeout        time.Duration `yaml:"timeout"`
	MigrationsPath string        `yaml:"migrations_path"`
}

// RedisConfig represents Redis configuration
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	Filename   string `yaml:"filename"`
	MaxSize    int    `yaml:"max_size"`
	MaxAge     int    `yaml:"max_age"`
	MaxBackups int    `yaml:"max_backups"`
	Compress   bool   `yaml:"compress"`
}

// ExchangesConfig represents the set of configured exchange clients
type ExchangesConfig map[string]ExchangeConfig

// ExchangeConfig represents a single exchange client configuration
type ExchangeConfig struct {
	Enabled         bool          `yaml:"enabled"`
	BaseURL         string        `yaml:"base_url"`
	WSURL           string        `yaml:"ws_url"`
	FundingInterval time.Duration `yaml:"funding_interval"`
	Timeout         time.Duration `yaml:"timeout"`
	RateLimit       float64       `yaml:"rate_limit"`
	RateBurst       int           `yaml:"rate_burst"`
}

// CollectorConfig represents funding event collection configuration
type CollectorConfig struct {
	MinQuorum      int           `yaml:"min_quorum"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	FetchRetries   int           `yaml:"fetch_retries"`
	WindowBefore   time.Duration `yaml:"window_before"`
	WindowAfter    time.Duration `yaml:"window_after"`
	CandleSource   string        `yaml:"candle_source"`
	CandleInterval time.Duration `yaml:"candle_interval"`
	OrderBookDepth int           `yaml:"order_book_depth"`
}

// AnalyzerConfig represents analysis configuration
type AnalyzerConfig struct {
	OffsetTolerance   time.Duration `yaml:"offset_tolerance"`
	ShortMAPeriod     int           `yaml:"short_ma_period"`
	MediumMAPeriod    int           `yaml:"medium_ma_period"`
	LongMAPeriod      int           `yaml:"long_ma_period"`
	RSIPeriod         int           `yaml:"rsi_period"`
	MACDFastPeriod    int           `yaml:"macd_fast_period"`
	MACDSlowPeriod    int           `yaml:"macd_slow_period"`
	CorrelatedSymbols []string      `yaml:"correlated_symbols"`
}

// SchedulerConfig represents scheduling configuration
type SchedulerConfig struct {
	Symbols        []string      `yaml:"symbols"`
	Cron           string        `yaml:"cron"`
	Interval       time.Duration `yaml:"interval"`
	RunTimeout     time.Duration `yaml:"run_timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// SinkConfig represents result sink configuration
type SinkConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// Load loads configuration from a YAML file and applies env overrides
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Default returns the configuration defaults
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:    "fundscope",
			Version: "1.0.0",
			Env:     "development",
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			SSLMode:        "disable",
			MaxOpen:        25,
			MaxIdle:        5,
			Timeout:        5 * time.Second,
			MigrationsPath: "migrations",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Collector: CollectorConfig{
			MinQuorum:      1,
			FetchTimeout:   10 * time.Second,
			FetchRetries:   2,
			WindowBefore:   time.Minute,
			WindowAfter:    6 * time.Minute,
			CandleSource:   "bitget",
			CandleInterval: time.Minute,
			OrderBookDepth: 20,
		},
		Analyzer: AnalyzerConfig{
			OffsetTolerance: 30 * time.Second,
			ShortMAPeriod:   20,
			MediumMAPeriod:  50,
			LongMAPeriod:    200,
			RSIPeriod:       14,
			MACDFastPeriod:  12,
			MACDSlowPeriod:  26,
		},
		Scheduler: SchedulerConfig{
			RunTimeout:     2 * time.Minute,
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
		},
		Sink: SinkConfig{
			CacheTTL: 8 * time.Hour,
		},
	}
}

// Validate checks configuration invariants
func (c *Config) Validate() error {
	if c.Collector.MinQuorum < 1 {
		return fmt.Errorf("collector.min_quorum must be at least 1, got %d", c.Collector.MinQuorum)
	}
	if c.Collector.WindowBefore <= 0 || c.Collector.WindowAfter <= 0 {
		return fmt.Errorf("collector candle window must be positive")
	}
	if c.Analyzer.ShortMAPeriod <= 0 || c.Analyzer.MediumMAPeriod <= 0 || c.Analyzer.LongMAPeriod <= 0 {
		return fmt.Errorf("analyzer moving average periods must be positive")
	}
	if c.Analyzer.MACDFastPeriod >= c.Analyzer.MACDSlowPeriod {
		return fmt.Errorf("analyzer macd_fast_period must be less than macd_slow_period")
	}
	if c.Scheduler.MaxAttempts < 1 {
		return fmt.Errorf("scheduler.max_attempts must be at least 1, got %d", c.Scheduler.MaxAttempts)
	}
	if c.Scheduler.Cron != "" && c.Scheduler.Interval > 0 {
		return fmt.Errorf("scheduler cron and interval are mutually exclusive")
	}
	for name, ex := range c.Exchanges {
		if !ex.Enabled {
			continue
		}
		if ex.BaseURL == "" {
			return fmt.Errorf("exchange %s: base_url is required", name)
		}
		// funding_interval 0 means detect per symbol from settlement history
		if ex.FundingInterval < 0 {
			return fmt.Errorf("exchange %s: funding_interval cannot be negative", name)
		}
	}
	return nil
}
