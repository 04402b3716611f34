package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/maltedev/basket-harvester/internal/browser"
	"github.com/maltedev/basket-harvester/internal/database"
	"github.com/maltedev/basket-harvester/internal/scraper"
)

type Config struct {
	Server   ServerConfig
	Harvest  HarvestConfig
	Browser  BrowserConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Relay    RelayConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type HarvestConfig struct {
	Profile         string
	ProfileFile     string
	Output          string
	OutputDir       string
	MaxPages        int
	ConnectAttempts int
	ConnectDelay    time.Duration
	ReadyTimeout    time.Duration
	ControlTimeout  time.Duration
	SettleDelay     time.Duration
	PageLoadDelay   time.Duration
	PageDelay       time.Duration
	RequestTimeout  time.Duration
	UserAgent       string
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	StreamMaxLen int
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	defaults := scraper.DefaultOptions()
	browserDefaults := browser.DefaultOptions()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://localhost:*"}),
		},
		Harvest: HarvestConfig{
			Profile:         getEnvOrDefault("HARVEST_PROFILE", "walmart"),
			ProfileFile:     getEnvOrDefault("HARVEST_PROFILE_FILE", ""),
			Output:          getEnvOrDefault("HARVEST_OUTPUT", ""),
			OutputDir:       getEnvOrDefault("HARVEST_OUTPUT_DIR", "output"),
			MaxPages:        getIntOrDefault("HARVEST_MAX_PAGES", defaults.MaxPages),
			ConnectAttempts: getIntOrDefault("HARVEST_CONNECT_ATTEMPTS", defaults.ConnectAttempts),
			ConnectDelay:    getDurationOrDefault("HARVEST_CONNECT_DELAY", defaults.ConnectDelay),
			ReadyTimeout:    getDurationOrDefault("HARVEST_READY_TIMEOUT", defaults.ReadyTimeout),
			ControlTimeout:  getDurationOrDefault("HARVEST_CONTROL_TIMEOUT", defaults.ControlTimeout),
			SettleDelay:     getDurationOrDefault("HARVEST_SETTLE_DELAY", defaults.SettleDelay),
			PageLoadDelay:   getDurationOrDefault("HARVEST_PAGE_LOAD_DELAY", defaults.PageLoadDelay),
			PageDelay:       getDurationOrDefault("HARVEST_PAGE_DELAY", defaults.PageDelay),
			RequestTimeout:  getDurationOrDefault("HARVEST_REQUEST_TIMEOUT", defaults.RequestTimeout),
			UserAgent:       getEnvOrDefault("HARVEST_USER_AGENT", defaults.UserAgent),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", browserDefaults.Timeout),
			UserAgent:      getEnvOrDefault("BROWSER_USER_AGENT", browserDefaults.UserAgent),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1200),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 900),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "en-CA,en;q=0.9"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "America/Toronto"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-CA"),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolOrDefault("DB_ENABLED", false),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "basket_harvester"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: getIntOrDefault("DB_MAX_CONNS", 5),
		},
		Redis: RedisConfig{
			Enabled:  getBoolOrDefault("REDIS_ENABLED", false),
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
		},
		Relay: RelayConfig{
			PollInterval: getDurationOrDefault("RELAY_POLL_INTERVAL", 5*time.Second),
			BatchSize:    getIntOrDefault("RELAY_BATCH_SIZE", 100),
			StreamMaxLen: getIntOrDefault("RELAY_STREAM_MAXLEN", 100000),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Harvest.MaxPages < 1 {
		errs = append(errs, fmt.Errorf("HARVEST_MAX_PAGES must be at least 1"))
	}

	if c.Harvest.ConnectAttempts < 1 {
		errs = append(errs, fmt.Errorf("HARVEST_CONNECT_ATTEMPTS must be at least 1"))
	}

	durations := []struct {
		key   string
		value time.Duration
	}{
		{"HARVEST_CONNECT_DELAY", c.Harvest.ConnectDelay},
		{"HARVEST_SETTLE_DELAY", c.Harvest.SettleDelay},
		{"HARVEST_PAGE_LOAD_DELAY", c.Harvest.PageLoadDelay},
		{"HARVEST_PAGE_DELAY", c.Harvest.PageDelay},
	}
	for _, d := range durations {
		if d.value < 0 {
			errs = append(errs, fmt.Errorf("%s cannot be negative", d.key))
		}
	}

	// playwright treats a zero timeout as no timeout at all
	timeouts := []struct {
		key   string
		value time.Duration
	}{
		{"HARVEST_READY_TIMEOUT", c.Harvest.ReadyTimeout},
		{"HARVEST_CONTROL_TIMEOUT", c.Harvest.ControlTimeout},
		{"HARVEST_REQUEST_TIMEOUT", c.Harvest.RequestTimeout},
		{"BROWSER_TIMEOUT", c.Browser.Timeout},
	}
	for _, d := range timeouts {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", d.key))
		}
	}

	if c.Harvest.UserAgent == "" {
		errs = append(errs, fmt.Errorf("HARVEST_USER_AGENT cannot be empty"))
	}

	if c.Relay.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("RELAY_BATCH_SIZE must be at least 1"))
	}

	if c.Relay.StreamMaxLen < 0 {
		errs = append(errs, fmt.Errorf("RELAY_STREAM_MAXLEN cannot be negative"))
	}

	if c.Redis.Enabled && !c.Database.Enabled {
		errs = append(errs, fmt.Errorf("REDIS_ENABLED requires DB_ENABLED, the relay reads the outbox"))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// ScraperOptions maps the harvest and browser settings onto the crawler.
func (c *Config) ScraperOptions() scraper.Options {
	opts := scraper.DefaultOptions()

	opts.MaxPages = c.Harvest.MaxPages
	opts.ConnectAttempts = c.Harvest.ConnectAttempts
	opts.ConnectDelay = c.Harvest.ConnectDelay
	opts.ReadyTimeout = c.Harvest.ReadyTimeout
	opts.ControlTimeout = c.Harvest.ControlTimeout
	opts.SettleDelay = c.Harvest.SettleDelay
	opts.PageLoadDelay = c.Harvest.PageLoadDelay
	opts.PageDelay = c.Harvest.PageDelay
	opts.RequestTimeout = c.Harvest.RequestTimeout
	opts.UserAgent = c.Harvest.UserAgent

	b := browser.DefaultOptions()
	b.Headless = c.Browser.Headless
	b.Timeout = c.Browser.Timeout
	b.UserAgent = c.Browser.UserAgent
	b.ViewportWidth = c.Browser.ViewportWidth
	b.ViewportHeight = c.Browser.ViewportHeight
	b.AcceptLanguage = c.Browser.AcceptLanguage
	b.TimezoneID = c.Browser.TimezoneID
	b.Locale = c.Browser.Locale
	opts.Browser = b

	return opts
}

func (c *Config) DatabaseConfig() database.Config {
	return database.Config{
		Host:     c.Database.Host,
		Port:     c.Database.Port,
		User:     c.Database.User,
		Password: c.Database.Password,
		Database: c.Database.DBName,
		SSLMode:  c.Database.SSLMode,
		MaxConns: int32(c.Database.MaxConns),
	}
}

// OutputPath is the configured artifact path, or <profile>.csv.
func (c *Config) OutputPath(profile string) string {
	if c.Harvest.Output != "" {
		return c.Harvest.Output
	}
	return profile + ".csv"
}

func (c *Config) RelayConfig() database.RelayConfig {
	return database.RelayConfig{
		PollInterval: c.Relay.PollInterval,
		BatchSize:    c.Relay.BatchSize,
		StreamMaxLen: int64(c.Relay.StreamMaxLen),
	}
}

func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
