package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/maltedev/ksa-price-scraper/internal/cache"
	"github.com/maltedev/ksa-price-scraper/internal/compare"
	"github.com/maltedev/ksa-price-scraper/internal/fetch"
	"github.com/maltedev/ksa-price-scraper/internal/models"
	"github.com/maltedev/ksa-price-scraper/internal/proxy"
)

type Config struct {
	Server  ServerConfig
	Scraper ScraperConfig
	Browser BrowserConfig
	Cache   CacheConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Port            string `validate:"required,numeric"`
	Host            string
	ReadTimeout     time.Duration `validate:"gt=0"`
	WriteTimeout    time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
	MaxJobs         int           `validate:"min=1"`
}

type ScraperConfig struct {
	City              string `validate:"required"`
	Stores            []string
	UseProxy          bool
	Proxies           []string
	ProxyFile         string
	ConcurrentLimit   int           `validate:"min=1,max=32"`
	StoreDelayMin     time.Duration `validate:"gte=0"`
	StoreDelayMax     time.Duration `validate:"gte=0"`
	RequestsPerSecond float64       `validate:"gte=0"`
}

type BrowserConfig struct {
	Backend        string `validate:"oneof=playwright chromedp http"`
	Headless       bool
	NavTimeout     time.Duration `validate:"gt=0"`
	ReadyTimeout   time.Duration `validate:"gt=0"`
	SettleMin      time.Duration `validate:"gte=0"`
	SettleMax      time.Duration `validate:"gte=0"`
	Locale         string        `validate:"required"`
	TimezoneID     string        `validate:"required"`
	AcceptLanguage string        `validate:"required"`
	UserAgent      string        `validate:"required"`
	BlockImages    bool
}

type CacheConfig struct {
	TTL           time.Duration `validate:"gt=0"`
	Capacity      int           `validate:"min=1"`
	RedisAddr     string
	RedisPassword string
	RedisDB       int `validate:"gte=0"`
	RedisPrefix   string
}

type LoggingConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=json text"`
}

// LoadDotEnv reads the given files (".env" when none) into the process
// environment. Missing files are ignored; existing variables win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

func Load() (*Config, error) {
	profile := fetch.DefaultProfile()
	browser := fetch.DefaultOptions()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			MaxJobs:         getIntOrDefault("API_MAX_JOBS", 50),
		},
		Scraper: ScraperConfig{
			City:              getEnvOrDefault("SCRAPER_CITY", string(models.CityRiyadh)),
			Stores:            getStringSliceOrDefault("SCRAPER_STORES", nil),
			UseProxy:          getBoolOrDefault("SCRAPER_USE_PROXY", true),
			Proxies:           getStringSliceOrDefault("SCRAPER_PROXIES", nil),
			ProxyFile:         getEnvOrDefault("SCRAPER_PROXY_FILE", ""),
			ConcurrentLimit:   getIntOrDefault("SCRAPER_CONCURRENT_LIMIT", compare.DefaultConcurrency),
			StoreDelayMin:     getDurationOrDefault("SCRAPER_STORE_DELAY_MIN", 0),
			StoreDelayMax:     getDurationOrDefault("SCRAPER_STORE_DELAY_MAX", 0),
			RequestsPerSecond: getFloatOrDefault("SCRAPER_REQUESTS_PER_SECOND", 0),
		},
		Browser: BrowserConfig{
			Backend:        getEnvOrDefault("FETCH_BACKEND", fetch.BackendPlaywright),
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", browser.Headless),
			NavTimeout:     getDurationOrDefault("BROWSER_NAV_TIMEOUT", browser.NavigationTimeout),
			ReadyTimeout:   getDurationOrDefault("BROWSER_READY_TIMEOUT", browser.ReadyTimeout),
			SettleMin:      getDurationOrDefault("BROWSER_SETTLE_MIN", browser.SettleMin),
			SettleMax:      getDurationOrDefault("BROWSER_SETTLE_MAX", browser.SettleMax),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", profile.Locale),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", profile.TimezoneID),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", profile.AcceptLanguage),
			UserAgent:      getEnvOrDefault("BROWSER_USER_AGENT", profile.UserAgent),
			BlockImages:    getBoolOrDefault("BROWSER_BLOCK_IMAGES", profile.BlockImages),
		},
		Cache: CacheConfig{
			TTL:           getDurationOrDefault("CACHE_TTL", cache.DefaultTTL),
			Capacity:      getIntOrDefault("CACHE_CAPACITY", cache.DefaultCapacity),
			RedisAddr:     getEnvOrDefault("CACHE_REDIS_ADDR", ""),
			RedisPassword: getEnvOrDefault("CACHE_REDIS_PASSWORD", ""),
			RedisDB:       getIntOrDefault("CACHE_REDIS_DB", 0),
			RedisPrefix:   getEnvOrDefault("CACHE_REDIS_PREFIX", cache.DefaultRedisPrefix),
		},
		Logging: LoggingConfig{
			Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnvOrDefault("LOG_FORMAT", "json")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if _, err := models.ParseCity(c.Scraper.City); err != nil {
		return fmt.Errorf("SCRAPER_CITY: %w", err)
	}

	if c.Scraper.StoreDelayMin > c.Scraper.StoreDelayMax {
		return fmt.Errorf("SCRAPER_STORE_DELAY_MIN cannot be greater than SCRAPER_STORE_DELAY_MAX")
	}

	if c.Browser.SettleMin > c.Browser.SettleMax {
		return fmt.Errorf("BROWSER_SETTLE_MIN cannot be greater than BROWSER_SETTLE_MAX")
	}

	return nil
}

// City returns the validated default city.
func (c *Config) City() models.City {
	city, _ := models.ParseCity(c.Scraper.City)
	return city
}

// StoreIDs returns the configured default stores, or nil for all of them.
func (c *Config) StoreIDs() []models.StoreID {
	return models.ParseStoreIDs(strings.Join(c.Scraper.Stores, ","))
}

// FetchOptions applies the browser settings on top of the default profile.
func (c *Config) FetchOptions() fetch.Options {
	opts := fetch.DefaultOptions()
	opts.Headless = c.Browser.Headless
	opts.NavigationTimeout = c.Browser.NavTimeout
	opts.ReadyTimeout = c.Browser.ReadyTimeout
	opts.SettleMin = c.Browser.SettleMin
	opts.SettleMax = c.Browser.SettleMax
	opts.Profile.Locale = c.Browser.Locale
	opts.Profile.TimezoneID = c.Browser.TimezoneID
	opts.Profile.AcceptLanguage = c.Browser.AcceptLanguage
	opts.Profile.UserAgent = c.Browser.UserAgent
	opts.Profile.BlockImages = c.Browser.BlockImages
	return opts
}

// ProxyPool parses SCRAPER_PROXIES followed by the entries of
// SCRAPER_PROXY_FILE.
func (c *Config) ProxyPool() ([]proxy.Endpoint, error) {
	pool, err := proxy.ParseList(c.Scraper.Proxies)
	if err != nil {
		return nil, fmt.Errorf("SCRAPER_PROXIES: %w", err)
	}

	if c.Scraper.ProxyFile != "" {
		fromFile, err := proxy.LoadFile(c.Scraper.ProxyFile)
		if err != nil {
			return nil, err
		}
		pool = append(pool, fromFile...)
	}

	return pool, nil
}

// CompareConfig builds the orchestrator settings for the given proxy pool.
func (c *Config) CompareConfig(pool []proxy.Endpoint) compare.Config {
	return compare.Config{
		UseProxy:          c.Scraper.UseProxy,
		Proxies:           pool,
		Concurrency:       c.Scraper.ConcurrentLimit,
		CacheTTL:          c.Cache.TTL,
		ReadyTimeout:      c.Browser.ReadyTimeout,
		StoreDelayMin:     c.Scraper.StoreDelayMin,
		StoreDelayMax:     c.Scraper.StoreDelayMax,
		RequestsPerSecond: c.Scraper.RequestsPerSecond,
	}
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

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
