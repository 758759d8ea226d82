package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	apperr "github.com/peter115342/bazos-alert-bot/pkg/errors"
)

// SearchConfig describes one saved search watched by the bot.
// Either URL or SearchTerm must be present; URL takes precedence.
type SearchConfig struct {
	Source     string `json:"source"`
	Name       string `json:"name,omitempty"`
	URL        string `json:"url,omitempty"`
	SearchTerm string `json:"search_term,omitempty"`
	PriceMin   string `json:"price_min,omitempty"`
	PriceMax   string `json:"price_max,omitempty"`
	Location   string `json:"location,omitempty"`
	Radius     string `json:"radius,omitempty"`
	Order      string `json:"order,omitempty"`
	MaxPages   int    `json:"max_pages,omitempty"`
}

// Config represents the application configuration
type Config struct {
	// Notification configuration
	DiscordWebhookURL string

	// Store configuration
	DatabasePath string
	CleanupDays  int

	// Redis event stream configuration (disabled when RedisAddr is empty)
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamCount     int
	RedisStreamMaxLength int

	// Memcache configuration (disabled when MemcacheAddr is empty)
	MemcacheAddr string

	// Cycle configuration
	CheckInterval time.Duration

	// Saved searches
	SearchesFile string
	Searches     []SearchConfig

	// Environment
	Environment string
}

// searchesFile is the on-disk JSON document holding the saved searches.
// Infrastructure values in the file are fallbacks; environment wins.
type searchesFile struct {
	DiscordWebhookURL    string         `json:"discord_webhook_url,omitempty"`
	CheckIntervalMinutes int            `json:"check_interval_minutes,omitempty"`
	DatabasePath         string         `json:"database_path,omitempty"`
	Searches             []SearchConfig `json:"searches"`
}

// LoadConfig loads the configuration from environment variables and the
// searches file, with environment values taking precedence
func LoadConfig() (*Config, error) {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	streamCount, _ := strconv.Atoi(getEnv("REDIS_STREAM_COUNT", "1"))
	streamMaxLen, _ := strconv.Atoi(getEnv("REDIS_STREAM_MAX_LENGTH", "1000"))
	intervalMinutes, _ := strconv.Atoi(getEnv("CHECK_INTERVAL_MINUTES", "0"))
	cleanupDays, _ := strconv.Atoi(getEnv("CLEANUP_DAYS", "30"))

	cfg := &Config{
		DiscordWebhookURL:    os.Getenv("DISCORD_WEBHOOK_URL"),
		DatabasePath:         os.Getenv("DATABASE_PATH"),
		CleanupDays:          cleanupDays,
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisDB:              redisDB,
		RedisStream:          getEnv("REDIS_STREAM", "listings"),
		RedisStreamCount:     streamCount,
		RedisStreamMaxLength: streamMaxLen,
		MemcacheAddr:         os.Getenv("MEMCACHE_ADDR"),
		SearchesFile:         getEnv("SEARCHES_FILE", "./config.json"),
		Environment:          getEnv("BAZOS_ENVIRONMENT", "development"),
	}

	file, err := loadSearchesFile(cfg.SearchesFile)
	if err != nil {
		return nil, err
	}

	cfg.Searches = file.Searches
	if cfg.DiscordWebhookURL == "" {
		cfg.DiscordWebhookURL = file.DiscordWebhookURL
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = file.DatabasePath
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "./data/listings.db"
	}
	if intervalMinutes <= 0 {
		intervalMinutes = file.CheckIntervalMinutes
	}
	if intervalMinutes <= 0 {
		intervalMinutes = 15
	}
	cfg.CheckInterval = time.Duration(intervalMinutes) * time.Minute

	return cfg, nil
}

// loadSearchesFile reads and parses the searches JSON document
func loadSearchesFile(path string) (*searchesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.NewConfiguration("searches file not readable: "+path, err)
	}

	var file searchesFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, apperr.NewConfiguration("searches file is not valid JSON: "+path, err)
	}

	return &file, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if len(c.Searches) == 0 {
		return apperr.NewConfiguration("no searches configured in "+c.SearchesFile, nil)
	}
	if c.CheckInterval <= 0 {
		return apperr.NewConfiguration("check interval must be positive", nil)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
