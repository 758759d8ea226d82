package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSearchesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeSearchesFile(t, `{
		"discord_webhook_url": "https://discord.com/api/webhooks/1/abc",
		"check_interval_minutes": 30,
		"database_path": "./test/listings.db",
		"searches": [
			{"source": "bazos_sk", "name": "fabia", "search_term": "skoda fabia", "price_max": "3000"}
		]
	}`)
	os.Setenv("SEARCHES_FILE", path)
	defer os.Unsetenv("SEARCHES_FILE")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://discord.com/api/webhooks/1/abc", cfg.DiscordWebhookURL)
	assert.Equal(t, "./test/listings.db", cfg.DatabasePath)
	assert.Equal(t, 30*time.Minute, cfg.CheckInterval)
	assert.Equal(t, 30, cfg.CleanupDays)
	assert.Equal(t, "listings", cfg.RedisStream)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.MemcacheAddr)

	require.Len(t, cfg.Searches, 1)
	assert.Equal(t, "bazos_sk", cfg.Searches[0].Source)
	assert.Equal(t, "skoda fabia", cfg.Searches[0].SearchTerm)
	assert.Equal(t, "3000", cfg.Searches[0].PriceMax)

	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeSearchesFile(t, `{
		"discord_webhook_url": "https://discord.com/api/webhooks/1/file",
		"check_interval_minutes": 30,
		"searches": [{"source": "bazos_cz", "url": "https://auto.bazos.cz/?hledat=octavia"}]
	}`)

	os.Setenv("SEARCHES_FILE", path)
	os.Setenv("DISCORD_WEBHOOK_URL", "https://discord.com/api/webhooks/2/env")
	os.Setenv("CHECK_INTERVAL_MINUTES", "5")
	os.Setenv("DATABASE_PATH", "/tmp/env.db")
	os.Setenv("REDIS_ADDR", "redis.example.com:6379")
	os.Setenv("REDIS_DB", "1")
	os.Setenv("MEMCACHE_ADDR", "memcache.example.com:11211")
	defer func() {
		os.Unsetenv("SEARCHES_FILE")
		os.Unsetenv("DISCORD_WEBHOOK_URL")
		os.Unsetenv("CHECK_INTERVAL_MINUTES")
		os.Unsetenv("DATABASE_PATH")
		os.Unsetenv("REDIS_ADDR")
		os.Unsetenv("REDIS_DB")
		os.Unsetenv("MEMCACHE_ADDR")
	}()

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://discord.com/api/webhooks/2/env", cfg.DiscordWebhookURL)
	assert.Equal(t, 5*time.Minute, cfg.CheckInterval)
	assert.Equal(t, "/tmp/env.db", cfg.DatabasePath)
	assert.Equal(t, "redis.example.com:6379", cfg.RedisAddr)
	assert.Equal(t, 1, cfg.RedisDB)
	assert.Equal(t, "memcache.example.com:11211", cfg.MemcacheAddr)
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeSearchesFile(t, `{"searches": [{"source": "bazos_sk", "search_term": "fiat 500"}]}`)
	os.Setenv("SEARCHES_FILE", path)
	defer os.Unsetenv("SEARCHES_FILE")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "./data/listings.db", cfg.DatabasePath)
	assert.Equal(t, 15*time.Minute, cfg.CheckInterval)
}

func TestLoadConfigMissingFile(t *testing.T) {
	os.Setenv("SEARCHES_FILE", filepath.Join(t.TempDir(), "absent.json"))
	defer os.Unsetenv("SEARCHES_FILE")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigInvalidJSON(t *testing.T) {
	path := writeSearchesFile(t, `{"searches": [`)
	os.Setenv("SEARCHES_FILE", path)
	defer os.Unsetenv("SEARCHES_FILE")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestValidateNoSearches(t *testing.T) {
	path := writeSearchesFile(t, `{"searches": []}`)
	os.Setenv("SEARCHES_FILE", path)
	defer os.Unsetenv("SEARCHES_FILE")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}
