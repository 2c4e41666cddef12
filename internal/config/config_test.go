package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("EVENTS_ENABLED", "")
	t.Setenv("QUESTION_CACHE_TTL_SECONDS", "")

	cfg := Load()
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.False(t, cfg.EventsEnabled)
	assert.Equal(t, 10*time.Minute, cfg.QuestionCacheTTL)
	assert.Equal(t, 100, cfg.ExpiryBatchSize)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", StoreDriverMemory)
	t.Setenv("EVENTS_ENABLED", "true")
	t.Setenv("EXPIRY_POLL_SECONDS", "2")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092 ,")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test")

	cfg := Load()
	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.True(t, cfg.EventsEnabled)
	assert.Equal(t, 2*time.Second, cfg.ExpiryPoll)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, []string{"http://a.test"}, cfg.AllowedOrigins)
}

func TestGetEnvFallbacks(t *testing.T) {
	t.Setenv("X_INT", "nope")
	t.Setenv("X_BOOL", "maybe")
	assert.Equal(t, 7, getEnvInt("X_INT", 7))
	assert.True(t, getEnvBool("X_BOOL", true))
	assert.Nil(t, parseList(""))
}
