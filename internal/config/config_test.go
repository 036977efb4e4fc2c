package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		for _, key := range []string{
			"HTTP_PORT", "TRACKING_BATCH_CEILING", "TRACKING_COOLDOWN", "TRACKING_CALL_INTERVAL",
			"TRACKING_RATE_LIMIT_BACKOFF", "COURIER_BALANCE_TTL", "KAFKA_BROKERS", "KAFKA_TOPIC", "JWT_TTL",
		} {
			t.Setenv(key, "")
		}

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "9000", cfg.HTTPPort)
		assert.Equal(t, 50, cfg.Tracking.BatchCeiling)
		assert.Equal(t, time.Hour, cfg.Tracking.Cooldown)
		assert.Equal(t, 500*time.Millisecond, cfg.Tracking.CallInterval)
		assert.Equal(t, 10*time.Second, cfg.Tracking.RateLimitBackoff)
		assert.Equal(t, 5*time.Minute, cfg.Courier.BalanceTTL)
		assert.Equal(t, 12*time.Hour, cfg.Auth.TokenTTL)
		assert.Equal(t, "fulfillment_events", cfg.Kafka.Topic)
		assert.Empty(t, cfg.Kafka.Brokers)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("DB_HOST", "db.internal")
		t.Setenv("DB_PORT", "6543")
		t.Setenv("POSTGRES_USER", "svc")
		t.Setenv("POSTGRES_PASSWORD", "pw")
		t.Setenv("POSTGRES_DB", "orders")
		t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
		t.Setenv("TRACKING_COOLDOWN", "30m")
		t.Setenv("TELEGRAM_CHAT_ID", "-100123")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "host=db.internal port=6543 user=svc password=pw dbname=orders sslmode=disable", cfg.DB.DSN())
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
		assert.Equal(t, 30*time.Minute, cfg.Tracking.Cooldown)
		assert.Equal(t, int64(-100123), cfg.Telegram.ChatID)
	})

	t.Run("unparsable values fall back to defaults", func(t *testing.T) {
		t.Setenv("TRACKING_COOLDOWN", "soon")
		t.Setenv("TRACKING_BATCH_CEILING", "many")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, time.Hour, cfg.Tracking.Cooldown)
		assert.Equal(t, 50, cfg.Tracking.BatchCeiling)
	})

	t.Run("non-positive ceiling", func(t *testing.T) {
		t.Setenv("TRACKING_BATCH_CEILING", "0")

		_, err := Load()
		assert.EqualError(t, err, "TRACKING_BATCH_CEILING must be positive, got 0")
	})
}

func TestConfig_ValidateServer(t *testing.T) {
	cfg := &Config{}
	assert.EqualError(t, cfg.ValidateServer(), "JWT_SECRET is required")

	cfg.Auth.JWTSecret = "s3cret"
	assert.NoError(t, cfg.ValidateServer())
}
