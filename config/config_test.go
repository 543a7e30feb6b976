package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ACCESS_TOKEN", "token")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Shop.ClaimTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Shop.AdCooldown)
	assert.Equal(t, 3*time.Second, cfg.Shop.AdResetDelay)
	assert.Equal(t, 2*time.Minute, cfg.Shop.AdShowTimeout)
	assert.Equal(t, int64(500), cfg.Shop.WeeklyGemCap)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.False(t, cfg.Server.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ACCESS_TOKEN", "token")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("AD_COOLDOWN", "90s")
	t.Setenv("ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 90*time.Second, cfg.Shop.AdCooldown)
	assert.True(t, cfg.Server.IsProduction())
}
