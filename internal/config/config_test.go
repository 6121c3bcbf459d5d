package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8083", cfg.Port)
	assert.Equal(t, "9083", cfg.GRPCPort)
	assert.Equal(t, []byte("s3cret"), cfg.JWTSecret)
	assert.Equal(t, 30*time.Second, cfg.UserCacheTTL)
	assert.Equal(t, "support_chat.events", cfg.AMQPExchange)
	assert.Empty(t, cfg.AllowedOrigins)
	assert.True(t, cfg.IsDev())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PORT", "9000")
	t.Setenv("USER_CACHE_TTL", "2m")
	t.Setenv("ALLOWED_ORIGINS", "https://shop.example.com, https://admin.example.com,")
	t.Setenv("APP_ENV", "production")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 2*time.Minute, cfg.UserCacheTTL)
	assert.Equal(t, []string{"https://shop.example.com", "https://admin.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.False(t, cfg.IsDev())
}

func TestLoadInvalid(t *testing.T) {
	tcases := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing secret", env: map[string]string{"JWT_SECRET": ""}},
		{name: "bad ttl", env: map[string]string{"JWT_SECRET": "s", "USER_CACHE_TTL": "soon"}},
		{name: "zero ttl", env: map[string]string{"JWT_SECRET": "s", "USER_CACHE_TTL": "0s"}},
		{name: "bad port", env: map[string]string{"JWT_SECRET": "s", "PORT": "http"}},
		{name: "empty dsn", env: map[string]string{"JWT_SECRET": "s", "DB_DSN": ""}},
		{name: "empty exchange", env: map[string]string{"JWT_SECRET": "s", "AMQP_EXCHANGE": ""}},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
