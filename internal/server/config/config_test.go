package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/coursechat?sslmode=disable")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("APP_ENV", "")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("MAX_CONNECTIONS_PER_IP", "")
	t.Setenv("LOGIN_ATTEMPTS_PER_MIN", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 10, cfg.MaxConnsPerIP)
	assert.Equal(t, 5, cfg.MaxLoginsPerMin)
}

func TestLoadRequiredFields(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "secret")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("DATABASE_URL", "postgres://localhost/db")
	t.Setenv("JWT_SECRET", "")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/db")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("APP_ENV", "prod")
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("MAX_CONNECTIONS_PER_IP", "3")
	t.Setenv("LOGIN_ATTEMPTS_PER_MIN", "bogus")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, 3, cfg.MaxConnsPerIP)
	// Unparsable values fall back to the default.
	assert.Equal(t, 5, cfg.MaxLoginsPerMin)
}
