package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "time/tzdata"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("MANAGER_PIN", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.AuthSecret)
	assert.Empty(t, cfg.ManagerPIN)
}

func unsetenv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadDefaults(t *testing.T) {
	unsetenv(t, "SHOP_TIMEZONE", "REPORT_CACHE_TTL", "PORT")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Kolkata", cfg.Location.String())
	assert.Equal(t, 5*time.Minute, cfg.ReportCacheTTL)
	assert.Equal(t, ":8080", cfg.Address())
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SHOP_TIMEZONE", "Asia/Jakarta")
	t.Setenv("PHONE_REGION", " id ")
	t.Setenv("ACCESS_TOKEN_TTL", "30m")
	t.Setenv("SHOP_NAME", "Apotek Sehat")
	t.Setenv("AUTH_SECRET", "  spaced-secret  ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Address())
	assert.Equal(t, "Asia/Jakarta", cfg.Location.String())
	assert.Equal(t, "ID", cfg.PhoneRegion)
	assert.Equal(t, 30*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, "Apotek Sehat", cfg.Shop().Name)
	assert.Equal(t, "spaced-secret", cfg.AuthSecret)
}

func TestLoadRejectsUnknownTimezone(t *testing.T) {
	t.Setenv("SHOP_TIMEZONE", "Mars/Olympus")

	_, err := Load()
	require.Error(t, err)
}
