package config

import (
	"testing"
	"time"

	"github.com/polytracker/scanner/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("POSTGRES_HOST", "testhost")
	t.Setenv("SCAN_INTERVAL", "30s")
	t.Setenv("SCAN_MODE", "full")
	t.Setenv("MIN_BET_SIZE", "2500.5")
	t.Setenv("CHECK_ODDS", "false")
	t.Setenv("ALLOW_CATEGORIES", "Politics, Crypto ,,")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "testhost", cfg.Database.Postgres.Host)
	assert.Equal(t, 30*time.Second, cfg.Scan.Interval)
	assert.Equal(t, types.ScanModeFull, cfg.Scan.Mode)

	det := cfg.DetectionConfig()
	assert.Equal(t, 2500.5, det.MinBetSizeUSD)
	assert.False(t, det.CheckOdds)
	assert.True(t, det.CheckBetSize)
	assert.Equal(t, []string{"Politics", "Crypto"}, det.AllowCategories)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 2*time.Second, cfg.Scan.MarketDelay)
	assert.Equal(t, 10*time.Second, cfg.Alerts.Timeout)
	assert.Equal(t, 30, cfg.Detection.WalletAgeDays)
	assert.Equal(t, 10000.0, cfg.Detection.MinBetSizeUSD)
	assert.Equal(t, 0.20, cfg.Detection.MaxPrice)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown driver", "DB_DRIVER", "mysql"},
		{"unknown mode", "SCAN_MODE", "everything"},
		{"bad price ceiling", "MAX_ODDS", "1.5"},
		{"no retries", "SCAN_MAX_RETRIES", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT", "abc")
	t.Setenv("TEST_BOOL", "yes-ish")
	t.Setenv("TEST_DURATION", "2m")

	assert.Equal(t, 7, getEnvAsInt("TEST_INT", 7))
	assert.True(t, getEnvAsBool("TEST_BOOL", true))
	assert.Equal(t, 2*time.Minute, getEnvAsDuration("TEST_DURATION", time.Second))
	assert.Equal(t, "default", getEnv("NONEXISTENT_KEY_FOR_TEST", "default"))
	assert.Nil(t, getEnvAsList("NONEXISTENT_KEY_FOR_TEST"))
}

func TestMask(t *testing.T) {
	assert.Equal(t, "(unset)", Mask(""))
	assert.Equal(t, "****", Mask("abc"))
	assert.Equal(t, "****wxyz", Mask("secret-wxyz"))
}
