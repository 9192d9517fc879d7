package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectionConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *DetectionConfig)
		wantErr bool
	}{
		{"defaults are valid", func(c *DetectionConfig) {}, false},
		{"negative age", func(c *DetectionConfig) { c.WalletAgeDays = -1 }, true},
		{"negative size", func(c *DetectionConfig) { c.MinBetSizeUSD = -5 }, true},
		{"zero price ceiling", func(c *DetectionConfig) { c.MaxPrice = 0 }, true},
		{"price ceiling above one", func(c *DetectionConfig) { c.MaxPrice = 1.5 }, true},
		{"price ceiling of one", func(c *DetectionConfig) { c.MaxPrice = 1 }, false},
		{"unset ceiling with odds gate off", func(c *DetectionConfig) { c.CheckOdds = false; c.MaxPrice = 0 }, false},
		{"out of range ceiling with odds gate off", func(c *DetectionConfig) { c.CheckOdds = false; c.MaxPrice = 7 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultDetectionConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDetectionConfig_CategoryAllowed(t *testing.T) {
	cfg := DefaultDetectionConfig()
	assert.True(t, cfg.CategoryAllowed("Sports"))
	assert.True(t, cfg.CategoryAllowed(""))

	cfg.DenyCategories = []string{"sports"}
	assert.False(t, cfg.CategoryAllowed("Sports"))
	assert.True(t, cfg.CategoryAllowed("Politics"))

	cfg.AllowCategories = []string{"Politics", "Crypto"}
	assert.True(t, cfg.CategoryAllowed("politics"))
	assert.False(t, cfg.CategoryAllowed("Weather"))
	assert.True(t, cfg.CategoryAllowed(""), "unknown category is not filtered")
}
