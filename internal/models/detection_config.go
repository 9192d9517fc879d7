package models

import (
	"fmt"
	"strings"
)

// DetectionConfig holds the thresholds a scan run is evaluated against.
// It is passed by value and never mutated by the detection core.
type DetectionConfig struct {
	WalletAgeDays   int      `json:"walletAgeDays"`
	MinBetSizeUSD   float64  `json:"minBetSizeUsd"`
	MaxPrice        float64  `json:"maxPrice"`
	CheckWalletAge  bool     `json:"checkWalletAge"`
	CheckBetSize    bool     `json:"checkBetSize"`
	CheckOdds       bool     `json:"checkOdds"`
	AllowCategories []string `json:"allowCategories,omitempty"`
	DenyCategories  []string `json:"denyCategories,omitempty"`
}

// DefaultDetectionConfig returns the stock thresholds: wallets up to 30 days old,
// bets of at least $10,000 and prices at or below 20 cents.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		WalletAgeDays:  30,
		MinBetSizeUSD:  10000,
		MaxPrice:       0.20,
		CheckWalletAge: true,
		CheckBetSize:   true,
		CheckOdds:      true,
	}
}

// Validate checks that thresholds are usable. The price ceiling is only
// checked when the odds gate is enabled.
func (c DetectionConfig) Validate() error {
	if c.WalletAgeDays < 0 {
		return fmt.Errorf("wallet age threshold must be non-negative, got %d", c.WalletAgeDays)
	}
	if c.MinBetSizeUSD < 0 {
		return fmt.Errorf("minimum bet size must be non-negative, got %.2f", c.MinBetSizeUSD)
	}
	if c.CheckOdds && (c.MaxPrice <= 0 || c.MaxPrice > 1) {
		return fmt.Errorf("price ceiling must be in (0, 1], got %.4f", c.MaxPrice)
	}
	return nil
}

// CategoryAllowed reports whether a market category passes the allow and deny lists.
// Matching is case-insensitive. An empty category always passes.
func (c DetectionConfig) CategoryAllowed(category string) bool {
	category = strings.TrimSpace(category)
	if category == "" {
		return true
	}
	for _, d := range c.DenyCategories {
		if strings.EqualFold(d, category) {
			return false
		}
	}
	if len(c.AllowCategories) == 0 {
		return true
	}
	for _, a := range c.AllowCategories {
		if strings.EqualFold(a, category) {
			return true
		}
	}
	return false
}
