package models

import "time"

// WalletAggregate summarizes every suspicious trade recorded for a wallet
type WalletAggregate struct {
	Wallet         string    `json:"wallet" db:"wallet"`
	FirstSeen      time.Time `json:"firstSeen" db:"first_seen"`
	TotalBets      int       `json:"totalBets" db:"total_bets"`
	TotalVolumeUSD float64   `json:"totalVolumeUsd" db:"total_volume_usd"`
	SuspiciousBets int       `json:"suspiciousBets" db:"suspicious_bets"`
	LastUpdated    time.Time `json:"lastUpdated" db:"last_updated"`
}

// TrackedWallet is a wallet an operator asked to watch. Trades from an
// active tracked wallet bypass detection thresholds.
type TrackedWallet struct {
	Wallet       string     `json:"wallet" db:"wallet"`
	Label        string     `json:"label,omitempty" db:"label"`
	Notes        string     `json:"notes,omitempty" db:"notes"`
	AddedAt      time.Time  `json:"addedAt" db:"added_at"`
	Active       bool       `json:"active" db:"active"`
	AlertCount   int        `json:"alertCount" db:"alert_count"`
	LastActivity *time.Time `json:"lastActivity,omitempty" db:"last_activity"`
}

// TrackedMarket is a market an operator asked to watch. Active tracked
// markets are always enumerated by full scans.
type TrackedMarket struct {
	MarketID     string     `json:"marketId" db:"market_id"`
	Label        string     `json:"label,omitempty" db:"label"`
	Reason       string     `json:"reason,omitempty" db:"reason"`
	AddedAt      time.Time  `json:"addedAt" db:"added_at"`
	Active       bool       `json:"active" db:"active"`
	AlertCount   int        `json:"alertCount" db:"alert_count"`
	LastActivity *time.Time `json:"lastActivity,omitempty" db:"last_activity"`
}
