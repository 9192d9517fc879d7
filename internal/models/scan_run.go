package models

import (
	"time"

	"github.com/polytracker/scanner/internal/types"
)

// ScanRun records the outcome of one scan. Runs are append-only.
type ScanRun struct {
	ID              string           `json:"id" db:"id"`
	Mode            types.ScanMode   `json:"mode" db:"mode"`
	StartedAt       time.Time        `json:"startedAt" db:"started_at"`
	FinishedAt      time.Time        `json:"finishedAt" db:"finished_at"`
	MarketsScanned  int              `json:"marketsScanned" db:"markets_scanned"`
	TradesScanned   int              `json:"tradesScanned" db:"trades_scanned"`
	SuspiciousFound int              `json:"suspiciousFound" db:"suspicious_found"`
	Duplicates      int              `json:"duplicates" db:"duplicates"`
	AlertsSent      int              `json:"alertsSent" db:"alerts_sent"`
	Errors          int              `json:"errors" db:"errors"`
	Status          types.ScanStatus `json:"status" db:"status"`
}

// Duration returns how long the run took
func (r *ScanRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Market is cached market metadata gathered during full scans
type Market struct {
	ID       string    `json:"id" db:"id"`
	Question string    `json:"question" db:"question"`
	Category string    `json:"category" db:"category"`
	Active   bool      `json:"active" db:"active"`
	CachedAt time.Time `json:"cachedAt" db:"cached_at"`
}

// WalletVolume is one row of the top-wallets leaderboard
type WalletVolume struct {
	Wallet         string  `json:"wallet"`
	SuspiciousBets int     `json:"suspiciousBets"`
	TotalVolumeUSD float64 `json:"totalVolumeUsd"`
}

// DashboardStats summarizes the store for the dashboard
type DashboardStats struct {
	TotalSuspicious int                     `json:"totalSuspicious"`
	UniqueWallets   int                     `json:"uniqueWallets"`
	TotalVolumeUSD  float64                 `json:"totalVolumeUsd"`
	Today           int                     `json:"today"`
	Alerted         int                     `json:"alerted"`
	ByRiskLevel     map[types.RiskLevel]int `json:"byRiskLevel"`
	TopWallets      []WalletVolume          `json:"topWallets"`
}

// NewDashboardStats returns zeroed stats with every risk level present
func NewDashboardStats() *DashboardStats {
	byLevel := make(map[types.RiskLevel]int, len(types.AllRiskLevels))
	for _, l := range types.AllRiskLevels {
		byLevel[l] = 0
	}
	return &DashboardStats{
		ByRiskLevel: byLevel,
		TopWallets:  []WalletVolume{},
	}
}
