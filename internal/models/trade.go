// Package models provides data models for the insider-trade scanner.
package models

import (
	"time"

	"github.com/polytracker/scanner/internal/types"
)

// TradeCandidate is a raw trade or activity record as delivered by the market-data source.
// Outcome is left untyped because the venue reports it as a label, a number or not at all.
type TradeCandidate struct {
	TradeRef     string      `json:"tradeRef"`
	Wallet       string      `json:"wallet"`
	MarketID     string      `json:"marketId"`
	MarketTitle  string      `json:"marketTitle,omitempty"`
	Category     string      `json:"category,omitempty"`
	Shares       float64     `json:"shares"`
	Price        float64     `json:"price"`
	CashSize     float64     `json:"cashSize,omitempty"`
	Side         string      `json:"side,omitempty"`
	Outcome      interface{} `json:"outcome,omitempty"`
	OutcomeIndex *int        `json:"outcomeIndex,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}

// SuspiciousTrade is a trade that passed detection and has been scored.
// Only the alert fields change after creation.
type SuspiciousTrade struct {
	TradeRef        string                `json:"tradeRef" db:"trade_ref"`
	Wallet          string                `json:"wallet" db:"wallet"`
	MarketID        string                `json:"marketId" db:"market_id"`
	MarketTitle     string                `json:"marketTitle" db:"market_title"`
	Category        string                `json:"category" db:"category"`
	BetSizeUSD      float64               `json:"betSizeUsd" db:"bet_size_usd"`
	Outcome         types.Outcome         `json:"outcome" db:"outcome"`
	Side            types.Side            `json:"side" db:"side"`
	Price           float64               `json:"price" db:"price"`
	Shares          float64               `json:"shares" db:"shares"`
	TradeTime       time.Time             `json:"tradeTime" db:"trade_time"`
	WalletAgeDays   *int                  `json:"walletAgeDays,omitempty" db:"wallet_age_days"`
	RiskScore       int                   `json:"riskScore" db:"risk_score"`
	RiskLevel       types.RiskLevel       `json:"riskLevel" db:"risk_level"`
	DetectedAt      time.Time             `json:"detectedAt" db:"detected_at"`
	DetectionSource types.DetectionSource `json:"detectionSource" db:"detection_source"`
	Alerted         bool                  `json:"alerted" db:"alerted"`
	AlertChannels   []string              `json:"alertChannels,omitempty" db:"alert_channels"`
}

// AlertRecord is one successful alert delivery for a trade on a channel
type AlertRecord struct {
	TradeRef string    `json:"tradeRef" db:"trade_ref"`
	Channel  string    `json:"channel" db:"channel"`
	SentAt   time.Time `json:"sentAt" db:"sent_at"`
}
