// Package types provides common type definitions for the insider-trade scanner.
package types

import "strings"

// Outcome represents the side of a binary market a bet was placed on
type Outcome string

const (
	// OutcomeYes represents a bet on the YES outcome
	OutcomeYes Outcome = "YES"
	// OutcomeNo represents a bet on the NO outcome
	OutcomeNo Outcome = "NO"
)

// Side represents the trade direction reported by the venue
type Side string

const (
	// SideBuy represents a purchase of outcome shares
	SideBuy Side = "BUY"
	// SideSell represents a sale of outcome shares
	SideSell Side = "SELL"
)

// RiskLevel is the coarse classification derived from a risk score
type RiskLevel string

const (
	// RiskLow represents a score below 40
	RiskLow RiskLevel = "LOW"
	// RiskMedium represents a score from 40 to 59
	RiskMedium RiskLevel = "MEDIUM"
	// RiskHigh represents a score from 60 to 79
	RiskHigh RiskLevel = "HIGH"
	// RiskCritical represents a score of 80 or more
	RiskCritical RiskLevel = "CRITICAL"
)

// AllRiskLevels lists every risk level from lowest to highest
var AllRiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}

// ScanMode selects which trades a scan enumerates
type ScanMode string

const (
	// ScanModeRecent scans the venue-wide feed of recent large trades
	ScanModeRecent ScanMode = "recent"
	// ScanModeFull enumerates active markets and scans each one
	ScanModeFull ScanMode = "full"
	// ScanModeTrackedWallets scans recent activity of operator-tracked wallets
	ScanModeTrackedWallets ScanMode = "tracked_wallets"
)

// ParseScanMode parses a scan mode, accepting a few common aliases
func ParseScanMode(s string) (ScanMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "recent", "quick":
		return ScanModeRecent, true
	case "full", "markets":
		return ScanModeFull, true
	case "tracked_wallets", "tracked", "wallets":
		return ScanModeTrackedWallets, true
	default:
		return "", false
	}
}

// ScanStatus is the terminal status of a scan run
type ScanStatus string

const (
	// ScanStatusCompleted means every fetch succeeded
	ScanStatusCompleted ScanStatus = "completed"
	// ScanStatusCompletedWithErrors means the scan finished but some fetches or records failed
	ScanStatusCompletedWithErrors ScanStatus = "completed_with_errors"
	// ScanStatusCancelled means the scan stopped early because its context was cancelled
	ScanStatusCancelled ScanStatus = "cancelled"
)

// DetectionSource records why a trade was flagged
type DetectionSource string

const (
	// SourceAutomatic means the trade passed every enabled threshold
	SourceAutomatic DetectionSource = "automatic"
	// SourceTrackedWallet means the trade came from a tracked wallet and bypassed thresholds
	SourceTrackedWallet DetectionSource = "tracked_wallet"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
