// Package storage defines the persistence contract for detected trades, wallet
// aggregates, tracked entities and scan history. Engine implementations live in
// the postgres and sqlite subpackages.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/polytracker/scanner/internal/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when an append-only record is written twice
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when a record fails validation before it reaches the engine
	ErrInvalidInput = errors.New("invalid input")
)

// TradeStore persists suspicious trades. Trades are keyed by trade reference
// and never deleted; only the alert fields change after insert.
type TradeStore interface {
	// SaveSuspiciousTrade inserts the trade and bumps the wallet aggregate in one
	// transaction. A duplicate reference returns inserted=false and no error.
	SaveSuspiciousTrade(ctx context.Context, t *models.SuspiciousTrade) (bool, error)
	// MarkAlerted sets alerted and unions channels into the trade's channel set
	MarkAlerted(ctx context.Context, tradeRef string, channels []string) error
	GetSuspiciousTrade(ctx context.Context, tradeRef string) (*models.SuspiciousTrade, error)
	ListSuspiciousTrades(ctx context.Context, limit, offset int) ([]*models.SuspiciousTrade, error)
	ListTradesByWallet(ctx context.Context, wallet string, limit int) ([]*models.SuspiciousTrade, error)
	ListAlertHistory(ctx context.Context, tradeRef string) ([]models.AlertRecord, error)
	TradeExists(ctx context.Context, tradeRef string) (bool, error)
	CountRecentByWallet(ctx context.Context, wallet string, since time.Time) (int, error)
}

// WalletStore maintains per-wallet aggregates
type WalletStore interface {
	// UpdateWalletAggregate inserts the aggregate with one bet on first sight and
	// increments it additively afterwards
	UpdateWalletAggregate(ctx context.Context, wallet string, usdDelta float64, at time.Time) error
	GetWalletAggregate(ctx context.Context, wallet string) (*models.WalletAggregate, error)
}

// TrackingStore is the operator-managed registry of watched wallets and markets.
// Remove is a soft delete.
type TrackingStore interface {
	AddTrackedWallet(ctx context.Context, w *models.TrackedWallet) error
	RemoveTrackedWallet(ctx context.Context, wallet string) error
	ListTrackedWallets(ctx context.Context, activeOnly bool) ([]*models.TrackedWallet, error)
	IsWalletTracked(ctx context.Context, wallet string) (bool, error)
	RecordWalletActivity(ctx context.Context, wallet string, at time.Time) error

	AddTrackedMarket(ctx context.Context, m *models.TrackedMarket) error
	RemoveTrackedMarket(ctx context.Context, marketID string) error
	ListTrackedMarkets(ctx context.Context, activeOnly bool) ([]*models.TrackedMarket, error)
	IsMarketTracked(ctx context.Context, marketID string) (bool, error)
	RecordMarketActivity(ctx context.Context, marketID string, at time.Time) error
}

// ScanRunStore keeps the append-only scan history
type ScanRunStore interface {
	AppendScanRun(ctx context.Context, run *models.ScanRun) error
	ListScanRuns(ctx context.Context, limit int) ([]*models.ScanRun, error)
}

// MarketStore caches market metadata seen during full scans
type MarketStore interface {
	UpsertMarket(ctx context.Context, m *models.Market) error
	GetMarket(ctx context.Context, marketID string) (*models.Market, error)
}

// StatsStore serves read-only dashboard projections
type StatsStore interface {
	// DashboardStats never fails on an empty store; every count is zero
	DashboardStats(ctx context.Context, topN int, now time.Time) (*models.DashboardStats, error)
}

// Store is the full persistence surface
type Store interface {
	TradeStore
	WalletStore
	TrackingStore
	ScanRunStore
	MarketStore
	StatsStore
	Ping(ctx context.Context) error
	Close() error
}

// Limits applied when callers pass non-positive or oversized page sizes
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// ClampLimit normalizes a page size
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// NormalizeKey lower-cases and trims a wallet or market identifier
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidateTrade checks the fields every engine relies on
func ValidateTrade(t *models.SuspiciousTrade) error {
	if t == nil {
		return fmt.Errorf("%w: nil trade", ErrInvalidInput)
	}
	if strings.TrimSpace(t.TradeRef) == "" {
		return fmt.Errorf("%w: empty trade ref", ErrInvalidInput)
	}
	if strings.TrimSpace(t.Wallet) == "" {
		return fmt.Errorf("%w: empty wallet", ErrInvalidInput)
	}
	if t.RiskScore < 0 || t.RiskScore > 100 {
		return fmt.Errorf("%w: risk score %d out of range", ErrInvalidInput, t.RiskScore)
	}
	return nil
}

// MergeChannels returns the sorted union of two channel sets
func MergeChannels(existing, added []string) []string {
	set := make(map[string]struct{}, len(existing)+len(added))
	for _, c := range existing {
		if c = strings.TrimSpace(c); c != "" {
			set[c] = struct{}{}
		}
	}
	for _, c := range added {
		if c = strings.TrimSpace(c); c != "" {
			set[c] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// StartOfDay returns midnight UTC of the day containing t
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
