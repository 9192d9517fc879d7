package service

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/polytracker/scanner/internal/errors"
	"github.com/polytracker/scanner/internal/models"
	"github.com/polytracker/scanner/internal/storage"
)

// Reader is the read side of the store used by the dashboard API
type Reader interface {
	ListSuspiciousTrades(ctx context.Context, limit, offset int) ([]*models.SuspiciousTrade, error)
	ListTradesByWallet(ctx context.Context, wallet string, limit int) ([]*models.SuspiciousTrade, error)
	GetSuspiciousTrade(ctx context.Context, tradeRef string) (*models.SuspiciousTrade, error)
	ListAlertHistory(ctx context.Context, tradeRef string) ([]models.AlertRecord, error)
	GetWalletAggregate(ctx context.Context, wallet string) (*models.WalletAggregate, error)
	ListScanRuns(ctx context.Context, limit int) ([]*models.ScanRun, error)
	DashboardStats(ctx context.Context, topN int, now time.Time) (*models.DashboardStats, error)
}

const (
	defaultTopWallets = 10
	maxTopWallets     = 100
	maxOffset         = 100_000
)

// QueryService serves paginated reads over detected trades and scan history
type QueryService struct {
	reader Reader
	now    func() time.Time
}

// NewQueryService creates a new query service
func NewQueryService(reader Reader) *QueryService {
	return &QueryService{reader: reader, now: time.Now}
}

// PaginationInfo contains pagination metadata
type PaginationInfo struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

// TradePage is one page of suspicious trades, newest first
type TradePage struct {
	Trades     []*models.SuspiciousTrade `json:"trades"`
	Pagination PaginationInfo            `json:"pagination"`
}

// WalletProfile is a wallet's aggregate plus its most recent suspicious trades
type WalletProfile struct {
	Aggregate *models.WalletAggregate   `json:"aggregate"`
	Trades    []*models.SuspiciousTrade `json:"trades"`
}

// TradeDetail is a trade with its alert delivery history
type TradeDetail struct {
	Trade  *models.SuspiciousTrade `json:"trade"`
	Alerts []models.AlertRecord    `json:"alerts"`
}

// ListTrades returns a page of trades. One extra row is fetched to compute HasMore.
func (s *QueryService) ListTrades(ctx context.Context, limit, offset int) (*TradePage, error) {
	if offset < 0 || offset > maxOffset {
		return nil, errors.NewInvalidParameterError("offset", "out of range")
	}
	limit = storage.ClampLimit(limit)

	trades, err := s.reader.ListSuspiciousTrades(ctx, limit+1, offset)
	if err != nil {
		return nil, errors.NewDatabaseError("list suspicious trades", err)
	}
	hasMore := len(trades) > limit
	if hasMore {
		trades = trades[:limit]
	}
	return &TradePage{
		Trades: trades,
		Pagination: PaginationInfo{
			Limit:   limit,
			Offset:  offset,
			HasMore: hasMore,
		},
	}, nil
}

// GetTrade returns a trade and its alert history
func (s *QueryService) GetTrade(ctx context.Context, tradeRef string) (*TradeDetail, error) {
	trade, err := s.reader.GetSuspiciousTrade(ctx, tradeRef)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NewNotFoundError("trade", tradeRef)
		}
		return nil, errors.NewDatabaseError("get suspicious trade", err)
	}
	history, err := s.reader.ListAlertHistory(ctx, trade.TradeRef)
	if err != nil {
		return nil, errors.NewDatabaseError("list alert history", err)
	}
	return &TradeDetail{Trade: trade, Alerts: history}, nil
}

// GetWallet returns the wallet profile. Wallets with no suspicious trades are not found.
func (s *QueryService) GetWallet(ctx context.Context, wallet string, limit int) (*WalletProfile, error) {
	normalized, err := NormalizeWallet(wallet)
	if err != nil {
		return nil, err
	}
	agg, err := s.reader.GetWalletAggregate(ctx, normalized)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NewNotFoundError("wallet", normalized)
		}
		return nil, errors.NewDatabaseError("get wallet aggregate", err)
	}
	trades, err := s.reader.ListTradesByWallet(ctx, normalized, storage.ClampLimit(limit))
	if err != nil {
		return nil, errors.NewDatabaseError("list wallet trades", err)
	}
	return &WalletProfile{Aggregate: agg, Trades: trades}, nil
}

// Stats returns dashboard statistics with the top wallets by volume
func (s *QueryService) Stats(ctx context.Context, top int) (*models.DashboardStats, error) {
	switch {
	case top <= 0:
		top = defaultTopWallets
	case top > maxTopWallets:
		top = maxTopWallets
	}
	stats, err := s.reader.DashboardStats(ctx, top, s.now())
	if err != nil {
		return nil, errors.NewDatabaseError("dashboard stats", err)
	}
	return stats, nil
}

// ListScans returns recent scan runs, newest first
func (s *QueryService) ListScans(ctx context.Context, limit int) ([]*models.ScanRun, error) {
	runs, err := s.reader.ListScanRuns(ctx, storage.ClampLimit(limit))
	if err != nil {
		return nil, errors.NewDatabaseError("list scan runs", err)
	}
	return runs, nil
}
