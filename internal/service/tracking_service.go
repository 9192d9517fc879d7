package service

import (
	"context"
	stderrors "errors"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/polytracker/scanner/internal/errors"
	"github.com/polytracker/scanner/internal/logging"
	"github.com/polytracker/scanner/internal/models"
	"github.com/polytracker/scanner/internal/storage"
)

const (
	maxLabelLength = 128
	maxNotesLength = 1024
)

// Condition ids are 32-byte hex; gamma ids are decimal
var marketIDPattern = regexp.MustCompile(`^(0x[0-9a-f]{64}|[0-9]+)$`)

// TrackingService manages the operator's tracked wallets and markets
type TrackingService struct {
	store  storage.TrackingStore
	logger *logging.Logger
}

// NewTrackingService creates a tracking service
func NewTrackingService(store storage.TrackingStore, logger *logging.Logger) *TrackingService {
	return &TrackingService{
		store:  store,
		logger: logging.OrGlobal(logger).WithField("component", "tracking"),
	}
}

// AddWalletInput is the request to start tracking a wallet
type AddWalletInput struct {
	Wallet string `json:"wallet"`
	Label  string `json:"label,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

// AddMarketInput is the request to start tracking a market
type AddMarketInput struct {
	MarketID string `json:"marketId"`
	Label    string `json:"label,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// NormalizeWallet validates a 0x-prefixed 20-byte address and returns it lower-cased
func NormalizeWallet(wallet string) (string, error) {
	wallet = strings.TrimSpace(wallet)
	if !strings.HasPrefix(wallet, "0x") && !strings.HasPrefix(wallet, "0X") {
		return "", errors.NewInvalidAddressError(wallet)
	}
	if !common.IsHexAddress(wallet) {
		return "", errors.NewInvalidAddressError(wallet)
	}
	return strings.ToLower(common.HexToAddress(wallet).Hex()), nil
}

// NormalizeMarketID validates a condition id or numeric market id
func NormalizeMarketID(marketID string) (string, error) {
	id := storage.NormalizeKey(marketID)
	if id == "" {
		return "", errors.NewInvalidParameterError("marketId", "must not be empty")
	}
	if !marketIDPattern.MatchString(id) {
		return "", errors.NewInvalidParameterError("marketId", "must be a 0x-prefixed 32-byte hex condition id or a numeric id")
	}
	return id, nil
}

// AddWallet starts tracking a wallet. Re-adding an inactive wallet reactivates it.
func (s *TrackingService) AddWallet(ctx context.Context, in AddWalletInput) (*models.TrackedWallet, error) {
	wallet, err := NormalizeWallet(in.Wallet)
	if err != nil {
		return nil, err
	}
	if err := checkLength("label", in.Label, maxLabelLength); err != nil {
		return nil, err
	}
	if err := checkLength("notes", in.Notes, maxNotesLength); err != nil {
		return nil, err
	}

	tw := &models.TrackedWallet{
		Wallet: wallet,
		Label:  strings.TrimSpace(in.Label),
		Notes:  strings.TrimSpace(in.Notes),
	}
	if err := s.store.AddTrackedWallet(ctx, tw); err != nil {
		return nil, errors.NewDatabaseError("add tracked wallet", err)
	}
	s.logger.WithField("wallet", wallet).Info("Tracking wallet")
	return s.findWallet(ctx, wallet)
}

// RemoveWallet stops tracking a wallet
func (s *TrackingService) RemoveWallet(ctx context.Context, wallet string) error {
	normalized, err := NormalizeWallet(wallet)
	if err != nil {
		return err
	}
	if err := s.store.RemoveTrackedWallet(ctx, normalized); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NewNotFoundError("tracked wallet", normalized)
		}
		return errors.NewDatabaseError("remove tracked wallet", err)
	}
	s.logger.WithField("wallet", normalized).Info("Stopped tracking wallet")
	return nil
}

// ListWallets returns tracked wallets; inactive ones only when includeInactive is set
func (s *TrackingService) ListWallets(ctx context.Context, includeInactive bool) ([]*models.TrackedWallet, error) {
	wallets, err := s.store.ListTrackedWallets(ctx, !includeInactive)
	if err != nil {
		return nil, errors.NewDatabaseError("list tracked wallets", err)
	}
	return wallets, nil
}

// AddMarket starts tracking a market. Re-adding an inactive market reactivates it.
func (s *TrackingService) AddMarket(ctx context.Context, in AddMarketInput) (*models.TrackedMarket, error) {
	id, err := NormalizeMarketID(in.MarketID)
	if err != nil {
		return nil, err
	}
	if err := checkLength("label", in.Label, maxLabelLength); err != nil {
		return nil, err
	}
	if err := checkLength("reason", in.Reason, maxNotesLength); err != nil {
		return nil, err
	}

	tm := &models.TrackedMarket{
		MarketID: id,
		Label:    strings.TrimSpace(in.Label),
		Reason:   strings.TrimSpace(in.Reason),
	}
	if err := s.store.AddTrackedMarket(ctx, tm); err != nil {
		return nil, errors.NewDatabaseError("add tracked market", err)
	}
	s.logger.WithField("marketId", id).Info("Tracking market")
	return s.findMarket(ctx, id)
}

// RemoveMarket stops tracking a market
func (s *TrackingService) RemoveMarket(ctx context.Context, marketID string) error {
	id, err := NormalizeMarketID(marketID)
	if err != nil {
		return err
	}
	if err := s.store.RemoveTrackedMarket(ctx, id); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NewNotFoundError("tracked market", id)
		}
		return errors.NewDatabaseError("remove tracked market", err)
	}
	s.logger.WithField("marketId", id).Info("Stopped tracking market")
	return nil
}

// ListMarkets returns tracked markets; inactive ones only when includeInactive is set
func (s *TrackingService) ListMarkets(ctx context.Context, includeInactive bool) ([]*models.TrackedMarket, error) {
	markets, err := s.store.ListTrackedMarkets(ctx, !includeInactive)
	if err != nil {
		return nil, errors.NewDatabaseError("list tracked markets", err)
	}
	return markets, nil
}

func (s *TrackingService) findWallet(ctx context.Context, wallet string) (*models.TrackedWallet, error) {
	all, err := s.store.ListTrackedWallets(ctx, true)
	if err != nil {
		return nil, errors.NewDatabaseError("list tracked wallets", err)
	}
	for _, w := range all {
		if w.Wallet == wallet {
			return w, nil
		}
	}
	return nil, errors.NewNotFoundError("tracked wallet", wallet)
}

func (s *TrackingService) findMarket(ctx context.Context, id string) (*models.TrackedMarket, error) {
	all, err := s.store.ListTrackedMarkets(ctx, true)
	if err != nil {
		return nil, errors.NewDatabaseError("list tracked markets", err)
	}
	for _, m := range all {
		if m.MarketID == id {
			return m, nil
		}
	}
	return nil, errors.NewNotFoundError("tracked market", id)
}

func checkLength(param, value string, max int) error {
	if len(value) > max {
		return errors.NewInvalidParameterError(param, "too long")
	}
	return nil
}
