package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/polytracker/scanner/internal/models"
	"github.com/polytracker/scanner/internal/storage"
)

// AddTrackedWallet registers a wallet. Re-adding reactivates it and replaces label and notes.
func (s *Store) AddTrackedWallet(ctx context.Context, w *models.TrackedWallet) error {
	wallet := storage.NormalizeKey(w.Wallet)
	if wallet == "" {
		return fmt.Errorf("%w: empty wallet", storage.ErrInvalidInput)
	}
	addedAt := w.AddedAt
	if addedAt.IsZero() {
		addedAt = s.now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO tracked_wallets (wallet, label, notes, added_at, active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (wallet) DO UPDATE SET
			label    = EXCLUDED.label,
			notes    = EXCLUDED.notes,
			added_at = CASE WHEN tracked_wallets.active THEN tracked_wallets.added_at ELSE EXCLUDED.added_at END,
			active   = TRUE`,
		wallet, w.Label, w.Notes, addedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add tracked wallet: %w", err)
	}
	return nil
}

// RemoveTrackedWallet deactivates a wallet
func (s *Store) RemoveTrackedWallet(ctx context.Context, wallet string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tracked_wallets SET active = FALSE WHERE wallet = $1`, storage.NormalizeKey(wallet))
	if err != nil {
		return fmt.Errorf("failed to remove tracked wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListTrackedWallets returns tracked wallets, most recently added first
func (s *Store) ListTrackedWallets(ctx context.Context, activeOnly bool) ([]*models.TrackedWallet, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT wallet, label, notes, added_at, active, alert_count, last_activity
		FROM tracked_wallets
		WHERE $1 = FALSE OR active
		ORDER BY added_at DESC, wallet`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked wallets: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.TrackedWallet, error) {
		var w models.TrackedWallet
		err := row.Scan(&w.Wallet, &w.Label, &w.Notes, &w.AddedAt, &w.Active, &w.AlertCount, &w.LastActivity)
		return &w, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan tracked wallets: %w", err)
	}
	return out, nil
}

// IsWalletTracked reports whether the wallet is actively tracked
func (s *Store) IsWalletTracked(ctx context.Context, wallet string) (bool, error) {
	return s.exists(ctx,
		`SELECT EXISTS (SELECT 1 FROM tracked_wallets WHERE wallet = $1 AND active)`, storage.NormalizeKey(wallet))
}

// RecordWalletActivity bumps the alert count and last-activity time of a tracked wallet
func (s *Store) RecordWalletActivity(ctx context.Context, wallet string, at time.Time) error {
	return s.recordActivity(ctx,
		`UPDATE tracked_wallets SET alert_count = alert_count + 1, last_activity = $2 WHERE wallet = $1`,
		storage.NormalizeKey(wallet), at)
}

// AddTrackedMarket registers a market. Re-adding reactivates it and replaces label and reason.
func (s *Store) AddTrackedMarket(ctx context.Context, m *models.TrackedMarket) error {
	marketID := storage.NormalizeKey(m.MarketID)
	if marketID == "" {
		return fmt.Errorf("%w: empty market id", storage.ErrInvalidInput)
	}
	addedAt := m.AddedAt
	if addedAt.IsZero() {
		addedAt = s.now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO tracked_markets (market_id, label, reason, added_at, active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (market_id) DO UPDATE SET
			label    = EXCLUDED.label,
			reason   = EXCLUDED.reason,
			added_at = CASE WHEN tracked_markets.active THEN tracked_markets.added_at ELSE EXCLUDED.added_at END,
			active   = TRUE`,
		marketID, m.Label, m.Reason, addedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add tracked market: %w", err)
	}
	return nil
}

// RemoveTrackedMarket deactivates a market
func (s *Store) RemoveTrackedMarket(ctx context.Context, marketID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tracked_markets SET active = FALSE WHERE market_id = $1`, storage.NormalizeKey(marketID))
	if err != nil {
		return fmt.Errorf("failed to remove tracked market: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListTrackedMarkets returns tracked markets, most recently added first
func (s *Store) ListTrackedMarkets(ctx context.Context, activeOnly bool) ([]*models.TrackedMarket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT market_id, label, reason, added_at, active, alert_count, last_activity
		FROM tracked_markets
		WHERE $1 = FALSE OR active
		ORDER BY added_at DESC, market_id`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked markets: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.TrackedMarket, error) {
		var m models.TrackedMarket
		err := row.Scan(&m.MarketID, &m.Label, &m.Reason, &m.AddedAt, &m.Active, &m.AlertCount, &m.LastActivity)
		return &m, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan tracked markets: %w", err)
	}
	return out, nil
}

// IsMarketTracked reports whether the market is actively tracked
func (s *Store) IsMarketTracked(ctx context.Context, marketID string) (bool, error) {
	return s.exists(ctx,
		`SELECT EXISTS (SELECT 1 FROM tracked_markets WHERE market_id = $1 AND active)`, storage.NormalizeKey(marketID))
}

// RecordMarketActivity bumps the alert count and last-activity time of a tracked market
func (s *Store) RecordMarketActivity(ctx context.Context, marketID string, at time.Time) error {
	return s.recordActivity(ctx,
		`UPDATE tracked_markets SET alert_count = alert_count + 1, last_activity = $2 WHERE market_id = $1`,
		storage.NormalizeKey(marketID), at)
}

func (s *Store) exists(ctx context.Context, query string, key string) (bool, error) {
	var ok bool
	if err := s.pool.QueryRow(ctx, query, key).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check tracking: %w", err)
	}
	return ok, nil
}

func (s *Store) recordActivity(ctx context.Context, query string, key string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, query, key, at)
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
