package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

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
		addedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tracked_wallets (wallet, label, notes, added_at, active)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT (wallet) DO UPDATE SET
			label    = excluded.label,
			notes    = excluded.notes,
			added_at = CASE WHEN active = 1 THEN added_at ELSE excluded.added_at END,
			active   = 1`,
		wallet, w.Label, w.Notes, toMicros(addedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to add tracked wallet: %w", err)
	}
	return nil
}

// RemoveTrackedWallet deactivates a wallet
func (s *Store) RemoveTrackedWallet(ctx context.Context, wallet string) error {
	return s.updateOne(ctx, `UPDATE tracked_wallets SET active = 0 WHERE wallet = ?`, storage.NormalizeKey(wallet))
}

// ListTrackedWallets returns tracked wallets, most recently added first
func (s *Store) ListTrackedWallets(ctx context.Context, activeOnly bool) ([]*models.TrackedWallet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT wallet, label, notes, added_at, active, alert_count, last_activity
		FROM tracked_wallets
		WHERE ? = 0 OR active = 1
		ORDER BY added_at DESC, wallet`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked wallets: %w", err)
	}
	defer rows.Close()

	out := []*models.TrackedWallet{}
	for rows.Next() {
		var (
			w        models.TrackedWallet
			addedAt  int64
			activity sql.NullInt64
		)
		if err := rows.Scan(&w.Wallet, &w.Label, &w.Notes, &addedAt, &w.Active, &w.AlertCount, &activity); err != nil {
			return nil, fmt.Errorf("failed to scan tracked wallet: %w", err)
		}
		w.AddedAt = fromMicros(addedAt)
		w.LastActivity = fromNullMicros(activity)
		out = append(out, &w)
	}
	return out, rows.Err()
}

// IsWalletTracked reports whether the wallet is actively tracked
func (s *Store) IsWalletTracked(ctx context.Context, wallet string) (bool, error) {
	return s.exists(ctx,
		`SELECT EXISTS (SELECT 1 FROM tracked_wallets WHERE wallet = ? AND active = 1)`, storage.NormalizeKey(wallet))
}

// RecordWalletActivity bumps the alert count and last-activity time of a tracked wallet
func (s *Store) RecordWalletActivity(ctx context.Context, wallet string, at time.Time) error {
	return s.updateOne(ctx,
		`UPDATE tracked_wallets SET alert_count = alert_count + 1, last_activity = ? WHERE wallet = ?`,
		toMicros(at), storage.NormalizeKey(wallet))
}

// AddTrackedMarket registers a market. Re-adding reactivates it and replaces label and reason.
func (s *Store) AddTrackedMarket(ctx context.Context, m *models.TrackedMarket) error {
	marketID := storage.NormalizeKey(m.MarketID)
	if marketID == "" {
		return fmt.Errorf("%w: empty market id", storage.ErrInvalidInput)
	}
	addedAt := m.AddedAt
	if addedAt.IsZero() {
		addedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tracked_markets (market_id, label, reason, added_at, active)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT (market_id) DO UPDATE SET
			label    = excluded.label,
			reason   = excluded.reason,
			added_at = CASE WHEN active = 1 THEN added_at ELSE excluded.added_at END,
			active   = 1`,
		marketID, m.Label, m.Reason, toMicros(addedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to add tracked market: %w", err)
	}
	return nil
}

// RemoveTrackedMarket deactivates a market
func (s *Store) RemoveTrackedMarket(ctx context.Context, marketID string) error {
	return s.updateOne(ctx, `UPDATE tracked_markets SET active = 0 WHERE market_id = ?`, storage.NormalizeKey(marketID))
}

// ListTrackedMarkets returns tracked markets, most recently added first
func (s *Store) ListTrackedMarkets(ctx context.Context, activeOnly bool) ([]*models.TrackedMarket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT market_id, label, reason, added_at, active, alert_count, last_activity
		FROM tracked_markets
		WHERE ? = 0 OR active = 1
		ORDER BY added_at DESC, market_id`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked markets: %w", err)
	}
	defer rows.Close()

	out := []*models.TrackedMarket{}
	for rows.Next() {
		var (
			m        models.TrackedMarket
			addedAt  int64
			activity sql.NullInt64
		)
		if err := rows.Scan(&m.MarketID, &m.Label, &m.Reason, &addedAt, &m.Active, &m.AlertCount, &activity); err != nil {
			return nil, fmt.Errorf("failed to scan tracked market: %w", err)
		}
		m.AddedAt = fromMicros(addedAt)
		m.LastActivity = fromNullMicros(activity)
		out = append(out, &m)
	}
	return out, rows.Err()
}

// IsMarketTracked reports whether the market is actively tracked
func (s *Store) IsMarketTracked(ctx context.Context, marketID string) (bool, error) {
	return s.exists(ctx,
		`SELECT EXISTS (SELECT 1 FROM tracked_markets WHERE market_id = ? AND active = 1)`, storage.NormalizeKey(marketID))
}

// RecordMarketActivity bumps the alert count and last-activity time of a tracked market
func (s *Store) RecordMarketActivity(ctx context.Context, marketID string, at time.Time) error {
	return s.updateOne(ctx,
		`UPDATE tracked_markets SET alert_count = alert_count + 1, last_activity = ? WHERE market_id = ?`,
		toMicros(at), storage.NormalizeKey(marketID))
}

func (s *Store) exists(ctx context.Context, query, key string) (bool, error) {
	var ok bool
	if err := s.db.QueryRowContext(ctx, query, key).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check tracking: %w", err)
	}
	return ok, nil
}

// updateOne runs a single-row update and maps zero affected rows to storage.ErrNotFound
func (s *Store) updateOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update tracked entity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
