package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/polytracker/scanner/internal/models"
	"github.com/polytracker/scanner/internal/storage"
	"github.com/polytracker/scanner/internal/types"
)

const tradeColumns = `
	trade_ref, wallet, market_id, market_title, category, bet_size_usd, outcome, side,
	price, shares, trade_time, wallet_age_days, risk_score, risk_level, detected_at,
	detection_source, alerted, alert_channels`

const upsertAggregateSQL = `
	INSERT INTO wallet_aggregates (wallet, first_seen, total_bets, total_volume_usd, suspicious_bets, last_updated)
	VALUES ($1, $2, 1, $3, 1, $2)
	ON CONFLICT (wallet) DO UPDATE SET
		total_bets       = wallet_aggregates.total_bets + 1,
		total_volume_usd = wallet_aggregates.total_volume_usd + EXCLUDED.total_volume_usd,
		suspicious_bets  = wallet_aggregates.suspicious_bets + 1,
		first_seen       = LEAST(wallet_aggregates.first_seen, EXCLUDED.first_seen),
		last_updated     = GREATEST(wallet_aggregates.last_updated, EXCLUDED.last_updated)
`

// SaveSuspiciousTrade inserts the trade once and bumps the wallet aggregate only on a new row
func (s *Store) SaveSuspiciousTrade(ctx context.Context, t *models.SuspiciousTrade) (bool, error) {
	if err := storage.ValidateTrade(t); err != nil {
		return false, err
	}
	wallet := storage.NormalizeKey(t.Wallet)
	channels := t.AlertChannels
	if channels == nil {
		channels = []string{}
	}

	inserted := false
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO suspicious_trades (`+tradeColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
			ON CONFLICT (trade_ref) DO NOTHING`,
			t.TradeRef, wallet, t.MarketID, t.MarketTitle, t.Category, t.BetSizeUSD,
			string(t.Outcome), string(t.Side), t.Price, t.Shares, t.TradeTime, t.WalletAgeDays,
			t.RiskScore, string(t.RiskLevel), t.DetectedAt, string(t.DetectionSource),
			t.Alerted, channels,
		)
		if err != nil {
			return fmt.Errorf("failed to insert suspicious trade: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		inserted = true

		if _, err := tx.Exec(ctx, upsertAggregateSQL, wallet, t.DetectedAt, t.BetSizeUSD); err != nil {
			return fmt.Errorf("failed to update wallet aggregate: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// UpdateWalletAggregate applies one additive increment to a wallet's aggregate
func (s *Store) UpdateWalletAggregate(ctx context.Context, wallet string, usdDelta float64, at time.Time) error {
	wallet = storage.NormalizeKey(wallet)
	if wallet == "" {
		return fmt.Errorf("%w: empty wallet", storage.ErrInvalidInput)
	}
	if _, err := s.pool.Exec(ctx, upsertAggregateSQL, wallet, at, usdDelta); err != nil {
		return fmt.Errorf("failed to update wallet aggregate: %w", err)
	}
	return nil
}

// GetWalletAggregate returns storage.ErrNotFound for a wallet with no suspicious trades
func (s *Store) GetWalletAggregate(ctx context.Context, wallet string) (*models.WalletAggregate, error) {
	var agg models.WalletAggregate
	err := s.pool.QueryRow(ctx, `
		SELECT wallet, first_seen, total_bets, total_volume_usd, suspicious_bets, last_updated
		FROM wallet_aggregates
		WHERE wallet = $1`, storage.NormalizeKey(wallet),
	).Scan(&agg.Wallet, &agg.FirstSeen, &agg.TotalBets, &agg.TotalVolumeUSD, &agg.SuspiciousBets, &agg.LastUpdated)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get wallet aggregate: %w", err)
	}
	return &agg, nil
}

// MarkAlerted flags the trade as alerted and records one history row per channel
func (s *Store) MarkAlerted(ctx context.Context, tradeRef string, channels []string) error {
	sentAt := s.now().UTC()
	return s.inTx(ctx, func(tx pgx.Tx) error {
		var existing []string
		err := tx.QueryRow(ctx,
			`SELECT alert_channels FROM suspicious_trades WHERE trade_ref = $1 FOR UPDATE`, tradeRef,
		).Scan(&existing)
		if err != nil {
			if isNotFoundError(err) {
				return storage.ErrNotFound
			}
			return fmt.Errorf("failed to lock trade: %w", err)
		}

		merged := storage.MergeChannels(existing, channels)
		if _, err := tx.Exec(ctx,
			`UPDATE suspicious_trades SET alerted = TRUE, alert_channels = $2 WHERE trade_ref = $1`,
			tradeRef, merged,
		); err != nil {
			return fmt.Errorf("failed to mark trade alerted: %w", err)
		}

		for _, ch := range storage.MergeChannels(nil, channels) {
			if _, err := tx.Exec(ctx, `
				INSERT INTO alert_history (trade_ref, channel, sent_at) VALUES ($1, $2, $3)
				ON CONFLICT (trade_ref, channel) DO NOTHING`,
				tradeRef, ch, sentAt,
			); err != nil {
				return fmt.Errorf("failed to record alert history: %w", err)
			}
		}
		return nil
	})
}

// GetSuspiciousTrade returns one trade by reference
func (s *Store) GetSuspiciousTrade(ctx context.Context, tradeRef string) (*models.SuspiciousTrade, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tradeColumns+` FROM suspicious_trades WHERE trade_ref = $1`, tradeRef)
	t, err := scanTrade(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get suspicious trade: %w", err)
	}
	return t, nil
}

// ListSuspiciousTrades returns trades newest-detected first
func (s *Store) ListSuspiciousTrades(ctx context.Context, limit, offset int) ([]*models.SuspiciousTrade, error) {
	if offset < 0 {
		offset = 0
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+tradeColumns+`
		FROM suspicious_trades
		ORDER BY detected_at DESC, id DESC
		LIMIT $1 OFFSET $2`, storage.ClampLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list suspicious trades: %w", err)
	}
	return collectTrades(rows)
}

// ListTradesByWallet returns a wallet's trades newest-detected first
func (s *Store) ListTradesByWallet(ctx context.Context, wallet string, limit int) ([]*models.SuspiciousTrade, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+tradeColumns+`
		FROM suspicious_trades
		WHERE wallet = $1
		ORDER BY detected_at DESC, id DESC
		LIMIT $2`, storage.NormalizeKey(wallet), storage.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet trades: %w", err)
	}
	return collectTrades(rows)
}

// ListAlertHistory returns the delivery records for a trade
func (s *Store) ListAlertHistory(ctx context.Context, tradeRef string) ([]models.AlertRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT trade_ref, channel, sent_at
		FROM alert_history
		WHERE trade_ref = $1
		ORDER BY channel`, tradeRef)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert history: %w", err)
	}
	defer rows.Close()

	var out []models.AlertRecord
	for rows.Next() {
		var r models.AlertRecord
		if err := rows.Scan(&r.TradeRef, &r.Channel, &r.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert history: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TradeExists reports whether a trade reference has been recorded
func (s *Store) TradeExists(ctx context.Context, tradeRef string) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM suspicious_trades WHERE trade_ref = $1)`, tradeRef,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check trade: %w", err)
	}
	return exists, nil
}

// CountRecentByWallet counts a wallet's trades detected at or after since
func (s *Store) CountRecentByWallet(ctx context.Context, wallet string, since time.Time) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM suspicious_trades WHERE wallet = $1 AND detected_at >= $2`,
		storage.NormalizeKey(wallet), since,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count recent trades: %w", err)
	}
	return n, nil
}

func scanTrade(row pgx.Row) (*models.SuspiciousTrade, error) {
	var (
		t                              models.SuspiciousTrade
		outcome, side, level, detector string
	)
	err := row.Scan(
		&t.TradeRef, &t.Wallet, &t.MarketID, &t.MarketTitle, &t.Category, &t.BetSizeUSD,
		&outcome, &side, &t.Price, &t.Shares, &t.TradeTime, &t.WalletAgeDays,
		&t.RiskScore, &level, &t.DetectedAt, &detector, &t.Alerted, &t.AlertChannels,
	)
	if err != nil {
		return nil, err
	}
	t.Outcome = types.Outcome(outcome)
	t.Side = types.Side(side)
	t.RiskLevel = types.RiskLevel(level)
	t.DetectionSource = types.DetectionSource(detector)
	t.TradeTime = t.TradeTime.UTC()
	t.DetectedAt = t.DetectedAt.UTC()
	if len(t.AlertChannels) == 0 {
		t.AlertChannels = nil
	}
	return &t, nil
}

func collectTrades(rows pgx.Rows) ([]*models.SuspiciousTrade, error) {
	defer rows.Close()

	out := []*models.SuspiciousTrade{}
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan suspicious trade: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate suspicious trades: %w", err)
	}
	return out, nil
}
