package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

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
	VALUES (?1, ?2, 1, ?3, 1, ?2)
	ON CONFLICT (wallet) DO UPDATE SET
		total_bets       = total_bets + 1,
		total_volume_usd = total_volume_usd + excluded.total_volume_usd,
		suspicious_bets  = suspicious_bets + 1,
		first_seen       = MIN(first_seen, excluded.first_seen),
		last_updated     = MAX(last_updated, excluded.last_updated)
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertAggregate(ctx context.Context, db execer, wallet string, at time.Time, usd float64) error {
	if _, err := db.ExecContext(ctx, upsertAggregateSQL, wallet, toMicros(at), usd); err != nil {
		return fmt.Errorf("failed to update wallet aggregate: %w", err)
	}
	return nil
}

// SaveSuspiciousTrade inserts the trade once and bumps the wallet aggregate only on a new row
func (s *Store) SaveSuspiciousTrade(ctx context.Context, t *models.SuspiciousTrade) (bool, error) {
	if err := storage.ValidateTrade(t); err != nil {
		return false, err
	}
	wallet := storage.NormalizeKey(t.Wallet)

	var age sql.NullInt64
	if t.WalletAgeDays != nil {
		age = sql.NullInt64{Int64: int64(*t.WalletAgeDays), Valid: true}
	}

	inserted := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO suspicious_trades (`+tradeColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (trade_ref) DO NOTHING`,
			t.TradeRef, wallet, t.MarketID, t.MarketTitle, t.Category, t.BetSizeUSD,
			string(t.Outcome), string(t.Side), t.Price, t.Shares, toMicros(t.TradeTime), age,
			t.RiskScore, string(t.RiskLevel), toMicros(t.DetectedAt), string(t.DetectionSource),
			t.Alerted, joinChannels(t.AlertChannels),
		)
		if err != nil {
			return fmt.Errorf("failed to insert suspicious trade: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read insert result: %w", err)
		}
		if n == 0 {
			return nil
		}
		inserted = true
		return upsertAggregate(ctx, tx, wallet, t.DetectedAt, t.BetSizeUSD)
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
	return upsertAggregate(ctx, s.db, wallet, at, usdDelta)
}

// GetWalletAggregate returns storage.ErrNotFound for a wallet with no suspicious trades
func (s *Store) GetWalletAggregate(ctx context.Context, wallet string) (*models.WalletAggregate, error) {
	var (
		agg                    models.WalletAggregate
		firstSeen, lastUpdated int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT wallet, first_seen, total_bets, total_volume_usd, suspicious_bets, last_updated
		FROM wallet_aggregates
		WHERE wallet = ?`, storage.NormalizeKey(wallet),
	).Scan(&agg.Wallet, &firstSeen, &agg.TotalBets, &agg.TotalVolumeUSD, &agg.SuspiciousBets, &lastUpdated)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get wallet aggregate: %w", err)
	}
	agg.FirstSeen = fromMicros(firstSeen)
	agg.LastUpdated = fromMicros(lastUpdated)
	return &agg, nil
}

// MarkAlerted flags the trade as alerted and records one history row per channel
func (s *Store) MarkAlerted(ctx context.Context, tradeRef string, channels []string) error {
	sentAt := toMicros(s.now())
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var existing string
		err := tx.QueryRowContext(ctx,
			`SELECT alert_channels FROM suspicious_trades WHERE trade_ref = ?`, tradeRef,
		).Scan(&existing)
		if err != nil {
			if isNotFoundError(err) {
				return storage.ErrNotFound
			}
			return fmt.Errorf("failed to read trade: %w", err)
		}

		merged := storage.MergeChannels(splitChannels(existing), channels)
		if _, err := tx.ExecContext(ctx,
			`UPDATE suspicious_trades SET alerted = 1, alert_channels = ? WHERE trade_ref = ?`,
			joinChannels(merged), tradeRef,
		); err != nil {
			return fmt.Errorf("failed to mark trade alerted: %w", err)
		}

		for _, ch := range storage.MergeChannels(nil, channels) {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO alert_history (trade_ref, channel, sent_at) VALUES (?, ?, ?)
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
	row := s.db.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM suspicious_trades WHERE trade_ref = ?`, tradeRef)
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
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+tradeColumns+`
		FROM suspicious_trades
		ORDER BY detected_at DESC, id DESC
		LIMIT ? OFFSET ?`, storage.ClampLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list suspicious trades: %w", err)
	}
	return collectTrades(rows)
}

// ListTradesByWallet returns a wallet's trades newest-detected first
func (s *Store) ListTradesByWallet(ctx context.Context, wallet string, limit int) ([]*models.SuspiciousTrade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+tradeColumns+`
		FROM suspicious_trades
		WHERE wallet = ?
		ORDER BY detected_at DESC, id DESC
		LIMIT ?`, storage.NormalizeKey(wallet), storage.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet trades: %w", err)
	}
	return collectTrades(rows)
}

// ListAlertHistory returns the delivery records for a trade
func (s *Store) ListAlertHistory(ctx context.Context, tradeRef string) ([]models.AlertRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trade_ref, channel, sent_at
		FROM alert_history
		WHERE trade_ref = ?
		ORDER BY channel`, tradeRef)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert history: %w", err)
	}
	defer rows.Close()

	var out []models.AlertRecord
	for rows.Next() {
		var (
			r      models.AlertRecord
			sentAt int64
		)
		if err := rows.Scan(&r.TradeRef, &r.Channel, &sentAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert history: %w", err)
		}
		r.SentAt = fromMicros(sentAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// TradeExists reports whether a trade reference has been recorded
func (s *Store) TradeExists(ctx context.Context, tradeRef string) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM suspicious_trades WHERE trade_ref = ?)`, tradeRef,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check trade: %w", err)
	}
	return exists, nil
}

// CountRecentByWallet counts a wallet's trades detected at or after since
func (s *Store) CountRecentByWallet(ctx context.Context, wallet string, since time.Time) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM suspicious_trades WHERE wallet = ? AND detected_at >= ?`,
		storage.NormalizeKey(wallet), toMicros(since),
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count recent trades: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(row rowScanner) (*models.SuspiciousTrade, error) {
	var (
		t                              models.SuspiciousTrade
		outcome, side, level, detector string
		tradeTime, detectedAt          int64
		age                            sql.NullInt64
		channels                       string
	)
	err := row.Scan(
		&t.TradeRef, &t.Wallet, &t.MarketID, &t.MarketTitle, &t.Category, &t.BetSizeUSD,
		&outcome, &side, &t.Price, &t.Shares, &tradeTime, &age,
		&t.RiskScore, &level, &detectedAt, &detector, &t.Alerted, &channels,
	)
	if err != nil {
		return nil, err
	}
	t.Outcome = types.Outcome(outcome)
	t.Side = types.Side(side)
	t.RiskLevel = types.RiskLevel(level)
	t.DetectionSource = types.DetectionSource(detector)
	t.TradeTime = fromMicros(tradeTime)
	t.DetectedAt = fromMicros(detectedAt)
	t.AlertChannels = splitChannels(channels)
	if age.Valid {
		days := int(age.Int64)
		t.WalletAgeDays = &days
	}
	return &t, nil
}

func collectTrades(rows *sql.Rows) ([]*models.SuspiciousTrade, error) {
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
