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

const defaultTopWallets = 10

// AppendScanRun writes a scan run. Runs are append-only.
func (s *Store) AppendScanRun(ctx context.Context, run *models.ScanRun) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("%w: scan run without id", storage.ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_runs (
			id, mode, started_at, finished_at, markets_scanned, trades_scanned,
			suspicious_found, duplicates, alerts_sent, errors, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Mode), toMicros(run.StartedAt), toMicros(run.FinishedAt), run.MarketsScanned,
		run.TradesScanned, run.SuspiciousFound, run.Duplicates, run.AlertsSent, run.Errors, string(run.Status),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("failed to append scan run: %w", err)
	}
	return nil
}

// ListScanRuns returns the most recent scan runs first
func (s *Store) ListScanRuns(ctx context.Context, limit int) ([]*models.ScanRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mode, started_at, finished_at, markets_scanned, trades_scanned,
			suspicious_found, duplicates, alerts_sent, errors, status
		FROM scan_runs
		ORDER BY started_at DESC, id
		LIMIT ?`, storage.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list scan runs: %w", err)
	}
	defer rows.Close()

	out := []*models.ScanRun{}
	for rows.Next() {
		var (
			r                 models.ScanRun
			mode, status      string
			started, finished int64
		)
		if err := rows.Scan(&r.ID, &mode, &started, &finished, &r.MarketsScanned, &r.TradesScanned,
			&r.SuspiciousFound, &r.Duplicates, &r.AlertsSent, &r.Errors, &status); err != nil {
			return nil, fmt.Errorf("failed to scan scan run: %w", err)
		}
		r.Mode = types.ScanMode(mode)
		r.Status = types.ScanStatus(status)
		r.StartedAt = fromMicros(started)
		r.FinishedAt = fromMicros(finished)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// UpsertMarket caches market metadata, replacing any previous entry
func (s *Store) UpsertMarket(ctx context.Context, m *models.Market) error {
	if m == nil || m.ID == "" {
		return fmt.Errorf("%w: market without id", storage.ErrInvalidInput)
	}
	cachedAt := m.CachedAt
	if cachedAt.IsZero() {
		cachedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO markets_cache (id, question, category, active, cached_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			question  = excluded.question,
			category  = excluded.category,
			active    = excluded.active,
			cached_at = excluded.cached_at`,
		storage.NormalizeKey(m.ID), m.Question, m.Category, m.Active, toMicros(cachedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert market: %w", err)
	}
	return nil
}

// GetMarket returns cached market metadata
func (s *Store) GetMarket(ctx context.Context, marketID string) (*models.Market, error) {
	var (
		m        models.Market
		cachedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, question, category, active, cached_at
		FROM markets_cache
		WHERE id = ?`, storage.NormalizeKey(marketID),
	).Scan(&m.ID, &m.Question, &m.Category, &m.Active, &cachedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get market: %w", err)
	}
	m.CachedAt = fromMicros(cachedAt)
	return &m, nil
}

// DashboardStats computes the dashboard projections inside one read transaction
func (s *Store) DashboardStats(ctx context.Context, topN int, now time.Time) (*models.DashboardStats, error) {
	if topN <= 0 {
		topN = defaultTopWallets
	}
	stats := models.NewDashboardStats()

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			SELECT
				COUNT(*),
				COUNT(DISTINCT wallet),
				COALESCE(SUM(bet_size_usd), 0),
				COALESCE(SUM(CASE WHEN detected_at >= ? THEN 1 ELSE 0 END), 0),
				COALESCE(SUM(CASE WHEN alerted = 1 THEN 1 ELSE 0 END), 0)
			FROM suspicious_trades`, toMicros(storage.StartOfDay(now)),
		).Scan(&stats.TotalSuspicious, &stats.UniqueWallets, &stats.TotalVolumeUSD, &stats.Today, &stats.Alerted)
		if err != nil {
			return fmt.Errorf("failed to compute totals: %w", err)
		}

		rows, err := tx.QueryContext(ctx, `SELECT risk_level, COUNT(*) FROM suspicious_trades GROUP BY risk_level`)
		if err != nil {
			return fmt.Errorf("failed to count by level: %w", err)
		}
		for rows.Next() {
			var (
				level string
				n     int
			)
			if err := rows.Scan(&level, &n); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan level count: %w", err)
			}
			stats.ByRiskLevel[types.RiskLevel(level)] = n
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to count by level: %w", err)
		}

		rows, err = tx.QueryContext(ctx, `
			SELECT wallet, suspicious_bets, total_volume_usd
			FROM wallet_aggregates
			ORDER BY suspicious_bets DESC, total_volume_usd DESC, wallet
			LIMIT ?`, topN)
		if err != nil {
			return fmt.Errorf("failed to list top wallets: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var w models.WalletVolume
			if err := rows.Scan(&w.Wallet, &w.SuspiciousBets, &w.TotalVolumeUSD); err != nil {
				return fmt.Errorf("failed to scan top wallet: %w", err)
			}
			stats.TopWallets = append(stats.TopWallets, w)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}
