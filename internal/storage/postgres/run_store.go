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

// DefaultTopWallets is the leaderboard size used when callers pass zero
const DefaultTopWallets = 10

// AppendScanRun writes a scan run. Runs are append-only.
func (s *Store) AppendScanRun(ctx context.Context, run *models.ScanRun) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("%w: scan run without id", storage.ErrInvalidInput)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scan_runs (
			id, mode, started_at, finished_at, markets_scanned, trades_scanned,
			suspicious_found, duplicates, alerts_sent, errors, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		run.ID, string(run.Mode), run.StartedAt, run.FinishedAt, run.MarketsScanned, run.TradesScanned,
		run.SuspiciousFound, run.Duplicates, run.AlertsSent, run.Errors, string(run.Status),
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
	rows, err := s.pool.Query(ctx, `
		SELECT id, mode, started_at, finished_at, markets_scanned, trades_scanned,
			suspicious_found, duplicates, alerts_sent, errors, status
		FROM scan_runs
		ORDER BY started_at DESC, id
		LIMIT $1`, storage.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list scan runs: %w", err)
	}

	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.ScanRun, error) {
		var (
			r            models.ScanRun
			mode, status string
		)
		err := row.Scan(&r.ID, &mode, &r.StartedAt, &r.FinishedAt, &r.MarketsScanned, &r.TradesScanned,
			&r.SuspiciousFound, &r.Duplicates, &r.AlertsSent, &r.Errors, &status)
		r.Mode = types.ScanMode(mode)
		r.Status = types.ScanStatus(status)
		r.StartedAt = r.StartedAt.UTC()
		r.FinishedAt = r.FinishedAt.UTC()
		return &r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan scan runs: %w", err)
	}
	return runs, nil
}

// UpsertMarket caches market metadata, replacing any previous entry
func (s *Store) UpsertMarket(ctx context.Context, m *models.Market) error {
	if m == nil || m.ID == "" {
		return fmt.Errorf("%w: market without id", storage.ErrInvalidInput)
	}
	cachedAt := m.CachedAt
	if cachedAt.IsZero() {
		cachedAt = s.now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO markets_cache (id, question, category, active, cached_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			question  = EXCLUDED.question,
			category  = EXCLUDED.category,
			active    = EXCLUDED.active,
			cached_at = EXCLUDED.cached_at`,
		storage.NormalizeKey(m.ID), m.Question, m.Category, m.Active, cachedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert market: %w", err)
	}
	return nil
}

// GetMarket returns cached market metadata
func (s *Store) GetMarket(ctx context.Context, marketID string) (*models.Market, error) {
	var m models.Market
	err := s.pool.QueryRow(ctx, `
		SELECT id, question, category, active, cached_at
		FROM markets_cache
		WHERE id = $1`, storage.NormalizeKey(marketID),
	).Scan(&m.ID, &m.Question, &m.Category, &m.Active, &m.CachedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get market: %w", err)
	}
	return &m, nil
}

// DashboardStats computes the dashboard projections in one read transaction
func (s *Store) DashboardStats(ctx context.Context, topN int, now time.Time) (*models.DashboardStats, error) {
	if topN <= 0 {
		topN = DefaultTopWallets
	}
	stats := models.NewDashboardStats()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin stats transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // nolint:errcheck // read-only
	}()

	err = tx.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(DISTINCT wallet),
			COALESCE(SUM(bet_size_usd), 0),
			COUNT(*) FILTER (WHERE detected_at >= $1),
			COUNT(*) FILTER (WHERE alerted)
		FROM suspicious_trades`, storage.StartOfDay(now),
	).Scan(&stats.TotalSuspicious, &stats.UniqueWallets, &stats.TotalVolumeUSD, &stats.Today, &stats.Alerted)
	if err != nil {
		return nil, fmt.Errorf("failed to compute totals: %w", err)
	}

	rows, err := tx.Query(ctx, `SELECT risk_level, COUNT(*) FROM suspicious_trades GROUP BY risk_level`)
	if err != nil {
		return nil, fmt.Errorf("failed to count by level: %w", err)
	}
	for rows.Next() {
		var (
			level string
			n     int
		)
		if err := rows.Scan(&level, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan level count: %w", err)
		}
		stats.ByRiskLevel[types.RiskLevel(level)] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to count by level: %w", err)
	}

	rows, err = tx.Query(ctx, `
		SELECT wallet, suspicious_bets, total_volume_usd
		FROM wallet_aggregates
		ORDER BY suspicious_bets DESC, total_volume_usd DESC, wallet
		LIMIT $1`, topN)
	if err != nil {
		return nil, fmt.Errorf("failed to list top wallets: %w", err)
	}
	top, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.WalletVolume, error) {
		var w models.WalletVolume
		err := row.Scan(&w.Wallet, &w.SuspiciousBets, &w.TotalVolumeUSD)
		return w, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan top wallets: %w", err)
	}
	stats.TopWallets = append(stats.TopWallets, top...)

	return stats, nil
}
