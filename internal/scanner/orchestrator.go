// Package scanner runs scans: it enumerates trades, analyzes them, records the
// suspicious ones and alerts on new detections.
package scanner

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/polytracker/scanner/internal/analyzer"
	"github.com/polytracker/scanner/internal/errors"
	"github.com/polytracker/scanner/internal/logging"
	"github.com/polytracker/scanner/internal/metrics"
	"github.com/polytracker/scanner/internal/models"
	"github.com/polytracker/scanner/internal/retry"
	"github.com/polytracker/scanner/internal/storage"
	"github.com/polytracker/scanner/internal/types"
)

// Defaults applied when the corresponding option is not set
const (
	DefaultRecentLimit   = 500
	DefaultMarketLimit   = 100
	DefaultActivityLimit = 100
	DefaultMarketDelay   = 2 * time.Second
	DefaultMaxAttempts   = 3
	DefaultRetryDelay    = time.Second

	runWriteTimeout = 10 * time.Second
)

// MarketDataClient enumerates trades and markets. adapter.PolymarketClient implements it.
type MarketDataClient interface {
	ListLargeTrades(ctx context.Context, minCash float64, limit int) ([]models.TradeCandidate, error)
	ListMarkets(ctx context.Context, categories []string, limit int) ([]models.Market, error)
	ListMarketTrades(ctx context.Context, marketID string, minCash float64, limit int) ([]models.TradeCandidate, error)
	ListWalletActivity(ctx context.Context, wallet string, limit int) ([]models.TradeCandidate, error)
}

// TradeAnalyzer decides whether a candidate is suspicious. analyzer.Analyzer implements it.
type TradeAnalyzer interface {
	Analyze(ctx context.Context, cand models.TradeCandidate, cfg models.DetectionConfig) (*models.SuspiciousTrade, analyzer.RejectReason)
}

// AlertDispatcher delivers alerts. alert.Dispatcher implements it.
type AlertDispatcher interface {
	Dispatch(ctx context.Context, trade *models.SuspiciousTrade) map[string]bool
}

// Store is the persistence the orchestrator needs
type Store interface {
	SaveSuspiciousTrade(ctx context.Context, t *models.SuspiciousTrade) (bool, error)
	MarkAlerted(ctx context.Context, tradeRef string, channels []string) error
	ListTrackedWallets(ctx context.Context, activeOnly bool) ([]*models.TrackedWallet, error)
	ListTrackedMarkets(ctx context.Context, activeOnly bool) ([]*models.TrackedMarket, error)
	IsMarketTracked(ctx context.Context, marketID string) (bool, error)
	RecordWalletActivity(ctx context.Context, wallet string, at time.Time) error
	RecordMarketActivity(ctx context.Context, marketID string, at time.Time) error
	UpsertMarket(ctx context.Context, m *models.Market) error
	AppendScanRun(ctx context.Context, run *models.ScanRun) error
}

// Orchestrator runs one scan at a time per call. It holds no per-run state,
// so concurrent Run calls are safe.
type Orchestrator struct {
	client     MarketDataClient
	analyzer   TradeAnalyzer
	dispatcher AlertDispatcher
	store      Store
	metrics    *metrics.Metrics
	logger     *logging.Logger
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error

	recentLimit   int
	marketLimit   int
	activityLimit int
	marketDelay   time.Duration
	retry         retry.RetryConfig
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithMetrics records scan metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithLimits sets page sizes for the three scan modes. Non-positive values keep the default.
func WithLimits(recent, markets, activity int) Option {
	return func(o *Orchestrator) {
		if recent > 0 {
			o.recentLimit = recent
		}
		if markets > 0 {
			o.marketLimit = markets
		}
		if activity > 0 {
			o.activityLimit = activity
		}
	}
}

// WithMarketDelay sets the pause between markets in a full scan
func WithMarketDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.marketDelay = d
		}
	}
}

// WithRetry sets the fetch retry policy
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(o *Orchestrator) {
		if maxAttempts > 0 {
			o.retry.MaxAttempts = maxAttempts
		}
		if baseDelay > 0 {
			o.retry.InitialDelay = baseDelay
		}
	}
}

// NewOrchestrator wires a scan pipeline
func NewOrchestrator(client MarketDataClient, an TradeAnalyzer, dispatcher AlertDispatcher, store Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:        client,
		analyzer:      an,
		dispatcher:    dispatcher,
		store:         store,
		now:           time.Now,
		sleep:         sleepContext,
		recentLimit:   DefaultRecentLimit,
		marketLimit:   DefaultMarketLimit,
		activityLimit: DefaultActivityLimit,
		marketDelay:   DefaultMarketDelay,
		retry: retry.RetryConfig{
			MaxAttempts:  DefaultMaxAttempts,
			InitialDelay: DefaultRetryDelay,
			MaxDelay:     30 * time.Second,
			Multiplier:   2,
			Retryable:    errors.IsRetryable,
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.OrGlobal(o.logger).WithField("component", "scanner")
	return o
}

// run carries the counters of one scan
type run struct {
	*models.ScanRun
	cfg models.DetectionConfig
	log *logging.Logger
}

// Run executes one scan and records it. A ScanRun is written even when ctx is
// cancelled part way. An error is returned only for an invalid cfg or when the
// ScanRun cannot be written.
func (o *Orchestrator) Run(ctx context.Context, mode types.ScanMode, cfg models.DetectionConfig) (*models.ScanRun, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.NewInvalidParameterError("detectionConfig", err.Error())
	}
	parsed, ok := types.ParseScanMode(string(mode))
	if !ok {
		return nil, errors.NewInvalidParameterError("mode", fmt.Sprintf("unknown scan mode %q", mode))
	}
	mode = parsed

	r := &run{
		ScanRun: &models.ScanRun{
			ID:        uuid.NewString(),
			Mode:      mode,
			StartedAt: o.now().UTC(),
		},
		cfg: cfg,
	}
	r.log = o.logger.WithFields(map[string]interface{}{"scanId": r.ID, "mode": mode})
	ctx = logging.WithLogger(ctx, r.log)
	r.log.Info("scan started")

	switch mode {
	case types.ScanModeRecent:
		o.scanRecent(ctx, r)
	case types.ScanModeFull:
		o.scanFull(ctx, r)
	case types.ScanModeTrackedWallets:
		o.scanTrackedWallets(ctx, r)
	}

	r.FinishedAt = o.now().UTC()
	switch {
	case ctx.Err() != nil:
		r.Status = types.ScanStatusCancelled
	case r.Errors > 0:
		r.Status = types.ScanStatusCompletedWithErrors
	default:
		r.Status = types.ScanStatusCompleted
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), runWriteTimeout)
	defer cancel()
	if err := o.store.AppendScanRun(writeCtx, r.ScanRun); err != nil {
		r.log.WithError(err).Error("failed to record scan run")
		return r.ScanRun, fmt.Errorf("failed to record scan run: %w", err)
	}

	o.metrics.ObserveScan(string(mode), string(r.Status), r.Duration())
	r.log.WithFields(map[string]interface{}{
		"status":          r.Status,
		"marketsScanned":  r.MarketsScanned,
		"tradesScanned":   r.TradesScanned,
		"suspiciousFound": r.SuspiciousFound,
		"duplicates":      r.Duplicates,
		"alertsSent":      r.AlertsSent,
		"errors":          r.Errors,
		"duration":        r.Duration().String(),
	}).Info("scan finished")
	return r.ScanRun, nil
}

func (o *Orchestrator) minCash(cfg models.DetectionConfig) float64 {
	if cfg.CheckBetSize {
		return cfg.MinBetSizeUSD
	}
	return 0
}

func (o *Orchestrator) scanRecent(ctx context.Context, r *run) {
	var trades []models.TradeCandidate
	ok := o.fetch(ctx, r, "list_large_trades", func(ctx context.Context) error {
		var err error
		trades, err = o.client.ListLargeTrades(ctx, o.minCash(r.cfg), o.recentLimit)
		return err
	})
	if !ok {
		return
	}
	o.processAll(ctx, r, trades, nil)
}

func (o *Orchestrator) scanFull(ctx context.Context, r *run) {
	var markets []models.Market
	o.fetch(ctx, r, "list_markets", func(ctx context.Context) error {
		var err error
		markets, err = o.client.ListMarkets(ctx, r.cfg.AllowCategories, o.marketLimit)
		return err
	})
	if ctx.Err() != nil {
		return
	}

	for i := range markets {
		m := &markets[i]
		if m.CachedAt.IsZero() {
			m.CachedAt = o.now().UTC()
		}
		if err := o.store.UpsertMarket(ctx, m); err != nil {
			r.log.WithError(err).WithField("marketId", m.ID).Warn("failed to cache market")
		}
	}
	markets = o.appendTrackedMarkets(ctx, r, markets)

	for i := range markets {
		if ctx.Err() != nil {
			return
		}
		if i > 0 && o.marketDelay > 0 {
			if err := o.sleep(ctx, o.marketDelay); err != nil {
				return
			}
		}
		m := &markets[i]
		r.MarketsScanned++

		var trades []models.TradeCandidate
		ok := o.fetch(ctx, r, "list_market_trades", func(ctx context.Context) error {
			var err error
			trades, err = o.client.ListMarketTrades(ctx, m.ID, o.minCash(r.cfg), o.recentLimit)
			return err
		})
		if !ok {
			continue
		}
		o.processAll(ctx, r, trades, m)
	}
}

// appendTrackedMarkets adds active tracked markets the listing did not return
func (o *Orchestrator) appendTrackedMarkets(ctx context.Context, r *run, markets []models.Market) []models.Market {
	tracked, err := o.store.ListTrackedMarkets(ctx, true)
	if err != nil {
		r.Errors++
		r.log.WithError(err).Warn("failed to list tracked markets")
		return markets
	}
	seen := make(map[string]bool, len(markets))
	for _, m := range markets {
		seen[storage.NormalizeKey(m.ID)] = true
	}
	for _, t := range tracked {
		if seen[t.MarketID] {
			continue
		}
		seen[t.MarketID] = true
		markets = append(markets, models.Market{ID: t.MarketID, Question: t.Label, Active: true})
	}
	return markets
}

func (o *Orchestrator) scanTrackedWallets(ctx context.Context, r *run) {
	wallets, err := o.store.ListTrackedWallets(ctx, true)
	if err != nil {
		r.Errors++
		r.log.WithError(err).Error("failed to list tracked wallets")
		return
	}
	for _, w := range wallets {
		if ctx.Err() != nil {
			return
		}
		var trades []models.TradeCandidate
		ok := o.fetch(ctx, r, "list_wallet_activity", func(ctx context.Context) error {
			var err error
			trades, err = o.client.ListWalletActivity(ctx, w.Wallet, o.activityLimit)
			return err
		})
		if !ok {
			continue
		}
		o.processAll(ctx, r, trades, nil)
	}
}

// fetch runs a market-data call under the retry policy. On exhaustion the
// failure is logged and counted, and false is returned.
func (o *Orchestrator) fetch(ctx context.Context, r *run, op string, fn func(ctx context.Context) error) bool {
	cfg := o.retry
	res := retry.WithExponentialBackoff(ctx, &cfg, func(ctx context.Context, attempt int) error {
		return fn(ctx)
	})
	if res.Success {
		return true
	}
	if ctx.Err() != nil {
		return false
	}
	r.Errors++
	o.metrics.FetchFailed(op)
	r.log.WithError(res.LastError).WithFields(map[string]interface{}{
		"operation": op,
		"attempts":  res.Attempts,
	}).Error("fetch failed, skipping page")
	return false
}

func (o *Orchestrator) processAll(ctx context.Context, r *run, trades []models.TradeCandidate, market *models.Market) {
	for _, cand := range trades {
		if ctx.Err() != nil {
			return
		}
		if market != nil {
			if cand.MarketTitle == "" {
				cand.MarketTitle = market.Question
			}
			if cand.Category == "" {
				cand.Category = market.Category
			}
		}
		o.process(ctx, r, cand)
	}
}

// process handles one candidate. Failures are counted and never abort the scan.
func (o *Orchestrator) process(ctx context.Context, r *run, cand models.TradeCandidate) {
	r.TradesScanned++
	o.metrics.TradeAnalyzed()

	trade, reason := o.analyzer.Analyze(ctx, cand, r.cfg)
	if trade == nil {
		r.log.WithFields(map[string]interface{}{
			"tradeRef": cand.TradeRef,
			"reason":   reason,
		}).Debug("trade not flagged")
		return
	}

	log := r.log.WithFields(map[string]interface{}{"tradeRef": trade.TradeRef, "wallet": trade.Wallet})
	inserted, err := o.store.SaveSuspiciousTrade(ctx, trade)
	if err != nil {
		r.Errors++
		log.WithError(err).Error("failed to save suspicious trade")
		return
	}
	if !inserted {
		r.Duplicates++
		o.metrics.DuplicateSkipped()
		log.Debug("suspicious trade already recorded")
		return
	}
	r.SuspiciousFound++
	o.metrics.SuspiciousRecorded(string(trade.RiskLevel))

	o.recordActivity(ctx, trade, log)

	results := o.dispatcher.Dispatch(ctx, trade)
	var sent []string
	for ch, ok := range results {
		if ok {
			sent = append(sent, ch)
		}
	}
	sort.Strings(sent)
	if len(sent) == 0 {
		if len(results) > 0 {
			log.Warn("no alert channel accepted the trade")
		}
		return
	}
	r.AlertsSent += len(sent)
	if err := o.store.MarkAlerted(ctx, trade.TradeRef, sent); err != nil {
		r.Errors++
		log.WithError(err).Error("failed to mark trade alerted")
	}
}

func (o *Orchestrator) recordActivity(ctx context.Context, trade *models.SuspiciousTrade, log *logging.Logger) {
	if trade.DetectionSource == types.SourceTrackedWallet {
		if err := o.store.RecordWalletActivity(ctx, trade.Wallet, trade.DetectedAt); err != nil && !stderrors.Is(err, storage.ErrNotFound) {
			log.WithError(err).Warn("failed to record tracked wallet activity")
		}
	}
	if trade.MarketID == "" {
		return
	}
	tracked, err := o.store.IsMarketTracked(ctx, trade.MarketID)
	if err != nil {
		log.WithError(err).Warn("tracked market lookup failed")
		return
	}
	if !tracked {
		return
	}
	if err := o.store.RecordMarketActivity(ctx, trade.MarketID, trade.DetectedAt); err != nil && !stderrors.Is(err, storage.ErrNotFound) {
		log.WithError(err).Warn("failed to record tracked market activity")
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
