// Package storetest is the behavioral contract every storage.Store engine must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polytracker/scanner/internal/models"
	"github.com/polytracker/scanner/internal/storage"
	"github.com/polytracker/scanner/internal/types"
)

// Factory returns an empty, migrated store. The factory owns cleanup.
type Factory func(t *testing.T) storage.Store

var base = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// Trade builds a valid suspicious trade for tests
func Trade(ref, wallet string, betUSD float64, detectedAt time.Time) *models.SuspiciousTrade {
	age := 2
	return &models.SuspiciousTrade{
		TradeRef:        ref,
		Wallet:          wallet,
		MarketID:        "0xmarket",
		MarketTitle:     "Will it happen?",
		Category:        "Politics",
		BetSizeUSD:      betUSD,
		Outcome:         types.OutcomeYes,
		Side:            types.SideBuy,
		Price:           0.04,
		Shares:          betUSD / 0.04,
		TradeTime:       detectedAt.Add(-time.Minute),
		WalletAgeDays:   &age,
		RiskScore:       85,
		RiskLevel:       types.RiskCritical,
		DetectedAt:      detectedAt,
		DetectionSource: types.SourceAutomatic,
	}
}

// Run executes the full contract suite against stores produced by newStore
func Run(t *testing.T, newStore Factory) {
	t.Run("SaveIsIdempotent", func(t *testing.T) { testSaveIsIdempotent(t, newStore(t)) })
	t.Run("SaveRejectsInvalid", func(t *testing.T) { testSaveRejectsInvalid(t, newStore(t)) })
	t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(t, newStore(t)) })
	t.Run("AggregatesAreAdditive", func(t *testing.T) { testAggregatesAreAdditive(t, newStore(t)) })
	t.Run("UpdateWalletAggregate", func(t *testing.T) { testUpdateWalletAggregate(t, newStore(t)) })
	t.Run("ListOrderingAndPaging", func(t *testing.T) { testListOrdering(t, newStore(t)) })
	t.Run("MarkAlerted", func(t *testing.T) { testMarkAlerted(t, newStore(t)) })
	t.Run("CountRecentByWallet", func(t *testing.T) { testCountRecent(t, newStore(t)) })
	t.Run("TrackedWallets", func(t *testing.T) { testTrackedWallets(t, newStore(t)) })
	t.Run("TrackedMarkets", func(t *testing.T) { testTrackedMarkets(t, newStore(t)) })
	t.Run("ScanRuns", func(t *testing.T) { testScanRuns(t, newStore(t)) })
	t.Run("Markets", func(t *testing.T) { testMarkets(t, newStore(t)) })
	t.Run("DashboardStatsEmpty", func(t *testing.T) { testStatsEmpty(t, newStore(t)) })
	t.Run("DashboardStats", func(t *testing.T) { testStats(t, newStore(t)) })
	t.Run("ConcurrentDuplicateSaves", func(t *testing.T) { testConcurrentDuplicates(t, newStore(t)) })
	t.Run("ConcurrentSameWallet", func(t *testing.T) { testConcurrentSameWallet(t, newStore(t)) })
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func testSaveIsIdempotent(t *testing.T, s storage.Store) {
	ctx := testContext(t)
	tr := Trade("ref-1", "0xabc", 60000, base)

	inserted, err := s.SaveSuspiciousTrade(ctx, tr)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.SaveSuspiciousTrade(ctx, tr)
	require.NoError(t, err)
	assert.False(t, inserted, "duplicate ref is a no-op")

	agg, err := s.GetWalletAggregate(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, 1, agg.TotalBets)
	assert.Equal(t, 1, agg.SuspiciousBets)
	assert.InDelta(t, 60000, agg.TotalVolumeUSD, 0.001)

	list, err := s.ListSuspiciousTrades(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ref-1", list[0].TradeRef)

	all, err := s.ListSuspiciousTrades(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testSaveRejectsInvalid(t *testing.T, s storage.Store) {
	ctx := testContext(t)
	_, err := s.SaveSuspiciousTrade(ctx, Trade("", "0xabc", 100, base))
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = s.SaveSuspiciousTrade(ctx, Trade("ref", "", 100, base))
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func testRoundTrip(t *testing.T, s storage.Store) {
	ctx := testContext(t)

	known := Trade("ref-known", "0xABC", 25000, base)
	unknown := Trade("ref-unknown", "0xabc", 12000, base.Add(time.Second))
	unknown.WalletAgeDays = nil
	unknown.Outcome = types.OutcomeNo
	unknown.Side = types.SideSell
	unknown.DetectionSource = types.SourceTrackedWallet
	unknown.MarketTitle = ""
	unknown.Category = ""

	for _, tr := range []*models.SuspiciousTrade{known, unknown} {
		_, err := s.SaveSuspiciousTrade(ctx, tr)
		require.NoError(t, err)
	}

	got, err := s.GetSuspiciousTrade(ctx, "ref-known")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", got.Wallet, "wallet stored lower-cased")
	require.NotNil(t, got.WalletAgeDays)
	assert.Equal(t, 2, *got.WalletAgeDays)
	assert.Equal(t, types.OutcomeYes, got.Outcome)
	assert.Equal(t, types.RiskCritical, got.RiskLevel)
	assert.Equal(t, 85, got.RiskScore)
	assert.True(t, got.DetectedAt.Equal(base))
	assert.True(t, got.TradeTime.Equal(base.Add(-time.Minute)))
	assert.False(t, got.Alerted)
	assert.Empty(t, got.AlertChannels)

	got, err = s.GetSuspiciousTrade(ctx, "ref-unknown")
	require.NoError(t, err)
	assert.Nil(t, got.WalletAgeDays)
	assert.Equal(t, types.OutcomeNo, got.Outcome)
	assert.Equal(t, types.SideSell, got.Side)
	assert.Equal(t, types.SourceTrackedWallet, got.DetectionSource)
	assert.Equal(t, "", got.Category)

	_, err = s.GetSuspiciousTrade(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	exists, err := s.TradeExists(ctx, "ref-known")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = s.TradeExists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, exists)

	byWallet, err := s.ListTradesByWallet(ctx, "0xAbC", 10)
	require.NoError(t, err)
	require.Len(t, byWallet, 2)
	assert.Equal(t, "ref-unknown", byWallet[0].TradeRef)
}

func testAggregatesAreAdditive(t *testing.T, s storage.Store) {
	ctx := testContext(t)
	sizes := []float64{10000, 25000.5, 60000, 12345.67}
	var sum float64
	for i, size := range sizes {
		sum += size
		_, err := s.SaveSuspiciousTrade(ctx, Trade(fmt.Sprintf("add-%d", i), "0xwallet", size, base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	agg, err := s.GetWalletAggregate(ctx, "0xwallet")
	require.NoError(t, err)
	assert.Equal(t, len(sizes), agg.SuspiciousBets)
	assert.Equal(t, len(sizes), agg.TotalBets)
	assert.InDelta(t, sum, agg.TotalVolumeUSD, 0.001)
	assert.True(t, agg.FirstSeen.Equal(base))
	assert.True(t, agg.LastUpdated.Equal(base.Add(3*time.Minute)))

	_, err = s.GetWalletAggregate(ctx, "0xnobody")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testUpdateWalletAggregate(t *testing.T, s storage.Store) {
	ctx := testContext(t)
	require.NoError(t, s.UpdateWalletAggregate(ctx, "0xW", 100, base))
	require.NoError(t, s.UpdateWalletAggregate(ctx, "0xw", 50, base.Add(time.Hour)))

	agg, err := s.GetWalletAggregate(ctx, "0xw")
	require.NoError(t, err)
	assert.Equal(t, 2, agg.TotalBets)
	assert.InDelta(t, 150, agg.TotalVolumeUSD, 0.001)
	assert.True(t, agg.LastUpdated.Equal(base.Add(time.Hour)))

	assert.ErrorIs(t, s.UpdateWalletAggregate(ctx, " ", 1, base), storage.ErrInvalidInput)
}

func testListOrdering(t *testing.T, s storage.Store) {
	ctx := testContext(t)
	for i := 0; i < 5; i++ {
		_, err := s.SaveSuspiciousTrade(ctx, Trade(fmt.Sprintf("ord-%d", i), "0xw", 10000, base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	page, err := s.ListSuspiciousTrades(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "ord-4", page[0].TradeRef)
	assert.Equal(t, "ord-3", page[1].TradeRef)

	page, err = s.ListSuspiciousTrades(ctx, 2, 4)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "ord-0", page[0].TradeRef)

	page, err = s.ListSuspiciousTrades(ctx, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func testMarkAlerted(t *testing.T, s storage.Store) {
	ctx := testContext(t)
	_, err := s.SaveSuspiciousTrade(ctx, Trade("alert-1", "0xw", 10000, base))
	require.NoError(t, err)

	require.NoError(t, s.MarkAlerted(ctx, "alert-1", []string{"telegram"}))
	require.NoError(t, s.MarkAlerted(ctx, "alert-1", []string{"slack", "telegram"}))
	require.NoError(t, s.MarkAlerted(ctx, "alert-1", []string{"slack"}))

	got, err := s.GetSuspiciousTrade(ctx, "alert-1")
	require.NoError(t, err)
	assert.True(t, got.Alerted)
	assert.Equal(t, []string{"slack", "telegram"}, got.AlertChannels)

	history, err := s.ListAlertHistory(ctx, "alert-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "slack", history[0].Channel)
	assert.Equal(t, "telegram", history[1].Channel)

	assert.ErrorIs(t, s.MarkAlerted(ctx, "missing", []string{"slack"}), storage.ErrNotFound)
}

func testCountRecent(t *testing.T, s storage.Store) {
	ctx := testContext(t)
	offsets := []time.Duration{-2 * time.Hour, -59 * time.Minute, -30 * time.Minute, -time.Minute}
	for i, off := range offsets {
		_, err := s.SaveSuspiciousTrade(ctx, Trade(fmt.Sprintf("vel-%d", i), "0xfast", 10000, base.Add(off)))
		require.NoError(t, err)
	}
	_, err := s.SaveSuspiciousTrade(ctx, Trade("vel-other", "0xother", 10000, base))
	require.NoError(t, err)

	n, err := s.CountRecentByWallet(ctx, "0xFAST", base.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.CountRecentByWallet(ctx, "0xnobody", base.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func testTrackedWallets(t *testing.T, s storage.Store) {
	ctx := testContext(t)
	require.NoError(t, s.AddTrackedWallet(ctx, &models.TrackedWallet{Wallet: "0xAAA", Label: "whale", AddedAt: base}))
	require.NoError(t, s.AddTrackedWallet(ctx, &models.TrackedWallet{Wallet: "0xbbb", AddedAt: base.Add(time.Minute)}))

	tracked, err := s.IsWalletTracked(ctx, "0xaaa")
	require.NoError(t, err)
	assert.True(t, tracked)

	require.NoError(t, s.RemoveTrackedWallet(ctx, "0xAAA"))
	tracked, err = s.IsWalletTracked(ctx, "0xaaa")
	require.NoError(t, err)
	assert.False(t, tracked)

	active, err := s.ListTrackedWallets(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "0xbbb", active[0].Wallet)

	all, err := s.ListTrackedWallets(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2, "soft delete keeps the row")

	require.NoError(t, s.AddTrackedWallet(ctx, &models.TrackedWallet{Wallet: "0xaaa", Label: "insider", Notes: "re-added", AddedAt: base.Add(time.Hour)}))
	all, err = s.ListTrackedWallets(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "0xaaa", all[0].Wallet)
	assert.Equal(t, "insider", all[0].Label)
	assert.Equal(t, "re-added", all[0].Notes)
	assert.True(t, all[0].Active)

	require.NoError(t, s.RecordWalletActivity(ctx, "0xaaa", base.Add(2*time.Hour)))
	require.NoError(t, s.RecordWalletActivity(ctx, "0xaaa", base.Add(3*time.Hour)))
	all, err = s.ListTrackedWallets(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, all[0].AlertCount)
	require.NotNil(t, all[0].LastActivity)
	assert.True(t, all[0].LastActivity.Equal(base.Add(3*time.Hour)))
	assert.Nil(t, all[1].LastActivity)

	assert.ErrorIs(t, s.RemoveTrackedWallet(ctx, "0xnobody"), storage.ErrNotFound)
	assert.ErrorIs(t, s.AddTrackedWallet(ctx, &models.TrackedWallet{}), storage.ErrInvalidInput)
}

func testTrackedMarkets(t *testing.T, s storage.Store) {
	ctx := testContext(t)
	require.NoError(t, s.AddTrackedMarket(ctx, &models.TrackedMarket{MarketID: "0xM1", Reason: "election", AddedAt: base}))

	tracked, err := s.IsMarketTracked(ctx, "0xm1")
	require.NoError(t, err)
	assert.True(t, tracked)

	require.NoError(t, s.RecordMarketActivity(ctx, "0xm1", base.Add(time.Minute)))
	require.NoError(t, s.RemoveTrackedMarket(ctx, "0xm1"))

	tracked, err = s.IsMarketTracked(ctx, "0xm1")
	require.NoError(t, err)
	assert.False(t, tracked)

	active, err := s.ListTrackedMarkets(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := s.ListTrackedMarkets(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].Active)
	assert.Equal(t, 1, all[0].AlertCount)
	assert.Equal(t, "election", all[0].Reason)

	assert.ErrorIs(t, s.RemoveTrackedMarket(ctx, "0xnone"), storage.ErrNotFound)
	assert.ErrorIs(t, s.RecordMarketActivity(ctx, "0xnone", base), storage.ErrNotFound)
}

func testScanRuns(t *testing.T, s storage.Store) {
	ctx := testContext(t)
	first := &models.ScanRun{
		ID: "run-1", Mode: types.ScanModeRecent, StartedAt: base, FinishedAt: base.Add(time.Minute),
		TradesScanned: 40, SuspiciousFound: 2, Duplicates: 1, AlertsSent: 2, Status: types.ScanStatusCompleted,
	}
	second := &models.ScanRun{
		ID: "run-2", Mode: types.ScanModeFull, StartedAt: base.Add(time.Hour), FinishedAt: base.Add(time.Hour + time.Minute),
		MarketsScanned: 12, Errors: 3, Status: types.ScanStatusCompletedWithErrors,
	}
	require.NoError(t, s.AppendScanRun(ctx, first))
	require.NoError(t, s.AppendScanRun(ctx, second))
	assert.ErrorIs(t, s.AppendScanRun(ctx, first), storage.ErrDuplicateKey)
	assert.ErrorIs(t, s.AppendScanRun(ctx, &models.ScanRun{}), storage.ErrInvalidInput)

	runs, err := s.ListScanRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, types.ScanModeFull, runs[0].Mode)
	assert.Equal(t, 3, runs[0].Errors)
	assert.Equal(t, types.ScanStatusCompletedWithErrors, runs[0].Status)
	assert.Equal(t, 40, runs[1].TradesScanned)
	assert.Equal(t, time.Minute, runs[1].Duration())
}

func testMarkets(t *testing.T, s storage.Store) {
	ctx := testContext(t)
	require.NoError(t, s.UpsertMarket(ctx, &models.Market{ID: "0xm", Question: "Q?", Category: "Politics", Active: true, CachedAt: base}))
	require.NoError(t, s.UpsertMarket(ctx, &models.Market{ID: "0xm", Question: "Q2?", Category: "Politics", Active: false, CachedAt: base.Add(time.Hour)}))

	m, err := s.GetMarket(ctx, "0xM")
	require.NoError(t, err)
	assert.Equal(t, "Q2?", m.Question)
	assert.False(t, m.Active)
	assert.True(t, m.CachedAt.Equal(base.Add(time.Hour)))

	_, err = s.GetMarket(ctx, "0xmissing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testStatsEmpty(t *testing.T, s storage.Store) {
	stats, err := s.DashboardStats(testContext(t), 5, base)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalSuspicious)
	assert.Zero(t, stats.UniqueWallets)
	assert.Zero(t, stats.TotalVolumeUSD)
	assert.Zero(t, stats.Today)
	assert.Zero(t, stats.Alerted)
	assert.Empty(t, stats.TopWallets)
	for _, level := range types.AllRiskLevels {
		assert.Equal(t, 0, stats.ByRiskLevel[level])
	}
}

func testStats(t *testing.T, s storage.Store) {
	ctx := testContext(t)
	yesterday := base.Add(-24 * time.Hour)

	a1 := Trade("s-1", "0xa", 10000, yesterday)
	a2 := Trade("s-2", "0xa", 20000, base)
	b1 := Trade("s-3", "0xb", 50000, base)
	b1.RiskScore, b1.RiskLevel = 45, types.RiskMedium
	for _, tr := range []*models.SuspiciousTrade{a1, a2, b1} {
		_, err := s.SaveSuspiciousTrade(ctx, tr)
		require.NoError(t, err)
	}
	require.NoError(t, s.MarkAlerted(ctx, "s-2", []string{"slack"}))

	stats, err := s.DashboardStats(ctx, 1, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalSuspicious)
	assert.Equal(t, 2, stats.UniqueWallets)
	assert.InDelta(t, 80000, stats.TotalVolumeUSD, 0.001)
	assert.Equal(t, 2, stats.Today)
	assert.Equal(t, 1, stats.Alerted)
	assert.Equal(t, 2, stats.ByRiskLevel[types.RiskCritical])
	assert.Equal(t, 1, stats.ByRiskLevel[types.RiskMedium])
	assert.Equal(t, 0, stats.ByRiskLevel[types.RiskLow])
	require.Len(t, stats.TopWallets, 1)
	assert.Equal(t, "0xa", stats.TopWallets[0].Wallet)
	assert.Equal(t, 2, stats.TopWallets[0].SuspiciousBets)
}

func testConcurrentDuplicates(t *testing.T, s storage.Store) {
	ctx := testContext(t)
	const writers = 16

	var (
		wg       sync.WaitGroup
		inserted atomic.Int32
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.SaveSuspiciousTrade(ctx, Trade("race-ref", "0xrace", 1000, base))
			assert.NoError(t, err)
			if ok {
				inserted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), inserted.Load())
	agg, err := s.GetWalletAggregate(ctx, "0xrace")
	require.NoError(t, err)
	assert.Equal(t, 1, agg.SuspiciousBets)
	assert.InDelta(t, 1000, agg.TotalVolumeUSD, 0.001)
}

func testConcurrentSameWallet(t *testing.T, s storage.Store) {
	ctx := testContext(t)
	const (
		writers   = 8
		perWriter = 5
	)

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				ref := fmt.Sprintf("conc-%d-%d", w, i)
				_, err := s.SaveSuspiciousTrade(ctx, Trade(ref, "0xhot", 100, base))
				assert.NoError(t, err)
				_, err = s.SaveSuspiciousTrade(ctx, Trade(ref+"-cold", fmt.Sprintf("0xcold%d", w), 10, base))
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	agg, err := s.GetWalletAggregate(ctx, "0xhot")
	require.NoError(t, err)
	assert.Equal(t, writers*perWriter, agg.SuspiciousBets)
	assert.InDelta(t, float64(writers*perWriter*100), agg.TotalVolumeUSD, 0.001)

	for w := 0; w < writers; w++ {
		agg, err := s.GetWalletAggregate(ctx, fmt.Sprintf("0xcold%d", w))
		require.NoError(t, err)
		assert.Equal(t, perWriter, agg.SuspiciousBets)
	}
}
