package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polytracker/scanner/internal/logging"
	"github.com/polytracker/scanner/internal/models"
	"github.com/polytracker/scanner/internal/scoring"
	"github.com/polytracker/scanner/internal/types"
	"github.com/polytracker/scanner/internal/walletage"
)

var detectedAt = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

type fakeAges struct {
	days  *int
	calls int
}

func (f *fakeAges) Resolve(ctx context.Context, wallet string) walletage.Result {
	f.calls++
	if f.days == nil {
		return walletage.Result{Source: "unknown"}
	}
	return walletage.Result{Days: f.days, Source: "explorer"}
}

type fakeTracking struct {
	wallets map[string]bool
	err     error
}

func (f *fakeTracking) IsWalletTracked(ctx context.Context, wallet string) (bool, error) {
	return f.wallets[wallet], f.err
}

func newAnalyzer(ages AgeResolver, tracking TrackingLookup) *Analyzer {
	return New(ages, scoring.NewScorer(nil), tracking,
		WithLogger(logging.Nop()),
		WithClock(func() time.Time { return detectedAt }))
}

func candidate() models.TradeCandidate {
	return models.TradeCandidate{
		TradeRef:    "0xtx:0xwallet:0xmarket:0:buy",
		Wallet:      "0xABCDEF",
		MarketID:    "0xmarket",
		MarketTitle: "Will it happen?",
		Category:    "Politics",
		Shares:      1_500_000,
		Price:       0.04,
		Side:        "buy",
		Outcome:     "Yes",
		Timestamp:   detectedAt.Add(-time.Minute),
	}
}

func TestAnalyze_WorkedExample(t *testing.T) {
	a := newAnalyzer(&fakeAges{days: intPtr(2)}, nil)

	trade, reason := a.Analyze(context.Background(), candidate(), models.DefaultDetectionConfig())
	require.Equal(t, RejectNone, reason)
	require.NotNil(t, trade)

	assert.Equal(t, "0xabcdef", trade.Wallet)
	assert.Equal(t, 60_000.0, trade.BetSizeUSD)
	assert.Equal(t, types.OutcomeYes, trade.Outcome)
	assert.Equal(t, types.SideBuy, trade.Side)
	assert.Equal(t, 85, trade.RiskScore)
	assert.Equal(t, types.RiskCritical, trade.RiskLevel)
	assert.Equal(t, 2, *trade.WalletAgeDays)
	assert.Equal(t, detectedAt, trade.DetectedAt)
	assert.Equal(t, types.SourceAutomatic, trade.DetectionSource)
	assert.False(t, trade.Alerted)
}

func TestAnalyze_JustBelowMinimumBetIsRejected(t *testing.T) {
	a := newAnalyzer(&fakeAges{days: intPtr(2)}, nil)
	c := candidate()
	c.Shares, c.Price = 99_990, 0.10 // $9,999

	trade, reason := a.Analyze(context.Background(), c, models.DefaultDetectionConfig())
	assert.Nil(t, trade)
	assert.Equal(t, RejectBetSize, reason)
}

func TestAnalyze_Gates(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *models.TradeCandidate, cfg *models.DetectionConfig)
		age    *int
		want   RejectReason
	}{
		{"missing wallet", func(c *models.TradeCandidate, _ *models.DetectionConfig) { c.Wallet = " " }, intPtr(1), RejectMissingIdentity},
		{"missing trade ref", func(c *models.TradeCandidate, _ *models.DetectionConfig) { c.TradeRef = "" }, intPtr(1), RejectMissingIdentity},
		{"denied category", func(_ *models.TradeCandidate, cfg *models.DetectionConfig) { cfg.DenyCategories = []string{"politics"} }, intPtr(1), RejectCategory},
		{"not in allow list", func(_ *models.TradeCandidate, cfg *models.DetectionConfig) { cfg.AllowCategories = []string{"Crypto"} }, intPtr(1), RejectCategory},
		{"no category skips filter", func(c *models.TradeCandidate, cfg *models.DetectionConfig) {
			c.Category = ""
			cfg.AllowCategories = []string{"Crypto"}
		}, intPtr(1), RejectNone},
		{"price above ceiling", func(c *models.TradeCandidate, _ *models.DetectionConfig) { c.Price = 0.21 }, intPtr(1), RejectOdds},
		{"price at ceiling", func(c *models.TradeCandidate, _ *models.DetectionConfig) { c.Price = 0.20 }, intPtr(1), RejectNone},
		{"old wallet", nil, intPtr(31), RejectWalletAge},
		{"wallet at threshold", nil, intPtr(30), RejectNone},
		{"unknown age passes", nil, nil, RejectNone},
		{"size check disabled", func(c *models.TradeCandidate, cfg *models.DetectionConfig) {
			c.Shares = 10
			cfg.CheckBetSize = false
		}, intPtr(1), RejectNone},
		{"odds check disabled", func(c *models.TradeCandidate, cfg *models.DetectionConfig) {
			c.Price = 0.9
			cfg.CheckOdds = false
		}, intPtr(1), RejectNone},
		{"age check disabled", func(_ *models.TradeCandidate, cfg *models.DetectionConfig) { cfg.CheckWalletAge = false }, intPtr(400), RejectNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := candidate()
			cfg := models.DefaultDetectionConfig()
			if tt.mutate != nil {
				tt.mutate(&c, &cfg)
			}
			trade, reason := newAnalyzer(&fakeAges{days: tt.age}, nil).Analyze(context.Background(), c, cfg)
			assert.Equal(t, tt.want, reason)
			if tt.want == RejectNone {
				assert.NotNil(t, trade)
			} else {
				assert.Nil(t, trade)
			}
		})
	}
}

func TestAnalyze_UnknownAgeScoresZeroAgePoints(t *testing.T) {
	trade, reason := newAnalyzer(&fakeAges{}, nil).Analyze(context.Background(), candidate(), models.DefaultDetectionConfig())
	require.Equal(t, RejectNone, reason)
	assert.Nil(t, trade.WalletAgeDays)
	assert.Equal(t, 50, trade.RiskScore)
}

func TestAnalyze_AgeResolvedForScoringWhenCheckDisabled(t *testing.T) {
	ages := &fakeAges{days: intPtr(1)}
	cfg := models.DefaultDetectionConfig()
	cfg.CheckWalletAge = false

	trade, _ := newAnalyzer(ages, nil).Analyze(context.Background(), candidate(), cfg)
	require.NotNil(t, trade)
	assert.Equal(t, 1, ages.calls)
	assert.Equal(t, 1, *trade.WalletAgeDays)
}

func TestAnalyze_RejectedBeforeAgeLookup(t *testing.T) {
	ages := &fakeAges{days: intPtr(1)}
	c := candidate()
	c.Price = 0.5

	_, reason := newAnalyzer(ages, nil).Analyze(context.Background(), c, models.DefaultDetectionConfig())
	assert.Equal(t, RejectOdds, reason)
	assert.Equal(t, 0, ages.calls)
}

func TestAnalyze_TrackedWalletBypassesThresholds(t *testing.T) {
	tracking := &fakeTracking{wallets: map[string]bool{"0xabcdef": true}}
	c := candidate()
	c.Shares, c.Price = 100, 0.9
	cfg := models.DefaultDetectionConfig()
	cfg.DenyCategories = []string{"politics"}

	trade, reason := newAnalyzer(&fakeAges{days: intPtr(900)}, tracking).Analyze(context.Background(), c, cfg)
	require.Equal(t, RejectNone, reason)
	assert.Equal(t, types.SourceTrackedWallet, trade.DetectionSource)
	assert.Equal(t, 90.0, trade.BetSizeUSD)
	assert.Equal(t, types.RiskLow, trade.RiskLevel)
}

func TestAnalyze_TrackingLookupErrorMeansUntracked(t *testing.T) {
	tracking := &fakeTracking{wallets: map[string]bool{"0xabcdef": true}, err: errors.New("db down")}
	c := candidate()
	c.Price = 0.9

	_, reason := newAnalyzer(&fakeAges{days: intPtr(1)}, tracking).Analyze(context.Background(), c, models.DefaultDetectionConfig())
	assert.Equal(t, RejectOdds, reason)
}

func TestAnalyze_UsesCashSizeWhenSharesMissing(t *testing.T) {
	c := candidate()
	c.Shares = 0
	c.CashSize = 12_345.678

	trade, reason := newAnalyzer(&fakeAges{days: intPtr(1)}, nil).Analyze(context.Background(), c, models.DefaultDetectionConfig())
	require.Equal(t, RejectNone, reason)
	assert.Equal(t, 12_345.68, trade.BetSizeUSD)
}

func TestAnalyze_MissingTitleAndCategory(t *testing.T) {
	c := candidate()
	c.MarketTitle, c.Category = "", ""

	trade, reason := newAnalyzer(&fakeAges{days: intPtr(1)}, nil).Analyze(context.Background(), c, models.DefaultDetectionConfig())
	require.Equal(t, RejectNone, reason)
	assert.Empty(t, trade.MarketTitle)
	assert.Empty(t, trade.Category)
}

func TestNormalizeOutcome(t *testing.T) {
	tests := []struct {
		name   string
		in     interface{}
		index  *int
		want   types.Outcome
		wantOK bool
	}{
		{"yes label", "Yes", nil, types.OutcomeYes, true},
		{"no label", " NO ", nil, types.OutcomeNo, true},
		{"y", "y", nil, types.OutcomeYes, true},
		{"n", "N", nil, types.OutcomeNo, true},
		{"true string", "TRUE", nil, types.OutcomeYes, true},
		{"false string", "false", nil, types.OutcomeNo, true},
		{"zero string", "0", nil, types.OutcomeYes, true},
		{"one string", "1", nil, types.OutcomeNo, true},
		{"float zero", float64(0), nil, types.OutcomeYes, true},
		{"float one", float64(1), nil, types.OutcomeNo, true},
		{"int one", 1, nil, types.OutcomeNo, true},
		{"json number", json.Number("1"), nil, types.OutcomeNo, true},
		{"bool", false, nil, types.OutcomeNo, true},
		{"index hint", nil, intPtr(1), types.OutcomeNo, true},
		{"label wins over index", "Yes", intPtr(1), types.OutcomeYes, true},
		{"unknown label uses index", "Trump", intPtr(1), types.OutcomeNo, true},
		{"unrecognised", "Trump", nil, types.OutcomeYes, false},
		{"fractional number", 0.5, nil, types.OutcomeYes, false},
		{"out of range index", 7, intPtr(3), types.OutcomeYes, false},
		{"nil", nil, nil, types.OutcomeYes, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeOutcome(tt.in, tt.index)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestNormalizeSide(t *testing.T) {
	s, ok := NormalizeSide("sell")
	assert.Equal(t, types.SideSell, s)
	assert.True(t, ok)

	s, ok = NormalizeSide("BUY")
	assert.Equal(t, types.SideBuy, s)
	assert.True(t, ok)

	s, ok = NormalizeSide("")
	assert.Equal(t, types.SideBuy, s)
	assert.False(t, ok)
}

func TestBetSizeUSD(t *testing.T) {
	assert.Equal(t, 60_000.0, BetSizeUSD(1_500_000, 0.04, 0))
	assert.Equal(t, 0.3, BetSizeUSD(3, 0.1, 0), "no float drift")
	assert.Equal(t, 33.33, BetSizeUSD(100, 0.33333, 0))
	assert.Equal(t, 500.0, BetSizeUSD(0, 0.5, 500))
	assert.Equal(t, 500.0, BetSizeUSD(1000, 0, 500))
	assert.Equal(t, 0.0, BetSizeUSD(0, 0, 0))
}
