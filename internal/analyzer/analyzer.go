// Package analyzer decides whether a trade candidate is suspicious.
//
// A candidate is normalised, gated by the detection thresholds in order
// (category, bet size, odds, wallet age) and scored. Trades from tracked
// wallets skip every gate.
package analyzer

import (
	"context"
	"strings"
	"time"

	"github.com/polytracker/scanner/internal/logging"
	"github.com/polytracker/scanner/internal/models"
	"github.com/polytracker/scanner/internal/scoring"
	"github.com/polytracker/scanner/internal/types"
	"github.com/polytracker/scanner/internal/walletage"
)

// RejectReason explains why a candidate was not flagged. The empty reason means flagged.
type RejectReason string

const (
	RejectNone            RejectReason = ""
	RejectMissingIdentity RejectReason = "missing_identity"
	RejectCategory        RejectReason = "category"
	RejectBetSize         RejectReason = "bet_size"
	RejectOdds            RejectReason = "odds"
	RejectWalletAge       RejectReason = "wallet_age"
)

// AgeResolver resolves wallet ages. walletage.Resolver implements it.
type AgeResolver interface {
	Resolve(ctx context.Context, wallet string) walletage.Result
}

// RiskScorer scores a flagged trade. scoring.Scorer implements it.
type RiskScorer interface {
	Score(ctx context.Context, wallet string, ageDays *int, betUSD, price float64) scoring.Result
}

// TrackingLookup reports whether a wallet is actively tracked
type TrackingLookup interface {
	IsWalletTracked(ctx context.Context, wallet string) (bool, error)
}

// Analyzer applies detection thresholds to trade candidates
type Analyzer struct {
	ages     AgeResolver
	scorer   RiskScorer
	tracking TrackingLookup
	logger   *logging.Logger
	now      func() time.Time
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// WithClock overrides the time source used for DetectedAt
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// New creates an analyzer. A nil tracking lookup treats every wallet as untracked.
func New(ages AgeResolver, scorer RiskScorer, tracking TrackingLookup, opts ...Option) *Analyzer {
	a := &Analyzer{
		ages:     ages,
		scorer:   scorer,
		tracking: tracking,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logging.OrGlobal(a.logger).WithField("component", "analyzer")
	return a
}

// Analyze evaluates one candidate against cfg. It returns the scored trade when
// the candidate is suspicious, or nil and the reason it was rejected.
func (a *Analyzer) Analyze(ctx context.Context, cand models.TradeCandidate, cfg models.DetectionConfig) (*models.SuspiciousTrade, RejectReason) {
	wallet := strings.ToLower(strings.TrimSpace(cand.Wallet))
	ref := strings.TrimSpace(cand.TradeRef)
	if wallet == "" || ref == "" {
		a.logger.WithField("tradeRef", ref).Debug("skipping candidate without wallet or trade ref")
		return nil, RejectMissingIdentity
	}
	log := a.logger.WithFields(map[string]interface{}{"tradeRef": ref, "wallet": wallet})

	outcome, ok := NormalizeOutcome(cand.Outcome, cand.OutcomeIndex)
	if !ok {
		log.WithField("outcome", cand.Outcome).Warn("unrecognised outcome, defaulting to YES")
	}
	side, ok := NormalizeSide(cand.Side)
	if !ok {
		log.WithField("side", cand.Side).Warn("unrecognised side, defaulting to BUY")
	}
	betUSD := BetSizeUSD(cand.Shares, cand.Price, cand.CashSize)

	tracked := a.isTracked(ctx, wallet, log)

	if !tracked {
		if cand.Category != "" && !cfg.CategoryAllowed(cand.Category) {
			return nil, RejectCategory
		}
		if cfg.CheckBetSize && betUSD < cfg.MinBetSizeUSD {
			return nil, RejectBetSize
		}
		if cfg.CheckOdds && cand.Price > cfg.MaxPrice {
			return nil, RejectOdds
		}
	}

	age := a.ages.Resolve(ctx, wallet)
	if !tracked && cfg.CheckWalletAge && age.Known() && *age.Days > cfg.WalletAgeDays {
		return nil, RejectWalletAge
	}

	score := a.scorer.Score(ctx, wallet, age.Days, betUSD, cand.Price)

	source := types.SourceAutomatic
	if tracked {
		source = types.SourceTrackedWallet
	}

	trade := &models.SuspiciousTrade{
		TradeRef:        ref,
		Wallet:          wallet,
		MarketID:        strings.TrimSpace(cand.MarketID),
		MarketTitle:     cand.MarketTitle,
		Category:        cand.Category,
		BetSizeUSD:      betUSD,
		Outcome:         outcome,
		Side:            side,
		Price:           cand.Price,
		Shares:          cand.Shares,
		TradeTime:       cand.Timestamp.UTC(),
		WalletAgeDays:   age.Days,
		RiskScore:       score.Score,
		RiskLevel:       score.Level,
		DetectedAt:      a.now().UTC(),
		DetectionSource: source,
	}

	log.WithFields(map[string]interface{}{
		"betUsd":    betUSD,
		"price":     cand.Price,
		"riskScore": score.Score,
		"riskLevel": score.Level,
		"source":    source,
	}).Info("suspicious trade detected")

	return trade, RejectNone
}

func (a *Analyzer) isTracked(ctx context.Context, wallet string, log *logging.Logger) bool {
	if a.tracking == nil {
		return false
	}
	tracked, err := a.tracking.IsWalletTracked(ctx, wallet)
	if err != nil {
		log.WithError(err).Warn("tracked wallet lookup failed, treating as untracked")
		return false
	}
	return tracked
}
