// Package scoring computes the 0-100 insider risk score for a flagged trade.
package scoring

import (
	"context"
	"math"
	"time"

	"github.com/polytracker/scanner/internal/logging"
	"github.com/polytracker/scanner/internal/types"
)

// MaxScore is the ceiling applied to the summed factor points
const MaxScore = 100

// VelocityWindow is the trailing window used for the velocity factor
const VelocityWindow = time.Hour

// Level cutoffs
const (
	CriticalThreshold = 80
	HighThreshold     = 60
	MediumThreshold   = 40
)

// VelocityCounter counts suspicious trades already recorded for a wallet since a point in time
type VelocityCounter interface {
	CountRecentByWallet(ctx context.Context, wallet string, since time.Time) (int, error)
}

// Breakdown shows how each factor contributed to a score
type Breakdown struct {
	AgePoints      int `json:"agePoints"`
	SizePoints     int `json:"sizePoints"`
	PricePoints    int `json:"pricePoints"`
	VelocityPoints int `json:"velocityPoints"`
	RecentTrades   int `json:"recentTrades"`
}

// Result is a computed score with its level and breakdown
type Result struct {
	Score     int             `json:"score"`
	Level     types.RiskLevel `json:"level"`
	Breakdown Breakdown       `json:"breakdown"`
}

// AgePoints scores wallet newness (0-40). Unknown age scores 0.
func AgePoints(ageDays *int) int {
	if ageDays == nil {
		return 0
	}
	switch d := *ageDays; {
	case d <= 1:
		return 40
	case d <= 3:
		return 35
	case d <= 7:
		return 30
	case d <= 14:
		return 20
	case d <= 30:
		return 10
	default:
		return 0
	}
}

// SizePoints scores bet size in USD (0-30)
func SizePoints(betUSD float64) int {
	switch {
	case betUSD >= 100_000:
		return 30
	case betUSD >= 50_000:
		return 25
	case betUSD >= 25_000:
		return 20
	case betUSD >= 10_000:
		return 15
	case betUSD >= 5_000:
		return 10
	default:
		return 0
	}
}

// PriceCents converts a 0-1 price to cents rounded to a hundredth of a cent,
// so binary float noise such as 0.05*100 = 5.000000000000001 compares as 5.
func PriceCents(price float64) float64 {
	return math.Round(price*10000) / 100
}

// PricePoints scores long odds (0-30). A missing price (<= 0) scores 0.
func PricePoints(price float64) int {
	if price <= 0 {
		return 0
	}
	switch c := PriceCents(price); {
	case c <= 2:
		return 30
	case c <= 5:
		return 25
	case c <= 10:
		return 20
	case c <= 15:
		return 15
	case c <= 20:
		return 10
	default:
		return 0
	}
}

// VelocityPoints scores how many suspicious trades the wallet placed in the trailing window (0-20)
func VelocityPoints(recent int) int {
	switch {
	case recent >= 10:
		return 20
	case recent >= 5:
		return 15
	case recent >= 3:
		return 10
	default:
		return 0
	}
}

// LevelFor maps a score onto a risk level
func LevelFor(score int) types.RiskLevel {
	switch {
	case score >= CriticalThreshold:
		return types.RiskCritical
	case score >= HighThreshold:
		return types.RiskHigh
	case score >= MediumThreshold:
		return types.RiskMedium
	default:
		return types.RiskLow
	}
}

// Compute is the pure scoring function
func Compute(ageDays *int, betUSD, price float64, recentTrades int) Result {
	b := Breakdown{
		AgePoints:      AgePoints(ageDays),
		SizePoints:     SizePoints(betUSD),
		PricePoints:    PricePoints(price),
		VelocityPoints: VelocityPoints(recentTrades),
		RecentTrades:   recentTrades,
	}
	score := b.AgePoints + b.SizePoints + b.PricePoints + b.VelocityPoints
	if score > MaxScore {
		score = MaxScore
	}
	return Result{Score: score, Level: LevelFor(score), Breakdown: b}
}

// Scorer computes risk scores, reading the velocity factor from a store
type Scorer struct {
	velocity VelocityCounter
	logger   *logging.Logger
	now      func() time.Time
}

// Option configures a Scorer
type Option func(*Scorer)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) { s.now = now }
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(s *Scorer) { s.logger = l }
}

// NewScorer creates a scorer. A nil counter disables the velocity factor.
func NewScorer(velocity VelocityCounter, opts ...Option) *Scorer {
	s := &Scorer{velocity: velocity, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrGlobal(s.logger).WithField("component", "scorer")
	return s
}

// Score computes the risk score for a trade. A failed velocity read counts as zero.
func (s *Scorer) Score(ctx context.Context, wallet string, ageDays *int, betUSD, price float64) Result {
	recent := 0
	if s.velocity != nil && wallet != "" {
		n, err := s.velocity.CountRecentByWallet(ctx, wallet, s.now().Add(-VelocityWindow))
		if err != nil {
			s.logger.WithError(err).WithField("wallet", wallet).Warn("velocity lookup failed, scoring without it")
		} else {
			recent = n
		}
	}
	return Compute(ageDays, betUSD, price, recent)
}
