package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/polytracker/scanner/internal/logging"
	"github.com/polytracker/scanner/internal/types"
	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int { return &v }

type fakeVelocity struct {
	count int
	err   error
	since time.Time
}

func (f *fakeVelocity) CountRecentByWallet(ctx context.Context, wallet string, since time.Time) (int, error) {
	f.since = since
	return f.count, f.err
}

func TestCompute_WorkedExample(t *testing.T) {
	// 2-day-old wallet, $60,000 at 4 cents, no recent history
	res := Compute(intPtr(2), 60_000, 0.04, 0)
	assert.Equal(t, 35, res.Breakdown.AgePoints)
	assert.Equal(t, 25, res.Breakdown.SizePoints)
	assert.Equal(t, 25, res.Breakdown.PricePoints)
	assert.Equal(t, 0, res.Breakdown.VelocityPoints)
	assert.Equal(t, 85, res.Score)
	assert.Equal(t, types.RiskCritical, res.Level)
}

func TestCompute_ClampedAt100(t *testing.T) {
	res := Compute(intPtr(0), 1_000_000, 0.01, 50)
	assert.Equal(t, 100, res.Score)
	assert.Equal(t, 120, res.Breakdown.AgePoints+res.Breakdown.SizePoints+res.Breakdown.PricePoints+res.Breakdown.VelocityPoints)
}

func TestAgePoints(t *testing.T) {
	tests := []struct {
		age  *int
		want int
	}{
		{nil, 0},
		{intPtr(0), 40},
		{intPtr(1), 40},
		{intPtr(3), 35},
		{intPtr(7), 30},
		{intPtr(14), 20},
		{intPtr(30), 10},
		{intPtr(31), 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AgePoints(tt.age))
	}
}

func TestPricePoints_Boundaries(t *testing.T) {
	assert.Equal(t, 30, PricePoints(0.02))
	assert.Equal(t, 25, PricePoints(0.05))
	assert.Equal(t, 20, PricePoints(0.10))
	assert.Equal(t, 15, PricePoints(0.15))
	assert.Equal(t, 10, PricePoints(0.20))
	assert.Equal(t, 0, PricePoints(0.2001))
	assert.Equal(t, 0, PricePoints(0.95))
}

func TestPricePoints_MissingPriceScoresZero(t *testing.T) {
	assert.Equal(t, 0, PricePoints(0))
	assert.Equal(t, 0, PricePoints(-0.1))

	res := Compute(intPtr(2), 60_000, 0, 0)
	assert.Equal(t, 0, res.Breakdown.PricePoints)
	assert.Equal(t, 60, res.Score)
}

func TestSizeAndVelocityPoints_Boundaries(t *testing.T) {
	assert.Equal(t, 0, SizePoints(4_999.99))
	assert.Equal(t, 10, SizePoints(5_000))
	assert.Equal(t, 15, SizePoints(10_000))
	assert.Equal(t, 20, SizePoints(25_000))
	assert.Equal(t, 30, SizePoints(100_000))

	assert.Equal(t, 0, VelocityPoints(2))
	assert.Equal(t, 10, VelocityPoints(3))
	assert.Equal(t, 15, VelocityPoints(5))
	assert.Equal(t, 20, VelocityPoints(10))
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, types.RiskLow, LevelFor(39))
	assert.Equal(t, types.RiskMedium, LevelFor(40))
	assert.Equal(t, types.RiskHigh, LevelFor(60))
	assert.Equal(t, types.RiskCritical, LevelFor(80))
}

func TestScorer_UsesVelocityWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	counter := &fakeVelocity{count: 5}
	s := NewScorer(counter, WithClock(func() time.Time { return now }), WithLogger(logging.Nop()))

	res := s.Score(context.Background(), "0xabc", intPtr(2), 60_000, 0.04)
	assert.Equal(t, now.Add(-time.Hour), counter.since)
	assert.Equal(t, 15, res.Breakdown.VelocityPoints)
	assert.Equal(t, 100, res.Score)
}

func TestScorer_VelocityErrorCountsAsZero(t *testing.T) {
	s := NewScorer(&fakeVelocity{err: errors.New("db locked")}, WithLogger(logging.Nop()))
	res := s.Score(context.Background(), "0xabc", intPtr(2), 60_000, 0.04)
	assert.Equal(t, 85, res.Score)
	assert.Equal(t, 0, res.Breakdown.VelocityPoints)
}

func TestCompute_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	ages := gen.IntRange(0, 400)
	sizes := gen.Float64Range(0, 500_000)
	prices := gen.Float64Range(0.0001, 1)
	velocities := gen.IntRange(0, 50)

	properties.Property("score stays within 0..100", prop.ForAll(
		func(age int, size, price float64, v int) bool {
			s := Compute(&age, size, price, v).Score
			return s >= 0 && s <= MaxScore
		},
		ages, sizes, prices, velocities,
	))

	properties.Property("deterministic", prop.ForAll(
		func(age int, size, price float64, v int) bool {
			return Compute(&age, size, price, v) == Compute(&age, size, price, v)
		},
		ages, sizes, prices, velocities,
	))

	properties.Property("younger wallets never score lower", prop.ForAll(
		func(a, b int, size, price float64, v int) bool {
			if a > b {
				a, b = b, a
			}
			return Compute(&a, size, price, v).Score >= Compute(&b, size, price, v).Score
		},
		ages, ages, sizes, prices, velocities,
	))

	properties.Property("larger bets never score lower", prop.ForAll(
		func(age int, x, y, price float64, v int) bool {
			if x > y {
				x, y = y, x
			}
			return Compute(&age, y, price, v).Score >= Compute(&age, x, price, v).Score
		},
		ages, sizes, sizes, prices, velocities,
	))

	properties.Property("cheaper prices never score lower", prop.ForAll(
		func(age int, size, p, q float64, v int) bool {
			if p > q {
				p, q = q, p
			}
			return Compute(&age, size, p, v).Score >= Compute(&age, size, q, v).Score
		},
		ages, sizes, prices, prices, velocities,
	))

	properties.Property("more recent trades never score lower", prop.ForAll(
		func(age int, size, price float64, v, w int) bool {
			if v > w {
				v, w = w, v
			}
			return Compute(&age, size, price, w).Score >= Compute(&age, size, price, v).Score
		},
		ages, sizes, prices, velocities, velocities,
	))

	properties.Property("level matches score cutoffs", prop.ForAll(
		func(age int, size, price float64, v int) bool {
			r := Compute(&age, size, price, v)
			return r.Level == LevelFor(r.Score)
		},
		ages, sizes, prices, velocities,
	))

	properties.TestingRun(t)
}
