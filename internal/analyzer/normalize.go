package analyzer

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/polytracker/scanner/internal/types"
)

// NormalizeOutcome maps a venue outcome to YES or NO. Labels yes/no/y/n/true/false
// are matched case-insensitively; numbers are outcome indexes (0 is YES, 1 is NO).
// index is consulted when outcome is not recognised. ok is false when neither
// could be read, in which case YES is returned.
func NormalizeOutcome(outcome interface{}, index *int) (types.Outcome, bool) {
	if o, ok := outcomeFromValue(outcome); ok {
		return o, true
	}
	if index != nil {
		if o, ok := outcomeFromIndex(int64(*index)); ok {
			return o, true
		}
	}
	return types.OutcomeYes, false
}

func outcomeFromValue(v interface{}) (types.Outcome, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return outcomeFromString(val)
	case bool:
		if val {
			return types.OutcomeYes, true
		}
		return types.OutcomeNo, true
	case float64:
		if val != float64(int64(val)) {
			return "", false
		}
		return outcomeFromIndex(int64(val))
	case float32:
		return outcomeFromValue(float64(val))
	case int:
		return outcomeFromIndex(int64(val))
	case int64:
		return outcomeFromIndex(val)
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return "", false
		}
		return outcomeFromIndex(n)
	case types.Outcome:
		return outcomeFromString(string(val))
	}
	return "", false
}

func outcomeFromString(s string) (types.Outcome, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true":
		return types.OutcomeYes, true
	case "no", "n", "false":
		return types.OutcomeNo, true
	}
	if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
		return outcomeFromIndex(n)
	}
	return "", false
}

func outcomeFromIndex(n int64) (types.Outcome, bool) {
	switch n {
	case 0:
		return types.OutcomeYes, true
	case 1:
		return types.OutcomeNo, true
	}
	return "", false
}

// NormalizeSide maps a venue side to BUY or SELL. ok is false for anything
// else, in which case BUY is returned.
func NormalizeSide(side string) (types.Side, bool) {
	switch strings.ToUpper(strings.TrimSpace(side)) {
	case "BUY", "B":
		return types.SideBuy, true
	case "SELL", "S":
		return types.SideSell, true
	}
	return types.SideBuy, false
}

// BetSizeUSD returns shares x price rounded to cents. When either factor is
// missing the source-reported cash size is used instead.
func BetSizeUSD(shares, price, cashSize float64) float64 {
	if shares > 0 && price > 0 {
		usd, _ := decimal.NewFromFloat(shares).Mul(decimal.NewFromFloat(price)).Round(2).Float64()
		return usd
	}
	if cashSize > 0 {
		usd, _ := decimal.NewFromFloat(cashSize).Round(2).Float64()
		return usd
	}
	return 0
}
