package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/polytracker/scanner/internal/errors"
	"github.com/polytracker/scanner/internal/logging"
	"github.com/polytracker/scanner/internal/models"
)

const (
	// DefaultDataURL is the Polymarket data API
	DefaultDataURL = "https://data-api.polymarket.com"
	// DefaultGammaURL is the Polymarket market metadata API
	DefaultGammaURL = "https://gamma-api.polymarket.com"

	dataProvider  = "polymarket-data"
	gammaProvider = "polymarket-gamma"
)

// PolymarketConfig configures a PolymarketClient
type PolymarketConfig struct {
	DataURL  string
	GammaURL string
	APIKey   string
	RPS      float64
	Timeout  time.Duration
	Logger   *logging.Logger
}

// PolymarketClient reads trades, wallet activity and market listings
type PolymarketClient struct {
	dataURL  string
	gammaURL string
	data     *httpGetter
	gamma    *httpGetter
	logger   *logging.Logger
}

// DataTrade is one fill from the data API /trades endpoint
type DataTrade struct {
	ProxyWallet     string      `json:"proxyWallet"`
	Side            string      `json:"side"`
	Asset           string      `json:"asset"`
	ConditionID     string      `json:"conditionId"`
	Size            float64     `json:"size"`
	Price           float64     `json:"price"`
	Timestamp       int64       `json:"timestamp"`
	Title           string      `json:"title"`
	Slug            string      `json:"slug"`
	Outcome         interface{} `json:"outcome"`
	OutcomeIndex    *int        `json:"outcomeIndex"`
	TransactionHash string      `json:"transactionHash"`
}

// ActivityRecord is one row from the data API /activity endpoint
type ActivityRecord struct {
	ProxyWallet     string      `json:"proxyWallet"`
	Timestamp       int64       `json:"timestamp"`
	ConditionID     string      `json:"conditionId"`
	Type            string      `json:"type"`
	Size            float64     `json:"size"`
	UsdcSize        float64     `json:"usdcSize"`
	Price           float64     `json:"price"`
	Side            string      `json:"side"`
	Asset           string      `json:"asset"`
	Outcome         interface{} `json:"outcome"`
	OutcomeIndex    *int        `json:"outcomeIndex"`
	Title           string      `json:"title"`
	TransactionHash string      `json:"transactionHash"`
}

// GammaTag is an event tag. Older payloads send bare strings.
type GammaTag struct {
	Label string `json:"label"`
	Slug  string `json:"slug"`
}

// UnmarshalJSON accepts either a tag object or a plain string
func (t *GammaTag) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		t.Label, t.Slug = s, strings.ToLower(s)
		return nil
	}
	type alias GammaTag
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*t = GammaTag(a)
	return nil
}

// GammaMarket is a market nested in a gamma event
type GammaMarket struct {
	ID          string `json:"id"`
	ConditionID string `json:"conditionId"`
	Question    string `json:"question"`
	Active      bool   `json:"active"`
	Closed      bool   `json:"closed"`
}

// GammaEvent is a gamma /events row
type GammaEvent struct {
	ID      string        `json:"id"`
	Title   string        `json:"title"`
	Tags    []GammaTag    `json:"tags"`
	Markets []GammaMarket `json:"markets"`
}

// NewPolymarketClient creates a market-data client
func NewPolymarketClient(cfg PolymarketConfig) *PolymarketClient {
	if cfg.DataURL == "" {
		cfg.DataURL = DefaultDataURL
	}
	if cfg.GammaURL == "" {
		cfg.GammaURL = DefaultGammaURL
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	var headers map[string]string
	if cfg.APIKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + cfg.APIKey}
	}
	client := &http.Client{Timeout: cfg.Timeout}

	return &PolymarketClient{
		dataURL:  strings.TrimRight(cfg.DataURL, "/"),
		gammaURL: strings.TrimRight(cfg.GammaURL, "/"),
		data:     newHTTPGetter(dataProvider, client, cfg.RPS, headers),
		gamma:    newHTTPGetter(gammaProvider, client, cfg.RPS, headers),
		logger:   logging.OrGlobal(cfg.Logger).WithField("component", "polymarket"),
	}
}

// ListLargeTrades returns recent venue-wide trades with cash value at or above minCash
func (c *PolymarketClient) ListLargeTrades(ctx context.Context, minCash float64, limit int) ([]models.TradeCandidate, error) {
	q := tradeQuery(minCash, limit)
	return c.fetchTrades(ctx, q)
}

// ListMarketTrades returns recent trades on one market
func (c *PolymarketClient) ListMarketTrades(ctx context.Context, marketID string, minCash float64, limit int) ([]models.TradeCandidate, error) {
	q := tradeQuery(minCash, limit)
	q.Set("market", marketID)
	return c.fetchTrades(ctx, q)
}

func tradeQuery(minCash float64, limit int) url.Values {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	q.Set("takerOnly", "true")
	if minCash > 0 {
		q.Set("filterType", "CASH")
		q.Set("filterAmount", strconv.FormatFloat(minCash, 'f', -1, 64))
	}
	return q
}

func (c *PolymarketClient) fetchTrades(ctx context.Context, q url.Values) ([]models.TradeCandidate, error) {
	body, err := c.data.get(ctx, c.dataURL+"/trades?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var trades []DataTrade
	if err := json.Unmarshal(body, &trades); err != nil {
		return nil, errors.NewProviderError(dataProvider, fmt.Errorf("failed to parse trades: %w", err))
	}

	out := make([]models.TradeCandidate, 0, len(trades))
	for _, t := range trades {
		out = append(out, t.Candidate())
	}
	return out, nil
}

// Candidate converts a data API trade into a detection candidate
func (t DataTrade) Candidate() models.TradeCandidate {
	return models.TradeCandidate{
		TradeRef:     TradeRef(t.TransactionHash, t.ProxyWallet, t.ConditionID, t.OutcomeIndex, t.Outcome, t.Side),
		Wallet:       t.ProxyWallet,
		MarketID:     t.ConditionID,
		MarketTitle:  t.Title,
		Shares:       t.Size,
		Price:        t.Price,
		Side:         t.Side,
		Outcome:      t.Outcome,
		OutcomeIndex: t.OutcomeIndex,
		Timestamp:    unixTime(t.Timestamp),
	}
}

// ListWalletActivity returns a wallet's most recent trades
func (c *PolymarketClient) ListWalletActivity(ctx context.Context, wallet string, limit int) ([]models.TradeCandidate, error) {
	q := url.Values{}
	q.Set("user", wallet)
	q.Set("type", "TRADE")
	q.Set("sortBy", "TIMESTAMP")
	q.Set("sortDirection", "DESC")
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	records, err := c.fetchActivity(ctx, q)
	if err != nil {
		return nil, err
	}

	out := make([]models.TradeCandidate, 0, len(records))
	for _, r := range records {
		if r.Type != "" && !strings.EqualFold(r.Type, "TRADE") {
			continue
		}
		out = append(out, r.Candidate())
	}
	return out, nil
}

// Candidate converts an activity row into a detection candidate
func (r ActivityRecord) Candidate() models.TradeCandidate {
	return models.TradeCandidate{
		TradeRef:     TradeRef(r.TransactionHash, r.ProxyWallet, r.ConditionID, r.OutcomeIndex, r.Outcome, r.Side),
		Wallet:       r.ProxyWallet,
		MarketID:     r.ConditionID,
		MarketTitle:  r.Title,
		Shares:       r.Size,
		Price:        r.Price,
		CashSize:     r.UsdcSize,
		Side:         r.Side,
		Outcome:      r.Outcome,
		OutcomeIndex: r.OutcomeIndex,
		Timestamp:    unixTime(r.Timestamp),
	}
}

// FirstActivity returns the time of the wallet's earliest recorded activity on the venue
func (c *PolymarketClient) FirstActivity(ctx context.Context, wallet string) (time.Time, bool, error) {
	q := url.Values{}
	q.Set("user", wallet)
	q.Set("limit", "1")
	q.Set("sortBy", "TIMESTAMP")
	q.Set("sortDirection", "ASC")

	records, err := c.fetchActivity(ctx, q)
	if err != nil {
		return time.Time{}, false, err
	}
	if len(records) == 0 || records[0].Timestamp <= 0 {
		return time.Time{}, false, nil
	}
	return unixTime(records[0].Timestamp), true, nil
}

func (c *PolymarketClient) fetchActivity(ctx context.Context, q url.Values) ([]ActivityRecord, error) {
	body, err := c.data.get(ctx, c.dataURL+"/activity?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var records []ActivityRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, errors.NewProviderError(dataProvider, fmt.Errorf("failed to parse activity: %w", err))
	}
	return records, nil
}

// ListMarkets returns open markets from active events. When categories is
// non-empty only events tagged with one of them are kept.
func (c *PolymarketClient) ListMarkets(ctx context.Context, categories []string, limit int) ([]models.Market, error) {
	q := url.Values{}
	q.Set("active", "true")
	q.Set("closed", "false")
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.gamma.get(ctx, c.gammaURL+"/events?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var events []GammaEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, errors.NewProviderError(gammaProvider, fmt.Errorf("failed to parse events: %w", err))
	}

	now := time.Now().UTC()
	seen := make(map[string]struct{})
	var markets []models.Market
	for _, ev := range events {
		category, ok := matchCategory(ev.Tags, categories)
		if !ok {
			continue
		}
		for _, m := range ev.Markets {
			id := m.ConditionID
			if id == "" {
				id = m.ID
			}
			if id == "" || m.Closed {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			markets = append(markets, models.Market{
				ID:       id,
				Question: m.Question,
				Category: category,
				Active:   m.Active,
				CachedAt: now,
			})
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"events":  len(events),
		"markets": len(markets),
	}).Debug("fetched markets")
	return markets, nil
}

// matchCategory picks the category label for an event. With no filter the
// first tag is used.
func matchCategory(tags []GammaTag, categories []string) (string, bool) {
	if len(categories) == 0 {
		if len(tags) == 0 {
			return "", true
		}
		return tags[0].Label, true
	}
	for _, want := range categories {
		for _, tag := range tags {
			if strings.EqualFold(tag.Label, want) || strings.EqualFold(tag.Slug, want) {
				return tag.Label, true
			}
		}
	}
	return "", false
}

// TradeRef builds a stable reference for a fill so the same fill seen through
// the trades feed and the activity feed deduplicates to one record.
func TradeRef(txHash, wallet, conditionID string, outcomeIndex *int, outcome interface{}, side string) string {
	if txHash == "" {
		return ""
	}
	leg := fmt.Sprint(outcome)
	if outcomeIndex != nil {
		leg = strconv.Itoa(*outcomeIndex)
	}
	return strings.ToLower(strings.Join([]string{txHash, wallet, conditionID, leg, side}, ":"))
}

func unixTime(ts int64) time.Time {
	if ts <= 0 {
		return time.Time{}
	}
	// Some endpoints report milliseconds
	if ts > 1e12 {
		return time.UnixMilli(ts).UTC()
	}
	return time.Unix(ts, 0).UTC()
}
