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
)

const (
	// DefaultExplorerURL is the Etherscan-family multichain endpoint
	DefaultExplorerURL = "https://api.etherscan.io/v2/api"
	// PolygonChainID is the chain id of Polygon PoS
	PolygonChainID = 137

	explorerProvider = "polygonscan"
)

// PolygonscanConfig configures a PolygonscanClient
type PolygonscanConfig struct {
	BaseURL string
	APIKey  string
	ChainID int
	RPS     float64
	Timeout time.Duration
	Logger  *logging.Logger
}

// PolygonscanClient reads account history from an Etherscan-compatible explorer
type PolygonscanClient struct {
	baseURL string
	apiKey  string
	chainID int
	http    *httpGetter
	logger  *logging.Logger
}

// explorerTransaction holds the fields we need from a txlist/txlistinternal row
type explorerTransaction struct {
	Hash      string `json:"hash"`
	TimeStamp string `json:"timeStamp"`
	From      string `json:"from"`
	To        string `json:"to"`
}

type explorerResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// NewPolygonscanClient creates an explorer client. The free tier allows 3 requests per second.
func NewPolygonscanClient(cfg PolygonscanConfig) *PolygonscanClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultExplorerURL
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = PolygonChainID
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &PolygonscanClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		chainID: cfg.ChainID,
		http:    newHTTPGetter(explorerProvider, &http.Client{Timeout: cfg.Timeout}, cfg.RPS, nil),
		logger:  logging.OrGlobal(cfg.Logger).WithField("component", "polygonscan"),
	}
}

// FirstTransactionTime returns the timestamp of the wallet's earliest transaction.
// Normal transactions are checked first, then internal ones. found is false
// when the explorer has no history for the wallet.
//
// A transient txlist failure (rate limit, timeout, 5xx) is returned at once,
// since the internal endpoint shares the same upstream. A permanent txlist
// failure still falls through to txlistinternal; if that finds nothing the
// txlist error is returned.
func (c *PolygonscanClient) FirstTransactionTime(ctx context.Context, wallet string) (time.Time, bool, error) {
	var firstErr error
	for _, action := range []string{"txlist", "txlistinternal"} {
		ts, found, err := c.earliest(ctx, wallet, action)
		if err != nil {
			if ctx.Err() != nil || errors.IsRetryable(err) {
				return time.Time{}, false, err
			}
			c.logger.WithError(err).WithFields(map[string]interface{}{
				"wallet": wallet,
				"action": action,
			}).Warn("explorer lookup failed, trying next action")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if found {
			return ts, true, nil
		}
	}
	return time.Time{}, false, firstErr
}

func (c *PolygonscanClient) earliest(ctx context.Context, wallet, action string) (time.Time, bool, error) {
	q := url.Values{}
	q.Set("chainid", strconv.Itoa(c.chainID))
	q.Set("module", "account")
	q.Set("action", action)
	q.Set("address", wallet)
	q.Set("startblock", "0")
	q.Set("endblock", "99999999")
	q.Set("page", "1")
	q.Set("offset", "1")
	q.Set("sort", "asc")
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}

	body, err := c.http.get(ctx, c.baseURL+"?"+q.Encode())
	if err != nil {
		return time.Time{}, false, err
	}

	var raw explorerResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return time.Time{}, false, errors.NewProviderError(explorerProvider, fmt.Errorf("failed to parse response: %w", err))
	}

	if raw.Status != "1" {
		return time.Time{}, false, c.interpretNotOK(action, wallet, raw)
	}

	var txs []explorerTransaction
	if err := json.Unmarshal(raw.Result, &txs); err != nil {
		return time.Time{}, false, errors.NewProviderError(explorerProvider, fmt.Errorf("failed to parse transactions: %w", err))
	}
	if len(txs) == 0 {
		return time.Time{}, false, nil
	}

	secs, err := strconv.ParseInt(txs[0].TimeStamp, 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}, false, errors.NewProviderError(explorerProvider, fmt.Errorf("bad timestamp %q", txs[0].TimeStamp))
	}
	return time.Unix(secs, 0).UTC(), true, nil
}

// interpretNotOK turns a status "0" payload into nil (empty history) or an error
func (c *PolygonscanClient) interpretNotOK(action, wallet string, raw explorerResponse) error {
	result := strings.Trim(string(raw.Result), `"`)
	msg := strings.ToLower(raw.Message + " " + result)

	switch {
	case strings.Contains(msg, "no transactions found"), strings.Contains(msg, "no records found"), strings.Contains(msg, "no record"):
		return nil
	case strings.Contains(msg, "rate limit"):
		return errors.NewProviderRateLimitError(explorerProvider)
	case strings.Contains(msg, "invalid address"):
		return errors.NewInvalidAddressError(wallet)
	}

	c.logger.WithFields(map[string]interface{}{
		"action":  action,
		"wallet":  wallet,
		"message": raw.Message,
		"result":  result,
	}).Debug("explorer returned NOTOK")
	return errors.NewProviderError(explorerProvider, fmt.Errorf("%s: %s", raw.Message, result))
}
