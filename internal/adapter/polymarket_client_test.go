package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/polytracker/scanner/internal/errors"
	"github.com/polytracker/scanner/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPolymarket(t *testing.T, handler http.HandlerFunc) *PolymarketClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewPolymarketClient(PolymarketConfig{
		DataURL:  srv.URL,
		GammaURL: srv.URL,
		RPS:      1000,
		Timeout:  5 * time.Second,
		Logger:   logging.Nop(),
	})
}

func TestPolymarketClient_ListLargeTrades(t *testing.T) {
	client := newTestPolymarket(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trades", r.URL.Path)
		assert.Equal(t, "CASH", r.URL.Query().Get("filterType"))
		assert.Equal(t, "10000", r.URL.Query().Get("filterAmount"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		fmt.Fprint(w, `[{
			"proxyWallet": "0xAbC0000000000000000000000000000000000001",
			"side": "BUY",
			"conditionId": "0xmarket",
			"size": 1500000,
			"price": 0.04,
			"timestamp": 1767225600,
			"title": "Will it happen?",
			"outcome": "Yes",
			"outcomeIndex": 0,
			"transactionHash": "0xTX1"
		}]`)
	})

	trades, err := client.ListLargeTrades(context.Background(), 10000, 50)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	tr := trades[0]
	assert.Equal(t, "0xtx1:0xabc0000000000000000000000000000000000001:0xmarket:0:buy", tr.TradeRef)
	assert.Equal(t, "0xAbC0000000000000000000000000000000000001", tr.Wallet)
	assert.Equal(t, "0xmarket", tr.MarketID)
	assert.Equal(t, 1500000.0, tr.Shares)
	assert.Equal(t, "Yes", tr.Outcome)
	require.NotNil(t, tr.OutcomeIndex)
	assert.Equal(t, 0, *tr.OutcomeIndex)
	assert.Equal(t, time.Unix(1767225600, 0).UTC(), tr.Timestamp)
}

func TestPolymarketClient_ListMarketTrades_NumericOutcome(t *testing.T) {
	client := newTestPolymarket(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0xmarket", r.URL.Query().Get("market"))
		fmt.Fprint(w, `[{"proxyWallet":"0x1","conditionId":"0xmarket","size":10,"price":0.5,"outcome":1,"transactionHash":"0xtx"}]`)
	})

	trades, err := client.ListMarketTrades(context.Background(), "0xmarket", 0, 100)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, float64(1), trades[0].Outcome)
	assert.Nil(t, trades[0].OutcomeIndex)
}

func TestPolymarketClient_StatusErrors(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusBadRequest, false},
		{http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			client := newTestPolymarket(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := client.ListLargeTrades(context.Background(), 0, 10)
			require.Error(t, err)
			assert.Equal(t, tt.retryable, errors.IsRetryable(err))
		})
	}
}

func TestPolymarketClient_MalformedBody(t *testing.T) {
	client := newTestPolymarket(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"not": "an array"}`)
	})
	_, err := client.ListLargeTrades(context.Background(), 0, 10)
	assert.Error(t, err)
}

func TestPolymarketClient_OversizedBody(t *testing.T) {
	client := newTestPolymarket(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"proxyWallet": "0xabc", "transactionHash": "0x01"}]`)
	})
	client.data.maxBody = 16

	_, err := client.ListLargeTrades(context.Background(), 0, 10)
	require.Error(t, err)
	catErr := errors.Categorize(err)
	assert.Equal(t, "PROVIDER_RESPONSE_TOO_LARGE", catErr.Code)
	assert.False(t, errors.IsRetryable(err))
}

func TestPolymarketClient_ListWalletActivity(t *testing.T) {
	client := newTestPolymarket(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/activity", r.URL.Path)
		assert.Equal(t, "0xwallet", r.URL.Query().Get("user"))
		assert.Equal(t, "DESC", r.URL.Query().Get("sortDirection"))
		fmt.Fprint(w, `[
			{"proxyWallet":"0xwallet","type":"TRADE","conditionId":"0xm","size":100,"usdcSize":4,"price":0.04,"side":"BUY","outcome":"No","outcomeIndex":1,"transactionHash":"0xa","timestamp":1767225600},
			{"proxyWallet":"0xwallet","type":"REDEEM","conditionId":"0xm","size":100,"usdcSize":100,"transactionHash":"0xb","timestamp":1767225601}
		]`)
	})

	trades, err := client.ListWalletActivity(context.Background(), "0xwallet", 100)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, 4.0, trades[0].CashSize)
	assert.Equal(t, "No", trades[0].Outcome)
}

func TestPolymarketClient_FirstActivity(t *testing.T) {
	client := newTestPolymarket(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ASC", r.URL.Query().Get("sortDirection"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		if r.URL.Query().Get("user") == "0xempty" {
			fmt.Fprint(w, `[]`)
			return
		}
		fmt.Fprint(w, `[{"proxyWallet":"0xwallet","timestamp":1767225600000}]`)
	})

	ts, found, err := client.FirstActivity(context.Background(), "0xwallet")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, time.UnixMilli(1767225600000).UTC(), ts)

	_, found, err = client.FirstActivity(context.Background(), "0xempty")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPolymarketClient_ListMarkets(t *testing.T) {
	client := newTestPolymarket(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("active"))
		fmt.Fprint(w, `[
			{"id":"1","tags":[{"label":"Politics","slug":"politics"}],"markets":[
				{"id":"11","conditionId":"0xaaa","question":"Q1","active":true},
				{"id":"12","conditionId":"0xbbb","question":"Q2","active":true,"closed":true}
			]},
			{"id":"2","tags":["Sports"],"markets":[{"id":"21","conditionId":"0xccc","question":"Q3","active":true}]},
			{"id":"3","tags":[{"label":"Politics","slug":"politics"}],"markets":[{"id":"11","conditionId":"0xaaa","question":"Q1","active":true}]}
		]`)
	})

	all, err := client.ListMarkets(context.Background(), nil, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "0xaaa", all[0].ID)
	assert.Equal(t, "Politics", all[0].Category)
	assert.Equal(t, "Sports", all[1].Category)

	filtered, err := client.ListMarkets(context.Background(), []string{"politics"}, 0)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "Q1", filtered[0].Question)
}

func TestTradeRef(t *testing.T) {
	idx := 1
	assert.Equal(t, "", TradeRef("", "0xw", "0xm", &idx, nil, "BUY"))
	assert.Equal(t, "0xt:0xw:0xm:1:buy", TradeRef("0xT", "0xW", "0xM", &idx, "No", "BUY"))
	assert.Equal(t, "0xt:0xw:0xm:no:sell", TradeRef("0xT", "0xW", "0xM", nil, "No", "SELL"))
}
