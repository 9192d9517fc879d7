package api

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polytracker/scanner/internal/logging"
	"github.com/polytracker/scanner/internal/metrics"
	"github.com/polytracker/scanner/internal/models"
	"github.com/polytracker/scanner/internal/scanner"
	"github.com/polytracker/scanner/internal/service"
	"github.com/polytracker/scanner/internal/storage/migrations"
	"github.com/polytracker/scanner/internal/storage/sqlite"
	"github.com/polytracker/scanner/internal/types"
)

const (
	testWallet  = "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"
	testMarket  = "0xdd22472e552920b8438158ea7238bfadfa4f736aa4cee91a6b86c39ead110917"
	testTradeID = "0xtx1:" + testWallet + ":" + testMarket + ":0:buy"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// fakeTrigger records triggered modes
type fakeTrigger struct {
	mu    sync.Mutex
	modes []types.ScanMode
	err   error
}

func (f *fakeTrigger) Trigger(mode types.ScanMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.modes = append(f.modes, mode)
	return nil
}

func (f *fakeTrigger) Status() scanner.SchedulerStatus {
	return scanner.SchedulerStatus{Running: true, Mode: types.ScanModeRecent, IntervalSeconds: 300}
}

type testEnv struct {
	server  *Server
	store   *sqlite.Store
	trigger *fakeTrigger
	reg     *prometheus.Registry
}

func newTestEnv(t *testing.T, cfg *ServerConfig, withTrigger bool) *testEnv {
	t.Helper()
	path := filepath.Join(t.TempDir(), "api.db")
	require.NoError(t, migrations.Up(migrations.SQLite, migrations.SQLiteURL(path)))
	store, err := sqlite.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	store.SetClock(func() time.Time { return testNow })

	if cfg == nil {
		cfg = &ServerConfig{Host: "127.0.0.1", Port: "0"}
	}
	reg := prometheus.NewRegistry()
	env := &testEnv{store: store, trigger: &fakeTrigger{}, reg: reg}

	opts := []Option{
		WithLogger(logging.Nop()),
		WithMetrics(metrics.New(reg)),
		WithHealthCheck(store),
	}
	if withTrigger {
		opts = append(opts, WithScanTrigger(env.trigger))
	}
	env.server = NewServer(cfg,
		service.NewTrackingService(store, logging.Nop()),
		service.NewQueryService(store),
		opts...)
	return env
}

func (e *testEnv) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			rd = strings.NewReader(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			rd = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, target, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func (e *testEnv) seedTrade(t *testing.T) {
	t.Helper()
	age := 2
	inserted, err := e.store.SaveSuspiciousTrade(context.Background(), &models.SuspiciousTrade{
		TradeRef:        testTradeID,
		Wallet:          testWallet,
		MarketID:        testMarket,
		MarketTitle:     "Will it happen?",
		BetSizeUSD:      60_000,
		Outcome:         types.OutcomeYes,
		Side:            types.SideBuy,
		Price:           0.04,
		Shares:          1_500_000,
		TradeTime:       testNow,
		WalletAgeDays:   &age,
		RiskScore:       85,
		RiskLevel:       types.RiskCritical,
		DetectedAt:      testNow,
		DetectionSource: types.SourceAutomatic,
	})
	require.NoError(t, err)
	require.True(t, inserted)
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, false)

	w := env.do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	decode(t, w, &resp)
	assert.Equal(t, "healthy", resp["status"])

	require.NoError(t, env.store.Close())
	w = env.do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListTradesAndDetail(t *testing.T) {
	env := newTestEnv(t, nil, false)

	w := env.do(t, "GET", "/api/trades", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var empty service.TradePage
	decode(t, w, &empty)
	assert.Empty(t, empty.Trades)

	env.seedTrade(t)

	w = env.do(t, "GET", "/api/trades?limit=10&offset=0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page service.TradePage
	decode(t, w, &page)
	require.Len(t, page.Trades, 1)
	assert.Equal(t, types.RiskCritical, page.Trades[0].RiskLevel)
	assert.Equal(t, 10, page.Pagination.Limit)
	assert.False(t, page.Pagination.HasMore)

	w = env.do(t, "GET", "/api/trades/"+testTradeID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail service.TradeDetail
	decode(t, w, &detail)
	assert.Equal(t, 85, detail.Trade.RiskScore)

	w = env.do(t, "GET", "/api/trades/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInvalidPagination(t *testing.T) {
	env := newTestEnv(t, nil, false)

	tests := []struct {
		name     string
		query    string
		expected int
	}{
		{"negative limit uses default", "?limit=-10", http.StatusOK},
		{"excessive limit is capped", "?limit=10000", http.StatusOK},
		{"non-numeric limit", "?limit=abc", http.StatusBadRequest},
		{"negative offset", "?offset=-5", http.StatusBadRequest},
		{"non-numeric offset", "?offset=x", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "GET", "/api/trades"+tt.query, nil)
			assert.Equal(t, tt.expected, w.Code, w.Body.String())
		})
	}
}

func TestGetWallet(t *testing.T) {
	env := newTestEnv(t, nil, false)
	env.seedTrade(t)

	w := env.do(t, "GET", "/api/wallets/0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var profile service.WalletProfile
	decode(t, w, &profile)
	assert.Equal(t, 1, profile.Aggregate.TotalBets)
	assert.InDelta(t, 60_000, profile.Aggregate.TotalVolumeUSD, 0.001)
	assert.Len(t, profile.Trades, 1)

	w = env.do(t, "GET", "/api/wallets/0x0000000000000000000000000000000000000001", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, "GET", "/api/wallets/not-a-wallet", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var errResp ErrorResponse
	decode(t, w, &errResp)
	assert.Equal(t, "INVALID_ADDRESS", errResp.Error.Code)
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, nil, false)
	env.seedTrade(t)

	w := env.do(t, "GET", "/api/stats?top=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats models.DashboardStats
	decode(t, w, &stats)
	assert.Equal(t, 1, stats.TotalSuspicious)
	assert.Equal(t, 1, stats.UniqueWallets)
	assert.Equal(t, 1, stats.ByRiskLevel[types.RiskCritical])
	require.Len(t, stats.TopWallets, 1)
	assert.Equal(t, testWallet, stats.TopWallets[0].Wallet)
}

func TestTrackedWalletLifecycle(t *testing.T) {
	env := newTestEnv(t, nil, false)

	w := env.do(t, "POST", "/api/tracked/wallets", map[string]string{
		"wallet": "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"label":  "whale",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var tw models.TrackedWallet
	decode(t, w, &tw)
	assert.Equal(t, testWallet, tw.Wallet)

	w = env.do(t, "GET", "/api/tracked/wallets", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Wallets []models.TrackedWallet `json:"wallets"`
		Count   int                    `json:"count"`
	}
	decode(t, w, &list)
	assert.Equal(t, 1, list.Count)

	w = env.do(t, "DELETE", "/api/tracked/wallets/"+testWallet, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, "GET", "/api/tracked/wallets?all=true", nil)
	decode(t, w, &list)
	require.Equal(t, 1, list.Count)
	assert.False(t, list.Wallets[0].Active)

	w = env.do(t, "DELETE", "/api/tracked/wallets/0x0000000000000000000000000000000000000001", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, "POST", "/api/tracked/wallets", map[string]string{"wallet": "0x123"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "POST", "/api/tracked/wallets", "invalid json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "POST", "/api/tracked/wallets", `{"wallet":"`+testWallet+`","unknown":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "unknown fields are rejected")
}

func TestTrackedMarketLifecycle(t *testing.T) {
	env := newTestEnv(t, nil, false)

	w := env.do(t, "POST", "/api/tracked/markets", map[string]string{"marketId": testMarket, "reason": "chatter"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, "POST", "/api/tracked/markets", map[string]string{"marketId": "not a market"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "GET", "/api/tracked/markets", nil)
	var list struct {
		Markets []models.TrackedMarket `json:"markets"`
	}
	decode(t, w, &list)
	require.Len(t, list.Markets, 1)
	assert.Equal(t, "chatter", list.Markets[0].Reason)

	w = env.do(t, "DELETE", "/api/tracked/markets/"+testMarket, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	tracked, err := env.store.IsMarketTracked(context.Background(), testMarket)
	require.NoError(t, err)
	assert.False(t, tracked)
}

func TestTriggerScan(t *testing.T) {
	env := newTestEnv(t, nil, true)

	w := env.do(t, "POST", "/api/scans", map[string]string{"mode": "full"})
	require.Equal(t, http.StatusAccepted, w.Code)

	w = env.do(t, "POST", "/api/scans", nil)
	require.Equal(t, http.StatusAccepted, w.Code, "empty body uses the scheduler mode")

	w = env.do(t, "POST", "/api/scans", map[string]string{"mode": "sideways"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	env.trigger.err = scanner.ErrScanInProgress
	w = env.do(t, "POST", "/api/scans", map[string]string{"mode": "wallets"})
	assert.Equal(t, http.StatusConflict, w.Code)

	env.trigger.err = scanner.ErrSchedulerStopped
	w = env.do(t, "POST", "/api/scans", map[string]string{"mode": "recent"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	assert.Equal(t, []types.ScanMode{types.ScanModeFull, types.ScanModeRecent}, env.trigger.modes)

	w = env.do(t, "GET", "/api/scans/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st scanner.SchedulerStatus
	decode(t, w, &st)
	assert.Equal(t, 300, st.IntervalSeconds)
}

func TestTriggerScan_NoScheduler(t *testing.T) {
	env := newTestEnv(t, nil, false)
	w := env.do(t, "POST", "/api/scans", map[string]string{"mode": "full"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListScans(t *testing.T) {
	env := newTestEnv(t, nil, false)
	require.NoError(t, env.store.AppendScanRun(context.Background(), &models.ScanRun{
		ID: "run-1", Mode: types.ScanModeFull, StartedAt: testNow, FinishedAt: testNow.Add(time.Minute),
		MarketsScanned: 3, Status: types.ScanStatusCompletedWithErrors, Errors: 1,
	}))

	w := env.do(t, "GET", "/api/scans?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Scans []models.ScanRun `json:"scans"`
	}
	decode(t, w, &resp)
	require.Len(t, resp.Scans, 1)
	assert.Equal(t, types.ScanStatusCompletedWithErrors, resp.Scans[0].Status)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, false)
	env.do(t, "GET", "/api/trades", nil)

	w := env.do(t, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `polytracker_api_requests_total{method="GET",route="/api/trades"`)
}

func TestCORSHeaders(t *testing.T) {
	env := newTestEnv(t, nil, false)

	w := env.do(t, "OPTIONS", "/api/tracked/wallets", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = env.do(t, "GET", "/health", nil)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCompression(t *testing.T) {
	env := newTestEnv(t, nil, false)

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)

	require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	gz, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	raw, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "healthy")
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, &ServerConfig{Host: "127.0.0.1", Port: "0", RateLimitRPS: 1, RateLimitBurst: 2}, false)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, env.do(t, "GET", "/health", nil).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "other clients have their own bucket")
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(logging.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var resp ErrorResponse
	decode(t, w, &resp)
	assert.Equal(t, ErrCodeInternalError, resp.Error.Code)
}
