package alert

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polytracker/scanner/internal/config"
	"github.com/polytracker/scanner/internal/logging"
	"github.com/polytracker/scanner/internal/metrics"
	"github.com/polytracker/scanner/internal/models"
	"github.com/polytracker/scanner/internal/types"
)

func intPtr(v int) *int { return &v }

func sampleTrade() *models.SuspiciousTrade {
	return &models.SuspiciousTrade{
		TradeRef:        "0xtx:0xabcdef0123456789:0xmarket:0:buy",
		Wallet:          "0xabcdef0123456789",
		MarketID:        "0xmarket",
		MarketTitle:     "Will it happen?",
		Category:        "Politics",
		BetSizeUSD:      60_000,
		Outcome:         types.OutcomeYes,
		Side:            types.SideBuy,
		Price:           0.04,
		WalletAgeDays:   intPtr(2),
		RiskScore:       85,
		RiskLevel:       types.RiskCritical,
		DetectionSource: types.SourceAutomatic,
		TradeTime:       time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestBanners(t *testing.T) {
	tr := sampleTrade()
	assert.Equal(t, []Banner{BannerNewWallet, BannerLowOdds, BannerWhale}, Banners(tr))

	tr.WalletAgeDays = intPtr(8)
	tr.Price = 0.11
	tr.BetSizeUSD = 49_999
	assert.Empty(t, Banners(tr))

	tr.WalletAgeDays = intPtr(7)
	tr.Price = 0.10
	tr.BetSizeUSD = 50_000
	assert.Len(t, Banners(tr), 3, "thresholds are inclusive")

	tr.WalletAgeDays = nil
	assert.NotContains(t, Banners(tr), BannerNewWallet)

	tr.Price = 0
	assert.NotContains(t, Banners(tr), BannerLowOdds, "a missing price is not long odds")
}

func TestMessageFormatting(t *testing.T) {
	msg := NewMessage(sampleTrade())
	assert.Equal(t, "$60,000.00", msg.Amount())
	assert.Equal(t, "BUY YES @ 4.0¢", msg.Position())
	assert.Equal(t, "2 days", msg.WalletAge())
	assert.Equal(t, "0xabcd…6789", msg.ShortWallet())
	assert.Contains(t, msg.Title(), "CRITICAL (85/100) | NEW WALLET | LOW ODDS | WHALE")

	tr := sampleTrade()
	tr.WalletAgeDays = nil
	tr.MarketTitle = ""
	msg = NewMessage(tr)
	assert.Equal(t, "unknown", msg.WalletAge())
	assert.Equal(t, "0xmarket", msg.MarketTitle)

	assert.Equal(t, "1,234,567.89", commas(1234567.891))
	assert.Equal(t, "999.00", commas(999))
}

func TestTelegramChannel(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	ch := NewTelegramChannel(srv.URL, "TOKEN", "42", srv.Client())
	require.NoError(t, ch.Send(context.Background(), NewMessage(sampleTrade())))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "Markdown", got["parse_mode"])
	assert.Contains(t, got["text"], "$60,000.00")
	assert.Contains(t, got["text"], "Will it happen?")
}

func TestTelegramChannel_RejectedMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"ok":false,"description":"chat not found"}`)
	}))
	defer srv.Close()

	err := NewTelegramChannel(srv.URL, "T", "1", srv.Client()).Send(context.Background(), NewMessage(sampleTrade()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestSlackChannel(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	require.NoError(t, NewSlackChannel(srv.URL, srv.Client()).Send(context.Background(), NewMessage(sampleTrade())))
	assert.Contains(t, got["text"], "CRITICAL")
	assert.Len(t, got["blocks"], 4)
}

func TestDiscordChannel(t *testing.T) {
	var got struct {
		Embeds []struct {
			Title     string `json:"title"`
			Color     int    `json:"color"`
			Timestamp string `json:"timestamp"`
		} `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewDiscordChannel(srv.URL, srv.Client()).Send(context.Background(), NewMessage(sampleTrade())))
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, 0xE02424, got.Embeds[0].Color)
	assert.Equal(t, "2026-03-10T12:00:00Z", got.Embeds[0].Timestamp)
}

func TestWebhookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, strings.Repeat("x", 2000), http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewSlackChannel(srv.URL, srv.Client()).Send(context.Background(), NewMessage(sampleTrade()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")
	assert.Less(t, len(err.Error()), 600)
}

type fakeChannel struct {
	name  string
	err   error
	delay time.Duration
	panic bool
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Send(ctx context.Context, msg Message) error {
	if f.panic {
		panic("boom")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func TestDispatch_PartialFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	d := NewDispatcher([]Channel{
		&fakeChannel{name: "telegram"},
		&fakeChannel{name: "slack", err: errors.New("webhook gone")},
		&fakeChannel{name: "discord", panic: true},
	}, WithLogger(logging.Nop()), WithMetrics(metrics.New(reg)))

	results := d.Dispatch(context.Background(), sampleTrade())
	assert.Equal(t, map[string]bool{"telegram": true, "slack": false, "discord": false}, results)
}

func TestDispatch_PerChannelTimeout(t *testing.T) {
	d := NewDispatcher([]Channel{
		&fakeChannel{name: "slow", delay: time.Second},
		&fakeChannel{name: "fast"},
	}, WithLogger(logging.Nop()), WithTimeout(50*time.Millisecond))

	start := time.Now()
	results := d.Dispatch(context.Background(), sampleTrade())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.False(t, results["slow"])
	assert.True(t, results["fast"])
}

func TestDispatch_NoChannels(t *testing.T) {
	d := NewDispatcher(nil, WithLogger(logging.Nop()))
	assert.Empty(t, d.Dispatch(context.Background(), sampleTrade()))
}

func TestChannelsFromConfig(t *testing.T) {
	assert.Empty(t, ChannelsFromConfig(config.AlertsConfig{TelegramToken: "t"}, nil), "telegram needs a chat id")

	channels := ChannelsFromConfig(config.AlertsConfig{
		TelegramToken:     "t",
		TelegramChatID:    "1",
		SlackWebhookURL:   "https://hooks.slack.test/x",
		DiscordWebhookURL: "https://discord.test/x",
	}, nil)
	d := NewDispatcher(channels, WithLogger(logging.Nop()))
	assert.Equal(t, []string{"telegram", "slack", "discord"}, d.Channels())
}
