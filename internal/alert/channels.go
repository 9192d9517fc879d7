package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/polytracker/scanner/internal/types"
)

const (
	// DefaultTelegramURL is the Bot API base URL
	DefaultTelegramURL = "https://api.telegram.org"

	maxErrorBody = 512
)

// Channel delivers one alert to one destination
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// postJSON posts body as JSON and fails on a non-2xx response
func postJSON(ctx context.Context, client *http.Client, url string, body interface{}) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(respBody)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet)
	}
	return respBody, nil
}

// TelegramChannel posts Markdown messages through the Bot API
type TelegramChannel struct {
	apiURL string
	token  string
	chatID string
	client *http.Client
}

// NewTelegramChannel creates a Telegram channel. An empty apiURL uses DefaultTelegramURL.
func NewTelegramChannel(apiURL, token, chatID string, client *http.Client) *TelegramChannel {
	if apiURL == "" {
		apiURL = DefaultTelegramURL
	}
	if client == nil {
		client = &http.Client{}
	}
	return &TelegramChannel{apiURL: strings.TrimRight(apiURL, "/"), token: token, chatID: chatID, client: client}
}

// Name implements Channel
func (c *TelegramChannel) Name() string { return "telegram" }

// Send implements Channel
func (c *TelegramChannel) Send(ctx context.Context, msg Message) error {
	body := map[string]interface{}{
		"chat_id":                  c.chatID,
		"text":                     telegramText(msg),
		"parse_mode":               "Markdown",
		"disable_web_page_preview": true,
	}
	resp, err := postJSON(ctx, c.client, fmt.Sprintf("%s/bot%s/sendMessage", c.apiURL, c.token), body)
	if err != nil {
		return err
	}
	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return fmt.Errorf("failed to decode telegram response: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("telegram rejected message: %s", result.Description)
	}
	return nil
}

func telegramText(m Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n\n", m.Title())
	fmt.Fprintf(&b, "*Market:* %s\n", m.MarketTitle)
	if m.Category != "" {
		fmt.Fprintf(&b, "*Category:* %s\n", m.Category)
	}
	fmt.Fprintf(&b, "*Size:* %s\n", m.Amount())
	fmt.Fprintf(&b, "*Position:* %s\n", m.Position())
	fmt.Fprintf(&b, "*Wallet age:* %s\n", m.WalletAge())
	fmt.Fprintf(&b, "*Wallet:* [%s](%s)\n", m.ShortWallet(), m.ProfileURL)
	if m.Source == types.SourceTrackedWallet {
		b.WriteString("_Tracked wallet_\n")
	}
	fmt.Fprintf(&b, "`%s`", m.TradeRef)
	return b.String()
}

// SlackChannel posts Block Kit messages to an incoming webhook
type SlackChannel struct {
	webhookURL string
	client     *http.Client
}

// NewSlackChannel creates a Slack channel
func NewSlackChannel(webhookURL string, client *http.Client) *SlackChannel {
	if client == nil {
		client = &http.Client{}
	}
	return &SlackChannel{webhookURL: webhookURL, client: client}
}

// Name implements Channel
func (c *SlackChannel) Name() string { return "slack" }

// Send implements Channel
func (c *SlackChannel) Send(ctx context.Context, msg Message) error {
	field := func(label, value string) map[string]string {
		return map[string]string{"type": "mrkdwn", "text": fmt.Sprintf("*%s:*\n%s", label, value)}
	}
	body := map[string]interface{}{
		"text": msg.Title(),
		"blocks": []interface{}{
			map[string]interface{}{
				"type": "header",
				"text": map[string]string{"type": "plain_text", "text": msg.Title()},
			},
			map[string]interface{}{
				"type": "section",
				"text": map[string]string{"type": "mrkdwn", "text": "*" + msg.MarketTitle + "*"},
			},
			map[string]interface{}{
				"type": "section",
				"fields": []interface{}{
					field("Bet Size", msg.Amount()),
					field("Position", msg.Position()),
					field("Wallet Age", msg.WalletAge()),
					field("Wallet", fmt.Sprintf("<%s|%s>", msg.ProfileURL, msg.ShortWallet())),
				},
			},
			map[string]interface{}{
				"type": "context",
				"elements": []interface{}{
					map[string]string{"type": "mrkdwn", "text": fmt.Sprintf("%s | %s", msg.Source, msg.TradeRef)},
				},
			},
		},
	}
	_, err := postJSON(ctx, c.client, c.webhookURL, body)
	return err
}

// DiscordChannel posts an embed to a Discord webhook
type DiscordChannel struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordChannel creates a Discord channel
func NewDiscordChannel(webhookURL string, client *http.Client) *DiscordChannel {
	if client == nil {
		client = &http.Client{}
	}
	return &DiscordChannel{webhookURL: webhookURL, client: client}
}

// Name implements Channel
func (c *DiscordChannel) Name() string { return "discord" }

// Send implements Channel
func (c *DiscordChannel) Send(ctx context.Context, msg Message) error {
	field := func(name, value string) map[string]interface{} {
		return map[string]interface{}{"name": name, "value": value, "inline": true}
	}
	embed := map[string]interface{}{
		"title":       msg.Title(),
		"description": msg.MarketTitle,
		"url":         msg.ProfileURL,
		"color":       discordColor(msg.RiskLevel),
		"fields": []interface{}{
			field("Bet Size", msg.Amount()),
			field("Position", msg.Position()),
			field("Wallet Age", msg.WalletAge()),
			field("Wallet", msg.ShortWallet()),
		},
		"footer": map[string]string{"text": msg.TradeRef},
	}
	if !msg.TradeTime.IsZero() {
		embed["timestamp"] = msg.TradeTime.UTC().Format(time.RFC3339)
	}
	_, err := postJSON(ctx, c.client, c.webhookURL, map[string]interface{}{"embeds": []interface{}{embed}})
	return err
}

func discordColor(level types.RiskLevel) int {
	switch level {
	case types.RiskCritical:
		return 0xE02424
	case types.RiskHigh:
		return 0xF97316
	case types.RiskMedium:
		return 0xEAB308
	default:
		return 0x3B82F6
	}
}
