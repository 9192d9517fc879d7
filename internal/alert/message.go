// Package alert delivers suspicious-trade notifications to chat channels.
package alert

import (
	"fmt"
	"strings"
	"time"

	"github.com/polytracker/scanner/internal/models"
	"github.com/polytracker/scanner/internal/scoring"
	"github.com/polytracker/scanner/internal/types"
)

// Banner is a headline tag attached to an alert
type Banner string

const (
	BannerNewWallet Banner = "NEW WALLET"
	BannerLowOdds   Banner = "LOW ODDS"
	BannerWhale     Banner = "WHALE"
)

// Banner cutoffs, expressed as the scorer points they correspond to:
// a wallet at most 7 days old, a price at most 10 cents, a bet of at least $50,000.
const (
	newWalletMinPoints = 30
	lowOddsMinPoints   = 20
	whaleMinPoints     = 25
)

const profileURL = "https://polymarket.com/profile/"

// Message is the channel-neutral content of one alert
type Message struct {
	TradeRef      string
	Wallet        string
	ProfileURL    string
	MarketTitle   string
	Category      string
	Outcome       types.Outcome
	Side          types.Side
	BetSizeUSD    float64
	Price         float64
	WalletAgeDays *int
	RiskScore     int
	RiskLevel     types.RiskLevel
	Source        types.DetectionSource
	Banners       []Banner
	TradeTime     time.Time
}

// NewMessage builds the alert content for a trade
func NewMessage(t *models.SuspiciousTrade) Message {
	title := t.MarketTitle
	if title == "" {
		title = t.MarketID
	}
	return Message{
		TradeRef:      t.TradeRef,
		Wallet:        t.Wallet,
		ProfileURL:    profileURL + t.Wallet,
		MarketTitle:   title,
		Category:      t.Category,
		Outcome:       t.Outcome,
		Side:          t.Side,
		BetSizeUSD:    t.BetSizeUSD,
		Price:         t.Price,
		WalletAgeDays: t.WalletAgeDays,
		RiskScore:     t.RiskScore,
		RiskLevel:     t.RiskLevel,
		Source:        t.DetectionSource,
		Banners:       Banners(t),
		TradeTime:     t.TradeTime,
	}
}

// Banners derives the headline tags for a trade from the scorer thresholds
func Banners(t *models.SuspiciousTrade) []Banner {
	var out []Banner
	if scoring.AgePoints(t.WalletAgeDays) >= newWalletMinPoints {
		out = append(out, BannerNewWallet)
	}
	if scoring.PricePoints(t.Price) >= lowOddsMinPoints {
		out = append(out, BannerLowOdds)
	}
	if scoring.SizePoints(t.BetSizeUSD) >= whaleMinPoints {
		out = append(out, BannerWhale)
	}
	return out
}

// Title is the one-line headline shared by every channel
func (m Message) Title() string {
	var b strings.Builder
	b.WriteString(levelEmoji(m.RiskLevel))
	b.WriteString(" Suspicious bet: ")
	b.WriteString(string(m.RiskLevel))
	fmt.Fprintf(&b, " (%d/100)", m.RiskScore)
	if len(m.Banners) > 0 {
		tags := make([]string, len(m.Banners))
		for i, bn := range m.Banners {
			tags[i] = string(bn)
		}
		b.WriteString(" | ")
		b.WriteString(strings.Join(tags, " | "))
	}
	return b.String()
}

// WalletAge formats the wallet age for display
func (m Message) WalletAge() string {
	if m.WalletAgeDays == nil {
		return "unknown"
	}
	if *m.WalletAgeDays == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", *m.WalletAgeDays)
}

// Position formats outcome and price, e.g. "YES @ 4.0¢"
func (m Message) Position() string {
	return fmt.Sprintf("%s %s @ %.1f¢", m.Side, m.Outcome, scoring.PriceCents(m.Price))
}

// Amount formats the bet size, e.g. "$60,000.00"
func (m Message) Amount() string {
	return "$" + commas(m.BetSizeUSD)
}

// ShortWallet abbreviates the wallet for display
func (m Message) ShortWallet() string {
	if len(m.Wallet) <= 12 {
		return m.Wallet
	}
	return m.Wallet[:6] + "…" + m.Wallet[len(m.Wallet)-4:]
}

func levelEmoji(level types.RiskLevel) string {
	switch level {
	case types.RiskCritical:
		return "🚨"
	case types.RiskHigh:
		return "⚠️"
	case types.RiskMedium:
		return "🔶"
	default:
		return "ℹ️"
	}
}

func commas(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, frac := s[:len(s)-3], s[len(s)-3:]
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + frac
	if neg {
		out = "-" + out
	}
	return out
}
