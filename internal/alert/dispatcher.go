package alert

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/polytracker/scanner/internal/config"
	"github.com/polytracker/scanner/internal/logging"
	"github.com/polytracker/scanner/internal/metrics"
	"github.com/polytracker/scanner/internal/models"
)

// DefaultTimeout bounds a single channel delivery
const DefaultTimeout = 10 * time.Second

// Dispatcher fans an alert out to every registered channel
type Dispatcher struct {
	channels []Channel
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   *logging.Logger
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithTimeout sets the per-channel delivery timeout
func WithTimeout(d time.Duration) Option {
	return func(ds *Dispatcher) {
		if d > 0 {
			ds.timeout = d
		}
	}
}

// WithMetrics counts delivery results per channel
func WithMetrics(m *metrics.Metrics) Option {
	return func(ds *Dispatcher) { ds.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(ds *Dispatcher) { ds.logger = l }
}

// NewDispatcher creates a dispatcher over the given channels
func NewDispatcher(channels []Channel, opts ...Option) *Dispatcher {
	d := &Dispatcher{channels: channels, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.OrGlobal(d.logger).WithField("component", "alerts")
	return d
}

// ChannelsFromConfig builds a channel for every destination that is configured
func ChannelsFromConfig(cfg config.AlertsConfig, client *http.Client) []Channel {
	if client == nil {
		client = &http.Client{}
	}
	var out []Channel
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		out = append(out, NewTelegramChannel("", cfg.TelegramToken, cfg.TelegramChatID, client))
	}
	if cfg.SlackWebhookURL != "" {
		out = append(out, NewSlackChannel(cfg.SlackWebhookURL, client))
	}
	if cfg.DiscordWebhookURL != "" {
		out = append(out, NewDiscordChannel(cfg.DiscordWebhookURL, client))
	}
	return out
}

// Channels returns the names of the registered channels
func (d *Dispatcher) Channels() []string {
	names := make([]string, len(d.channels))
	for i, c := range d.channels {
		names[i] = c.Name()
	}
	return names
}

// Dispatch sends the trade to every channel concurrently and reports which
// deliveries succeeded. Failures are logged and never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, trade *models.SuspiciousTrade) map[string]bool {
	results := make(map[string]bool, len(d.channels))
	if len(d.channels) == 0 {
		return results
	}
	msg := NewMessage(trade)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, ch := range d.channels {
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			ok := d.send(ctx, ch, msg)
			mu.Lock()
			results[ch.Name()] = ok
			mu.Unlock()
		}(ch)
	}
	wg.Wait()
	return results
}

func (d *Dispatcher) send(ctx context.Context, ch Channel, msg Message) (ok bool) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	log := d.logger.WithFields(map[string]interface{}{
		"channel":  ch.Name(),
		"tradeRef": msg.TradeRef,
	})
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("alert channel panicked")
			ok = false
		}
		d.metrics.AlertResult(ch.Name(), ok)
	}()

	if err := ch.Send(ctx, msg); err != nil {
		log.WithError(err).Warn("alert delivery failed")
		return false
	}
	log.Debug("alert delivered")
	return true
}
