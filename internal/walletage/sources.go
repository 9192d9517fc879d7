package walletage

import (
	"context"
	"time"

	"github.com/polytracker/scanner/internal/circuitbreaker"
)

// Source answers when a wallet was first seen. found is false when the
// source has no record of the wallet.
type Source interface {
	Name() string
	FirstSeen(ctx context.Context, wallet string) (first time.Time, found bool, err error)
}

// ExplorerLookup is the block-explorer call behind ExplorerSource
type ExplorerLookup interface {
	FirstTransactionTime(ctx context.Context, wallet string) (time.Time, bool, error)
}

// ActivityLookup is the venue-activity call behind ActivitySource
type ActivityLookup interface {
	FirstActivity(ctx context.Context, wallet string) (time.Time, bool, error)
}

// ExplorerSource resolves the earliest on-chain transaction through a block explorer.
// Calls are guarded by a circuit breaker so a failing explorer is skipped quickly.
type ExplorerSource struct {
	lookup  ExplorerLookup
	breaker *circuitbreaker.CircuitBreaker
}

// NewExplorerSource wraps an explorer client. A nil breaker uses the default breaker config.
func NewExplorerSource(lookup ExplorerLookup, breaker *circuitbreaker.CircuitBreaker) *ExplorerSource {
	if breaker == nil {
		breaker = circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("explorer"))
	}
	return &ExplorerSource{lookup: lookup, breaker: breaker}
}

// Name implements Source
func (s *ExplorerSource) Name() string { return "explorer" }

// FirstSeen implements Source
func (s *ExplorerSource) FirstSeen(ctx context.Context, wallet string) (time.Time, bool, error) {
	var (
		first time.Time
		found bool
	)
	err := s.breaker.Execute(ctx, func() error {
		var err error
		first, found, err = s.lookup.FirstTransactionTime(ctx, wallet)
		return err
	})
	if err != nil {
		return time.Time{}, false, err
	}
	return first, found, nil
}

// ActivitySource resolves the wallet's earliest activity on the venue
type ActivitySource struct {
	lookup ActivityLookup
}

// NewActivitySource wraps a venue client
func NewActivitySource(lookup ActivityLookup) *ActivitySource {
	return &ActivitySource{lookup: lookup}
}

// Name implements Source
func (s *ActivitySource) Name() string { return "activity" }

// FirstSeen implements Source
func (s *ActivitySource) FirstSeen(ctx context.Context, wallet string) (time.Time, bool, error) {
	return s.lookup.FirstActivity(ctx, wallet)
}
