// Package adapter provides HTTP clients for the Polymarket and block-explorer APIs.
package adapter

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/polytracker/scanner/internal/errors"
)

const (
	maxErrorBody = 512
	// DefaultMaxBody caps a successful response body
	DefaultMaxBody int64 = 8 << 20
)

// httpGetter performs rate-limited GETs and maps failures onto categorized errors
type httpGetter struct {
	provider string
	client   *http.Client
	limiter  *rate.Limiter
	headers  map[string]string
	maxBody  int64
}

func newHTTPGetter(provider string, client *http.Client, rps float64, headers map[string]string) *httpGetter {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &httpGetter{
		provider: provider,
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		headers:  headers,
		maxBody:  DefaultMaxBody,
	}
}

// get returns the response body for a 200 response
func (g *httpGetter) get(ctx context.Context, url string) ([]byte, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range g.headers {
		req.Header.Set(k, v)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var netErr net.Error
		if stderrors.As(err, &netErr) && netErr.Timeout() {
			timeoutErr := errors.NewProviderTimeoutError(g.provider)
			timeoutErr.Cause = err
			return nil, timeoutErr
		}
		return nil, errors.NewProviderError(g.provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, errors.NewProviderStatusError(g.provider, resp.StatusCode, string(snippet))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, g.maxBody+1))
	if err != nil {
		return nil, errors.NewProviderError(g.provider, fmt.Errorf("failed to read response: %w", err))
	}
	if int64(len(body)) > g.maxBody {
		return nil, errors.NewProviderResponseTooLargeError(g.provider, g.maxBody)
	}
	return body, nil
}
