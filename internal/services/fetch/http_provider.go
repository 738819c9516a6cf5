package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/domus/internal/common"
	"github.com/ternarybob/domus/internal/durable"
	"github.com/ternarybob/domus/internal/interfaces"
	"golang.org/x/time/rate"
)

// HTTPProvider fetches a listing page with a plain HTTP GET and realistic
// browser headers. It is the cheapest provider and is tried first.
type HTTPProvider struct {
	config  common.FetchConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  arbor.ILogger
}

// NewHTTPProvider creates a new HTTP fetch provider
func NewHTTPProvider(config common.FetchConfig, logger arbor.ILogger) *HTTPProvider {
	interval := config.RateLimit
	if interval <= 0 {
		interval = time.Second
	}
	return &HTTPProvider{
		config: config,
		client: &http.Client{
			Timeout: config.RequestTimeout,
		},
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		logger:  logger,
	}
}

// Name returns the provider name
func (p *HTTPProvider) Name() string {
	return "http"
}

// Fetch retrieves raw page content, classifying failures into the durable
// fault taxonomy: 404 is terminal not-found; 403 is treated as a suspected
// bot block and therefore transient; timeouts and 5xx are transient.
func (p *HTTPProvider) Fetch(ctx context.Context, url string) (*interfaces.FetchResult, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, durable.WrapFault(durable.KindTransient, err, "rate limiter wait interrupted")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, durable.WrapFault(durable.KindValidation, err, "malformed url %q", url)
	}

	req.Header.Set("User-Agent", p.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "it-IT,it;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, classifyNetworkError(err, url)
	}
	defer resp.Body.Close()

	if fault := classifyStatus(resp.StatusCode, url); fault != nil {
		p.logger.Debug().
			Str("url", url).
			Int("status_code", resp.StatusCode).
			Msg("HTTP fetch rejected by status")
		return nil, fault
	}

	maxBody := int64(p.config.MaxBodySize)
	if maxBody <= 0 {
		maxBody = 10 * 1024 * 1024
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, durable.WrapFault(durable.KindTransient, err, "failed to read response body")
	}

	p.logger.Debug().
		Str("url", url).
		Int("status_code", resp.StatusCode).
		Int("content_size", len(body)).
		Dur("duration", time.Since(start)).
		Msg("HTTP fetch completed")

	return &interfaces.FetchResult{
		URL:        url,
		HTML:       string(body),
		StatusCode: resp.StatusCode,
		Provider:   p.Name(),
		FetchedAt:  time.Now().UTC(),
	}, nil
}

// classifyStatus maps an HTTP status code to a fault, nil for success.
func classifyStatus(statusCode int, url string) error {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == http.StatusNotFound || statusCode == http.StatusGone:
		return durable.NewFault(durable.KindNotFound, "listing not found at %s (status %d)", url, statusCode)
	case statusCode == http.StatusForbidden:
		// Suspected anti-bot block; retried, then escalated to the
		// browser provider.
		return durable.NewFault(durable.KindTransient, "suspected bot block at %s (status 403)", url)
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusTooManyRequests:
		return durable.NewFault(durable.KindTransient, "throttled at %s (status %d)", url, statusCode)
	case statusCode >= 500:
		return durable.NewFault(durable.KindTransient, "server error at %s (status %d)", url, statusCode)
	default:
		return durable.NewFault(durable.KindInternal, "unexpected status %d at %s", statusCode, url)
	}
}

// classifyNetworkError maps transport-level failures; timeouts and
// connection errors are transient.
func classifyNetworkError(err error, url string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return durable.WrapFault(durable.KindTransient, err, "fetch timed out for %s", url)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return durable.WrapFault(durable.KindTransient, err, "fetch timed out for %s", url)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return durable.WrapFault(durable.KindTransient, err, "connection error for %s", url)
	}

	return durable.WrapFault(durable.KindTransient, err, fmt.Sprintf("fetch failed for %s", url))
}
