package interfaces

import (
	"context"
	"time"
)

// FetchResult is the raw page content returned by a fetch provider.
type FetchResult struct {
	URL        string    `json:"url"`
	HTML       string    `json:"html"`
	StatusCode int       `json:"status_code"`
	Provider   string    `json:"provider"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// FetchProvider turns a URL into raw page content. Providers classify their
// own failures: a definitive 404 is a terminal not-found fault, while
// timeouts, 5xx responses, and suspected bot blocking (403) are transient.
type FetchProvider interface {
	Name() string
	Fetch(ctx context.Context, url string) (*FetchResult, error)
}
