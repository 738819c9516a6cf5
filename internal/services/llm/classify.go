package llm

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/domus/internal/durable"
)

// IsRateLimitError checks if an error is a provider rate limit error.
// Matches 429 status codes and RESOURCE_EXHAUSTED errors.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "RESOURCE_EXHAUSTED") ||
		strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "rate_limit")
}

// retryDelayRegex matches "Please retry in Xs" or "retryDelay:Xs" patterns
var retryDelayRegex = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s]+)(\d+(?:\.\d+)?)\s*s`)

// ExtractRetryDelay parses the API-suggested retry delay from a provider
// error. Returns 0 if no delay is found in the error message.
func ExtractRetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}

	matches := retryDelayRegex.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0
	}

	seconds, parseErr := strconv.ParseFloat(matches[1], 64)
	if parseErr != nil {
		return 0
	}

	return time.Duration(seconds * float64(time.Second))
}

// isServerError matches provider-side 5xx failures.
func isServerError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	for _, code := range []string{"500", "502", "503", "504", "overloaded"} {
		if strings.Contains(errStr, code) {
			return true
		}
	}
	return false
}

// ClassifyProviderError maps a raw provider error into the durable fault
// taxonomy: rate limits, server errors, and timeouts are transient;
// everything else (auth, malformed request) is terminal.
func ClassifyProviderError(err error, provider string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return durable.WrapFault(durable.KindTransient, err, "%s call timed out", provider)
	}
	if IsRateLimitError(err) {
		fault := durable.WrapFault(durable.KindTransient, err, "%s rate limited", provider)
		fault.RetryAfter = ExtractRetryDelay(err)
		return fault
	}
	if isServerError(err) {
		return durable.WrapFault(durable.KindTransient, err, "%s server error", provider)
	}
	return durable.WrapFault(durable.KindInternal, err, "%s call failed", provider)
}
