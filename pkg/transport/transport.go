// Package transport builds the shared retrying HTTP client used by the
// queue client and the file-sync engine. Adapted from the teacher's
// pkg/kubernetes/istio.go, which wires a bounded hashicorp/go-retryablehttp
// client for sidecar health checks; here the same client shape backs every
// outbound call the core makes to the remote queue and files APIs.
package transport

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-retryablehttp"
)

// New builds a retryablehttp.Client with up to 5 attempts and exponential
// backoff, matching spec.md §7's "transient transport ... retried with
// exponential backoff up to 5 attempts" rule. Non-retryable 4xx responses
// (except 408/429) are passed through untouched so the caller can surface
// an HTTPError with the response body.
func New(log logr.Logger, timeout time.Duration) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 4 // 5 total attempts
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 8 * time.Second
	c.HTTPClient.Timeout = timeout
	c.Logger = nil // the runner's structured logger replaces retryablehttp's own
	c.CheckRetry = CheckRetry
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler

	_ = log // reserved for future request-level tracing

	return c
}

// CheckRetry retries on transient transport errors and on 408/429/5xx
// responses; everything else (including other 4xx) is treated as terminal.
func CheckRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp == nil {
		return true, nil
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return true, nil
	case resp.StatusCode == http.StatusRequestTimeout:
		return true, nil
	case resp.StatusCode >= 500:
		return true, nil
	}

	return false, nil
}

// ReadBody reads and closes resp.Body, returning "" on any read error so
// callers can always include it in an error message.
func ReadBody(resp *http.Response) string {
	if resp == nil || resp.Body == nil {
		return ""
	}
	defer resp.Body.Close()

	bs, err := io.ReadAll(resp.Body)
	if err != nil {
		return ""
	}
	return string(bs)
}
