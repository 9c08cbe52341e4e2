package queue

import "fmt"

// PingError wraps any transport failure observed while extending a lease.
// The supervisor abandons the run on any error returned by Ping, without
// reporting a terminal status — the server-side lease will expire and the
// job will be re-leased (spec.md §4.1, §7).
type PingError struct {
	Err error
}

func (e *PingError) Error() string { return fmt.Sprintf("ping failed: %s", e.Err) }

func (e *PingError) Unwrap() error { return e.Err }

// HTTPError is a non-200 response from the queue API, as left after the
// transport's retries of 408/429/5xx, carrying the response body per spec.md §7.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("queue request failed with status %d: %s", e.StatusCode, e.Body)
}
