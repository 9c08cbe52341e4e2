package queue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/askui/askui-runner/pkg/transport"
)

const requestTimeout = 60 * time.Second

// Client is the remote queue's lease protocol (spec.md §4.5):
// lease, ping, complete(status). lease and complete swallow transport
// errors (log + no-op); ping propagates them as *PingError.
type Client interface {
	Lease(filters Filters) (*Job, error)
	Ping(job Job) (PingResult, error)
	Pass(job Job)
	Fail(job Job)
	Cancel(job Job)
}

type httpClient struct {
	log        logr.Logger
	baseURL    string
	authHeader string
	http       *retryablehttp.Client
}

// NewHTTPClient builds the queue Client backed by a retrying HTTP
// transport, matching spec.md §4.5's "all calls use a 60s request
// timeout and the auth header".
func NewHTTPClient(log logr.Logger, baseURL, authHeader string) Client {
	return &httpClient{
		log:        log,
		baseURL:    strings.TrimRight(baseURL, "/"),
		authHeader: authHeader,
		http:       transport.New(log, requestTimeout),
	}
}

func (c *httpClient) do(method, path string, query url.Values, body any) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(bs)
	} else {
		reader = bytes.NewReader(nil)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := retryablehttp.NewRequest(method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Content-Type", "application/json")

	return c.http.Do(req)
}

// Lease calls POST {base}/lease?filters... A nil response means "no job".
// Network/parse errors are logged and treated as "no job" per spec.md §4.1.
func (c *httpClient) Lease(filters Filters) (*Job, error) {
	query := url.Values{}
	for _, tag := range filters.Tags {
		query.Add("tags", tag)
	}
	query.Set("runner_id", filters.RunnerID)
	query.Set("runner_host", string(filters.RunnerHost))
	if filters.WorkspaceID != "" {
		query.Set("workspace_id", filters.WorkspaceID)
	}

	resp, err := c.do(http.MethodPost, "/lease", query, nil)
	if err != nil {
		c.log.Error(err, "Lease request failed")
		return nil, nil //nolint:nilerr // transient lease failures drive the next poll, not an error return
	}
	body := transport.ReadBody(resp)

	if resp.StatusCode != http.StatusOK {
		c.log.Error(&HTTPError{StatusCode: resp.StatusCode, Body: body}, "Lease returned non-200")
		return nil, nil
	}

	trimmed := strings.TrimSpace(body)
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	var job Job
	if err := json.Unmarshal([]byte(trimmed), &job); err != nil {
		c.log.Error(err, "Failed to parse lease response")
		return nil, nil
	}

	return &job, nil
}

// Ping calls POST {base}/ping?ack=... Any transport failure is returned as
// a *PingError so the supervisor can abandon the lease without reporting a
// terminal status (spec.md §4.1, §4.5).
func (c *httpClient) Ping(job Job) (PingResult, error) {
	query := url.Values{"ack": {job.Ack}}

	resp, err := c.do(http.MethodPost, "/ping", query, nil)
	if err != nil {
		return PingResult{}, &PingError{Err: err}
	}
	body := transport.ReadBody(resp)

	if resp.StatusCode != http.StatusOK {
		return PingResult{}, &PingError{Err: &HTTPError{StatusCode: resp.StatusCode, Body: body}}
	}

	var result PingResult
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		return PingResult{}, &PingError{Err: fmt.Errorf("parsing ping response: %w", err)}
	}

	return result, nil
}

// Pass, Fail, and Cancel call POST {base}/complete?ack=... with the
// corresponding status. Errors are logged but never propagated — the
// worker must remain available for the next lease (spec.md §7).
func (c *httpClient) Pass(job Job)   { c.complete(job, StatusPassed) }
func (c *httpClient) Fail(job Job)   { c.complete(job, StatusFailed) }
func (c *httpClient) Cancel(job Job) { c.complete(job, StatusCanceled) }

func (c *httpClient) complete(job Job, status Status) {
	query := url.Values{"ack": {job.Ack}}
	body := struct {
		Status Status `json:"status"`
	}{Status: status}

	resp, err := c.do(http.MethodPost, "/complete", query, body)
	if err != nil {
		c.log.Error(err, "Complete request failed", "jobID", job.ID, "status", status)
		return
	}

	if resp.StatusCode != http.StatusOK {
		respBody := transport.ReadBody(resp)
		c.log.Error(&HTTPError{StatusCode: resp.StatusCode, Body: respBody}, "Complete returned non-200",
			"jobID", job.ID, "status", status)
	}
}
