// Package queue implements the remote work-queue lease protocol and the
// queue-polling supervisor that drives a Runner through a job's lifecycle.
package queue

import (
	"github.com/askui/askui-runner/pkg/config"
)

// Status is the job's lifecycle state as returned by lease/ping and
// reported via complete. Monotonic: it transitions exactly once from
// RUNNING to one of {PASSED, FAILED, CANCELED}.
type Status string

const (
	StatusPending            Status = "PENDING"
	StatusRunning            Status = "RUNNING"
	StatusPassed             Status = "PASSED"
	StatusFailed             Status = "FAILED"
	StatusCanceled           Status = "CANCELED"
	StatusMaxRetriesExceeded Status = "MAX_RETRIES_EXCEEDED"
)

// JobData is the free-form payload forwarded to the child runtime, plus
// the structured fields the core needs to drive download/run/upload.
type JobData struct {
	Credentials           config.Credentials `json:"credentials"`
	Workflows             []string           `json:"workflows"`
	WorkflowsAPIURL       string             `json:"workflows_api_url"`
	ResultsAPIURL         string             `json:"results_api_url"`
	InferenceAPIURL       string             `json:"inference_api_url"`
	ScheduleResultsAPIURL string             `json:"schedule_results_api_url,omitempty"`
	Data                  map[string]any     `json:"data,omitempty"`
}

// Job is the Job Descriptor returned by lease (spec.md §3). id, ack, and
// runner_id are immutable once leased.
type Job struct {
	ID       string  `json:"id"`
	Ack      string  `json:"ack"`
	Status   Status  `json:"status"`
	Visible  int64   `json:"visible"`
	RunnerID string  `json:"runner_id"`
	Tries    int     `json:"tries"`
	Data     JobData `json:"data"`
}

// ShouldPing reports whether visible - now < pingThreshold seconds, i.e.
// whether the lease is close enough to expiry to warrant extending it.
func (j Job) ShouldPing(now int64, pingThreshold int64) bool {
	return j.Visible-now < pingThreshold
}

// Filters is sent on every lease call to scope which jobs this worker may pick up.
type Filters struct {
	Tags        []string          `json:"tags,omitempty"`
	RunnerID    string            `json:"runner_id"`
	RunnerHost  config.RunnerHost `json:"runner_host"`
	WorkspaceID string            `json:"workspace_id,omitempty"`
}

// PollingConfig drives the supervisor's outer loop.
type PollingConfig struct {
	Filters         Filters
	JobTimeoutS     int64
	KeepAlive       bool
	PollingInterval int64
}

// PingResult is the response to a ping call.
type PingResult struct {
	Visible   int64 `json:"visible"`
	CancelJob bool  `json:"cancel_job"`
}
