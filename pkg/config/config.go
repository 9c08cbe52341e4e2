// Package config loads and validates the runner's configuration tree.
package config

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Entrypoint string

const (
	EntrypointQueue Entrypoint = "QUEUE"
	EntrypointJob   Entrypoint = "JOB"
)

type RunnerType string

const (
	RunnerTypeSubprocess RunnerType = "SUBPROCESS"
	RunnerTypeK8SJob     RunnerType = "K8S_JOB"
)

type RunnerHost string

const (
	RunnerHostSelf  RunnerHost = "SELF"
	RunnerHostAskUI RunnerHost = "ASKUI"
)

// Credentials identify a workspace to the remote APIs. Never mutated after load.
type Credentials struct {
	WorkspaceID string `json:"workspace_id" yaml:"workspace_id"`
	AccessToken string `json:"access_token" yaml:"access_token"`
}

// AuthHeader returns the `Authorization` header value per spec.md §6:
// the raw access token base64-encoded, not a user:password pair.
func (c Credentials) AuthHeader() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.AccessToken))
}

type PhaseToggles struct {
	Setup             bool `json:"setup" yaml:"setup"`
	DownloadWorkflows bool `json:"download_workflows" yaml:"download_workflows"`
	RunWorkflows      bool `json:"run_workflows" yaml:"run_workflows"`
	UploadResults     bool `json:"upload_results" yaml:"upload_results"`
	Teardown          bool `json:"teardown" yaml:"teardown"`
	WaitForController bool `json:"wait_for_controller" yaml:"wait_for_controller"`
}

type ContainerResources struct {
	Requests map[string]string `json:"requests,omitempty" yaml:"requests,omitempty"`
	Limits   map[string]string `json:"limits,omitempty" yaml:"limits,omitempty"`
}

type ContainerSpec struct {
	Image     string             `json:"image" yaml:"image"`
	Resources ContainerResources `json:"resources,omitempty" yaml:"resources,omitempty"`
}

type Toleration struct {
	Key      string `json:"key,omitempty" yaml:"key,omitempty"`
	Operator string `json:"operator,omitempty" yaml:"operator,omitempty"`
	Value    string `json:"value,omitempty" yaml:"value,omitempty"`
	Effect   string `json:"effect,omitempty" yaml:"effect,omitempty"`
}

// K8SJobRunner configures the container-job runner's batch workload.
type K8SJobRunner struct {
	Namespace           string            `json:"namespace" yaml:"namespace"`
	SharedMemory        string            `json:"shared_memory" yaml:"shared_memory"`
	NodeSelector        map[string]string `json:"node_selector,omitempty" yaml:"node_selector,omitempty"`
	Tolerations         []Toleration      `json:"tolerations,omitempty" yaml:"tolerations,omitempty"`
	RunnerContainer     ContainerSpec     `json:"runner_container" yaml:"runner_container"`
	ControllerContainer ContainerSpec     `json:"controller_container" yaml:"controller_container"`
}

type Runner struct {
	ID                 string       `json:"id" yaml:"id"`
	Exec               string       `json:"exec" yaml:"exec"`
	Tags               []string     `json:"tags,omitempty" yaml:"tags,omitempty"`
	Type               RunnerType   `json:"type" yaml:"type"`
	Host               RunnerHost   `json:"host" yaml:"host"`
	WorkflowsDir       string       `json:"workflows_dir" yaml:"workflows_dir"`
	ResultsDir         string       `json:"results_dir" yaml:"results_dir"`
	ScheduleResultsDir string       `json:"schedule_results_dir,omitempty" yaml:"schedule_results_dir,omitempty"`
	Enable             PhaseToggles `json:"enable" yaml:"enable"`
}

type Filters struct {
	Tags        []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
	RunnerID    string     `json:"runner_id" yaml:"runner_id"`
	RunnerHost  RunnerHost `json:"runner_host" yaml:"runner_host"`
	WorkspaceID string     `json:"workspace_id,omitempty" yaml:"workspace_id,omitempty"`
}

type Queue struct {
	APIURL          string       `json:"api_url" yaml:"api_url"`
	PollingInterval int          `json:"polling_interval" yaml:"polling_interval"`
	KeepAlive       bool         `json:"keep_alive" yaml:"keep_alive"`
	Credentials     Credentials  `json:"credentials" yaml:"credentials"`
	K8SJobRunner    K8SJobRunner `json:"k8s_job_runner,omitempty" yaml:"k8s_job_runner,omitempty"`
}

// Controller addresses the UI controller the run_workflows phase optionally
// waits for before invoking the test command.
type Controller struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

type Job struct {
	Credentials           Credentials    `json:"credentials" yaml:"credentials"`
	Workflows             []string       `json:"workflows,omitempty" yaml:"workflows,omitempty"`
	ResultsAPIURL         string         `json:"results_api_url" yaml:"results_api_url"`
	WorkflowsAPIURL       string         `json:"workflows_api_url" yaml:"workflows_api_url"`
	InferenceAPIURL       string         `json:"inference_api_url" yaml:"inference_api_url"`
	ScheduleResultsAPIURL string         `json:"schedule_results_api_url,omitempty" yaml:"schedule_results_api_url,omitempty"`
	WorkflowsDir          string         `json:"workflows_dir" yaml:"workflows_dir"`
	ResultsDir            string         `json:"results_dir" yaml:"results_dir"`
	ScheduleResultsDir    string         `json:"schedule_results_dir,omitempty" yaml:"schedule_results_dir,omitempty"`
	ProjectDir            string         `json:"project_dir" yaml:"project_dir"`
	Command               string         `json:"command" yaml:"command"`
	Controller            Controller     `json:"controller,omitempty" yaml:"controller,omitempty"`
	Enable                PhaseToggles   `json:"enable" yaml:"enable"`
	Data                  map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
}

// AgentSync configures the `agent sync` command's files-API endpoint and
// local storage root, grounded on the original's AgentFileSyncConfig
// (modules/agents/config.py).
type AgentSync struct {
	BaseURL             string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	LocalStorageBaseDir string `json:"local_storage_base_dir,omitempty" yaml:"local_storage_base_dir,omitempty"`
}

// Agents configures the `agent sync` command, a standalone entrypoint that
// doesn't go through Entrypoint/Runner/Queue/Job at all (modules/agents/config.py's AgentsConfig).
type Agents struct {
	Credentials Credentials `json:"credentials" yaml:"credentials"`
	Sync        AgentSync   `json:"sync,omitempty" yaml:"sync,omitempty"`
}

// DefaultAgentsFilesBaseURL is used when Agents.Sync.BaseURL is unset.
const DefaultAgentsFilesBaseURL = "https://workspaces.askui.com/api/v1/files/"

// Config is the top-level, user-facing configuration tree (§6 Config schema).
type Config struct {
	Entrypoint Entrypoint `json:"entrypoint" yaml:"entrypoint"`
	Runner     Runner     `json:"runner" yaml:"runner"`
	Queue      *Queue     `json:"queue,omitempty" yaml:"queue,omitempty"`
	Job        *Job       `json:"job,omitempty" yaml:"job,omitempty"`
	JobTimeout int        `json:"job_timeout" yaml:"job_timeout"`
	LogLevel   string     `json:"log_level" yaml:"log_level"`
	Agents     *Agents    `json:"agents,omitempty" yaml:"agents,omitempty"`
}

// Validate asserts the cross-field invariants from spec.md §6:
// entrypoint=QUEUE ⇒ queue != nil; entrypoint=JOB ⇒ job != nil.
func (c Config) Validate() error {
	var errs []string

	switch c.Entrypoint {
	case EntrypointQueue:
		if c.Queue == nil {
			errs = append(errs, "queue must be set when entrypoint is QUEUE")
		}
	case EntrypointJob:
		if c.Job == nil {
			errs = append(errs, "job must be set when entrypoint is JOB")
		}
	default:
		errs = append(errs, fmt.Sprintf("entrypoint %q is not one of QUEUE|JOB", c.Entrypoint))
	}

	if c.JobTimeout <= 0 {
		errs = append(errs, "job_timeout must be greater than 0")
	}

	if len(errs) != 0 {
		return fmt.Errorf("config is invalid: %s", strings.Join(errs, ", "))
	}

	return nil
}

// Load parses source as either a path to a .json/.yaml/.yml file, or, when
// source's first non-whitespace byte is '{', an inline JSON document.
func Load(source string) (Config, error) {
	trimmed := strings.TrimSpace(source)
	if strings.HasPrefix(trimmed, "{") {
		var cfg Config
		if err := json.Unmarshal([]byte(trimmed), &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing inline config: %w", err)
		}
		return cfg, nil
	}

	return LoadFromFile(trimmed)
}

func LoadFromFile(filename string) (Config, error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	switch ext := filepath.Ext(filename); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(bs, &cfg)
	case ".json":
		err = json.Unmarshal(bs, &cfg)
	default:
		return Config{}, fmt.Errorf("file extension %q is not allowed", ext)
	}
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}
