package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/askui/askui-runner/pkg/clock"
	"github.com/askui/askui-runner/pkg/config"
	"github.com/askui/askui-runner/pkg/executor"
	"github.com/askui/askui-runner/pkg/filesync"
	"github.com/askui/askui-runner/pkg/kubernetes"
	"github.com/askui/askui-runner/pkg/logger"
	"github.com/askui/askui-runner/pkg/queue"
	"github.com/askui/askui-runner/pkg/runner"
	"github.com/askui/askui-runner/pkg/runner/containerjob"
	"github.com/askui/askui-runner/pkg/runner/subprocess"
)

// hiddenWorkflowFilePattern excludes the internal `.askui` bookkeeping
// directory from what gets downloaded into a workflows tree (spec.md §4.4).
const hiddenWorkflowFilePattern = `^workspaces/[^/]+/test-cases/\.askui/.+$`

func newStartCommand(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run in the mode selected by the config's entrypoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log, err := logger.New(logger.Config{Level: cfg.LogLevel})
			if err != nil {
				return fmt.Errorf("building logger: %w", err)
			}

			switch cfg.Entrypoint {
			case config.EntrypointQueue:
				return runQueue(log, cfg)
			case config.EntrypointJob:
				os.Exit(runJob(cmd.Context(), log, cfg).ExitCode())
				return nil
			default:
				return fmt.Errorf("entrypoint %q is not one of QUEUE|JOB", cfg.Entrypoint)
			}
		},
	}
}

// runQueue builds the queue client, the configured Runner, and the
// supervisor, then polls until told to exit (spec.md §4.1).
func runQueue(log logr.Logger, cfg config.Config) error {
	if cfg.Queue == nil {
		return fmt.Errorf("queue config is required when entrypoint is QUEUE")
	}

	queueClient := queue.NewHTTPClient(log, cfg.Queue.APIURL, cfg.Queue.Credentials.AuthHeader())
	factory := runner.NewConfigFactory(cfg)

	r, err := buildRunner(log, cfg, factory)
	if err != nil {
		return err
	}

	pollingCfg := queue.PollingConfig{
		Filters: queue.Filters{
			Tags:        cfg.Runner.Tags,
			RunnerID:    cfg.Runner.ID,
			RunnerHost:  cfg.Runner.Host,
			WorkspaceID: cfg.Queue.Credentials.WorkspaceID,
		},
		JobTimeoutS:     int64(cfg.JobTimeout),
		KeepAlive:       cfg.Queue.KeepAlive,
		PollingInterval: int64(cfg.Queue.PollingInterval),
	}

	supervisor := queue.NewSupervisor(log, pollingCfg, queueClient, r, clock.Real(), clock.RealSystem())
	supervisor.Poll()
	return nil
}

func buildRunner(log logr.Logger, cfg config.Config, factory runner.ConfigFactory) (queue.Runner, error) {
	switch cfg.Runner.Type {
	case config.RunnerTypeSubprocess:
		return subprocess.New(log, cfg.Runner.Exec, factory), nil
	case config.RunnerTypeK8SJob:
		clientset, err := kubernetes.Clientset(nil)
		if err != nil {
			return nil, fmt.Errorf("building kubernetes clientset: %w", err)
		}
		return containerjob.New(log, cfg.Queue.K8SJobRunner, factory, clientset), nil
	default:
		return nil, fmt.Errorf("runner type %q is not one of SUBPROCESS|K8S_JOB", cfg.Runner.Type)
	}
}

// runJob drives the JOB entrypoint's phase pipeline for the single job
// described by cfg.Job (spec.md §4.3).
func runJob(ctx context.Context, log logr.Logger, cfg config.Config) executor.Result {
	if cfg.Job == nil {
		log.Error(fmt.Errorf("job config is required when entrypoint is JOB"), "Invalid config")
		return executor.ResultFailed
	}
	job := *cfg.Job

	workflowsClient, err := filesync.New(log, job.WorkflowsAPIURL, job.Credentials.AuthHeader(), []string{hiddenWorkflowFilePattern})
	if err != nil {
		log.Error(err, "Failed to build workflows file-sync client")
		return executor.ResultFailed
	}
	resultsClient, err := filesync.New(log, job.ResultsAPIURL, job.Credentials.AuthHeader(), nil)
	if err != nil {
		log.Error(err, "Failed to build results file-sync client")
		return executor.ResultFailed
	}

	links := []filesync.UploadLink{
		{Client: resultsClient, LocalDir: job.ResultsDir, RemoteDir: remoteResultsDir(job)},
	}
	if job.ScheduleResultsAPIURL != "" {
		scheduleResultsClient, err := filesync.New(log, job.ScheduleResultsAPIURL, job.Credentials.AuthHeader(), nil)
		if err != nil {
			log.Error(err, "Failed to build schedule-results file-sync client")
			return executor.ResultFailed
		}
		links = append(links, filesync.UploadLink{
			Client: scheduleResultsClient, LocalDir: job.ScheduleResultsDir, RemoteDir: remoteScheduleResultsDir(job),
		})
	}

	downloader := filesync.NewWorkflowsDownloader(log, workflowsClient, job.WorkflowsDir, job.Workflows)
	uploader := filesync.NewChainUploader(log, links...)

	e := executor.New(log, job, downloader, uploader)
	return e.Run(ctx)
}

// remoteResultsDir derives the remote prefix results are uploaded under
// from the job's workspace, mirroring the workflows prefix shape
// (`workspaces/{id}/...`) used throughout the files API.
func remoteResultsDir(job config.Job) string {
	return fmt.Sprintf("workspaces/%s/results", job.Credentials.WorkspaceID)
}

// remoteScheduleResultsDir is the schedule-results link's remote prefix,
// a sibling of remoteResultsDir under the same workspace (spec.md §4.3
// step 4's second upload link).
func remoteScheduleResultsDir(job config.Job) string {
	return fmt.Sprintf("workspaces/%s/schedule-results", job.Credentials.WorkspaceID)
}
