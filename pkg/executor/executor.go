// Package executor runs the child-side phase pipeline for a single job:
// setup, download_workflows, run_workflows, upload_results, teardown
// (spec.md §4.3). It is the JOB entrypoint's top-level service, grounded on
// the original's domain Runner and AskUiJestRunnerService
// (modules/core/domain/services.py, modules/core/infrastructure/runner/askui.py).
package executor

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/go-logr/logr"

	"github.com/askui/askui-runner/pkg/config"
)

// Result is the outcome of the run_workflows phase, carried through to the
// process exit code so the supervisor's runner implementations can observe
// it without parsing output (spec.md §4.2.1, §4.2.2).
type Result int

const (
	ResultPassed Result = iota
	ResultFailed
)

func (r Result) ExitCode() int {
	if r == ResultPassed {
		return 0
	}
	return 1
}

// WorkflowsDownloader pulls the job's configured workflow prefixes into the
// local workflows directory. Implemented by the file-sync engine.
type WorkflowsDownloader interface {
	Download(ctx context.Context) error
}

// ResultsUploader pushes the local results directory to the remote API.
// Implemented by the file-sync engine's chain uploader.
type ResultsUploader interface {
	Upload(ctx context.Context) error
}

// Executor runs the phase pipeline for one job, honoring cfg.Enable's
// feature toggles. Not reused across jobs: a fresh process is spawned per
// job by both runner implementations, so Executor carries no job-to-job state.
type Executor struct {
	log        logr.Logger
	cfg        config.Job
	downloader WorkflowsDownloader
	uploader   ResultsUploader
}

func New(log logr.Logger, cfg config.Job, downloader WorkflowsDownloader, uploader ResultsUploader) *Executor {
	return &Executor{log: log, cfg: cfg, downloader: downloader, uploader: uploader}
}

// Run drives the pipeline to completion inside a scoped, auto-deleted
// workspace directory and returns the run_workflows outcome. A disabled
// run_workflows phase returns ResultPassed, matching the original's default.
func (e *Executor) Run(ctx context.Context) Result {
	workspace, cleanup, err := newScopedWorkspace()
	if err != nil {
		e.log.Error(err, "Failed to create job workspace")
		return ResultFailed
	}
	defer cleanup()

	if e.cfg.Enable.Setup {
		e.log.Info("Running setup phase")
		if err := e.setup(workspace); err != nil {
			e.log.Error(err, "Setup phase failed")
			return ResultFailed
		}
	}

	if e.cfg.Enable.DownloadWorkflows {
		e.log.Info("Running download_workflows phase")
		if err := e.downloader.Download(ctx); err != nil {
			e.log.Error(err, "download_workflows phase failed")
			return ResultFailed
		}
	}

	result := ResultPassed
	if e.cfg.Enable.RunWorkflows {
		e.log.Info("Running run_workflows phase")
		result = e.runWorkflows(ctx, workspace)
	}

	if e.cfg.Enable.UploadResults {
		e.log.Info("Running upload_results phase")
		if err := e.uploader.Upload(ctx); err != nil {
			e.log.Error(err, "upload_results phase failed")
		}
	}

	if e.cfg.Enable.Teardown {
		e.log.Info("Running teardown phase")
	}

	return result
}

// runWorkflows optionally gates on the UI controller's readiness, then
// invokes the configured test command through a shell and maps its exit
// code to a Result (spec.md §4.3 step 3).
func (e *Executor) runWorkflows(ctx context.Context, workspace string) Result {
	if e.cfg.Enable.WaitForController {
		addr := fmt.Sprintf("%s:%d", e.cfg.Controller.Host, e.cfg.Controller.Port)
		e.log.Info("Waiting for UI controller", "addr", addr)
		if err := waitForController(ctx, addr); err != nil {
			e.log.Error(err, "UI controller never became reachable")
			return ResultFailed
		}
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", e.cfg.Command) //nolint:gosec // operator-configured command
	cmd.Dir = workspace
	cmd.Stdout = logWriter{log: e.log}
	cmd.Stderr = logWriter{log: e.log}

	if err := cmd.Run(); err != nil {
		e.log.Error(err, "Test command failed", "command", e.cfg.Command)
		return ResultFailed
	}
	return ResultPassed
}
