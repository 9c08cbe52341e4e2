package runner

import (
	"github.com/askui/askui-runner/pkg/config"
	"github.com/askui/askui-runner/pkg/queue"
)

// NewConfigFactory builds the concrete ConfigFactory used by both runner
// implementations: the QUEUE-side config's runner/job sections serve as the
// template, and a leased job's JobData is overlaid on top to produce the
// standalone JOB-entrypoint config handed to the spawned process. Grounded
// on the original's build_runner_config (modules/queue/containers.py),
// which does the same merge through a dependency-injection container.
func NewConfigFactory(base config.Config) ConfigFactory {
	return func(data queue.JobData) config.Config {
		job := config.Job{}
		if base.Job != nil {
			job = *base.Job
		}

		job.Credentials = data.Credentials
		job.Workflows = data.Workflows
		job.WorkflowsAPIURL = data.WorkflowsAPIURL
		job.ResultsAPIURL = data.ResultsAPIURL
		job.InferenceAPIURL = data.InferenceAPIURL
		job.ScheduleResultsAPIURL = data.ScheduleResultsAPIURL
		job.Data = data.Data
		job.WorkflowsDir = base.Runner.WorkflowsDir
		job.ResultsDir = base.Runner.ResultsDir
		job.ScheduleResultsDir = base.Runner.ScheduleResultsDir
		job.Enable = base.Runner.Enable

		return config.Config{
			Entrypoint: config.EntrypointJob,
			Runner: config.Runner{
				ID:   base.Runner.ID,
				Exec: base.Runner.Exec,
				Tags: base.Runner.Tags,
				Type: config.RunnerTypeSubprocess,
				Host: base.Runner.Host,
			},
			Job:        &job,
			JobTimeout: base.JobTimeout,
			LogLevel:   base.LogLevel,
		}
	}
}
