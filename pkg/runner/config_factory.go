// Package runner holds the pieces shared by the runner implementations
// (subprocess, container-job): the function type that turns a leased job's
// data into the JOB-entrypoint config handed to the spawned process.
package runner

import (
	"github.com/askui/askui-runner/pkg/config"
	"github.com/askui/askui-runner/pkg/queue"
)

// ConfigFactory derives the standalone JOB-entrypoint config for a leased
// job, grounded on the original's RunnerConfigFactory protocol
// (modules/queue/infrastructure/runner/shared.py): the supervisor never
// builds this config itself, it only asks a factory for one per job.
type ConfigFactory func(data queue.JobData) config.Config
