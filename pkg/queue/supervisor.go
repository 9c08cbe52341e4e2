package queue

import (
	"time"

	"github.com/go-logr/logr"

	"github.com/askui/askui-runner/pkg/clock"
)

// PingThreshold and RunnerPollInterval are the supervisor's timing
// constants (spec.md §4.1). The poll interval MUST be strictly less than
// the ping threshold, which MUST be strictly less than the lease duration.
const (
	PingThreshold      = 60 * time.Second
	RunnerPollInterval = 10 * time.Second
)

type outcomeKind int

const (
	outcomeCompleted outcomeKind = iota // report pass_/fail, status carried in passed
	outcomeCanceled                     // queue.cancel already sent by monitor
	outcomePingAborted                  // PingError: report nothing, let the lease expire
)

// outcome is the tagged result of one monitor-loop pass, replacing the
// exception-based control flow of the source (spec.md §9 Design Notes):
// no error crosses the loop boundary except through this type.
type outcome struct {
	kind   outcomeKind
	passed bool
	reason error
}

func completedOutcome(passed bool) outcome { return outcome{kind: outcomeCompleted, passed: passed} }

func canceledOutcome() outcome { return outcome{kind: outcomeCanceled} }

func pingAbortedOutcome(reason error) outcome { return outcome{kind: outcomePingAborted, reason: reason} }

// Supervisor is the queue-polling supervisor: the top-level loop that
// leases jobs, dispatches them to a Runner, renews lease visibility, and
// reports terminal status (spec.md §4.1). Dispatches at most one job at a
// time per instance.
type Supervisor struct {
	log    logr.Logger
	cfg    PollingConfig
	queue  Client
	runner Runner
	clock  clock.Clock
	system clock.System

	leasedAt int64
}

func NewSupervisor(log logr.Logger, cfg PollingConfig, q Client, r Runner, c clock.Clock, s clock.System) *Supervisor {
	return &Supervisor{log: log, cfg: cfg, queue: q, runner: r, clock: c, system: s}
}

// Poll runs until the worker is told to exit (keep_alive=false and the
// queue is empty), leasing and supervising at most one job at a time.
func (s *Supervisor) Poll() {
	for {
		s.log.Info("Polling for jobs")
		job, err := s.queue.Lease(s.cfg.Filters)
		if err != nil {
			s.log.Error(err, "Lease call failed, treating as no job")
		}

		if job == nil {
			if !s.cfg.KeepAlive {
				s.system.Exit(0)
				return
			}
			s.clock.Sleep(time.Duration(s.cfg.PollingInterval) * time.Second)
			continue
		}

		s.leasedAt = s.clock.Now()
		s.run(*job)
	}
}

// run starts the runner and drives the monitor loop to completion, then
// reports the terminal status implied by the returned outcome. Exactly
// one of {pass_, fail, cancel} is sent per successfully-started job,
// always after runner.Stop(), except on ping failure (spec.md §8).
func (s *Supervisor) run(job Job) {
	s.log.Info("Starting job", "jobID", job.ID)
	if err := s.runner.Start(job); err != nil {
		s.log.Error(err, "Failed to start runner, failing job", "jobID", job.ID)
		s.queue.Fail(job)
		return
	}

	out := s.monitor(&job)

	switch out.kind {
	case outcomePingAborted:
		s.log.Info("Abandoning job lease after ping failure", "jobID", job.ID, "reason", out.reason)
	case outcomeCanceled:
		s.log.Info("Job canceled by server", "jobID", job.ID)
	case outcomeCompleted:
		if out.passed {
			s.log.Info("Job passed", "jobID", job.ID)
			s.queue.Pass(job)
		} else {
			s.log.Info("Job failed", "jobID", job.ID)
			s.queue.Fail(job)
		}
	}
}

// monitor is the monitor loop (spec.md §4.1 step 4), repeated every
// RunnerPollInterval until the runner stops, the job times out, or a ping
// fails or is canceled server-side.
func (s *Supervisor) monitor(job *Job) outcome {
	for s.runner.IsRunning() {
		if job.ShouldPing(s.clock.Now(), int64(PingThreshold.Seconds())) {
			s.log.Info("Pinging queue to extend lease", "jobID", job.ID)
			cancel, err := s.ping(job)
			if err != nil {
				s.runner.Stop()
				return pingAbortedOutcome(err)
			}
			if cancel {
				s.runner.Stop()
				s.queue.Cancel(*job)
				return canceledOutcome()
			}
		}

		s.clock.Sleep(RunnerPollInterval)

		if s.hasTimedOut() {
			s.log.Info("Job timed out", "jobID", job.ID)
			s.runner.Stop()
			return completedOutcome(false)
		}
	}

	s.runner.Stop()
	return completedOutcome(s.runner.HasPassed())
}

// ping extends the lease. A cancel_job=true response wins over any other
// terminal status observed in the same iteration (spec.md §4.1).
func (s *Supervisor) ping(job *Job) (cancel bool, err error) {
	result, err := s.queue.Ping(*job)
	if err != nil {
		return false, err
	}
	if result.CancelJob {
		return true, nil
	}
	job.Visible = result.Visible
	return false, nil
}

func (s *Supervisor) hasTimedOut() bool {
	return s.clock.Now()-s.leasedAt >= s.cfg.JobTimeoutS
}
