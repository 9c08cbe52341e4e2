// Package subprocess implements the SUBPROCESS runner type: the leased job
// is handed to a new local process of the configured runner executable,
// driven to completion entirely through its exit code (spec.md §4.2.1).
package subprocess

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-logr/logr"

	"github.com/askui/askui-runner/pkg/queue"
	"github.com/askui/askui-runner/pkg/runner"
)

// stopTimeout is how long Stop waits for a polite termination before
// force-killing the process (spec.md §4.2.1). A var, not a const, so tests
// can shrink it rather than waiting out the real 30s.
var stopTimeout = 30 * time.Second

// Runner shells out to the configured exec, passing the per-job config as a
// --config file argument, and tracks liveness through the process's exit
// code. Grounded on the original's SubprocessRunner
// (modules/queue/infrastructure/runner/subprocess.py). Not safe for
// concurrent Start calls; the supervisor only ever drives one job at a time.
type Runner struct {
	log     logr.Logger
	exec    string
	factory runner.ConfigFactory

	mu         sync.Mutex
	cmd        *exec.Cmd
	configFile string
	done       chan struct{}
	waitErr    error
}

func New(log logr.Logger, execCmd string, factory runner.ConfigFactory) *Runner {
	return &Runner{log: log, exec: execCmd, factory: factory}
}

// Start writes the job's derived config to a private temp file and spawns
// `exec --config <file>`. The config file is written 0600 and removed by
// Stop; a process that exits on its own leaves it in place until Stop runs.
func (r *Runner) Start(job queue.Job) error {
	cfg := r.factory(job.Data)

	bs, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding runner config: %w", err)
	}

	f, err := os.CreateTemp("", "askui-runner-config-*.json")
	if err != nil {
		return fmt.Errorf("creating runner config file: %w", err)
	}
	if err := f.Chmod(0o600); err != nil {
		f.Close()
		return fmt.Errorf("securing runner config file: %w", err)
	}
	if _, err := f.Write(bs); err != nil {
		f.Close()
		return fmt.Errorf("writing runner config file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing runner config file: %w", err)
	}

	args := strings.Fields(r.exec)
	if len(args) == 0 {
		return fmt.Errorf("runner exec is empty")
	}
	args = append(args, "--config", f.Name())

	cmd := exec.Command(args[0], args[1:]...) //nolint:gosec // exec is operator-configured, not job data
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("starting runner process: %w", err)
	}

	r.mu.Lock()
	r.cmd = cmd
	r.configFile = f.Name()
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	go func() {
		err := cmd.Wait()
		r.mu.Lock()
		r.waitErr = err
		r.mu.Unlock()
		close(done)
	}()

	return nil
}

// IsRunning reports whether the started process has not yet been reaped.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// HasPassed reports whether the process exited with status 0.
func (r *Runner) HasPassed() bool {
	if r.IsRunning() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cmd != nil && r.waitErr == nil
}

// HasFailed reports whether the process exited with a nonzero status.
func (r *Runner) HasFailed() bool {
	if r.IsRunning() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cmd != nil && r.waitErr != nil
}

// Stop sends SIGTERM and waits up to stopTimeout for the process to exit,
// force-killing it afterward, then removes the job's config file.
func (r *Runner) Stop() {
	r.mu.Lock()
	cmd := r.cmd
	done := r.done
	configFile := r.configFile
	r.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		r.log.Error(err, "Failed to send termination signal, killing runner process")
		_ = cmd.Process.Kill()
	} else {
		select {
		case <-done:
		case <-time.After(stopTimeout):
			r.log.Info("Runner process did not exit in time, killing")
			_ = cmd.Process.Kill()
			<-done
		}
	}

	if configFile != "" {
		os.Remove(configFile)
	}
}
