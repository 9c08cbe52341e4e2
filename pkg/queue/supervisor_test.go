package queue

import (
	"errors"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askui/askui-runner/pkg/clock"
)

type fakeRunner struct {
	running  bool
	passed   bool
	failed   bool
	started  []Job
	stops    int
	startErr error
}

func (r *fakeRunner) Start(job Job) error {
	r.started = append(r.started, job)
	if r.startErr != nil {
		return r.startErr
	}
	r.running = true
	return nil
}
func (r *fakeRunner) IsRunning() bool { return r.running }
func (r *fakeRunner) HasPassed() bool { return r.passed }
func (r *fakeRunner) HasFailed() bool { return r.failed }
func (r *fakeRunner) Stop()           { r.stops++; r.running = false }

type fakeQueue struct {
	jobs       []*Job
	leaseIdx   int
	pingResult PingResult
	pingErr    error
	passed     []Job
	failed     []Job
	canceled   []Job
	leaseErr   error
}

func (q *fakeQueue) Lease(Filters) (*Job, error) {
	if q.leaseErr != nil {
		return nil, q.leaseErr
	}
	if q.leaseIdx >= len(q.jobs) {
		return nil, nil
	}
	j := q.jobs[q.leaseIdx]
	q.leaseIdx++
	return j, nil
}
func (q *fakeQueue) Ping(Job) (PingResult, error) { return q.pingResult, q.pingErr }
func (q *fakeQueue) Pass(job Job)                 { q.passed = append(q.passed, job) }
func (q *fakeQueue) Fail(job Job)                 { q.failed = append(q.failed, job) }
func (q *fakeQueue) Cancel(job Job)               { q.canceled = append(q.canceled, job) }

func testJob(visible int64) *Job {
	return &Job{ID: "job-1", Ack: "ack-1", Status: StatusRunning, Visible: visible, RunnerID: "r1", Tries: 1}
}

func TestSupervisorHappyPathNoPing(t *testing.T) {
	fq := &fakeQueue{jobs: []*Job{testJob(300)}}
	fr := &fakeRunner{passed: true}
	fc := clock.NewFake(0)

	// Runner reports "running" for a single monitor tick, then stops on its own.
	wrapped := &stoppingRunner{fakeRunner: fr, stopAfter: 1}
	sup := NewSupervisor(testr.New(t), PollingConfig{JobTimeoutS: 3600, KeepAlive: false}, fq, wrapped, fc, fc)

	sup.Poll()

	assert.Len(t, fq.passed, 1)
	assert.Empty(t, fq.failed)
	assert.Empty(t, fq.canceled)
	exited, code := fc.Exited()
	assert.True(t, exited)
	assert.Equal(t, 0, code)
}

// stoppingRunner reports running=true for stopAfter IsRunning() calls, then false.
type stoppingRunner struct {
	*fakeRunner
	stopAfter int
	calls     int
}

func (r *stoppingRunner) IsRunning() bool {
	r.calls++
	if r.calls > r.stopAfter {
		return false
	}
	return true
}

func TestSupervisorPingsWhenCloseToExpiry(t *testing.T) {
	// visible=70: at t=10 (70-10=60, not <60) no ping; at t=20 (70-20=50<60) ping fires.
	fq := &fakeQueue{
		jobs:       []*Job{testJob(70)},
		pingResult: PingResult{Visible: 300, CancelJob: false},
	}
	wrapped := &stoppingRunner{fakeRunner: &fakeRunner{passed: true}, stopAfter: 3}
	fc := clock.NewFake(0)

	sup := NewSupervisor(testr.New(t), PollingConfig{JobTimeoutS: 3600, KeepAlive: false}, fq, wrapped, fc, fc)
	sup.Poll()

	require.Len(t, fq.passed, 1)
	assert.EqualValues(t, 300, fq.passed[0].Visible) // visible taken from the ping response
}

func TestSupervisorServerCancellation(t *testing.T) {
	fq := &fakeQueue{
		jobs:       []*Job{testJob(65)}, // 65-0=65 not <60; after one 10s sleep: 65-10=55<60 -> ping
		pingResult: PingResult{CancelJob: true},
	}
	fr := &fakeRunner{running: true}
	fc := clock.NewFake(0)

	sup := NewSupervisor(testr.New(t), PollingConfig{JobTimeoutS: 3600, KeepAlive: false}, fq, fr, fc, fc)
	sup.Poll()

	assert.Len(t, fq.canceled, 1)
	assert.Empty(t, fq.passed)
	assert.Empty(t, fq.failed)
	assert.Equal(t, 1, fr.stops)
}

func TestSupervisorLocalTimeout(t *testing.T) {
	fq := &fakeQueue{jobs: []*Job{testJob(3600)}}
	fr := &fakeRunner{running: true} // never stops on its own
	fc := clock.NewFake(0)

	sup := NewSupervisor(testr.New(t), PollingConfig{JobTimeoutS: 15, KeepAlive: false}, fq, fr, fc, fc)
	sup.Poll()

	assert.Len(t, fq.failed, 1)
	assert.Empty(t, fq.passed)
	assert.Equal(t, 1, fr.stops)
}

func TestSupervisorPingTransportFailureAbandonsLease(t *testing.T) {
	fq := &fakeQueue{
		jobs:    []*Job{testJob(65)},
		pingErr: errors.New("connection reset"),
	}
	fr := &fakeRunner{running: true}
	fc := clock.NewFake(0)

	sup := NewSupervisor(testr.New(t), PollingConfig{JobTimeoutS: 3600, KeepAlive: false}, fq, fr, fc, fc)
	sup.Poll()

	assert.Empty(t, fq.passed)
	assert.Empty(t, fq.failed)
	assert.Empty(t, fq.canceled)
	assert.Equal(t, 1, fr.stops)
}

func TestSupervisorExitsWhenQueueEmptyAndKeepAliveFalse(t *testing.T) {
	fq := &fakeQueue{}
	fr := &fakeRunner{}
	fc := clock.NewFake(0)

	sup := NewSupervisor(testr.New(t), PollingConfig{KeepAlive: false}, fq, fr, fc, fc)
	sup.Poll()

	exited, code := fc.Exited()
	assert.True(t, exited)
	assert.Equal(t, 0, code)
}

// countingExitQueue returns no job for a fixed number of leases, then
// forces the test to observe the sleep interval via the fake clock before
// the goroutine is abandoned (keep_alive=true never returns from Poll).
type countingExitQueue struct {
	fakeQueue
	emptyLeases int
	leased      int
}

func (q *countingExitQueue) Lease(f Filters) (*Job, error) {
	if q.leased < q.emptyLeases {
		q.leased++
		return nil, nil
	}
	return q.fakeQueue.Lease(f)
}

func TestSupervisorSleepsWhenQueueEmptyAndKeepAliveTrue(t *testing.T) {
	fq := &countingExitQueue{emptyLeases: 1000000}
	fr := &fakeRunner{}
	fc := clock.NewFake(0)

	sup := NewSupervisor(testr.New(t), PollingConfig{KeepAlive: true, PollingInterval: 5}, fq, fr, fc, fc)

	done := make(chan struct{})
	go func() {
		sup.Poll()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Poll returned unexpectedly; keep_alive=true should loop forever absent system.Exit")
	case <-time.After(20 * time.Millisecond):
	}

	require.Contains(t, fc.Sleeps(), 5*time.Second)
}
