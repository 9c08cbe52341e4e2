package queue

// Runner is polymorphic over "how a job is executed" — subprocess or
// managed container workload (spec.md §4.2). The probes are pure queries;
// they must be safe to call repeatedly and between Start and Stop.
type Runner interface {
	Start(job Job) error
	IsRunning() bool
	HasPassed() bool
	HasFailed() bool
	Stop()
}
