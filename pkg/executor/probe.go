package executor

import (
	"context"
	"net"
	"time"

	"github.com/avast/retry-go/v4"
)

// waitForController blocks until a TCP connection to addr succeeds, retrying
// every 10s (spec.md §4.3 step 3). Grounded on the teacher's
// pkg/kubernetes/istio.go sidecar-readiness gate, adapted from a
// retryablehttp HEAD probe to a raw TCP dial and from hashicorp/go-retryablehttp's
// retry loop to avast/retry-go/v4, which the teacher's go.mod already carries
// as an indirect dependency of its AMQP client.
func waitForController(ctx context.Context, addr string) error {
	return retry.Do(
		func() error {
			conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
			if err != nil {
				return err
			}
			return conn.Close()
		},
		retry.Context(ctx),
		retry.Delay(10*time.Second),
		retry.DelayType(retry.FixedDelay),
		retry.Attempts(360), // ~1h ceiling; ctx cancellation is the real bound
		retry.LastErrorOnly(true),
	)
}
