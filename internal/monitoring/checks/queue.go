package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/charlesng35/happycat/internal/monitoring"
)

// Backlog reports the number of pending jobs.
type Backlog interface {
	Pinger
	Len() uint64
}

// Queue probes the on-disk job queue. A backlog above maxPending degrades
// readiness since mail delivery is falling behind.
func Queue(q Backlog, maxPending uint64) monitoring.Check {
	return monitoring.NewCheck("queue", func(ctx context.Context) monitoring.ProbeResult {
		if q == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "queue not configured"}
		}
		start := time.Now()
		if err := q.Ping(ctx); err != nil {
			return monitoring.ResultFromError("queue", err, time.Since(start))
		}
		pending := q.Len()
		if maxPending > 0 && pending > maxPending {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  fmt.Sprintf("%d jobs pending", pending),
				Duration: time.Since(start),
			}
		}
		return monitoring.ProbeResult{Status: monitoring.StatusUp, Duration: time.Since(start)}
	})
}
