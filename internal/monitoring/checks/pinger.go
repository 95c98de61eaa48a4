package checks

import (
	"context"
	"time"

	"github.com/charlesng35/happycat/internal/monitoring"
)

// Pinger is anything that can prove it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Redis probes the shared cache. The memory and database cache drivers have
// nothing to probe and report up.
func Redis(client Pinger, timeout time.Duration) monitoring.Check {
	return ping("redis", client, timeout, "redis not in use")
}

func ping(name string, client Pinger, timeout time.Duration, disabled string) monitoring.Check {
	return monitoring.NewCheck(name, func(ctx context.Context) monitoring.ProbeResult {
		if client == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: disabled}
		}
		start := time.Now()
		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout))
		defer cancel()
		return monitoring.ResultFromError(name, client.Ping(probeCtx), time.Since(start))
	})
}
