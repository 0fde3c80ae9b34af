package orchestrator

import (
	"context"
	"time"

	"hifibridge/internal/bus"
	"hifibridge/pkg/logging"
)

// RunHealthTicker publishes a HealthCheck every interval until ctx is done.
func (c *Coordinator) RunHealthTicker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		logging.Debug("Coordinator", "Health ticker disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.bus.Publish(bus.HealthCheck{Timestamp: now.UTC()})
		}
	}
}
