// Package metrics reports queue depth and latency into gocraft/health on
// an interval, for a process to wire into its own health.Stream sinks
// (statsd, logs, whatever). Grounded on the teacher's health/queue.go
// QueueReporter, retargeted from work.Client.Queues() to exq.Inspect.Queues().
package metrics

import (
	"fmt"
	"time"

	"github.com/gocraft/health"

	"github.com/wallester/exq"
)

// QueueReporter periodically gauges every known queue's depth and
// latency via a *health.Job, the same Run/Gauge/Timing shape the
// teacher's QueueReporter used.
type QueueReporter struct {
	closed chan struct{}
}

// NewQueueReporter starts reporting immediately and returns a handle
// whose Close stops it.
func NewQueueReporter(inspect *exq.Inspect, job *health.Job, interval time.Duration) *QueueReporter {
	ch := make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ch:
				return
			case <-ticker.C:
				job.Run(func() error {
					queues, err := inspect.Queues()
					if err != nil {
						return err
					}
					for _, q := range queues {
						job.Gauge(fmt.Sprintf("exq_queue.%s.queue_count", q.Name), float64(q.Size))
						job.Timing(fmt.Sprintf("exq_queue.%s.latency", q.Name), int64(q.LatencySeconds*1e9))
					}
					return nil
				})
			}
		}
	}()

	return &QueueReporter{closed: ch}
}

// Close stops the reporting goroutine.
func (r *QueueReporter) Close() error {
	close(r.closed)
	return nil
}
