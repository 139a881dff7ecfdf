package exq

import (
	"time"

	"github.com/gomodule/redigo/redis"
)

// Enqueuer is C8: a producer-only handle requiring no worker pools,
// scheduler, or handler registry -- grounded on the teacher's enqueue.go
// (a bare Namespace+*redis.Pool wrapper exposing one Enqueue method),
// generalized to the Client's richer argument/options and scheduled-job
// operations.
type Enqueuer struct {
	client *Client
}

// NewEnqueuer builds a standalone Enqueuer sharing namespace and pool with
// any Manager using the same Redis database, the same way the teacher's
// NewEnqueuer(namespace, pool) could be constructed independently of a
// WorkerPool.
func NewEnqueuer(namespace string, pool *redis.Pool) *Enqueuer {
	return &Enqueuer{client: NewClient(namespace, pool)}
}

// Enqueue pushes a job onto queue for immediate processing.
func (e *Enqueuer) Enqueue(queue, class string, args []interface{}) (string, error) {
	return e.client.Enqueue(queue, class, args, EnqueueOptions{Retry: defaultRetryBudget()})
}

// EnqueueWithOptions pushes a job with an explicit retry budget. A zero
// RetryBudget, which is also the disabled form, is replaced by the default
// budget, so retry cannot be turned off through this call.
func (e *Enqueuer) EnqueueWithOptions(queue, class string, args []interface{}, opts EnqueueOptions) (string, error) {
	return e.client.Enqueue(queue, class, args, opts)
}

// EnqueueIn schedules a job to become ready after the given delay.
func (e *Enqueuer) EnqueueIn(queue string, in time.Duration, class string, args []interface{}) (string, error) {
	return e.client.EnqueueIn(queue, in, class, args)
}

// EnqueueAt schedules a job to become ready at a specific time.
func (e *Enqueuer) EnqueueAt(queue string, at time.Time, class string, args []interface{}) (string, error) {
	return e.client.EnqueueAt(queue, at, class, args)
}
