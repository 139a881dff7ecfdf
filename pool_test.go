package exq

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueuePoolProcessesEnqueuedJob(t *testing.T) {
	pool := newTestPool(":6379")
	ns := "exqtest"
	cleanKeyspace(ns, pool)

	client := NewClient(ns, pool)
	stats := NewStats(ns, pool)
	registry := NewRegistry()

	var mu sync.Mutex
	var seen []string
	done := make(chan struct{}, 1)
	registry.Register("Greet", func(job *Job) error {
		mu.Lock()
		seen = append(seen, job.Jid)
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	jid, err := client.Enqueue("default", "Greet", nil, EnqueueOptions{})
	require.NoError(t, err)

	qp := NewQueuePool("host1", QueueConfig{Name: "default", Concurrency: 2}, client, stats, registry, 5*time.Millisecond, 25)
	qp.Start()
	defer qp.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job to run")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, jid)
	assert.EqualValues(t, 0, listSize(pool, redisKeyBackup(ns, "host1", "default")))
}

func TestQueuePoolRetriesOnHandlerError(t *testing.T) {
	pool := newTestPool(":6379")
	ns := "exqtest"
	cleanKeyspace(ns, pool)

	client := NewClient(ns, pool)
	stats := NewStats(ns, pool)
	registry := NewRegistry()

	done := make(chan struct{}, 1)
	registry.Register("Flaky", func(job *Job) error {
		done <- struct{}{}
		return errors.New("boom")
	})

	_, err := client.Enqueue("default", "Flaky", nil, EnqueueOptions{Retry: RetryBudget{Enabled: true, Max: 3}})
	require.NoError(t, err)

	qp := NewQueuePool("host1", QueueConfig{Name: "default", Concurrency: 1}, client, stats, registry, 5*time.Millisecond, 25)
	qp.Start()
	defer qp.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handler invocation")
	}

	require.Eventually(t, func() bool {
		return zsetSize(pool, redisKeyRetry(ns)) == 1
	}, time.Second, 10*time.Millisecond)

	// RetryOrFailJob re-encodes the job (bumping retry_count/error fields)
	// before the backup entry is removed; removal must still match the
	// original dequeued bytes or this would leak a stale backup entry.
	assert.EqualValues(t, 0, listSize(pool, redisKeyBackup(ns, "host1", "default")))
}

func TestQueuePoolUnknownClassGoesToRetry(t *testing.T) {
	pool := newTestPool(":6379")
	ns := "exqtest"
	cleanKeyspace(ns, pool)

	client := NewClient(ns, pool)
	stats := NewStats(ns, pool)
	registry := NewRegistry()

	_, err := client.Enqueue("default", "NoSuchHandler", nil, EnqueueOptions{Retry: RetryBudget{Enabled: true, Max: 1}})
	require.NoError(t, err)

	qp := NewQueuePool("host1", QueueConfig{Name: "default", Concurrency: 1}, client, stats, registry, 5*time.Millisecond, 25)
	qp.Start()
	defer qp.Stop()

	// WorkerNotFound is an ordinary job failure: with a budget of one retry,
	// the first failure (retry_count 1) is scheduled for retry, not killed.
	require.Eventually(t, func() bool {
		return zsetSize(pool, redisKeyRetry(ns)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 0, listSize(pool, redisKeyBackup(ns, "host1", "default")))
}

func TestQueuePoolRespectsPause(t *testing.T) {
	pool := newTestPool(":6379")
	ns := "exqtest"
	cleanKeyspace(ns, pool)

	client := NewClient(ns, pool)
	stats := NewStats(ns, pool)
	registry := NewRegistry()

	ran := make(chan struct{}, 1)
	registry.Register("Greet", func(job *Job) error {
		ran <- struct{}{}
		return nil
	})

	require.NoError(t, client.PauseQueue("default"))
	_, err := client.Enqueue("default", "Greet", nil, EnqueueOptions{})
	require.NoError(t, err)

	qp := NewQueuePool("host1", QueueConfig{Name: "default", Concurrency: 1}, client, stats, registry, 5*time.Millisecond, 25)
	qp.Start()
	defer qp.Stop()

	select {
	case <-ran:
		t.Fatal("handler ran on a paused queue")
	case <-time.After(100 * time.Millisecond):
	}
}
