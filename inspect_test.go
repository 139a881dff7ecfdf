package exq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspectQueuesReportsSizeAndLatency(t *testing.T) {
	pool := newTestPool(":6379")
	ns := "exqtest"
	cleanKeyspace(ns, pool)
	client := NewClient(ns, pool)
	inspect := NewInspect(ns, pool)

	_, err := client.Enqueue("default", "Job", nil, EnqueueOptions{})
	require.NoError(t, err)

	queues, err := inspect.Queues()
	require.NoError(t, err)
	require.Len(t, queues, 1)
	assert.Equal(t, "default", queues[0].Name)
	assert.Equal(t, 1, queues[0].Size)
	assert.GreaterOrEqual(t, queues[0].LatencySeconds, 0.0)
	assert.NotEmpty(t, queues[0].Latency)
	assert.False(t, queues[0].Paused)
}

func TestInspectQueuesReportsPaused(t *testing.T) {
	pool := newTestPool(":6379")
	ns := "exqtest"
	cleanKeyspace(ns, pool)
	client := NewClient(ns, pool)
	inspect := NewInspect(ns, pool)

	_, err := client.Enqueue("default", "Job", nil, EnqueueOptions{})
	require.NoError(t, err)
	require.NoError(t, client.PauseQueue("default"))

	queues, err := inspect.Queues()
	require.NoError(t, err)
	require.Len(t, queues, 1)
	assert.True(t, queues[0].Paused)
}

func TestInspectScheduledAndRetryJobs(t *testing.T) {
	pool := newTestPool(":6379")
	ns := "exqtest"
	cleanKeyspace(ns, pool)
	client := NewClient(ns, pool)
	inspect := NewInspect(ns, pool)

	_, err := client.EnqueueIn("default", 3600, "Job", nil)
	require.NoError(t, err)

	scheduled, err := inspect.ScheduledJobs()
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	assert.Equal(t, "Job", scheduled[0].Class)

	retries, err := inspect.RetryJobs()
	require.NoError(t, err)
	assert.Empty(t, retries)
}

func TestInspectDeadJobsAndFindByJid(t *testing.T) {
	pool := newTestPool(":6379")
	ns := "exqtest"
	cleanKeyspace(ns, pool)
	client := NewClient(ns, pool)
	inspect := NewInspect(ns, pool)

	job := &Job{Jid: generateJid(), Class: "Job", Queue: "default", Retry: RetryBudget{Enabled: false}}
	require.NoError(t, client.RetryOrFailJob(job, assertErr, 25))

	dead, err := inspect.DeadJobs()
	require.NoError(t, err)
	require.Len(t, dead, 1)

	found, err := inspect.FindFailedByJid(job.Jid)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, job.Jid, found.Jid)

	missing, err := inspect.FindFailedByJid("nonexistent")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestInspectProcessedAndFailedCounters(t *testing.T) {
	pool := newTestPool(":6379")
	ns := "exqtest"
	cleanKeyspace(ns, pool)
	stats := NewStats(ns, pool)
	inspect := NewInspect(ns, pool)

	stats.IncrementProcessed("default")
	stats.IncrementFailed("default")
	stats.IncrementFailed("default")

	processed, err := inspect.ProcessedCount()
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	failed, err := inspect.FailedCount()
	require.NoError(t, err)
	assert.Equal(t, 2, failed)
}

func TestInspectWorkerPools(t *testing.T) {
	pool := newTestPool(":6379")
	ns := "exqtest"
	cleanKeyspace(ns, pool)
	inspect := NewInspect(ns, pool)

	hb := newPoolHeartbeat(ns, pool, "worker-1", []QueueConfig{{Name: "default", Concurrency: 3}}, 5)
	hb.startedAt = nowEpochSeconds()
	hb.heartbeat()
	defer hb.removeHeartbeat()

	pools, err := inspect.WorkerPools()
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, "worker-1", pools[0].WorkerID)
	assert.Equal(t, "default", pools[0].QueueNames)
	assert.Equal(t, 3, pools[0].Concurrency)
}

func TestDebugMapRendersProcessInfo(t *testing.T) {
	info := ProcessInfo{Queue: "default", Host: "myhost", Pid: 123}
	m := DebugMap(info)
	assert.Equal(t, "default", m["Queue"])
	assert.Equal(t, "myhost", m["Host"])
}
