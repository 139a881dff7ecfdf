package exq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaperRecoversStaleWorkerBackup(t *testing.T) {
	pool := newTestPool(":6379")
	ns := "exqtest"
	cleanKeyspace(ns, pool)
	client := NewClient(ns, pool)

	// simulate a worker that crashed mid-job: a job parked in its backup
	// list, and a heartbeat recorded far enough in the past to be stale.
	_, err := client.Enqueue("default", "Job", nil, EnqueueOptions{})
	require.NoError(t, err)
	_, err = client.Dequeue("deadhost", []string{"default"})
	require.NoError(t, err)
	require.EqualValues(t, 1, listSize(pool, redisKeyBackup(ns, "deadhost", "default")))

	hb := newPoolHeartbeat(ns, pool, "dead-worker", []QueueConfig{{Name: "default", Concurrency: 1}}, 1)
	hb.hostname = "deadhost"
	hb.startedAt = nowEpochSeconds()
	setNowEpochSecondsMock(nowEpochSeconds() - 3600)
	hb.heartbeat()
	resetNowEpochSecondsMock()

	r := newReaper(ns, pool, client, 1*time.Second)
	require.NoError(t, r.reap())

	assert.EqualValues(t, 0, listSize(pool, redisKeyBackup(ns, "deadhost", "default")))
	assert.EqualValues(t, 1, listSize(pool, redisKeyQueue(ns, "default")))
	assert.EqualValues(t, 0, zsetSize(pool, redisKeyWorkers(ns)))
}

func TestReaperLeavesFreshWorkerAlone(t *testing.T) {
	pool := newTestPool(":6379")
	ns := "exqtest"
	cleanKeyspace(ns, pool)
	client := NewClient(ns, pool)

	_, err := client.Enqueue("default", "Job", nil, EnqueueOptions{})
	require.NoError(t, err)
	_, err = client.Dequeue("livehost", []string{"default"})
	require.NoError(t, err)

	hb := newPoolHeartbeat(ns, pool, "live-worker", []QueueConfig{{Name: "default", Concurrency: 1}}, 1)
	hb.startedAt = nowEpochSeconds()
	hb.heartbeat()

	r := newReaper(ns, pool, client, 1*time.Hour)
	require.NoError(t, r.reap())

	assert.EqualValues(t, 1, listSize(pool, redisKeyBackup(ns, "livehost", "default")))
	assert.EqualValues(t, 1, zsetSize(pool, redisKeyWorkers(ns)))
}

func TestReaperLockPreventsConcurrentSweep(t *testing.T) {
	pool := newTestPool(":6379")
	ns := "exqtest"
	cleanKeyspace(ns, pool)
	client := NewClient(ns, pool)

	r := newReaper(ns, pool, client, 1*time.Minute)
	value, err := genLockValue()
	require.NoError(t, err)

	acquired, err := r.acquireLock(value)
	require.NoError(t, err)
	assert.True(t, acquired)

	other, err := genLockValue()
	require.NoError(t, err)
	acquired, err = r.acquireLock(other)
	require.NoError(t, err)
	assert.False(t, acquired)

	require.NoError(t, r.releaseLock(value))
}
