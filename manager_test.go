package exq

import (
	"testing"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerStartRecoversBackupBeforeSubscribing(t *testing.T) {
	pool := newTestPool(":6379")
	ns := "exqtest"
	cleanKeyspace(ns, pool)

	client := NewClient(ns, pool)
	// simulate a crash: a job sitting in this host's backup list from a
	// previous run that never acked it.
	_, err := client.Enqueue("default", "Job", nil, EnqueueOptions{})
	require.NoError(t, err)
	_, err = client.Dequeue("myhost", []string{"default"})
	require.NoError(t, err)
	require.EqualValues(t, 1, listSize(pool, redisKeyBackup(ns, "myhost", "default")))

	registry := NewRegistry()
	done := make(chan struct{}, 1)
	registry.Register("Job", func(job *Job) error {
		done <- struct{}{}
		return nil
	})

	cfg := Config{
		Namespace: ns,
		Host:      "myhost",
		Queues:    []QueueConfig{{Name: "default", Concurrency: 1}},
		PollInterval: 5 * time.Millisecond,
	}
	mgr := NewManager(cfg, pool, registry)
	require.NoError(t, mgr.Start())
	defer mgr.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("boot recovery did not re-enqueue the backed up job")
	}
}

func TestManagerSubscribeUnsubscribe(t *testing.T) {
	pool := newTestPool(":6379")
	ns := "exqtest"
	cleanKeyspace(ns, pool)

	registry := NewRegistry()
	cfg := Config{Namespace: ns, Host: "myhost", PollInterval: 5 * time.Millisecond}
	mgr := NewManager(cfg, pool, registry)
	require.NoError(t, mgr.Start())
	defer mgr.Stop()

	require.NoError(t, mgr.Subscribe(QueueConfig{Name: "extra", Concurrency: 1}))
	// subscribing twice is a no-op, not an error
	require.NoError(t, mgr.Subscribe(QueueConfig{Name: "extra", Concurrency: 1}))

	mgr.Unsubscribe("extra")
	// unsubscribing an unknown queue is a no-op
	mgr.Unsubscribe("nonexistent")
}

func TestManagerStartAndStopHeartbeat(t *testing.T) {
	pool := newTestPool(":6379")
	ns := "exqtest"
	cleanKeyspace(ns, pool)

	registry := NewRegistry()
	cfg := Config{Namespace: ns, Host: "myhost", PollInterval: 5 * time.Millisecond}
	mgr := NewManager(cfg, pool, registry)
	require.NoError(t, mgr.Start())

	require.Eventually(t, func() bool {
		return zsetSize(pool, redisKeyWorkers(ns)) == 1
	}, time.Second, 10*time.Millisecond)

	mgr.Stop()

	conn := pool.Get()
	defer conn.Close()
	n, err := redis.Int(conn.Do("ZCARD", redisKeyWorkers(ns)))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
