package exq

import (
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gomodule/redigo/redis"
)

// poolHeartbeat advertises a whole Manager process -- which queues it
// serves, at what concurrency, since when -- distinct from stats.go's
// per-job ProcessInfo. Grounded directly on the teacher's heartbeat.go
// (workerPoolHeartbeat: SADD+HMSET+EXPIRE on a ticker, removed on stop),
// generalized from "job names this pool handles" to "queue names this
// Manager subscribes".
type poolHeartbeat struct {
	workerID  string
	namespace string
	pool      *redis.Pool

	queueNames  string
	concurrency int
	startedAt   float64
	pid         int
	hostname    string

	stopChan         chan struct{}
	doneStoppingChan chan struct{}
}

func newPoolHeartbeat(namespace string, pool *redis.Pool, workerID string, queues []QueueConfig, defaultConcurrency int) *poolHeartbeat {
	h := &poolHeartbeat{
		workerID:  workerID,
		namespace: namespace,
		pool:      pool,

		stopChan:         make(chan struct{}),
		doneStoppingChan: make(chan struct{}),
	}

	names := make([]string, 0, len(queues))
	total := 0
	for _, q := range queues {
		names = append(names, q.Name)
		c := q.Concurrency
		if c <= 0 {
			c = defaultConcurrency
		}
		total += c
	}
	sort.Strings(names)
	h.queueNames = strings.Join(names, ",")
	h.concurrency = total

	h.pid = os.Getpid()
	host, err := os.Hostname()
	if err != nil {
		logError("heartbeat.hostname", err)
		host = "hostname_errored"
	}
	h.hostname = host

	return h
}

func (h *poolHeartbeat) start() {
	go h.loop()
}

func (h *poolHeartbeat) stop() {
	close(h.stopChan)
	<-h.doneStoppingChan
}

func (h *poolHeartbeat) loop() {
	h.startedAt = nowEpochSeconds()
	h.heartbeat()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-h.stopChan:
			h.removeHeartbeat()
			close(h.doneStoppingChan)
			return
		case <-ticker.C:
			h.heartbeat()
		}
	}
}

// heartbeat records liveness in a ZSET scored by heartbeat time (rather
// than an EXPIRE'd key) so that reaper.findDeadWorkers can find exactly
// which workers have gone stale without relying on TTL races, the same
// way the teacher's dead_pool_reaper.go finds dead pools via its
// heartbeat's recorded time rather than just "key is gone".
func (h *poolHeartbeat) heartbeat() {
	conn := h.pool.Get()
	defer conn.Close()

	heartbeatKey := redisKeyWorker(h.namespace, h.workerID)

	conn.Send("ZADD", redisKeyWorkers(h.namespace), nowEpochSeconds(), h.workerID)
	conn.Send("HMSET", heartbeatKey,
		"started_at", h.startedAt,
		"queue_names", h.queueNames,
		"concurrency", h.concurrency,
		"host", h.hostname,
		"pid", h.pid,
	)

	if err := conn.Flush(); err != nil {
		logError("heartbeat", err)
		return
	}
	for i := 0; i < 2; i++ {
		conn.Receive()
	}
}

func (h *poolHeartbeat) removeHeartbeat() {
	conn := h.pool.Get()
	defer conn.Close()

	conn.Send("ZREM", redisKeyWorkers(h.namespace), h.workerID)
	conn.Send("DEL", redisKeyWorker(h.namespace, h.workerID))

	if err := conn.Flush(); err != nil {
		logError("remove_heartbeat", err)
		return
	}
	conn.Receive()
	conn.Receive()
}
