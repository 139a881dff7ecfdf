package exq

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/structs"
	"github.com/gomodule/redigo/redis"
)

// Inspect is C9: the read-only inspection API over the data C3/C4 maintain.
// Grounded on the teacher's client.go Queues/ScheduledJobs/RetryJobs/
// DeadJobs accessors, instrumented the same SMEMBERS/LRANGE/ZRANGE way.
type Inspect struct {
	namespace string
	pool      *redis.Pool
}

// NewInspect builds an Inspect handle over the given namespace/pool.
func NewInspect(namespace string, pool *redis.Pool) *Inspect {
	return &Inspect{namespace: namespace, pool: pool}
}

// QueueInfo is one entry of Queues(): a known queue name, its current
// depth, the age of the oldest entry still waiting (the supplemented
// "per-queue latency" feature -- how long the head of the queue has been
// waiting to be picked up, which the pack's dashboards use to flag a
// queue that isn't keeping up), and whether it's administratively paused.
type QueueInfo struct {
	Name           string
	Size           int
	LatencySeconds float64
	Latency        string
	Paused         bool
}

// Queues enumerates every known queue (from the `queues` set, so a queue
// that has drained to zero but was seen at least once still appears),
// with its current size and latency.
func (i *Inspect) Queues() ([]QueueInfo, error) {
	conn := i.pool.Get()
	defer conn.Close()

	names, err := redis.Strings(conn.Do("SMEMBERS", redisKeyQueues(i.namespace)))
	if err != nil {
		return nil, redisUnavailable("inspect.queues", err)
	}

	out := make([]QueueInfo, 0, len(names))
	for _, name := range names {
		key := redisKeyQueue(i.namespace, name)
		size, err := redis.Int(conn.Do("LLEN", key))
		if err != nil {
			return nil, redisUnavailable("inspect.queues.llen", err)
		}
		latency := 0.0
		if size > 0 {
			raw, err := redis.Bytes(conn.Do("LINDEX", key, 0))
			if err == nil {
				if job, decErr := decodeJob(raw); decErr == nil {
					latency = nowEpochSeconds() - job.EnqueuedAt
					if latency < 0 {
						latency = 0
					}
				}
			}
		}
		paused, err := redis.Bool(conn.Do("EXISTS", redisKeyPaused(i.namespace, name)))
		if err != nil {
			return nil, redisUnavailable("inspect.queues.paused", err)
		}
		out = append(out, QueueInfo{
			Name:           name,
			Size:           size,
			LatencySeconds: latency,
			Latency:        humanize.RelTime(time.Now().Add(-time.Duration(latency*float64(time.Second))), time.Now(), "", ""),
			Paused:         paused,
		})
	}
	return out, nil
}

// ScheduledJobs returns every job waiting in `schedule`, grounded on
// client.go's ScheduledJobs (ZRANGE WITHSCORES) accessor.
func (i *Inspect) ScheduledJobs() ([]*Job, error) {
	return i.zsetJobs(redisKeySchedule(i.namespace))
}

// RetryJobs returns every job waiting in `retry`.
func (i *Inspect) RetryJobs() ([]*Job, error) {
	return i.zsetJobs(redisKeyRetry(i.namespace))
}

func (i *Inspect) zsetJobs(key string) ([]*Job, error) {
	conn := i.pool.Get()
	defer conn.Close()

	raws, err := redis.ByteSlices(conn.Do("ZRANGE", key, 0, -1))
	if err != nil {
		return nil, redisUnavailable("inspect.zset", err)
	}

	out := make([]*Job, 0, len(raws))
	for _, raw := range raws {
		job, err := decodeJob(raw)
		if err != nil {
			continue
		}
		out = append(out, job)
	}
	return out, nil
}

// DeadJobs returns every entry on the bounded dead list that decodes as a
// Job; entries that do not (such as dead-lettered malformed payloads) are
// skipped.
func (i *Inspect) DeadJobs() ([]*Job, error) {
	conn := i.pool.Get()
	defer conn.Close()

	raws, err := redis.ByteSlices(conn.Do("LRANGE", redisKeyDead(i.namespace), 0, -1))
	if err != nil {
		return nil, redisUnavailable("inspect.dead", err)
	}

	out := make([]*Job, 0, len(raws))
	for _, raw := range raws {
		job, err := decodeJob(raw)
		if err != nil {
			continue
		}
		out = append(out, job)
	}
	return out, nil
}

// FindFailedByJid scans the dead list for a job with the given jid,
// matching spec.md §6's "look up a specific failed job by jid" query. The
// dead list isn't indexed by jid, so this is necessarily a linear scan --
// acceptable given deadListCap bounds it to 10,000 entries.
func (i *Inspect) FindFailedByJid(jid string) (*Job, error) {
	jobs, err := i.DeadJobs()
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		if job.Jid == jid {
			return job, nil
		}
	}
	return nil, nil
}

// Processes lists every live process registry entry (C4's heartbeats),
// grounded on the teacher's worker_pool heartbeat inspection.
func (i *Inspect) Processes() ([]ProcessInfo, error) {
	conn := i.pool.Get()
	defer conn.Close()

	ids, err := redis.Strings(conn.Do("SMEMBERS", redisKeyProcesses(i.namespace)))
	if err != nil {
		return nil, redisUnavailable("inspect.processes", err)
	}

	out := make([]ProcessInfo, 0, len(ids))
	for _, id := range ids {
		raw, err := redis.Bytes(conn.Do("GET", redisKeyProcess(i.namespace, id)))
		if err == redis.ErrNil {
			continue
		}
		if err != nil {
			return nil, redisUnavailable("inspect.processes.get", err)
		}
		var info ProcessInfo
		if err := json.Unmarshal(raw, &info); err != nil {
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

// WorkerPoolInfo is one entry of WorkerPools(): a whole Manager process,
// as distinct from the individual in-flight jobs Processes() reports.
type WorkerPoolInfo struct {
	WorkerID    string
	Host        string
	Pid         int
	StartedAt   float64
	Uptime      string
	QueueNames  string
	Concurrency int
}

// WorkerPools lists every live Manager process advertising a heartbeat,
// grounded on the teacher's heartbeat.go/dead_pool_reaper.go notion of a
// "worker pool" distinct from an individual in-flight job.
func (i *Inspect) WorkerPools() ([]WorkerPoolInfo, error) {
	conn := i.pool.Get()
	defer conn.Close()

	ids, err := redis.Strings(conn.Do("ZRANGE", redisKeyWorkers(i.namespace), 0, -1))
	if err != nil {
		return nil, redisUnavailable("inspect.worker_pools", err)
	}

	out := make([]WorkerPoolInfo, 0, len(ids))
	for _, id := range ids {
		fields, err := redis.StringMap(conn.Do("HGETALL", redisKeyWorker(i.namespace, id)))
		if err != nil {
			return nil, redisUnavailable("inspect.worker_pools.hgetall", err)
		}
		if len(fields) == 0 {
			continue
		}
		startedAt, _ := strconv.ParseFloat(fields["started_at"], 64)
		concurrency, _ := strconv.Atoi(fields["concurrency"])
		pid, _ := strconv.Atoi(fields["pid"])
		out = append(out, WorkerPoolInfo{
			WorkerID:    id,
			Host:        fields["host"],
			Pid:         pid,
			StartedAt:   startedAt,
			Uptime:      humanize.RelTime(time.Unix(int64(startedAt), 0), time.Now(), "", ""),
			QueueNames:  fields["queue_names"],
			Concurrency: concurrency,
		})
	}
	return out, nil
}

// ProcessedCount and FailedCount report the lifetime counters C4 maintains.
func (i *Inspect) ProcessedCount() (int, error) {
	return i.counter(redisKeyStatProcessed(i.namespace))
}

func (i *Inspect) FailedCount() (int, error) {
	return i.counter(redisKeyStatFailed(i.namespace))
}

func (i *Inspect) counter(key string) (int, error) {
	conn := i.pool.Get()
	defer conn.Close()

	n, err := redis.Int(conn.Do("GET", key))
	if err == redis.ErrNil {
		return 0, nil
	}
	if err != nil {
		return 0, redisUnavailable("inspect.counter", err)
	}
	return n, nil
}

// DebugMap renders a ProcessInfo as a generic map for ad hoc inspection
// (no webui route serves it), using fatih/structs the way the
// teacher's debug tooling introspects a struct without a bespoke
// field-by-field serializer.
func DebugMap(info ProcessInfo) map[string]interface{} {
	return structs.Map(info)
}
