package exq

import (
	"encoding/json"
	"os"
	"time"

	"github.com/gocraft/health"
	"github.com/gomodule/redigo/redis"
)

// Stats is C4: Statistics & Process Registry. Grounded on the teacher's
// heartbeat.go (SADD+HMSET+EXPIRE heartbeat pattern) generalized from
// per-worker-pool heartbeats to per-in-flight-job process entries, and on
// vendor/.../go-workers/stats.go + middleware_stats.go's MULTI/EXEC
// counter increments.
//
// Per spec.md §4.4, this is best-effort observability: a write failure here
// must never abort job execution. Every method here swallows its own Redis
// errors via logError/ErrStatsWriteFailed instead of returning them to a
// caller that would otherwise fail the job.
type Stats struct {
	namespace string
	pool      *redis.Pool
}

// NewStats builds a Stats handle sharing the given namespace/pool.
func NewStats(namespace string, pool *redis.Pool) *Stats {
	return &Stats{namespace: namespace, pool: pool}
}

// ProcessInfo is the JSON record stored per process_id, matching spec.md
// §3's "{host, pid, started_at, queues, concurrency}" shape, extended with
// the in-flight job's jid, class and full serialized payload (held in Args)
// so C9 can report what a process is doing right now.
type ProcessInfo struct {
	Host        string    `json:"host"`
	Pid         int       `json:"pid"`
	StartedAt   float64   `json:"started_at"`
	Queue       string    `json:"queue"`
	Concurrency int       `json:"concurrency"`
	Jid         string    `json:"jid,omitempty"`
	Class       string    `json:"class,omitempty"`
	Args        []byte    `json:"args,omitempty"`
	heartbeat   time.Time `json:"-"`
}

// RecordDequeue heartbeats a new process registry entry for a job that was
// just dequeued, returning the process_id used so the caller can remove it
// on completion. Grounded on heartbeat.go's heartbeat(): SADD the id into
// the known-processes set, SET its JSON record, EXPIRE as a dead-man's switch.
func (s *Stats) RecordDequeue(queue string, job *Job, concurrency int) string {
	job1 := Stream.NewJob("exq.stats.record_dequeue")
	defer job1.Complete(health.Success)

	processID := makeIdentifier()
	host, _ := os.Hostname()

	argsJSON, err := job.Serialize()
	if err != nil {
		logError("stats.record_dequeue.serialize", err)
		job1.EventErr("serialize", err)
		return processID
	}

	conn := s.pool.Get()
	defer conn.Close()

	key := redisKeyProcess(s.namespace, processID)
	conn.Send("SADD", redisKeyProcesses(s.namespace), processID)
	conn.Send("SET", key, mustJSON(ProcessInfo{
		Host:        host,
		Pid:         os.Getpid(),
		StartedAt:   nowEpochSeconds(),
		Queue:       queue,
		Concurrency: concurrency,
		Jid:         job.Jid,
		Class:       job.Class,
		Args:        argsJSON,
	}))
	conn.Send("EXPIRE", key, 60)
	if err := conn.Flush(); err != nil {
		s.swallow("record_dequeue", err, job1)
		return processID
	}
	for i := 0; i < 3; i++ {
		if _, err := conn.Receive(); err != nil {
			s.swallow("record_dequeue.receive", err, job1)
		}
	}

	return processID
}

// RemoveProcess deletes a process registry entry, called on every terminal
// outcome (success or failure).
func (s *Stats) RemoveProcess(processID string) {
	job := Stream.NewJob("exq.stats.remove_process")
	defer job.Complete(health.Success)

	conn := s.pool.Get()
	defer conn.Close()

	conn.Send("SREM", redisKeyProcesses(s.namespace), processID)
	conn.Send("DEL", redisKeyProcess(s.namespace, processID))
	if err := conn.Flush(); err != nil {
		s.swallow("remove_process", err, job)
		return
	}
	conn.Receive()
	conn.Receive()
}

// IncrementProcessed bumps stat:processed, stat:processed:<date> and
// stat:processed_queues:<queue> atomically within one MULTI/EXEC, matching
// vendor/.../go-workers/middleware_stats.go's incrementStats.
func (s *Stats) IncrementProcessed(queue string) {
	s.increment(redisKeyStatProcessed(s.namespace), redisKeyStatProcessedDate(s.namespace, today()), redisKeyStatProcessedQueue(s.namespace, queue))
}

// IncrementFailed bumps the failed-side equivalents of IncrementProcessed.
func (s *Stats) IncrementFailed(queue string) {
	s.increment(redisKeyStatFailed(s.namespace), redisKeyStatFailedDate(s.namespace, today()), redisKeyStatFailedQueue(s.namespace, queue))
}

func (s *Stats) increment(total, dated, perQueue string) {
	job := Stream.NewJob("exq.stats.increment")
	defer job.Complete(health.Success)

	conn := s.pool.Get()
	defer conn.Close()

	conn.Send("MULTI")
	conn.Send("INCR", total)
	conn.Send("INCR", dated)
	conn.Send("INCR", perQueue)
	if _, err := conn.Do("EXEC"); err != nil {
		s.swallow("increment", err, job)
	}
}

func (s *Stats) swallow(op string, err error, job *health.Job) {
	statsErr := &Error{Kind: ErrStatsWriteFailed, Message: op + ": " + err.Error(), cause: err}
	logError("stats."+op, statsErr)
	job.EventErr(op, err)
}

func today() string {
	return time.Now().UTC().Format("2006-01-02")
}

func mustJSON(v ProcessInfo) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return b
}
