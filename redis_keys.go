package exq

import "fmt"

// Key layout is bit-exact with the long-established Sidekiq wire format so
// that this process can interoperate with peer producers/consumers sharing
// the same Redis. See redisNamespacePrefix and the teacher's redisKeyXxx
// builders in redis.go for the pattern this generalizes.

const (
	defaultNamespace = "exq"

	// RETRY_KEY / SCHEDULED_JOBS_KEY style suffixes, ported from
	// vendor/.../go-workers/workers.go.
	retrySuffix     = "retry"
	scheduleSuffix  = "schedule"
	deadSuffix      = "dead"
	queuesSuffix    = "queues"
	processesSuffix = "processes"
)

func redisNamespacePrefix(namespace string) string {
	if namespace == "" {
		namespace = defaultNamespace
	}
	l := len(namespace)
	if namespace[l-1] != ':' {
		namespace = namespace + ":"
	}
	return namespace
}

// redisKeyQueues is the set of known queue names.
func redisKeyQueues(namespace string) string {
	return redisNamespacePrefix(namespace) + queuesSuffix
}

// redisKeyQueue is the FIFO list backing a single named queue.
func redisKeyQueue(namespace, queue string) string {
	return redisNamespacePrefix(namespace) + "queue:" + queue
}

// redisKeyBackup is the per-(host,queue) in-flight holding list.
func redisKeyBackup(namespace, host, queue string) string {
	return fmt.Sprintf("%s%s:%s:backup", redisNamespacePrefix(namespace), host, queue)
}

func redisKeySchedule(namespace string) string {
	return redisNamespacePrefix(namespace) + scheduleSuffix
}

func redisKeyRetry(namespace string) string {
	return redisNamespacePrefix(namespace) + retrySuffix
}

func redisKeyDead(namespace string) string {
	return redisNamespacePrefix(namespace) + deadSuffix
}

func redisKeyStatProcessed(namespace string) string {
	return redisNamespacePrefix(namespace) + "stat:processed"
}

func redisKeyStatFailed(namespace string) string {
	return redisNamespacePrefix(namespace) + "stat:failed"
}

func redisKeyStatProcessedDate(namespace, date string) string {
	return redisNamespacePrefix(namespace) + "stat:processed:" + date
}

func redisKeyStatFailedDate(namespace, date string) string {
	return redisNamespacePrefix(namespace) + "stat:failed:" + date
}

func redisKeyStatProcessedQueue(namespace, queue string) string {
	return redisNamespacePrefix(namespace) + "stat:processed_queues:" + queue
}

func redisKeyStatFailedQueue(namespace, queue string) string {
	return redisNamespacePrefix(namespace) + "stat:failed_queues:" + queue
}

func redisKeyProcesses(namespace string) string {
	return redisNamespacePrefix(namespace) + processesSuffix
}

func redisKeyProcess(namespace, processID string) string {
	return redisNamespacePrefix(namespace) + processID
}

// redisKeyWorkers is the set of live worker-pool (process-level, not
// per-job) heartbeat ids, ported from the teacher's redisKeyWorkerPools.
func redisKeyWorkers(namespace string) string {
	return redisNamespacePrefix(namespace) + "workers"
}

// redisKeyWorker is one worker-pool's heartbeat hash.
func redisKeyWorker(namespace, workerID string) string {
	return redisNamespacePrefix(namespace) + "worker:" + workerID
}

// redisKeyPaused marks a queue as administratively paused (supplemented
// feature, ported from the teacher's redisKeyJobsPaused).
func redisKeyPaused(namespace, queue string) string {
	return redisNamespacePrefix(namespace) + "queue:" + queue + ":paused"
}

// redisLuaDequeue is the atomic dequeue-to-backup move. It is the crucial
// correctness primitive described in design note "Atomic backup protocol":
// pop the head of the ready queue and push the same value onto the backup
// list in one server-side step, modeled directly on the teacher's
// redisLuaRpoplpushMultiCmd (a multi-queue RPOPLPUSH variant) but scoped to
// the single queue name C6 passes per dequeue call.
//
// KEYS[1] = queue:<name>
// KEYS[2] = <host>:<name>:backup
var redisLuaDequeue = `
local v = redis.call('lpop', KEYS[1])
if v then
  redis.call('lpush', KEYS[2], v)
end
return v
`

// redisLuaRemoveFromBackup deletes exactly one matching element from the
// backup list, grounded on go-workers/fetcher.go's Acknowledge (LREM).
//
// KEYS[1] = <host>:<name>:backup
// ARGV[1] = serialized job
var redisLuaRemoveFromBackup = `
return redis.call('lrem', KEYS[1], 1, ARGV[1])
`

// redisLuaRequeueBackup drains a backup list into the tail of its ready
// queue, preserving order (I3: tail-to-tail append). Used both for boot
// recovery and for the ad hoc re_enqueue_backup operation.
//
// KEYS[1] = <host>:<name>:backup
// KEYS[2] = queue:<name>
var redisLuaRequeueBackup = `
local v = redis.call('rpop', KEYS[1])
if v then
  redis.call('rpush', KEYS[2], v)
  return 1
end
return 0
`

// redisLuaSchedulerPromote promotes a single due entry from a time-ordered
// set to its target ready queue atomically, so that two racing schedulers
// can never promote the same entry twice (scheduler_dequeue's correctness
// requirement). Grounded on go-workers/scheduled.go's poll loop, which does
// the same thing as two client round-trips (ZRANGEBYSCORE then ZREM) --
// here collapsed into one script so the "remove and deliver" step is atomic
// per entry, as required.
//
// KEYS[1] = schedule or retry zset
// ARGV[1] = now (epoch seconds)
var redisLuaSchedulerPromote = `
local res = redis.call('zrangebyscore', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #res == 0 then
  return nil
end
local removed = redis.call('zrem', KEYS[1], res[1])
if removed == 1 then
  return res[1]
end
return nil
`
