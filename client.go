package exq

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/pkg/errors"
)

// Client is the Job Queue Protocol (C3): the Redis key layout and the
// atomic operations on it. Grounded on the teacher's client.go (the
// Client/*redis.Pool shape) generalized with the Sidekiq-compatible
// operations from vendor/.../go-workers/enqueue.go, scheduled.go and
// middleware_retry.go.
type Client struct {
	namespace string
	pool      *redis.Pool

	dequeueScript *redis.Script
	removeScript  *redis.Script
	requeueScript *redis.Script
	promoteScript *redis.Script
}

// NewClient builds a Client over an existing *redis.Pool, exactly as
// NewClient(namespace, pool) did in the teacher repo.
func NewClient(namespace string, pool *redis.Pool) *Client {
	return &Client{
		namespace:     namespace,
		pool:          pool,
		dequeueScript: redis.NewScript(2, redisLuaDequeue),
		removeScript:  redis.NewScript(1, redisLuaRemoveFromBackup),
		requeueScript: redis.NewScript(2, redisLuaRequeueBackup),
		promoteScript: redis.NewScript(1, redisLuaSchedulerPromote),
	}
}

// NewRedisPool builds a *redis.Pool the way vendor/.../go-workers/config.go
// does (Dial + AUTH + SELECT + TestOnBorrow ping), generalized from that
// package's map[string]string options to Config.
func NewRedisPool(cfg Config) *redis.Pool {
	cfg = cfg.withDefaults()
	addr := cfg.RedisURL
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	return &redis.Pool{
		MaxIdle:     10,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			c, err := redis.DialTimeout("tcp", addr, cfg.RedisTimeout, cfg.RedisTimeout, cfg.RedisTimeout)
			if err != nil {
				return nil, err
			}
			if cfg.RedisPassword != "" {
				if _, err := c.Do("AUTH", cfg.RedisPassword); err != nil {
					c.Close()
					return nil, err
				}
			}
			if cfg.RedisDatabase != 0 {
				if _, err := c.Do("SELECT", cfg.RedisDatabase); err != nil {
					c.Close()
					return nil, err
				}
			}
			return c, nil
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			_, err := c.Do("PING")
			return err
		},
	}
}

// EnqueueOptions carries the optional pieces of a Job beyond class/args.
type EnqueueOptions struct {
	Retry RetryBudget
}

// Enqueue implements C3's enqueue(queue, class, args, opts) -> jid.
func (c *Client) Enqueue(queue, class string, args []interface{}, opts EnqueueOptions) (string, error) {
	if !opts.Retry.Enabled && opts.Retry.Max == 0 {
		opts.Retry = defaultRetryBudget()
	}
	job := &Job{
		Jid:        generateJid(),
		Class:      class,
		Args:       args,
		Queue:      queue,
		EnqueuedAt: nowEpochSeconds(),
		Retry:      opts.Retry,
	}

	raw, err := encodeJob(job)
	if err != nil {
		return "", err
	}

	conn := c.pool.Get()
	defer conn.Close()

	conn.Send("SADD", redisKeyQueues(c.namespace), queue)
	conn.Send("RPUSH", redisKeyQueue(c.namespace, queue), raw)
	if err := conn.Flush(); err != nil {
		return "", redisUnavailable("enqueue", err)
	}
	if _, err := conn.Receive(); err != nil {
		return "", redisUnavailable("enqueue.sadd", err)
	}
	if _, err := conn.Receive(); err != nil {
		return "", redisUnavailable("enqueue.rpush", err)
	}

	return job.Jid, nil
}

// EnqueueAt implements C3's enqueue_at(queue, epoch, class, args) -> jid.
func (c *Client) EnqueueAt(queue string, at time.Time, class string, args []interface{}) (string, error) {
	return c.enqueueScheduled(queue, timeToEpochSeconds(at), class, args)
}

// EnqueueIn implements C3's enqueue_in(queue, offset, class, args) -> jid.
// An offset of 0 still passes through `schedule`, per spec.md §4.3, so the
// scheduler always promotes it rather than the caller short-circuiting
// straight to the ready queue.
func (c *Client) EnqueueIn(queue string, in time.Duration, class string, args []interface{}) (string, error) {
	return c.enqueueScheduled(queue, nowEpochSeconds()+in.Seconds(), class, args)
}

func (c *Client) enqueueScheduled(queue string, at float64, class string, args []interface{}) (string, error) {
	job := &Job{
		Jid:        generateJid(),
		Class:      class,
		Args:       args,
		Queue:      queue,
		EnqueuedAt: nowEpochSeconds(),
		Retry:      defaultRetryBudget(),
	}

	raw, err := encodeJob(job)
	if err != nil {
		return "", err
	}

	conn := c.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("ZADD", redisKeySchedule(c.namespace), at, raw); err != nil {
		return "", redisUnavailable("enqueue_at.zadd", err)
	}
	// Known-queues membership matters even for scheduled jobs: the
	// scheduler promotes into queue:<name> and C9's Queues() enumerates
	// via the known-queues set.
	if _, err := conn.Do("SADD", redisKeyQueues(c.namespace), queue); err != nil {
		logError("enqueue_at.sadd", err)
	}

	return job.Jid, nil
}

func timeToEpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// DequeuedJob pairs a queue name with the job that came off its head, as
// C3's dequeue(host, queues) -> [(queue, job)] returns.
type DequeuedJob struct {
	Queue string
	Job   *Job
	raw   []byte
}

// Dequeue implements the atomic dequeue-to-backup move: for each queue
// name given, in caller order, pop from the head of queue:<name> and push
// the same value onto <host>:<queue>:backup in a single Redis round trip.
// This is the crucial correctness primitive (design note "Atomic backup
// protocol" / invariant I2): there is no observable state where a job
// exists in neither list.
func (c *Client) Dequeue(host string, queues []string) ([]DequeuedJob, error) {
	conn := c.pool.Get()
	defer conn.Close()

	var out []DequeuedJob
	for _, q := range queues {
		reply, err := c.dequeueScript.Do(conn,
			redisKeyQueue(c.namespace, q),
			redisKeyBackup(c.namespace, host, q),
		)
		if err == redis.ErrNil {
			continue
		}
		if err != nil {
			return out, redisUnavailable("dequeue", err)
		}
		raw, ok := reply.([]byte)
		if !ok {
			continue
		}
		job, err := decodeJob(raw)
		if err != nil {
			// A malformed entry still occupies the backup list; remove it
			// there too so it doesn't wedge recovery, then move it straight
			// to the dead list ourselves (the same handling SchedulerDequeue
			// gives a malformed scheduled entry) before surfacing the error
			// so the caller can still account for the failure in its stats.
			c.removeFromBackupRaw(host, q, raw)
			c.addToDeadRaw(conn, raw, "MalformedJob", err.Error())
			return out, err
		}
		out = append(out, DequeuedJob{Queue: q, Job: job, raw: raw})
	}

	return out, nil
}

// RemoveJobFromBackup deletes exactly one matching element from the backup
// list, called on successful completion.
func (c *Client) RemoveJobFromBackup(host, queue string, job *Job) error {
	raw, err := job.Serialize()
	if err != nil {
		return err
	}
	return c.removeFromBackupRaw(host, queue, raw)
}

func (c *Client) removeFromBackupRaw(host, queue string, raw []byte) error {
	conn := c.pool.Get()
	defer conn.Close()

	_, err := c.removeScript.Do(conn, redisKeyBackup(c.namespace, host, queue), raw)
	if err != nil {
		return redisUnavailable("remove_job_from_backup", err)
	}
	return nil
}

// ReEnqueueBackup drains the backup list for (host, queue) by repeatedly
// popping from its tail and pushing to the tail of queue:<name>, until
// empty, preserving order (I3). This is the recovery protocol invoked on
// boot (§4.7) and available ad hoc.
func (c *Client) ReEnqueueBackup(host, queue string) (int, error) {
	conn := c.pool.Get()
	defer conn.Close()

	backupKey := redisKeyBackup(c.namespace, host, queue)
	queueKey := redisKeyQueue(c.namespace, queue)

	count := 0
	for {
		reply, err := c.requeueScript.Do(conn, backupKey, queueKey)
		if err != nil {
			return count, redisUnavailable("re_enqueue_backup", err)
		}
		moved, _ := redis.Int(reply, nil)
		if moved == 0 {
			return count, nil
		}
		count++
	}
}

// SchedulerDequeue implements scheduler_dequeue(names, now): for each
// named time-ordered set (schedule, retry), promote every entry with
// score <= now into its target ready queue, one entry at a time via an
// atomic ZRANGEBYSCORE+ZREM script so two racing schedulers can never
// promote the same entry twice. Returns the number promoted.
func (c *Client) SchedulerDequeue(setKeys []string, now float64) (int, error) {
	conn := c.pool.Get()
	defer conn.Close()

	total := 0
	for _, key := range setKeys {
		for {
			reply, err := c.promoteScript.Do(conn, key, now)
			if err != nil {
				return total, redisUnavailable("scheduler_dequeue", err)
			}
			if reply == nil {
				break
			}
			raw, ok := reply.([]byte)
			if !ok {
				break
			}
			job, err := decodeJob(raw)
			if err != nil {
				// Malformed scheduled entry: don't crash the scheduler,
				// push it straight to dead (design note §7).
				c.addToDeadRaw(conn, raw, "MalformedJob", err.Error())
				total++
				continue
			}
			job.EnqueuedAt = nowEpochSeconds()
			refreshed, err := encodeJob(job)
			if err != nil {
				refreshed = raw
			}
			if _, err := conn.Do("RPUSH", redisKeyQueue(c.namespace, job.Queue), refreshed); err != nil {
				return total, redisUnavailable("scheduler_dequeue.rpush", err)
			}
			if _, err := conn.Do("SADD", redisKeyQueues(c.namespace), job.Queue); err != nil {
				logError("scheduler_dequeue.sadd", err)
			}
			total++
		}
	}

	return total, nil
}

// RetryOrFailJob implements retry_or_fail_job(job, error): increment
// retry_count; if it remains within budget, schedule a back-off retry;
// otherwise move to the failed/dead list. Backoff formula matches the
// peer ecosystem (spec.md §4.3): n^4 + 15 + rand(30)*(n+1).
func (c *Client) RetryOrFailJob(job *Job, runErr error, defaultMaxRetries int) error {
	job.RetryCount++
	job.ErrorMessage = runErr.Error()
	job.ErrorClass = errorClassOf(runErr)

	max := job.Retry.budget(defaultMaxRetries)

	conn := c.pool.Get()
	defer conn.Close()

	if job.Retry.Enabled && job.RetryCount <= max {
		at := nowEpochSeconds() + backoffSeconds(job.RetryCount)
		raw, err := encodeJob(job)
		if err != nil {
			return err
		}
		if _, err := conn.Do("ZADD", redisKeyRetry(c.namespace), at, raw); err != nil {
			return redisUnavailable("retry_or_fail.zadd", err)
		}
		return nil
	}

	job.FailedAt = nowEpochSeconds()
	raw, err := encodeJob(job)
	if err != nil {
		return err
	}
	return c.addToDead(conn, raw)
}

// addToDead appends to the bounded failed/dead list (spec.md §9(b)
// recommends a 10,000-entry cap to bound unbounded growth).
const deadListCap = 10000

func (c *Client) addToDead(conn redis.Conn, raw []byte) error {
	conn.Send("LPUSH", redisKeyDead(c.namespace), raw)
	conn.Send("LTRIM", redisKeyDead(c.namespace), 0, deadListCap-1)
	if err := conn.Flush(); err != nil {
		return redisUnavailable("add_to_dead", err)
	}
	if _, err := conn.Receive(); err != nil {
		return redisUnavailable("add_to_dead.lpush", err)
	}
	if _, err := conn.Receive(); err != nil {
		return redisUnavailable("add_to_dead.ltrim", err)
	}
	return nil
}

func (c *Client) addToDeadRaw(conn redis.Conn, raw []byte, errClass, errMsg string) {
	// best effort: a malformed entry may not even decode into a Job, so we
	// just preserve the raw bytes alongside a synthetic wrapper.
	wrapped := fmt.Sprintf(`{"error_class":%q,"error_message":%q,"payload":%s}`, errClass, errMsg, raw)
	conn.Send("LPUSH", redisKeyDead(c.namespace), wrapped)
	conn.Send("LTRIM", redisKeyDead(c.namespace), 0, deadListCap-1)
	if err := conn.Flush(); err != nil {
		logError("add_to_dead_raw", err)
		return
	}
	conn.Receive()
	conn.Receive()
}

func errorClassOf(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Kind.String()
	}
	return fmt.Sprintf("%T", errors.Cause(err))
}

// backoffSeconds matches spec.md's required formula exactly:
// n^4 + 15 + (rand(30) * (n+1)).
func backoffSeconds(n int) float64 {
	return float64(n*n*n*n) + 15 + float64(rand.Intn(30)*(n+1))
}

func redisUnavailable(op string, err error) error {
	return &Error{Kind: ErrRedisUnavailable, Message: op + ": " + err.Error(), cause: err}
}
