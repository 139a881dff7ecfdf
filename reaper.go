package exq

import (
	"crypto/rand"
	"encoding/base64"
	mrand "math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/gomodule/redigo/redis"
)

// reaper is the supplemented crash-recovery feature that extends §4.7's
// boot-time recovery (which only covers a process's own backup lists) to
// recover *other* processes' backup lists after they die without a clean
// shutdown. Grounded on the teacher's dead_pool_reaper.go: a jittered
// periodic sweep, a distributed SET-NX lock so only one reaper acts at a
// time, and "find dead, requeue their in-flight work, forget them".
type reaper struct {
	namespace string
	pool      *redis.Pool
	client    *Client
	deadAfter time.Duration
	period    time.Duration

	stopChan         chan struct{}
	doneStoppingChan chan struct{}
}

func newReaper(namespace string, pool *redis.Pool, client *Client, deadAfter time.Duration) *reaper {
	return &reaper{
		namespace:        namespace,
		pool:             pool,
		client:           client,
		deadAfter:        deadAfter,
		period:           2 * deadAfter,
		stopChan:         make(chan struct{}),
		doneStoppingChan: make(chan struct{}),
	}
}

func (r *reaper) start() {
	go r.loop()
}

func (r *reaper) stop() {
	r.stopChan <- struct{}{}
	<-r.doneStoppingChan
}

func (r *reaper) loop() {
	timer := time.NewTimer(r.deadAfter)
	defer timer.Stop()

	for {
		select {
		case <-r.stopChan:
			r.doneStoppingChan <- struct{}{}
			return
		case <-timer.C:
			timer.Reset(r.period + time.Duration(mrand.Intn(30))*time.Second)
			if err := r.reap(); err != nil {
				logError("reaper.reap", err)
			}
		}
	}
}

func (r *reaper) reap() error {
	lockValue, err := genLockValue()
	if err != nil {
		return err
	}

	acquired, err := r.acquireLock(lockValue)
	if err != nil {
		return err
	}
	if !acquired {
		// another process's reaper is already sweeping
		return nil
	}
	defer r.releaseLock(lockValue)

	dead, err := r.findDeadWorkers()
	if err != nil {
		return err
	}

	conn := r.pool.Get()
	defer conn.Close()

	for workerID, info := range dead {
		for _, queue := range strings.Split(info.queueNames, ",") {
			if queue == "" {
				continue
			}
			if _, err := r.client.ReEnqueueBackup(info.host, queue); err != nil {
				logError("reaper.requeue", err)
			}
		}
		conn.Send("ZREM", redisKeyWorkers(r.namespace), workerID)
		conn.Send("DEL", redisKeyWorker(r.namespace, workerID))
	}
	return conn.Flush()
}

type deadWorkerInfo struct {
	host       string
	queueNames string
}

// findDeadWorkers returns every worker id whose last heartbeat score is
// older than deadAfter, together with the host/queues recorded in its
// metadata hash.
func (r *reaper) findDeadWorkers() (map[string]deadWorkerInfo, error) {
	conn := r.pool.Get()
	defer conn.Close()

	cutoff := nowEpochSeconds() - r.deadAfter.Seconds()
	ids, err := redis.Strings(conn.Do("ZRANGEBYSCORE", redisKeyWorkers(r.namespace), "-inf", strconv.FormatFloat(cutoff, 'f', -1, 64)))
	if err != nil {
		return nil, redisUnavailable("reaper.find_dead", err)
	}

	out := make(map[string]deadWorkerInfo, len(ids))
	for _, id := range ids {
		fields, err := redis.StringMap(conn.Do("HGETALL", redisKeyWorker(r.namespace, id)))
		if err != nil {
			logError("reaper.hgetall", err)
			continue
		}
		out[id] = deadWorkerInfo{host: fields["host"], queueNames: fields["queue_names"]}
	}
	return out, nil
}

func (r *reaper) acquireLock(value string) (bool, error) {
	conn := r.pool.Get()
	defer conn.Close()

	reply, err := conn.Do("SET", redisNamespacePrefix(r.namespace)+"reaper_lock", value, "NX", "EX", int64(r.period/time.Second))
	if err != nil {
		return false, err
	}
	return reply != nil, nil
}

var redisLuaReleaseLock = `
if redis.call('get', KEYS[1]) == ARGV[1] then
  return redis.call('del', KEYS[1])
end
return 0
`

func (r *reaper) releaseLock(value string) error {
	conn := r.pool.Get()
	defer conn.Close()

	script := redis.NewScript(1, redisLuaReleaseLock)
	_, err := script.Do(conn, redisNamespacePrefix(r.namespace)+"reaper_lock", value)
	return err
}

func genLockValue() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
