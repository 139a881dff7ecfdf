package exq

import "time"

// QueueConfig is one entry of the `queues` configuration option: a queue
// name plus its per-queue concurrency. A concurrency of 0 takes the
// Manager's Config.Concurrency (10,000 unless set); there is no setting
// that makes a queue's concurrency unlimited.
type QueueConfig struct {
	Name        string
	Concurrency int
}

// Config gathers every configuration option spec.md §6 recognizes, modeled
// on vendor/.../go-workers/config.go's Configure(map[string]string) entry
// point but generalized to a typed struct instead of a string map, since
// this is a library API rather than a one-shot global Configure call.
type Config struct {
	// Name is an identifier for this Manager instance. It is stored with
	// the config but nothing registers or looks up a Manager by it; callers
	// running several managers in one process hold each *Manager directly.
	Name string

	// Namespace is the Redis key prefix. Defaults to "exq".
	Namespace string

	// Queues lists the queues to subscribe on Manager construction.
	Queues []QueueConfig

	// Concurrency is the default per-queue concurrency when a QueueConfig
	// didn't specify one.
	Concurrency int

	// SchedulerEnabled turns on C5. Must be true whenever EnqueueIn/
	// EnqueueAt are in use -- spec.md §4.5.
	SchedulerEnabled bool

	// SchedulerPollInterval is the scheduler sweep interval.
	SchedulerPollInterval time.Duration

	// PollInterval is the worker pool's empty-queue poll interval.
	PollInterval time.Duration

	// RedisTimeout is the dial/read/write timeout NewRedisPool applies to
	// the connections it builds; it has no effect on a caller-built pool.
	RedisTimeout time.Duration

	// MaxRetries is the default retry budget applied when a Job's `retry`
	// field is the bare-bool form.
	MaxRetries int

	// ManagerTimeout is the equivalent of the source design's
	// genserver_timeout. It defaults to 5s, but no Manager method reads it:
	// Subscribe, Unsubscribe and enqueues are not bounded by it.
	ManagerTimeout time.Duration

	// Host identifies this node's backup lists. Defaults to os.Hostname().
	Host string

	// RedisURL / RedisPassword / RedisDatabase configure the connection
	// pool when the caller doesn't build its own *redis.Pool.
	RedisURL      string
	RedisPassword string
	RedisDatabase int
}

// withDefaults fills in the defaults spec.md §4 calls out, without
// mutating the caller's Config.
func (c Config) withDefaults() Config {
	if c.Namespace == "" {
		c.Namespace = defaultNamespace
	}
	if c.Concurrency == 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.SchedulerPollInterval == 0 {
		c.SchedulerPollInterval = 200 * time.Millisecond
	}
	if c.PollInterval == 0 {
		c.PollInterval = 50 * time.Millisecond
	}
	if c.RedisTimeout == 0 {
		c.RedisTimeout = 5 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.ManagerTimeout == 0 {
		c.ManagerTimeout = 5 * time.Second
	}
	return c
}

const (
	defaultConcurrency = 10000
	defaultMaxRetries  = 25
	unlimitedSentinel  = 0
)
