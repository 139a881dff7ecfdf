package exq

import (
	"os"
	"sync"
	"time"

	"github.com/gomodule/redigo/redis"
)

// Manager is C7: the lifecycle owner. It builds a Client, a Stats handle,
// an optional Scheduler, and one QueuePool per subscribed queue, and runs
// the boot-time recovery protocol before any pool starts dequeuing.
// Grounded on the teacher's worker_pool.go (the struct that owns a *Client
// plus a set of per-job-type workers and exposes Start/Stop/Join) combined
// with manager/worker_pool_manager.go's Subscribe/Unsubscribe shape for
// adding queues after construction.
type Manager struct {
	cfg       Config
	client    *Client
	stats     *Stats
	registry  *Registry
	scheduler *Scheduler
	heartbeat *poolHeartbeat
	reaper    *reaper
	workerID  string

	mu    sync.Mutex
	pools map[string]*QueuePool
}

// NewManager wires a Manager from Config and an existing *redis.Pool. The
// caller supplies the Registry so handler registration can happen before
// or after NewManager -- pools resolve a Job's handler at dequeue time,
// not at subscribe time.
func NewManager(cfg Config, pool *redis.Pool, registry *Registry) *Manager {
	cfg = cfg.withDefaults()
	if cfg.Host == "" {
		if h, err := os.Hostname(); err == nil {
			cfg.Host = h
		} else {
			cfg.Host = "unknown"
		}
	}

	client := NewClient(cfg.Namespace, pool)
	stats := NewStats(cfg.Namespace, pool)
	workerID := makeIdentifier()

	m := &Manager{
		cfg:      cfg,
		client:   client,
		stats:    stats,
		registry: registry,
		workerID: workerID,
		pools:    make(map[string]*QueuePool),
	}
	if cfg.SchedulerEnabled {
		m.scheduler = NewScheduler(client, cfg.Namespace, cfg.SchedulerPollInterval)
	}
	m.heartbeat = newPoolHeartbeat(cfg.Namespace, pool, workerID, cfg.Queues, cfg.Concurrency)
	// advertise the host this Manager's backup lists are keyed on, so the
	// reaper requeues the right lists if this process dies
	m.heartbeat.hostname = cfg.Host
	m.reaper = newReaper(cfg.Namespace, pool, client, 2*time.Minute)
	return m
}

// Client exposes the underlying Job Queue Protocol client, e.g. for an
// Enqueuer sharing this Manager's pool.
func (m *Manager) Client() *Client { return m.client }

// Stats exposes the underlying C4 handle, e.g. for C9 inspection queries.
func (m *Manager) Stats() *Stats { return m.stats }

// Start runs boot-time recovery (§4.7: re-enqueue this host's backup lists
// before serving any new work) for every configured queue, then starts the
// scheduler (if enabled) and one QueuePool per configured queue.
func (m *Manager) Start() error {
	for _, qc := range m.cfg.Queues {
		if _, err := m.client.ReEnqueueBackup(m.cfg.Host, qc.Name); err != nil {
			return err
		}
	}

	if m.scheduler != nil {
		if err := m.scheduler.Start(); err != nil {
			return err
		}
	}

	m.heartbeat.start()
	m.reaper.start()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, qc := range m.cfg.Queues {
		m.subscribeLocked(qc)
	}
	return nil
}

// Subscribe adds a queue to an already-running Manager, recovering its
// backup list first so a late subscription still honors §4.7. Matches
// manager/worker_pool_manager.go's subscribe(queue, concurrency) RPC.
func (m *Manager) Subscribe(qc QueueConfig) error {
	if _, err := m.client.ReEnqueueBackup(m.cfg.Host, qc.Name); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.pools[qc.Name]; exists {
		return nil
	}
	m.subscribeLocked(qc)
	return nil
}

func (m *Manager) subscribeLocked(qc QueueConfig) {
	if qc.Concurrency == 0 {
		qc.Concurrency = m.cfg.Concurrency
	}
	p := NewQueuePool(m.cfg.Host, qc, m.client, m.stats, m.registry, m.cfg.PollInterval, m.cfg.MaxRetries)
	m.pools[qc.Name] = p
	p.Start()
}

// Unsubscribe stops the pool serving queue and drains its in-flight jobs
// before returning, matching worker_pool_manager.go's unsubscribe RPC and
// spec.md §5's in-flight-completion guarantee.
func (m *Manager) Unsubscribe(queue string) {
	m.mu.Lock()
	p, ok := m.pools[queue]
	if ok {
		delete(m.pools, queue)
	}
	m.mu.Unlock()

	if ok {
		p.Stop()
	}
}

// Stop gracefully shuts every subscribed queue's pool down (waiting for
// in-flight jobs) and stops the scheduler, in that order so promotions
// stop landing on queues nobody's draining anymore -- though a promoted
// job simply waits in its ready queue for the next process to pick it up
// either way.
func (m *Manager) Stop() {
	m.mu.Lock()
	pools := make([]*QueuePool, 0, len(m.pools))
	for name, p := range m.pools {
		pools = append(pools, p)
		delete(m.pools, name)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, p := range pools {
		wg.Add(1)
		go func(p *QueuePool) {
			defer wg.Done()
			p.Stop()
		}(p)
	}
	wg.Wait()

	if m.scheduler != nil {
		m.scheduler.Stop()
	}
	m.reaper.stop()
	m.heartbeat.stop()
}
