package exq

import (
	"sync"
	"time"

	"github.com/gocraft/health"
)

// QueuePool is C6: the per-queue worker pool. Grounded on the teacher's
// worker.go/worker_pool.go shape (a fetch loop feeding a fixed number of
// goroutines), generalized so concurrency is a semaphore of size
// QueueConfig.Concurrency rather than one goroutine per worker struct --
// spec.md §5 requires a ready job to start immediately whenever any slot
// is free, not just when "its" goroutine happens to be idle.
type QueuePool struct {
	queue       string
	concurrency int

	client   *Client
	stats    *Stats
	registry *Registry
	host     string
	pollWait time.Duration
	maxRetry int

	sem  chan struct{}
	wg   sync.WaitGroup
	quit chan struct{}
	once sync.Once
}

// NewQueuePool builds a pool for one queue name.
func NewQueuePool(host string, cfg QueueConfig, client *Client, stats *Stats, registry *Registry, pollWait time.Duration, maxRetry int) *QueuePool {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &QueuePool{
		queue:       cfg.Name,
		concurrency: concurrency,
		client:      client,
		stats:       stats,
		registry:    registry,
		host:        host,
		pollWait:    pollWait,
		maxRetry:    maxRetry,
		sem:         make(chan struct{}, concurrency),
		quit:        make(chan struct{}),
	}
}

// Start launches the fetch loop in its own goroutine and returns
// immediately, matching worker_pool.go's Start/Join split.
func (p *QueuePool) Start() {
	p.wg.Add(1)
	go p.loop()
}

// Stop signals the fetch loop to exit after its current iteration and
// waits for any in-flight handler invocations to finish (spec.md §5:
// "shutdown MUST wait for in-flight jobs to complete before the process
// exits").
func (p *QueuePool) Stop() {
	p.once.Do(func() { close(p.quit) })
	p.wg.Wait()
}

func (p *QueuePool) loop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.pollWait)
	defer ticker.Stop()

	for {
		select {
		case <-p.quit:
			return
		case <-ticker.C:
		}

		if paused, err := p.client.IsQueuePaused(p.queue); err != nil {
			logError("pool.is_queue_paused", err)
		} else if paused {
			continue
		}

		select {
		case p.sem <- struct{}{}:
		case <-p.quit:
			return
		}

		jobs, err := p.client.Dequeue(p.host, []string{p.queue})
		if err != nil {
			<-p.sem
			if exqErr, ok := err.(*Error); ok && exqErr.Kind == ErrMalformedJob {
				p.stats.IncrementFailed(p.queue)
			}
			logError("pool.dequeue", err)
			continue
		}
		if len(jobs) == 0 {
			<-p.sem
			continue
		}

		dj := jobs[0]
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer func() { <-p.sem }()
			p.run(dj)
		}()
	}
}

// run executes one handler invocation and applies its outcome: success
// removes the job from its backup list and bumps stat:processed; failure
// routes through RetryOrFailJob and bumps stat:failed. A panicking handler
// is treated the same as a returned error (design note "Handler panics
// convert to WorkerRaised").
func (p *QueuePool) run(dj DequeuedJob) {
	processID := p.stats.RecordDequeue(p.queue, dj.Job, p.concurrency)
	defer p.stats.RemoveProcess(processID)

	handler, ok := p.registry.Lookup(dj.Job.Class)
	if !ok {
		err := &Error{Kind: ErrWorkerNotFound, Message: "no handler registered for class " + dj.Job.Class, Class: dj.Job.Class}
		p.fail(dj, err)
		return
	}

	job := Stream.NewJob("exq.pool.run")
	err := p.invoke(handler, dj.Job)
	job.Complete(health.Success)

	if err != nil {
		p.fail(dj, err)
		return
	}

	// Remove using the exact bytes Dequeue read off the ready queue, not a
	// fresh re-encode of dj.Job -- the backup entry is keyed on that literal
	// payload and LREM only matches it byte-for-byte.
	if rmErr := p.client.removeFromBackupRaw(p.host, p.queue, dj.raw); rmErr != nil {
		logError("pool.remove_job_from_backup", rmErr)
	}
	p.stats.IncrementProcessed(p.queue)
}

// invoke wraps the handler call so a panic is recovered and converted into
// an ErrWorkerRaised, matching spec.md §7's requirement that a misbehaving
// worker never takes the process down with it.
func (p *QueuePool) invoke(h Handler, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			wrapped := newError(ErrWorkerRaised, r, 0)
			wrapped.Class = job.Class
			err = wrapped
		}
	}()
	return h(job)
}

func (p *QueuePool) fail(dj DequeuedJob, err error) {
	logError("pool.handler", err)
	// RetryOrFailJob re-encodes dj.Job in place (retry_count/error fields
	// change, which rewrites its cached raw bytes), so the backup removal
	// below must use dj.raw -- the original dequeued bytes -- rather than
	// going through dj.Job, or the LREM would look for bytes that no longer
	// match what's actually sitting in the backup list.
	if retryErr := p.client.RetryOrFailJob(dj.Job, err, p.maxRetry); retryErr != nil {
		logError("pool.retry_or_fail", retryErr)
	}
	if rmErr := p.client.removeFromBackupRaw(p.host, p.queue, dj.raw); rmErr != nil {
		logError("pool.remove_job_from_backup", rmErr)
	}
	p.stats.IncrementFailed(p.queue)
}
