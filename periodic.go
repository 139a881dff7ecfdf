package exq

import (
	"sync"

	cron "github.com/robfig/cron/v3"
)

// PeriodicEnqueuer is the supplemented recurring-job feature: register a
// class to be enqueued on a cron schedule, the way Sidekiq's own cron
// extensions and the teacher's manager/worker_pool_manager.go
// RegisterPeriodicTask let an operator declare "run this every day at
// 03:00" without a separate scheduling process. CronSpec supplies the
// cron string (grounded on timer_spec.go); robfig/cron drives it, exactly
// as Scheduler drives the schedule/retry sweep.
type PeriodicEnqueuer struct {
	enqueuer *Enqueuer

	mu   sync.Mutex
	cron *cron.Cron
}

// NewPeriodicEnqueuer builds a PeriodicEnqueuer sharing pool/namespace
// with the rest of the system.
func NewPeriodicEnqueuer(enqueuer *Enqueuer) *PeriodicEnqueuer {
	return &PeriodicEnqueuer{enqueuer: enqueuer}
}

// PeriodicJob is one registered recurring enqueue.
type PeriodicJob struct {
	Spec  *CronSpec
	Queue string
	Class string
	Args  []interface{}
}

// Register adds a periodic job. Call before Start; jobs registered after
// Start are not picked up (matching Scheduler's single-AddFunc shape).
func (p *PeriodicEnqueuer) Register(jobs ...PeriodicJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cron == nil {
		p.cron = cron.New(cron.WithSeconds())
	}

	for _, job := range jobs {
		spec, err := job.Spec.Spec()
		if err != nil {
			return err
		}
		job := job
		if _, err := p.cron.AddFunc(spec, func() {
			if _, err := p.enqueuer.Enqueue(job.Queue, job.Class, job.Args); err != nil {
				logError("periodic.enqueue", err)
			}
		}); err != nil {
			return err
		}
	}
	return nil
}

// Start begins running every registered periodic job.
func (p *PeriodicEnqueuer) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cron == nil {
		p.cron = cron.New(cron.WithSeconds())
	}
	p.cron.Start()
}

// Stop halts the periodic schedule, waiting for any in-flight tick to
// finish (the enqueue itself, not the job it enqueues).
func (p *PeriodicEnqueuer) Stop() {
	p.mu.Lock()
	c := p.cron
	p.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
}
