package exq

import (
	"sync"
	"time"

	cron "github.com/robfig/cron/v3"
)

// Scheduler is C5: it polls `schedule` and `retry` on a fixed interval and
// promotes due entries into their ready queues via Client.SchedulerDequeue.
// Grounded on vendor/.../go-workers/scheduled.go's poll loop, but driven by
// github.com/robfig/cron/v3 instead of a hand-rolled time.Sleep loop -- a
// fixed-delay cron.Schedule entry gives the same fixed-interval tick with
// the library the teacher's own go.mod already requires. (cron's own
// "@every" spec rounds intervals below one second up to a whole second,
// so it is not used here.)
//
// Only one Scheduler runs per Manager; multiple processes polling is safe
// by construction since SchedulerDequeue promotes each entry atomically.
type Scheduler struct {
	client   *Client
	setKeys  []string
	interval time.Duration

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	running bool
}

// NewScheduler builds a Scheduler over the schedule+retry sets for the
// given namespace.
func NewScheduler(client *Client, namespace string, pollInterval time.Duration) *Scheduler {
	return &Scheduler{
		client:   client,
		setKeys:  []string{redisKeySchedule(namespace), redisKeyRetry(namespace)},
		interval: pollInterval,
	}
}

// Start begins polling. Disabled by default at the Manager level (spec.md
// §4.5); once started it runs until Stop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	s.cron = cron.New(cron.WithSeconds())
	s.entryID = s.cron.Schedule(fixedInterval(s.interval), cron.FuncJob(s.poll))
	s.cron.Start()
	s.running = true
	return nil
}

// Stop halts polling. In-flight promotions are allowed to finish (each is a
// single atomic script invocation, never left half-done).
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
}

// fixedInterval is a cron.Schedule that fires every d, sub-second
// intervals included.
type fixedInterval time.Duration

func (d fixedInterval) Next(t time.Time) time.Time { return t.Add(time.Duration(d)) }

func (s *Scheduler) poll() {
	if _, err := s.client.SchedulerDequeue(s.setKeys, nowEpochSeconds()); err != nil {
		logError("scheduler.poll", err)
	}
}
