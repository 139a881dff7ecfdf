package exq

import (
	"strings"
	"sync"
)

// Handler is the external worker-invocation contract (spec.md §6's "out of
// scope" dynamic dispatch mechanism, brought in-process per design note
// "Dynamic worker dispatch -> registry + interface"). It decodes job.Args
// itself; exq only owns getting the Job to the handler and the handler's
// error back to C3.
type Handler func(job *Job) error

// Registry maps a Job's Class string to a Handler. The class may carry a
// "Module.Worker/method_name" method selector (spec.md §6); registry keys
// on the full string first, then falls back to the part before "/" so a
// single registration can serve every method selector of one worker, the
// way a single jobType in the teacher's worker_pool.go serves one job name.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register installs fn as the handler for class. Re-registering the same
// class replaces the previous handler, matching worker_pool.go's Job/
// JobWithOptions semantics (last registration for a name wins).
func (r *Registry) Register(class string, fn Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[class] = fn
}

// Lookup resolves a Job's Class to a Handler, honoring the "Module.Worker/
// method_name" selector form by falling back to the part before "/".
// Returns (nil, false) when no handler matches -- the caller converts that
// into a WorkerNotFound failure.
func (r *Registry) Lookup(class string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.handlers[class]; ok {
		return h, true
	}
	if i := strings.IndexByte(class, '/'); i >= 0 {
		if h, ok := r.handlers[class[:i]]; ok {
			return h, true
		}
	}
	return nil, false
}
