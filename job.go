package exq

import (
	"encoding/json"

	simplejson "github.com/bitly/go-simplejson"
)

// Job is the wire-compatible payload described in spec.md §3/§6. Field
// names and shapes are bit-exact with the established Sidekiq format so
// that a Job enqueued by this process can be consumed by a peer, and vice
// versa. This replaces the teacher's own Job (job.go), whose "name"/"id"/
// "t"/"fails"/"err" fields are gocraft/work's private wire shape rather
// than the Sidekiq-compatible one this spec requires.
type Job struct {
	Jid          string        `json:"jid"`
	Class        string        `json:"class"`
	Args         []interface{} `json:"args"`
	Queue        string        `json:"queue"`
	EnqueuedAt   float64       `json:"enqueued_at"`
	Retry        RetryBudget   `json:"retry"`
	RetryCount   int           `json:"retry_count,omitempty"`
	FailedAt     float64       `json:"failed_at,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	ErrorClass   string        `json:"error_class,omitempty"`
	Processor    string        `json:"processor,omitempty"`

	raw []byte
}

// RetryBudget normalizes the open question in spec.md §9(a): peers encode
// `retry` as either a bool (use the process default budget) or an integer
// (an explicit budget). We accept either on decode and emit the form that
// was given (a bool stays a bool, a positive int stays an int; an int of 0
// or less decodes as disabled and is emitted as false), matching the
// normalization vendor/.../go-workers/middleware_retry.go does ad hoc on
// every read (`retry()`/`max`).
type RetryBudget struct {
	Enabled bool
	Max     int // only meaningful when Enabled and explicitly set
}

func (r RetryBudget) MarshalJSON() ([]byte, error) {
	if !r.Enabled {
		return json.Marshal(false)
	}
	if r.Max > 0 {
		return json.Marshal(r.Max)
	}
	return json.Marshal(true)
}

func (r *RetryBudget) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		r.Enabled = b
		r.Max = 0
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		r.Enabled = n > 0
		r.Max = n
		return nil
	}
	// Tolerate an unexpected shape (forward compatibility) by disabling retry.
	r.Enabled = false
	r.Max = 0
	return nil
}

// defaultRetryBudget is applied when a producer omits `retry` entirely.
func defaultRetryBudget() RetryBudget {
	return RetryBudget{Enabled: true}
}

// budget returns the effective retry ceiling, falling back to def when the
// job used the bare-bool form.
func (r RetryBudget) budget(def int) int {
	if !r.Enabled {
		return 0
	}
	if r.Max > 0 {
		return r.Max
	}
	return def
}

// encodeJob serializes a Job to its canonical wire form and caches the
// bytes, since LREM/ZREM match by exact value and every later operation on
// this Job needs to reproduce what was actually written to Redis.
func encodeJob(j *Job) ([]byte, error) {
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	j.raw = b
	return b, nil
}

// decodeJob parses a wire payload into a Job. It is tolerant of unknown
// fields the way vendor/.../go-workers/msg.go wraps bitly/go-simplejson
// rather than a strict struct -- we use the same library here to check for
// the required fields before the strict struct decode, so a payload that is
// valid JSON but missing jid/class is reported as MalformedJob instead of
// surfacing a generic unmarshal error to the caller.
func decodeJob(raw []byte) (*Job, error) {
	doc, err := simplejson.NewJson(raw)
	if err != nil {
		return nil, &Error{Kind: ErrMalformedJob, Message: "invalid job JSON: " + err.Error(), cause: err}
	}

	jid, err := doc.Get("jid").String()
	if err != nil || jid == "" {
		return nil, &Error{Kind: ErrMalformedJob, Message: "job missing jid"}
	}

	class, err := doc.Get("class").String()
	if err != nil || class == "" {
		return nil, &Error{Kind: ErrMalformedJob, Message: "job missing class"}
	}

	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, &Error{Kind: ErrMalformedJob, Message: "job decode failed: " + err.Error(), cause: err}
	}
	job.raw = raw

	return &job, nil
}

// Serialize returns the exact bytes used to round-trip this Job through
// Redis list/zset operations.
func (j *Job) Serialize() ([]byte, error) {
	if j.raw != nil {
		return j.raw, nil
	}
	return encodeJob(j)
}
