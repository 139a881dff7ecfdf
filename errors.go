package exq

// Credits: https://github.com/honeybadger-io/honeybadger-go/blob/master/error.go
// (kept from the teacher's error.go; generalized from an ad hoc honeybadger-
// style reporter into the typed error kinds spec.md §7 names.)

import (
	"fmt"
	"runtime"
	"strconv"

	"github.com/pkg/errors"
)

// ErrorKind enumerates spec.md §7's error taxonomy.
type ErrorKind int

const (
	// ErrRedisUnavailable is propagated to the caller on enqueue; on the
	// dequeue path it is retried after a back-off sleep instead.
	ErrRedisUnavailable ErrorKind = iota
	// ErrMalformedJob is discarded straight to the dead list.
	ErrMalformedJob
	// ErrWorkerNotFound means the registry had no handler for job.Class.
	ErrWorkerNotFound
	// ErrWorkerRaised wraps a panic/error surfaced from a worker invocation.
	ErrWorkerRaised
	// ErrStatsWriteFailed is logged and swallowed; it never aborts a job.
	ErrStatsWriteFailed
)

func (k ErrorKind) String() string {
	switch k {
	case ErrRedisUnavailable:
		return "RedisUnavailable"
	case ErrMalformedJob:
		return "MalformedJob"
	case ErrWorkerNotFound:
		return "WorkerNotFound"
	case ErrWorkerRaised:
		return "WorkerRaised"
	case ErrStatsWriteFailed:
		return "StatsWriteFailed"
	default:
		return "Unknown"
	}
}

const maxFrames = 20

// Frame is a single stack frame captured at Error construction time.
type Frame struct {
	Number string `json:"number"`
	File   string `json:"file"`
	Method string `json:"method"`
}

// Error is exq's structured error type. Kind drives the propagation policy
// in spec.md §7; Message/Class/Stack give enough detail to populate a
// failed Job's error_message/error_class fields.
type Error struct {
	Kind    ErrorKind
	Message string
	Class   string
	Stack   []*Frame
	cause   error
}

func (e *Error) Error() string {
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// newError wraps an arbitrary panic/error value (as recovered from a
// worker invocation) into an *Error of the given kind, capturing a stack
// trace the way the teacher's newError did for honeybadger reports.
func newError(kind ErrorKind, thing interface{}, stackOffset int) *Error {
	var cause error
	switch t := thing.(type) {
	case *Error:
		return t
	case error:
		cause = t
	default:
		cause = fmt.Errorf("%v", t)
	}

	return &Error{
		Kind:    kind,
		Message: cause.Error(),
		Class:   errors.Cause(cause).Error(),
		Stack:   generateStack(stackOffset),
		cause:   cause,
	}
}

func generateStack(offset int) []*Frame {
	stack := make([]uintptr, maxFrames)
	length := runtime.Callers(2+offset, stack[:])

	frames := runtime.CallersFrames(stack[:length])
	result := make([]*Frame, 0, length)

	for {
		frame, more := frames.Next()

		result = append(result, &Frame{
			File:   frame.File,
			Number: strconv.Itoa(frame.Line),
			Method: frame.Function,
		})

		if !more {
			break
		}
	}

	return result
}
