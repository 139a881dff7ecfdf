package exq

import (
	"fmt"
	"runtime/debug"

	"github.com/gocraft/health"
)

// Stream is the package-wide gocraft/health sink. Grounded on
// health/queue.go's use of *health.Job to emit gauges/timings around
// Redis-backed work; by default a stream with a no-op sink so tests and
// simple programs don't need a sink wired up, and swapped in via
// UseHealthStream for processes that want C4's stats instrumented.
var Stream = health.NewStream()

func init() {
	Stream.AddSink(&health.WriterSink{Writer: nopWriter{}})
}

// UseHealthStream lets a caller attach a real sink (health.WriterSink,
// a statsd sink, etc.) in place of the no-op default.
func UseHealthStream(s *health.Stream) {
	Stream = s
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

// logError reports an error that must never abort the caller (spec.md §4.4:
// "failure to write statistics MUST NOT abort job execution; it is logged
// and swallowed"). Grounded on the teacher's log.go.
func logError(key string, err error) {
	fmt.Printf("ERROR: %s - %s\n", key, err.Error())
	debug.PrintStack()
}
