package exq

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// CronSpec builds a six-field (seconds-resolution) cron expression for
// PeriodicEnqueuer, the way the teacher's timer_spec.go built one for its
// AddCronTask registrations. Grounded on that file; renamed from TimerSpec
// to CronSpec and restructured around named field indices instead of a
// bare positional slice, since this package's only caller is
// PeriodicEnqueuer.Register rather than a generic cron task runner.
type CronSpec struct {
	second, minute, hour, dayOfMonth, month, dayOfWeek cronField
	rawCron                                            string
	err                                                 error
}

// cronField is one position of a six-field cron expression: either "*"
// (start < 0), a fixed value, or a fixed value with a "/interval" step.
type cronField struct {
	start    int
	interval int
}

// Weekday names the dayOfWeek field's accepted values for Weekly.
type Weekday int

const (
	Sunday Weekday = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

const (
	timeOfDayPattern  = `^(20|21|22|23|[0-1]\d):[0-5]\d:[0-5]\d$`
	hourMinutePattern = `^[0-5]\d:[0-5]\d$`
	minutePattern     = `^[0-5]\d$`
)

// NewSpec returns a CronSpec matching every tick ("* * * * * *") until one
// of the builder methods below narrows it.
func NewSpec() *CronSpec {
	s := &CronSpec{}
	return s.reset()
}

func (s *CronSpec) reset() *CronSpec {
	s.second = cronField{start: -1}
	s.minute = cronField{start: -1}
	s.hour = cronField{start: -1}
	s.dayOfMonth = cronField{start: -1}
	s.month = cronField{start: -1}
	s.dayOfWeek = cronField{start: -1}
	s.err = nil
	s.rawCron = ""
	return s
}

// Minutely fires once a minute at the given second, format "ss".
func (s *CronSpec) Minutely(atSecond string) {
	if !regexp.MustCompile(minutePattern).MatchString(atSecond) {
		s.err = errors.New("invalid minutely spec, expected ss")
		return
	}
	s.reset()
	s.second.start, _ = strconv.Atoi(atSecond)
}

// Hourly fires once an hour at the given minute:second, format "mm:ss".
func (s *CronSpec) Hourly(at string) {
	if !regexp.MustCompile(hourMinutePattern).MatchString(at) {
		s.err = errors.New("invalid hourly spec, expected mm:ss")
		return
	}
	parts := strings.Split(at, ":")
	s.reset()
	s.minute.start, _ = strconv.Atoi(parts[0])
	s.second.start, _ = strconv.Atoi(parts[1])
}

// Daily fires once a day at the given time of day, format "hh:mm:ss".
func (s *CronSpec) Daily(at string) {
	if !regexp.MustCompile(timeOfDayPattern).MatchString(at) {
		s.err = errors.New("invalid daily spec, expected hh:mm:ss")
		return
	}
	parts := strings.Split(at, ":")
	s.reset()
	s.hour.start, _ = strconv.Atoi(parts[0])
	s.minute.start, _ = strconv.Atoi(parts[1])
	s.second.start, _ = strconv.Atoi(parts[2])
}

// Weekly fires once a week on day, at the given time of day (defaulting to
// midnight).
func (s *CronSpec) Weekly(at string, day Weekday) {
	if at == "" {
		at = "00:00:00"
	}
	s.Daily(at)
	s.dayOfWeek.start = int(day)
}

// Monthly fires once a month on the given day-of-month (1-28, days that
// every month has), at the given time of day.
func (s *CronSpec) Monthly(at string, day int) {
	if at == "" {
		at = "00:00:00"
	}
	s.Daily(at)
	if day < 1 || day > 28 {
		s.err = errors.New("invalid day of month, expected 1-28")
		return
	}
	s.dayOfMonth.start = day
}

// EverySeconds fires every interval seconds.
func (s *CronSpec) EverySeconds(interval int) {
	s.reset()
	s.second.interval = interval
}

// EveryMinutes fires every interval minutes, anchored to the current
// second so restarts don't drift the tick.
func (s *CronSpec) EveryMinutes(interval int) {
	s.reset()
	s.second.start = time.Now().Second()
	s.minute.interval = interval
}

// EveryHours fires every interval hours, anchored to the current
// minute:second.
func (s *CronSpec) EveryHours(interval int) {
	s.reset()
	now := time.Now()
	s.second.start = now.Second()
	s.minute.start = now.Minute()
	s.hour.interval = interval
}

// RawCron bypasses the builder methods entirely with a hand-written
// six-field expression, for schedules the helpers above can't express.
func (s *CronSpec) RawCron(expr string) {
	s.reset()
	s.rawCron = expr
}

// Spec renders the accumulated builder calls into a robfig/cron/v3
// seconds-resolution expression.
func (s *CronSpec) Spec() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.rawCron != "" {
		return s.rawCron, nil
	}

	fields := []cronField{s.second, s.minute, s.hour, s.dayOfMonth, s.month, s.dayOfWeek}
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = renderCronField(f)
	}
	return strings.Join(parts, " "), nil
}

func renderCronField(f cronField) string {
	out := "*"
	if f.start >= 0 {
		out = strconv.Itoa(f.start)
	}
	if f.interval > 0 {
		out = fmt.Sprintf("%s/%d", out, f.interval)
	}
	return out
}
