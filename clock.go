package exq

import "time"

// Package-level mockable clock, grounded on the teacher's time.go. Widened
// to float64 seconds-with-nanosecond-precision because spec.md's
// enqueued_at/scheduled scores are floating epoch seconds, not integer
// Unix seconds like the teacher's own wire format.
var nowMock float64

func nowEpochSeconds() float64 {
	if nowMock != 0 {
		return nowMock
	}
	return float64(time.Now().UnixNano()) / 1e9
}

func setNowEpochSecondsMock(t float64) {
	nowMock = t
}

func resetNowEpochSecondsMock() {
	nowMock = 0
}
