package service

import "time"

// Clock is the source of the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reports wall-clock UTC time at second precision.
var SystemClock Clock = ClockFunc(func() time.Time {
	return time.Now().UTC().Truncate(time.Second)
})
