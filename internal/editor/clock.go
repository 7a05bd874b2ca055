package editor

import "time"

// Timer is the subset of *time.Timer the scheduler uses.
type Timer interface {
	Stop() bool
}

// Clock abstracts time so the auto-save scheduler can be driven by tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// RealClock is the wall clock.
var RealClock Clock = realClock{}
