package core

import "time"

// Task is a handle to scheduled work. Stop reports whether it prevented
// the task from running.
type Task interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Task
}

// TimeScheduler schedules on the runtime timer heap.
type TimeScheduler struct{}

func (TimeScheduler) AfterFunc(d time.Duration, f func()) Task {
	return time.AfterFunc(d, f)
}
