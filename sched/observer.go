package sched

import "time"

// Observer receives runtime events.
type Observer interface {
	// OnLaunch is called when every point of a launch has finished.
	// wait is the time spent on dependences, run the time spent executing.
	OnLaunch(task string, points int, wait, run time.Duration, err error)

	// OnQueueDepth reports the number of launches submitted but not finished.
	OnQueueDepth(depth int)
}

// NoopObserver is a no-op implementation of Observer.
type NoopObserver struct{}

func (NoopObserver) OnLaunch(task string, points int, wait, run time.Duration, err error) {}
func (NoopObserver) OnQueueDepth(depth int)                                               {}

// MultiObserver fans events out to several observers.
type MultiObserver []Observer

func (m MultiObserver) OnLaunch(task string, points int, wait, run time.Duration, err error) {
	for _, o := range m {
		o.OnLaunch(task, points, wait, run, err)
	}
}

func (m MultiObserver) OnQueueDepth(depth int) {
	for _, o := range m {
		o.OnQueueDepth(depth)
	}
}
