package spargo

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/hupe1980/spargo/sched"
)

// MetricsCollector receives runtime and solver events.
// metric.Prometheus implements it for Prometheus.
type MetricsCollector interface {
	sched.Observer

	// ObserveResidual is called once per resolved entry of the residual
	// history, in order.
	ObserveResidual(rr float64)

	// ObserveCheckpoint is called after each checkpoint save.
	ObserveCheckpoint(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct {
	sched.NoopObserver
}

func (NoopMetricsCollector) ObserveResidual(float64)                {}
func (NoopMetricsCollector) ObserveCheckpoint(time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	Launches         atomic.Int64
	LaunchErrors     atomic.Int64
	Points           atomic.Int64
	WaitNanos        atomic.Int64
	RunNanos         atomic.Int64
	QueueDepth       atomic.Int64
	MaxQueueDepth    atomic.Int64
	Residuals        atomic.Int64
	lastResidual     atomic.Uint64
	Checkpoints      atomic.Int64
	CheckpointErrors atomic.Int64
}

// OnLaunch implements sched.Observer.
func (b *BasicMetricsCollector) OnLaunch(_ string, points int, wait, run time.Duration, err error) {
	b.Launches.Add(1)
	b.Points.Add(int64(points))
	b.WaitNanos.Add(wait.Nanoseconds())
	b.RunNanos.Add(run.Nanoseconds())
	if err != nil {
		b.LaunchErrors.Add(1)
	}
}

// OnQueueDepth implements sched.Observer.
func (b *BasicMetricsCollector) OnQueueDepth(depth int) {
	d := int64(depth)
	b.QueueDepth.Store(d)
	for {
		cur := b.MaxQueueDepth.Load()
		if d <= cur || b.MaxQueueDepth.CompareAndSwap(cur, d) {
			return
		}
	}
}

// ObserveResidual implements MetricsCollector.
func (b *BasicMetricsCollector) ObserveResidual(rr float64) {
	b.Residuals.Add(1)
	b.lastResidual.Store(math.Float64bits(rr))
}

// ObserveCheckpoint implements MetricsCollector.
func (b *BasicMetricsCollector) ObserveCheckpoint(_ time.Duration, err error) {
	b.Checkpoints.Add(1)
	if err != nil {
		b.CheckpointErrors.Add(1)
	}
}

// LastResidual returns the most recent observed residual.
func (b *BasicMetricsCollector) LastResidual() float64 {
	return math.Float64frombits(b.lastResidual.Load())
}

// Stats is a point-in-time copy of the collected metrics.
type Stats struct {
	Launches         int64
	LaunchErrors     int64
	Points           int64
	AvgLaunchRun     time.Duration
	MaxQueueDepth    int64
	Residuals        int64
	LastResidual     float64
	Checkpoints      int64
	CheckpointErrors int64
}

// GetStats returns current statistics.
func (b *BasicMetricsCollector) GetStats() Stats {
	s := Stats{
		Launches:         b.Launches.Load(),
		LaunchErrors:     b.LaunchErrors.Load(),
		Points:           b.Points.Load(),
		MaxQueueDepth:    b.MaxQueueDepth.Load(),
		Residuals:        b.Residuals.Load(),
		LastResidual:     b.LastResidual(),
		Checkpoints:      b.Checkpoints.Load(),
		CheckpointErrors: b.CheckpointErrors.Load(),
	}
	if s.Launches > 0 {
		s.AvgLaunchRun = time.Duration(b.RunNanos.Load() / s.Launches)
	}
	return s
}

// multiCollector fans events out to several collectors.
type multiCollector []MetricsCollector

func (m multiCollector) OnLaunch(task string, points int, wait, run time.Duration, err error) {
	for _, c := range m {
		c.OnLaunch(task, points, wait, run, err)
	}
}

func (m multiCollector) OnQueueDepth(depth int) {
	for _, c := range m {
		c.OnQueueDepth(depth)
	}
}

func (m multiCollector) ObserveResidual(rr float64) {
	for _, c := range m {
		c.ObserveResidual(rr)
	}
}

func (m multiCollector) ObserveCheckpoint(d time.Duration, err error) {
	for _, c := range m {
		c.ObserveCheckpoint(d, err)
	}
}
