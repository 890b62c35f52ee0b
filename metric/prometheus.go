package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/spargo/sched"
)

// Prometheus implements sched.Observer with Prometheus collectors.
type Prometheus struct {
	launches   *prometheus.CounterVec
	points     *prometheus.CounterVec
	waitTime   *prometheus.HistogramVec
	runTime    *prometheus.HistogramVec
	queueDepth prometheus.Gauge
	iterations prometheus.Counter
	residual   prometheus.Gauge
	saves      *prometheus.CounterVec
	saveTime   prometheus.Histogram
}

var _ sched.Observer = (*Prometheus)(nil)

// NewPrometheus creates the collectors under namespace and registers them
// with reg. A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheus(namespace string, reg prometheus.Registerer) (*Prometheus, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &Prometheus{
		launches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "launches_total",
			Help:      "Index launches completed, by task and status.",
		}, []string{"task", "status"}),
		points: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "launch_points_total",
			Help:      "Point tasks executed, by task.",
		}, []string{"task"}),
		waitTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "launch_wait_seconds",
			Help:      "Time a launch spent waiting on dependences and futures.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}, []string{"task"}),
		runTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "launch_run_seconds",
			Help:      "Time a launch spent executing point tasks.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}, []string{"task"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Launches submitted but not finished.",
		}),
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solver_iterations_total",
			Help:      "Solver iterations whose residual has resolved.",
		}),
		residual: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "solver_residual_norm_squared",
			Help:      "Most recent resolved squared residual norm.",
		}),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_total",
			Help:      "Checkpoint saves, by status.",
		}, []string{"status"}),
		saveTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkpoint_seconds",
			Help:      "Duration of checkpoint saves.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	for _, c := range []prometheus.Collector{p.launches, p.points, p.waitTime, p.runTime, p.queueDepth, p.iterations, p.residual, p.saves, p.saveTime} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// MustNewPrometheus is like NewPrometheus but panics on registration errors.
func MustNewPrometheus(namespace string, reg prometheus.Registerer) *Prometheus {
	p, err := NewPrometheus(namespace, reg)
	if err != nil {
		panic(err)
	}
	return p
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// OnLaunch implements sched.Observer.
func (p *Prometheus) OnLaunch(task string, points int, wait, run time.Duration, err error) {
	p.launches.WithLabelValues(task, status(err)).Inc()
	p.points.WithLabelValues(task).Add(float64(points))
	p.waitTime.WithLabelValues(task).Observe(wait.Seconds())
	p.runTime.WithLabelValues(task).Observe(run.Seconds())
}

// OnQueueDepth implements sched.Observer.
func (p *Prometheus) OnQueueDepth(depth int) {
	p.queueDepth.Set(float64(depth))
}

// ObserveResidual records a resolved residual of the solver history.
func (p *Prometheus) ObserveResidual(rr float64) {
	p.iterations.Inc()
	p.residual.Set(rr)
}

// ObserveCheckpoint records a checkpoint save.
func (p *Prometheus) ObserveCheckpoint(d time.Duration, err error) {
	p.saves.WithLabelValues(status(err)).Inc()
	p.saveTime.Observe(d.Seconds())
}
