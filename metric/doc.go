// Package metric exports runtime and solver metrics to Prometheus.
//
//	reg := prometheus.NewRegistry()
//	obs := metric.MustNewPrometheus("spargo", reg)
//	rt := sched.NewRuntime(sched.WithObserver(obs))
package metric
