package ddprofiler

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	ddprofilerSubsystem = "ddprofiler"

	tasksSubmittedTotal = "tasks_submitted_total"
	tasksFinishedTotal  = "tasks_finished_total"
	profilesTotal       = "profiles_total"
	queueLength         = "queue_length"
	activeWorkers       = "active_workers"
	taskDuration        = "task_duration_seconds"

	// Labels
	kindLabel    = "kind"
	outcomeLabel = "outcome"
)

// Outcomes
const (
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
	outcomeWritten   = "written"
)

var tasksSubmittedMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: ddprofilerSubsystem,
		Name:      tasksSubmittedTotal,
		Help:      "number of task descriptors submitted",
	},
	[]string{kindLabel},
)

var tasksFinishedMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: ddprofilerSubsystem,
		Name:      tasksFinishedTotal,
		Help:      "number of tasks executed, by outcome",
	},
	[]string{kindLabel, outcomeLabel},
)

var profilesMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: ddprofilerSubsystem,
		Name:      profilesTotal,
		Help:      "number of column profiles handed to the store, by outcome",
	},
	[]string{outcomeLabel},
)

var queueLengthMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: ddprofilerSubsystem,
		Name:      queueLength,
		Help:      "number of queued tasks not yet dispatched to a worker",
	},
)

var activeWorkersMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: ddprofilerSubsystem,
		Name:      activeWorkers,
		Help:      "number of workers executing a task",
	},
)

var taskDurationMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: ddprofilerSubsystem,
		Name:      taskDuration,
		Help:      "time spent profiling and storing one source",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	},
	[]string{kindLabel},
)

func observeSubmit(kind string) {
	tasksSubmittedMetric.With(prometheus.Labels{kindLabel: kind}).Inc()
}

func observeResult(res TaskResult) {
	kind := string(res.Descriptor.Kind())
	outcome := outcomeCompleted
	if res.Err != nil {
		outcome = outcomeFailed
	}
	tasksFinishedMetric.With(prometheus.Labels{kindLabel: kind, outcomeLabel: outcome}).Inc()
	taskDurationMetric.With(prometheus.Labels{kindLabel: kind}).Observe(res.Duration.Seconds())
	profilesMetric.With(prometheus.Labels{outcomeLabel: outcomeWritten}).Add(float64(res.Profiles))
	profilesMetric.With(prometheus.Labels{outcomeLabel: outcomeFailed}).Add(float64(res.WriteFailures))
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(tasksSubmittedMetric)
	prometheus.MustRegister(tasksFinishedMetric)
	prometheus.MustRegister(profilesMetric)
	prometheus.MustRegister(queueLengthMetric)
	prometheus.MustRegister(activeWorkersMetric)
	prometheus.MustRegister(taskDurationMetric)
}
