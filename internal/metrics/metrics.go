package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	TasksStartedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camstage_tasks_started_total",
			Help: "Total number of tasks created, by intent.",
		},
		[]string{"intent"}, // none, blob, app
	)

	CallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camstage_callbacks_total",
			Help: "Total number of device callbacks, by outcome.",
		},
		[]string{"outcome"}, // completed, duplicate, not_found, decode_error, error
	)

	SweepDeletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camstage_sweep_deleted_total",
			Help: "Total number of records removed by the retention sweeper.",
		},
		[]string{"kind"}, // task, blob
	)

	SweepRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "camstage_sweep_runs_total",
			Help: "Total number of retention sweeps.",
		},
	)
)

func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(TasksStartedTotal, CallbacksTotal, SweepDeletedTotal, SweepRunsTotal)
}

func RecordTaskStarted(intent string) {
	TasksStartedTotal.WithLabelValues(intent).Inc()
}

func RecordCallback(outcome string) {
	CallbacksTotal.WithLabelValues(outcome).Inc()
}

func RecordSweep(tasks, blobs int) {
	SweepRunsTotal.Inc()
	SweepDeletedTotal.WithLabelValues("task").Add(float64(tasks))
	SweepDeletedTotal.WithLabelValues("blob").Add(float64(blobs))
}
