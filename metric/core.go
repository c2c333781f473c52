package metric

import "github.com/prometheus/client_golang/prometheus"

// KernelMetrics holds the core metrics every management context exposes
type KernelMetrics struct {
	TasksSubmitted  prometheus.Counter
	TasksCompleted  prometheus.Counter
	TasksFailed     prometheus.Counter
	TasksCancelled  prometheus.Counter
	PollsFired      prometheus.Counter
	PollsSkipped    prometheus.Counter
	ConfigCascades  prometheus.Counter
	EntitiesManaged prometheus.Gauge
}

func newKernelMetrics() *KernelMetrics {
	return &KernelMetrics{
		TasksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kernel_tasks_submitted_total",
			Help: "Total units of work submitted to the execution manager",
		}),
		TasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kernel_tasks_completed_total",
			Help: "Total units of work that ran to completion",
		}),
		TasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kernel_tasks_failed_total",
			Help: "Total units of work that ended in error",
		}),
		TasksCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kernel_tasks_cancelled_total",
			Help: "Total units of work cancelled before completion",
		}),
		PollsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kernel_polls_fired_total",
			Help: "Total poll job firings across all pollers",
		}),
		PollsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kernel_polls_skipped_total",
			Help: "Total poll firings skipped due to entity gating",
		}),
		ConfigCascades: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kernel_config_cascades_total",
			Help: "Total inherited-config recomputations triggered by writes",
		}),
		EntitiesManaged: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kernel_entities_managed",
			Help: "Entities currently under active management",
		}),
	}
}

func (m *KernelMetrics) collectors() map[string]prometheus.Collector {
	return map[string]prometheus.Collector{
		"kernel_tasks_submitted_total": m.TasksSubmitted,
		"kernel_tasks_completed_total": m.TasksCompleted,
		"kernel_tasks_failed_total":    m.TasksFailed,
		"kernel_tasks_cancelled_total": m.TasksCancelled,
		"kernel_polls_fired_total":     m.PollsFired,
		"kernel_polls_skipped_total":   m.PollsSkipped,
		"kernel_config_cascades_total": m.ConfigCascades,
		"kernel_entities_managed":      m.EntitiesManaged,
	}
}
