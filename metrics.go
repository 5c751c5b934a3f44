package ckpt

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	saves           prometheus.Counter
	restores        prometheus.Counter
	migrations      prometheus.Counter
	restoreErrors   *prometheus.CounterVec
	saveDuration    prometheus.Histogram
	restoreDuration prometheus.Histogram
}

func newMetrics(registerer prometheus.Registerer, namespace, subsystem string) *metrics {
	if registerer != nil {
		registerer = prometheus.WrapRegistererWith(
			prometheus.Labels{"component": "ckpt"},
			registerer,
		)
	}

	m := metrics{
		saves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "saves",
			Help:      "Number of checkpoints saved",
		}),
		restores: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "restores",
			Help:      "Number of checkpoints restored",
		}),
		migrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "migrations",
			Help:      "Number of checkpoints re-encoded during restore",
		}),
		restoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "restore_errors",
			Help:      "Number of failed restores",
		}, []string{"type"}),
		saveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "save_duration",
			Help:      "Duration of checkpoint saves",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		restoreDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "restore_duration",
			Help:      "Duration of checkpoint restores",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.saves,
			m.restores,
			m.migrations,
			m.restoreErrors,
			m.saveDuration,
			m.restoreDuration,
		)
	}

	return &m
}

func (m *metrics) restoreError(kind string) {
	m.restoreErrors.WithLabelValues(kind).Inc()
}
