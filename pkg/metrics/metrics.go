package metrics

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricNamespace = "container_puppet"
)

var JobOperationsLatency = prometheus.NewSummaryVec(
	prometheus.SummaryOpts{
		Namespace: metricNamespace,
		Subsystem: "job",
		Name:      "duration_seconds",
		Help:      "Total duration of a configuration job in seconds.",
	},
	[]string{"config_volume"})

var JobOperationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metricNamespace,
		Subsystem: "job",
		Name:      "operations_total",
		Help:      "Number of configuration jobs run.",
	},
	[]string{"config_volume"})

var JobSuccessfulOperationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metricNamespace,
		Subsystem: "job",
		Name:      "successful_operations_total",
		Help:      "Number of configuration jobs that ended with exit code 0 or 2.",
	},
	[]string{"config_volume"})

var JobFailedOperationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metricNamespace,
		Subsystem: "job",
		Name:      "failed_operations_total",
		Help:      "Number of configuration jobs that failed after all attempts.",
	},
	[]string{"config_volume"})

var JobAttemptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metricNamespace,
		Subsystem: "job",
		Name:      "attempts_total",
		Help:      "Number of container runs made for configuration jobs.",
	},
	[]string{"config_volume"})

var StampedConfigsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: metricNamespace,
		Subsystem: "startup_config",
		Name:      "stamped_total",
		Help:      "Number of startup configs written with a config hash.",
	})

func init() {
	prometheus.MustRegister(
		JobOperationsLatency,
		JobOperationsTotal,
		JobSuccessfulOperationsTotal,
		JobFailedOperationsTotal,
		JobAttemptsTotal,
		StampedConfigsTotal,
	)
}

// WriteTextfile dumps the default registry in the text exposition format,
// for pickup by the node exporter textfile collector.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return errors.Wrap(prometheus.WriteToTextfile(path, prometheus.DefaultGatherer), "writing metrics")
}
