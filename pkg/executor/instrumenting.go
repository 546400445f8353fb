package executor

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nuagenetworks/tripleo-config/pkg/jobs"
)

type InstrumentingRunner struct {
	JobRunner

	Latency    *prometheus.SummaryVec
	Total      *prometheus.CounterVec
	Successful *prometheus.CounterVec
	Failed     *prometheus.CounterVec
	Attempts   *prometheus.CounterVec
}

func (ir *InstrumentingRunner) RunJob(ctx context.Context, job jobs.MergedJob) (result ExecutionResult) {
	defer func(begin time.Time) {
		labels := prometheus.Labels{"config_volume": job.ConfigVolume}

		ir.Latency.With(labels).Observe(time.Since(begin).Seconds())
		ir.Total.With(labels).Add(1)
		ir.Attempts.With(labels).Add(float64(result.Attempts))
		if result.Succeeded() {
			ir.Successful.With(labels).Add(1)
		} else {
			ir.Failed.With(labels).Add(1)
		}
	}(time.Now())
	return ir.JobRunner.RunJob(ctx, job)
}
