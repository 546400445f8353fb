package executor

import (
	"context"
	"time"

	"github.com/go-kit/log"

	"github.com/nuagenetworks/tripleo-config/pkg/jobs"
)

type LoggingRunner struct {
	Runner JobRunner
	Logger log.Logger
}

func (r *LoggingRunner) RunJob(ctx context.Context, job jobs.MergedJob) (result ExecutionResult) {
	defer func(begin time.Time) {
		r.Logger.Log(
			"msg", "configured volume",
			"config_volume", job.ConfigVolume,
			"image", job.Image,
			"status", result.ExitCode,
			"attempts", result.Attempts,
			"success", result.Succeeded(),
			"took", time.Since(begin),
			"v", 1,
			"err", result.Err,
		)
	}(time.Now())
	return r.Runner.RunJob(ctx, job)
}
