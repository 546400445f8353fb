package executor

import (
	"context"
	"runtime"
	"sync"

	"github.com/go-kit/log"
	"k8s.io/client-go/util/workqueue"

	"github.com/nuagenetworks/tripleo-config/pkg/jobs"
)

// JobRunner owns the complete lifecycle of one merged job.
type JobRunner interface {
	RunJob(ctx context.Context, job jobs.MergedJob) ExecutionResult
}

// Executor fans merged jobs out to a fixed number of workers.
type Executor struct {
	runner  JobRunner
	workers int
	logger  log.Logger
}

// New returns an Executor running at most workers jobs at a time. A
// non-positive worker count means one worker per logical CPU.
func New(runner JobRunner, workers int, logger log.Logger) *Executor {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Executor{
		runner:  runner,
		workers: workers,
		logger:  log.With(logger, "component", "executor"),
	}
}

func (e *Executor) Workers() int {
	return e.workers
}

// Execute runs every job in merged and blocks until all of them returned a
// result. Jobs not started before ctx is done are recorded as failed.
func (e *Executor) Execute(ctx context.Context, merged *jobs.MergedJobs) *Results {
	keys := merged.Keys()
	results := newResults(keys)

	queue := workqueue.New()
	for _, key := range keys {
		queue.Add(key)
	}
	// queued items are still handed out after shutdown, the workers exit
	// once the queue is drained
	queue.ShutDown()

	workers := e.workers
	if workers > len(keys) {
		workers = len(keys)
	}
	e.logger.Log(
		"msg", "starting configuration steps",
		"jobs", len(keys),
		"workers", workers,
		"v", 1,
	)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e.processNextWorkItem(ctx, queue, merged, results) {
			}
		}()
	}
	wg.Wait()

	return results
}

func (e *Executor) processNextWorkItem(ctx context.Context, queue workqueue.Interface, merged *jobs.MergedJobs, results *Results) bool {
	key, quit := queue.Get()
	if quit {
		return false
	}
	defer queue.Done(key)

	job, _ := merged.Get(key.(string))
	if err := ctx.Err(); err != nil {
		results.set(ExecutionResult{ConfigVolume: job.ConfigVolume, ExitCode: -1, Err: err})
		return true
	}

	result := e.runner.RunJob(ctx, job)
	result.ConfigVolume = job.ConfigVolume
	results.set(result)
	return true
}
