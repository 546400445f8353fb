package executor

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/nuagenetworks/tripleo-config/pkg/container"
	"github.com/nuagenetworks/tripleo-config/pkg/jobs"
	"github.com/nuagenetworks/tripleo-config/pkg/util/generator"
	"github.com/nuagenetworks/tripleo-config/pkg/util/retry"
)

// Engine is the part of the container CLI a PuppetRunner needs.
type Engine interface {
	ImageExists(image string) bool
	Pull(image string) container.Output
	Run(args []string, env []string) container.Output
	Remove(name string)
}

func DefaultPullPolicy() retry.Policy {
	return retry.Policy{Attempts: 5, Backoff: 3 * time.Second, Accept: retry.ZeroExit}
}

func DefaultRunPolicy() retry.Policy {
	return retry.Policy{Attempts: 3, Backoff: 3 * time.Second, Accept: IsPuppetSuccess}
}

// PuppetRunner runs a merged job as a container-puppet container:
// remove leftovers, pull the image, run with retries, clean up.
type PuppetRunner struct {
	PullPolicy retry.Policy
	RunPolicy  retry.Policy
	Names      generator.NameGenerator
	// Environ is the host environment the engine specific process
	// environment is picked from.
	Environ []string
	// TempDir holds the manifest files, os.TempDir() when empty.
	TempDir string

	engine  Engine
	builder *container.InvocationBuilder
	logger  log.Logger
}

func NewPuppetRunner(engine Engine, builder *container.InvocationBuilder, logger log.Logger) *PuppetRunner {
	return &PuppetRunner{
		PullPolicy: DefaultPullPolicy(),
		RunPolicy:  DefaultRunPolicy(),
		Names:      generator.SimpleNameGenerator,
		Environ:    os.Environ(),
		engine:     engine,
		builder:    builder,
		logger:     logger,
	}
}

func (r *PuppetRunner) RunJob(ctx context.Context, job jobs.MergedJob) (result ExecutionResult) {
	result.ConfigVolume = job.ConfigVolume
	logger := log.With(r.logger, "config_volume", job.ConfigVolume)
	logger.Log(
		"msg", "starting configuration",
		"image", job.Image,
		"v", 1,
	)

	manifest, err := r.writeManifest(job)
	if err != nil {
		result.ExitCode = -1
		result.Err = err
		level.Error(logger).Log("msg", "failed to write manifest", "err", err)
		return result
	}
	defer os.Remove(manifest)

	name := r.Names.GenerateName("container-puppet-" + job.ConfigVolume)
	r.engine.Remove(name)
	r.pullImage(ctx, logger, job.Image)

	args, err := r.builder.Build(job, name, manifest)
	if err != nil {
		result.ExitCode = -1
		result.Err = err
		return result
	}
	env := r.builder.ProcessEnv(r.Environ)
	logger.Log(
		"msg", "running container",
		"name", name,
		"args", strings.Join(args, " "),
		"v", 2,
	)

	outcome, err := r.RunPolicy.Do(ctx, func(attempt int) int {
		out := r.engine.Run(args, env)
		result.Stdout, result.Stderr = out.Stdout, out.Stderr
		if r.RunPolicy.Accepts(out.ExitCode) {
			return out.ExitCode
		}

		level.Error(logger).Log(
			"msg", "run failed",
			"name", name,
			"attempt", attempt,
			"status", out.ExitCode,
			"stderr", strings.TrimSpace(out.Stderr),
		)
		r.engine.Remove(name)
		if attempt < r.RunPolicy.Attempts {
			level.Warn(logger).Log("msg", "retrying running container", "name", name)
		}
		return out.ExitCode
	})
	result.Attempts = outcome.Attempts
	result.ExitCode = outcome.Code

	if err != nil {
		result.Err = errors.Wrapf(err, "running %s", name)
		logger.Log("msg", "stdout of failed run", "stdout", strings.TrimSpace(result.Stdout), "v", 2)
		level.Error(logger).Log("msg", "failed running container", "name", name, "err", result.Err)
	} else {
		logger.Log("msg", "run succeeded", "name", name, "status", result.ExitCode, "stdout", strings.TrimSpace(result.Stdout), "v", 2)
		if stderr := strings.TrimSpace(result.Stderr); stderr != "" {
			level.Warn(logger).Log("msg", "run succeeded with output on stderr", "name", name, "stderr", stderr)
		}
		r.engine.Remove(name)
	}

	logger.Log("msg", "finished processing puppet configs", "v", 1)
	return result
}

// pullImage makes sure image is available locally. A terminal pull
// failure is only logged, the following run then fails on its own.
func (r *PuppetRunner) pullImage(ctx context.Context, logger log.Logger, image string) {
	logger = log.With(logger, "image", image)
	if r.engine.ImageExists(image) {
		logger.Log("msg", "image already exists", "v", 1)
		return
	}

	logger.Log("msg", "pulling image", "v", 1)
	_, err := r.PullPolicy.Do(ctx, func(attempt int) int {
		out := r.engine.Pull(image)
		if !r.PullPolicy.Accepts(out.ExitCode) {
			level.Warn(logger).Log(
				"msg", "pull failed",
				"attempt", attempt,
				"status", out.ExitCode,
				"stderr", strings.TrimSpace(out.Stderr),
			)
		}
		return out.ExitCode
	})
	if err != nil {
		level.Error(logger).Log("msg", "failed to pull image", "err", err)
	}
}

func (r *PuppetRunner) writeManifest(job jobs.MergedJob) (string, error) {
	f, err := os.CreateTemp(r.TempDir, "container-puppet-manifest-")
	if err != nil {
		return "", errors.Wrap(err, "creating manifest")
	}
	if _, err := f.WriteString(job.Manifest); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", errors.Wrap(err, "writing manifest")
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", errors.Wrap(err, "closing manifest")
	}
	return f.Name(), nil
}
