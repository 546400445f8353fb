package jobs

import (
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// MergedJobs is an insertion ordered map from config volume to MergedJob.
type MergedJobs struct {
	keys []string
	jobs map[string]*MergedJob
}

func NewMergedJobs() *MergedJobs {
	return &MergedJobs{jobs: map[string]*MergedJob{}}
}

// Keys returns the config volumes in first-seen order.
func (m *MergedJobs) Keys() []string {
	return append([]string(nil), m.keys...)
}

func (m *MergedJobs) Get(configVolume string) (MergedJob, bool) {
	job, ok := m.jobs[configVolume]
	if !ok {
		return MergedJob{}, false
	}
	return *job, true
}

func (m *MergedJobs) Len() int {
	return len(m.keys)
}

// Each calls fn for every job in first-seen order.
func (m *MergedJobs) Each(fn func(MergedJob)) {
	for _, key := range m.keys {
		fn(*m.jobs[key])
	}
}

// Merge folds specs sharing a config volume into a single MergedJob. Tags
// and manifests are appended in arrival order, volumes concatenated and the
// privileged/keep flags OR-ed. The first image seen for a volume wins; a
// later differing image is only logged.
func Merge(specs []JobSpec, logger log.Logger) *MergedJobs {
	logger = log.With(logger, "component", "merger")
	merged := NewMergedJobs()

	for _, spec := range specs {
		job, exists := merged.jobs[spec.ConfigVolume]
		if !exists {
			logger.Log(
				"msg", "adding new service",
				"config_volume", spec.ConfigVolume,
				"v", 2,
			)
			merged.keys = append(merged.keys, spec.ConfigVolume)
			merged.jobs[spec.ConfigVolume] = &MergedJob{
				ConfigVolume:  spec.ConfigVolume,
				Tags:          spec.Tags,
				Manifest:      ManifestPreamble + "\n" + spec.Manifest,
				Image:         spec.Image,
				Volumes:       append([]string(nil), spec.Volumes...),
				Privileged:    spec.Privileged,
				KeepContainer: spec.KeepContainer,
			}
			continue
		}

		logger.Log(
			"msg", "existing service, appending tags and manifest",
			"config_volume", spec.ConfigVolume,
			"v", 2,
		)
		job.Tags = joinTags(job.Tags, spec.Tags)
		if spec.Manifest != "" {
			job.Manifest = job.Manifest + "\n" + spec.Manifest
		}
		if spec.Image != job.Image {
			level.Warn(logger).Log(
				"msg", "config images do not match even though shared volumes are the same",
				"config_volume", spec.ConfigVolume,
				"image", job.Image,
				"ignored_image", spec.Image,
			)
		}
		job.Volumes = append(job.Volumes, spec.Volumes...)
		job.Privileged = job.Privileged || spec.Privileged
		job.KeepContainer = job.KeepContainer || spec.KeepContainer
	}

	return merged
}

func joinTags(tags ...string) string {
	nonEmpty := make([]string, 0, len(tags))
	for _, t := range tags {
		if t != "" {
			nonEmpty = append(nonEmpty, t)
		}
	}
	return strings.Join(nonEmpty, ",")
}
