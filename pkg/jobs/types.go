package jobs

import (
	"fmt"
)

// ManifestPreamble is written once at the top of every merged manifest.
const ManifestPreamble = "include ::tripleo::packages"

// JobSpec is one normalized entry of the job source.
type JobSpec struct {
	ConfigVolume  string
	Tags          string
	Manifest      string
	Image         string
	Volumes       []string
	Privileged    bool
	KeepContainer bool
}

// Actionable reports whether the spec carries both a manifest and an image.
func (s JobSpec) Actionable() bool {
	return s.Manifest != "" && s.Image != ""
}

// MergedJob is the unit of work handed to the executor: all JobSpecs that
// share a config volume folded together.
type MergedJob struct {
	ConfigVolume  string
	Tags          string
	Manifest      string
	Image         string
	Volumes       []string
	Privileged    bool
	KeepContainer bool
}

func (j MergedJob) String() string {
	return fmt.Sprintf("%s(image=%s tags=%q volumes=%d privileged=%t keep=%t)",
		j.ConfigVolume, j.Image, j.Tags, len(j.Volumes), j.Privileged, j.KeepContainer)
}

// ConfigurationError reports a job source that cannot be interpreted.
type ConfigurationError struct {
	Index  int
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid job source: %s", e.Reason)
	}
	return fmt.Sprintf("invalid job descriptor #%d: %s", e.Index, e.Reason)
}
