package jobs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/go-kit/log"
	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"
)

// positional order of tuple shaped descriptors
const (
	posConfigVolume = iota
	posTags
	posManifest
	posImage
	posVolumes
	posPrivileged
	posKeepContainer
	maxPositional
)

type namedDescriptor struct {
	ConfigVolume  string   `json:"config_volume"`
	Tags          string   `json:"puppet_tags"`
	Manifest      string   `json:"step_config"`
	Image         string   `json:"config_image"`
	Volumes       []string `json:"volumes"`
	Privileged    bool     `json:"privileged"`
	KeepContainer bool     `json:"keep_container"`
}

// Loader turns a job source into JobSpecs.
type Loader struct {
	// ConfigVolume restricts the output to a single config volume when set.
	ConfigVolume string

	logger log.Logger
}

func NewLoader(configVolume string, logger log.Logger) *Loader {
	return &Loader{
		ConfigVolume: configVolume,
		logger:       log.With(logger, "component", "loader"),
	}
}

func (l *Loader) LoadFile(path string) ([]JobSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening job source")
	}
	defer f.Close()
	return l.Load(f)
}

// Load reads a JSON (or YAML) array of job descriptors. Descriptors may be
// positional arrays or objects; both end up as JobSpec. Entries without a
// manifest or an image are dropped.
func (l *Loader) Load(r io.Reader) ([]JobSpec, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading job source")
	}
	if !json.Valid(data) {
		if data, err = yaml.YAMLToJSON(data); err != nil {
			return nil, &ConfigurationError{Index: -1, Reason: err.Error()}
		}
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigurationError{Index: -1, Reason: "expected an array of job descriptors"}
	}

	specs := make([]JobSpec, 0, len(raw))
	for i, entry := range raw {
		entry = bytes.TrimSpace(entry)
		if len(entry) == 0 || bytes.Equal(entry, []byte("null")) {
			continue
		}
		spec, err := decodeDescriptor(entry)
		if err != nil {
			return nil, &ConfigurationError{Index: i, Reason: err.Error()}
		}

		if !spec.Actionable() {
			l.logger.Log(
				"msg", "skipping descriptor without manifest or image",
				"index", i,
				"config_volume", spec.ConfigVolume,
				"v", 2,
			)
			continue
		}
		if l.ConfigVolume != "" && spec.ConfigVolume != l.ConfigVolume {
			l.logger.Log(
				"msg", "ignoring config volume",
				"config_volume", spec.ConfigVolume,
				"only", l.ConfigVolume,
				"v", 2,
			)
			continue
		}

		l.logger.Log(
			"msg", "loaded descriptor",
			"config_volume", spec.ConfigVolume,
			"tags", spec.Tags,
			"image", spec.Image,
			"volumes", len(spec.Volumes),
			"privileged", spec.Privileged,
			"keep_container", spec.KeepContainer,
			"v", 2,
		)
		specs = append(specs, spec)
	}
	return specs, nil
}

func decodeDescriptor(entry json.RawMessage) (JobSpec, error) {
	switch entry[0] {
	case '{':
		var d namedDescriptor
		if err := json.Unmarshal(entry, &d); err != nil {
			return JobSpec{}, err
		}
		return JobSpec(d), nil
	case '[':
		return decodePositional(entry)
	default:
		return JobSpec{}, fmt.Errorf("expected an array or an object, got %s", entry)
	}
}

func decodePositional(entry json.RawMessage) (JobSpec, error) {
	var fields []json.RawMessage
	if err := json.Unmarshal(entry, &fields); err != nil {
		return JobSpec{}, err
	}
	if len(fields) <= posImage || len(fields) > maxPositional {
		return JobSpec{}, fmt.Errorf("expected %d to %d positional fields, got %d", posImage+1, maxPositional, len(fields))
	}

	var spec JobSpec
	targets := []interface{}{
		&spec.ConfigVolume,
		&spec.Tags,
		&spec.Manifest,
		&spec.Image,
		&spec.Volumes,
		&spec.Privileged,
		&spec.KeepContainer,
	}
	for i, field := range fields {
		if err := json.Unmarshal(field, targets[i]); err != nil {
			return JobSpec{}, errors.Wrapf(err, "field %d", i)
		}
	}
	return spec, nil
}
