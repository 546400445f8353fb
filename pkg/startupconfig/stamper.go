package startupconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/go-kit/log"
	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/sets"
)

const (
	// HashKey is the environment entry carrying the composite config hash.
	HashKey = "TRIPLEO_CONFIG_HASH"
	// ProcessedPrefix marks stamped output files.
	ProcessedPrefix = "hashed-"
	// DefaultPattern locates the startup configs written by the deployment.
	DefaultPattern = "/var/lib/tripleo-config/container_startup_config/*/*.json"

	hashSuffix    = ".md5sum"
	hashSeparator = "-"
	generatedDir  = "puppet-generated"
	outputMode    = 0600
)

// ResolutionError is returned when a mount below the prefix has no config
// base directory.
type ResolutionError struct {
	Prefix string
	Path   string
}

func (e ResolutionError) Error() string {
	return fmt.Sprintf("could not find config base for %q below %q", e.Path, e.Prefix)
}

// ConfigBase walks upward from path until the parent directory is either
// prefix or prefix/puppet-generated and returns that directory.
func ConfigBase(prefix, path string) (string, error) {
	base := strings.TrimRight(prefix, string(filepath.Separator))
	generated := filepath.Join(base, generatedDir)

	for current := path; strings.HasPrefix(current, prefix); {
		parent := filepath.Dir(current)
		if parent == base || parent == generated {
			return current, nil
		}
		if parent == current {
			break
		}
		current = parent
	}
	return "", ResolutionError{Prefix: prefix, Path: path}
}

type Stamper struct {
	prefix string
	logger log.Logger
}

func NewStamper(prefix string, logger log.Logger) *Stamper {
	return &Stamper{
		prefix: prefix,
		logger: log.With(logger, "component", "stamper"),
	}
}

// Stamp processes every descriptor matching pattern and returns the paths of
// the stamped files. Files already carrying the processed prefix are skipped.
func (s *Stamper) Stamp(pattern string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid startup config pattern %q", pattern)
	}

	var written []string
	for _, infile := range matches {
		if IsProcessed(infile) {
			s.logger.Log(
				"msg", "skipped, already hashed",
				"file", infile,
				"v", 2,
			)
			continue
		}
		outfile, err := s.StampFile(infile)
		if err != nil {
			return written, err
		}
		written = append(written, outfile)
	}
	return written, nil
}

// StampFile writes the stamped sibling of infile and returns its path.
func (s *Stamper) StampFile(infile string) (string, error) {
	raw, err := os.ReadFile(infile)
	if err != nil {
		return "", errors.Wrap(err, "reading startup config")
	}

	descriptor, err := decode(raw)
	if err != nil {
		return "", errors.Wrapf(err, "decoding startup config %s", infile)
	}

	bases, err := s.configBases(descriptor["volumes"])
	if err != nil {
		return "", errors.Wrapf(err, "resolving volumes of %s", infile)
	}

	hash, err := compositeHash(bases)
	if err != nil {
		return "", err
	}

	if hash != "" {
		s.logger.Log(
			"msg", "updating config hash",
			"file", infile,
			"hash", hash,
			"v", 2,
		)
		if descriptor, err = setEnvironment(descriptor, HashKey, hash); err != nil {
			return "", errors.Wrapf(err, "stamping %s", infile)
		}
	}

	doc, err := encode(descriptor, "  ")
	if err != nil {
		return "", err
	}

	outfile := filepath.Join(filepath.Dir(infile), ProcessedPrefix+filepath.Base(infile))
	if err := os.WriteFile(outfile, doc, outputMode); err != nil {
		return "", errors.Wrap(err, "writing stamped startup config")
	}
	// WriteFile keeps the mode of an existing file
	if err := os.Chmod(outfile, outputMode); err != nil {
		return "", errors.Wrap(err, "restricting stamped startup config")
	}
	return outfile, nil
}

// IsProcessed reports whether path names stamped output.
func IsProcessed(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ProcessedPrefix)
}

func (s *Stamper) configBases(volumes interface{}) ([]string, error) {
	if volumes == nil {
		return nil, nil
	}
	list, ok := volumes.([]interface{})
	if !ok {
		return nil, errors.Errorf("volumes must be a list, got %T", volumes)
	}

	bases := sets.NewString()
	for _, v := range list {
		volume, ok := v.(string)
		if !ok || !strings.HasPrefix(volume, s.prefix) {
			continue
		}
		base, err := ConfigBase(s.prefix, strings.SplitN(volume, ":", 2)[0])
		if err != nil {
			return nil, err
		}
		bases.Insert(base)
	}
	return bases.List(), nil
}

func compositeHash(bases []string) (string, error) {
	var hashes []string
	for _, base := range bases {
		data, err := os.ReadFile(base + hashSuffix)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return "", errors.Wrap(err, "reading config hash")
		}
		if hash := strings.TrimRightFunc(string(data), unicode.IsSpace); hash != "" {
			hashes = append(hashes, hash)
		}
	}
	return strings.Join(hashes, hashSeparator), nil
}

// setEnvironment merges key=value into the environment object of descriptor.
// An environment that is null or not an object is replaced.
func setEnvironment(descriptor map[string]interface{}, key, value string) (map[string]interface{}, error) {
	doc, err := encode(descriptor, "")
	if err != nil {
		return nil, err
	}
	patch, err := json.Marshal(map[string]interface{}{
		"environment": map[string]string{key: value},
	})
	if err != nil {
		return nil, err
	}
	merged, err := jsonpatch.MergePatch(doc, patch)
	if err != nil {
		return nil, err
	}
	return decode(merged)
}

// decode parses a descriptor. Empty and null bodies yield an empty object.
func decode(raw []byte) (map[string]interface{}, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]interface{}{}, nil
	}
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case nil:
		return map[string]interface{}{}, nil
	case map[string]interface{}:
		return t, nil
	}
	return nil, errors.Errorf("startup config must be an object, got %T", v)
}

func encode(descriptor map[string]interface{}, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", indent)
	if err := enc.Encode(descriptor); err != nil {
		return nil, errors.Wrap(err, "encoding startup config")
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
