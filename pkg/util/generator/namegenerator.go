package generator

import (
	"fmt"
	"strings"

	utilrand "k8s.io/apimachinery/pkg/util/rand"
)

type NameGenerator interface {
	// GenerateName returns base followed by a dash and a random suffix.
	// The result is lower case and never longer than MaxNameLength.
	GenerateName(base string) string

	// Prefix returns the static part of a generated name.
	Prefix(base string) string
}

type simpleNameGenerator struct{}

// SimpleNameGenerator appends eight random alphanumerics to the base, which
// keeps container names unique across concurrent runs of the same job.
var SimpleNameGenerator NameGenerator = simpleNameGenerator{}

const (
	MaxNameLength          = 128
	RandomLength           = 8
	MaxGeneratedNameLength = MaxNameLength - RandomLength - 1
)

func (simpleNameGenerator) Prefix(base string) string {
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			return r
		}
		return '_'
	}, base)
	if len(base) > MaxGeneratedNameLength {
		base = base[:MaxGeneratedNameLength]
	}
	return base
}

func (s simpleNameGenerator) GenerateName(base string) string {
	return strings.ToLower(fmt.Sprintf("%s-%s", s.Prefix(base), utilrand.String(RandomLength)))
}
