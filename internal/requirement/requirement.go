// Package requirement turns merged lockfile dependencies into flat
// name+specifier requirements.
package requirement

import (
	"regexp"
	"sort"
	"strings"

	pep440 "github.com/aquasecurity/go-pep440-version"
	"github.com/dgerlanc/safety-check/internal/lockfile"
	"github.com/dgerlanc/safety-check/internal/logger"
)

var separators = regexp.MustCompile(`[-_.]+`)

// Requirement is a package name and its version specifier, e.g. "==2.19.1".
type Requirement struct {
	Name      string
	Specifier string
}

// String returns the requirement in pip form, "name==1.0".
func (r Requirement) String() string {
	return r.Name + r.Specifier
}

// NormalizedName returns the PEP 503 form of the name.
func (r Requirement) NormalizedName() string {
	return Normalize(r.Name)
}

// Pinned returns the exact version when the specifier pins one with == or ===.
// Wildcards and ranges are not pins.
func (r Requirement) Pinned() (string, bool) {
	spec := strings.TrimSpace(r.Specifier)
	var v string
	switch {
	case strings.HasPrefix(spec, "==="):
		v = strings.TrimSpace(spec[3:])
	case strings.HasPrefix(spec, "=="):
		v = strings.TrimSpace(spec[2:])
	default:
		return "", false
	}
	if v == "" || strings.ContainsAny(v, "*,") {
		return "", false
	}
	if _, err := pep440.Parse(v); err != nil {
		return "", false
	}
	return v, true
}

// Normalize lowercases name and collapses runs of -, _ and . into a dash.
func Normalize(name string) string {
	return separators.ReplaceAllString(strings.ToLower(name), "-")
}

// FromDependencies builds one requirement per dependency that has a version.
// VCS, path and file dependencies have none and are skipped. The result is
// sorted by normalized name.
func FromDependencies(deps lockfile.Dependencies) []Requirement {
	reqs := make([]Requirement, 0, len(deps))
	for name, dep := range deps {
		if name == "" {
			continue
		}
		if dep.Version == "" {
			logger.Debug("skipping dependency without version", "package", name,
				"git", dep.Git, "path", dep.Path, "file", dep.File)
			continue
		}
		reqs = append(reqs, Requirement{Name: name, Specifier: dep.Version})
	}
	sort.Slice(reqs, func(i, j int) bool {
		a, b := reqs[i].NormalizedName(), reqs[j].NormalizedName()
		if a != b {
			return a < b
		}
		return reqs[i].Name < reqs[j].Name
	})
	return reqs
}

// Strings returns the pip form of each requirement.
func Strings(reqs []Requirement) []string {
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = r.String()
	}
	return out
}
