// Package checker defines the contract between the hook and the
// vulnerability database it queries.
package checker

import (
	"context"
	"sort"
	"time"

	"github.com/dgerlanc/safety-check/internal/options"
	"github.com/dgerlanc/safety-check/internal/patterns"
	"github.com/dgerlanc/safety-check/internal/requirement"
)

// Vulnerability is one advisory matching one requirement.
type Vulnerability struct {
	ID            string   `json:"id"`
	Aliases       []string `json:"aliases,omitempty"`
	Package       string   `json:"package"`
	Version       string   `json:"version"`
	Summary       string   `json:"summary,omitempty"`
	FixedVersions []string `json:"fixed_versions,omitempty"`
	Severity      string   `json:"severity,omitempty"`
}

// IDs returns the advisory ID followed by its aliases.
func (v Vulnerability) IDs() []string {
	return append([]string{v.ID}, v.Aliases...)
}

// Options are passed with every check.
type Options struct {
	// IgnoreVulns lists IDs to drop from the result. An ID matches a
	// finding's ID or any of its aliases.
	IgnoreVulns options.IgnoreList
	// Telemetry allows sending client metadata with queries.
	Telemetry bool
	// Cached is how long responses may be reused. Zero disables caching.
	Cached time.Duration
}

// Checker looks up known vulnerabilities for a set of requirements.
//
//go:generate mockgen -source=checker.go -destination=mocks/mock_checker.go -package=mocks
type Checker interface {
	// Check returns the vulnerabilities affecting reqs, minus the ignored ones.
	Check(ctx context.Context, reqs []requirement.Requirement, opts Options) ([]Vulnerability, error)
}

// FilterIgnored splits vulns into kept and ignored findings. IDs compare in
// canonical form, so "ghsa-J8R2-..." ignores "GHSA-j8r2-...".
func FilterIgnored(vulns []Vulnerability, ignore options.IgnoreList) (kept, ignored []Vulnerability) {
	if len(ignore) == 0 {
		return vulns, nil
	}

	canonical := make(map[string]bool, len(ignore))
	for id := range ignore {
		canonical[patterns.Canonical(id)] = true
	}

	for _, v := range vulns {
		hit := false
		for _, id := range v.IDs() {
			if canonical[patterns.Canonical(id)] {
				hit = true
				break
			}
		}
		if hit {
			ignored = append(ignored, v)
		} else {
			kept = append(kept, v)
		}
	}
	return kept, ignored
}

// Sort orders vulns by package, version and ID.
func Sort(vulns []Vulnerability) {
	sort.SliceStable(vulns, func(i, j int) bool {
		a, b := vulns[i], vulns[j]
		if a.Package != b.Package {
			return a.Package < b.Package
		}
		if a.Version != b.Version {
			return a.Version < b.Version
		}
		return a.ID < b.ID
	})
}
