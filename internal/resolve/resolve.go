// Package resolve merges the selected lockfile categories into a single
// dependency mapping.
package resolve

import (
	"sort"
	"strings"

	"github.com/dgerlanc/safety-check/internal/lockfile"
)

// MissingCategoriesError lists selected categories absent from the lockfile.
type MissingCategoriesError struct {
	Names []string
}

func (e *MissingCategoriesError) Error() string {
	return "categories not found in lockfile: " + strings.Join(e.Names, ", ")
}

// Missing returns the selected categories the lockfile does not have, sorted.
func Missing(lock *lockfile.Lockfile, selected []string) []string {
	var missing []string
	seen := make(map[string]bool, len(selected))
	for _, name := range selected {
		if seen[name] {
			continue
		}
		seen[name] = true
		if !lock.Has(name) {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// Resolve merges the dependencies of every selected category, in order.
// A package present in several categories takes the entry of the last one.
// If any selected category is missing nothing is merged and the error is a
// *MissingCategoriesError, so a typo cannot silently skip a group.
func Resolve(lock *lockfile.Lockfile, selected []string) (lockfile.Dependencies, error) {
	if missing := Missing(lock, selected); len(missing) > 0 {
		return nil, &MissingCategoriesError{Names: missing}
	}

	merged := make(lockfile.Dependencies)
	for _, name := range selected {
		for pkg, dep := range lock.Categories[name] {
			merged[pkg] = dep
		}
	}
	return merged, nil
}
