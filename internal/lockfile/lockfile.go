// Package lockfile loads Pipfile.lock documents.
package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// MetaKey is the top-level key holding lockfile metadata rather than a category.
const MetaKey = "_meta"

var (
	// ErrNotFound is returned when the lockfile does not exist.
	ErrNotFound = errors.New("lockfile not found")
	// ErrInvalidJSON is returned when the lockfile cannot be decoded.
	ErrInvalidJSON = errors.New("lockfile is not valid JSON")
	// ErrInvalidEntry is returned when a package entry of a category is not
	// an object with the expected field types.
	ErrInvalidEntry = errors.New("lockfile has an invalid package entry")
)

// Dependency is one package entry of a category.
type Dependency struct {
	Version  string   `json:"version,omitempty"`
	Hashes   []string `json:"hashes,omitempty"`
	Markers  string   `json:"markers,omitempty"`
	Index    string   `json:"index,omitempty"`
	Extras   []string `json:"extras,omitempty"`
	Git      string   `json:"git,omitempty"`
	Ref      string   `json:"ref,omitempty"`
	Path     string   `json:"path,omitempty"`
	File     string   `json:"file,omitempty"`
	Editable bool     `json:"editable,omitempty"`
}

// Dependencies maps package name to its entry.
type Dependencies map[string]Dependency

// Names returns the package names in sorted order.
func (d Dependencies) Names() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Source is a package index from _meta.sources.
type Source struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	VerifySSL bool   `json:"verify_ssl"`
}

// Meta is the _meta block.
type Meta struct {
	Hash        map[string]string `json:"hash,omitempty"`
	PipfileSpec int               `json:"pipfile-spec,omitempty"`
	Requires    map[string]string `json:"requires,omitempty"`
	Sources     []Source          `json:"sources,omitempty"`
}

// Lockfile is a decoded Pipfile.lock.
type Lockfile struct {
	Path       string
	Meta       Meta
	Categories map[string]Dependencies
}

// Has reports whether the lockfile has a category called name.
func (l *Lockfile) Has(name string) bool {
	_, ok := l.Categories[name]
	return ok
}

// CategoryNames returns the category names in sorted order.
func (l *Lockfile) CategoryNames() []string {
	names := make([]string, 0, len(l.Categories))
	for name := range l.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Parse decodes lockfile data. Top-level values that are not objects are
// not categories and are skipped. A package entry that does not decode is an
// error, so no package is silently left out of a scan.
func Parse(data []byte) (*Lockfile, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	lock := &Lockfile{Categories: make(map[string]Dependencies)}
	for key, value := range raw {
		if key == MetaKey {
			if err := json.Unmarshal(value, &lock.Meta); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidJSON, MetaKey, err)
			}
			continue
		}

		var entries map[string]json.RawMessage
		if err := json.Unmarshal(value, &entries); err != nil {
			continue
		}
		deps := make(Dependencies, len(entries))
		for name, entry := range entries {
			var dep Dependency
			if err := json.Unmarshal(entry, &dep); err != nil {
				return nil, fmt.Errorf("%w: %s/%s: %v", ErrInvalidEntry, key, name, err)
			}
			deps[name] = dep
		}
		lock.Categories[key] = deps
	}
	return lock, nil
}

// Load reads and parses the lockfile called name in dir.
func Load(dir, name string) (*Lockfile, error) {
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}

	lock, err := Parse(data)
	if err != nil {
		return nil, err
	}
	lock.Path = path
	return lock, nil
}
