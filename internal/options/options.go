// Package options holds the per-invocation scan settings and the parsers that
// build them from command-line values.
package options

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/dgerlanc/safety-check/internal/constants"
)

// Output formats
const (
	OutputText = "text"
	OutputJSON = "json"
)

// IgnoreEntry is the metadata attached to an ignored vulnerability ID.
// A nil Expires means the entry never expires.
type IgnoreEntry struct {
	Expires *time.Time `json:"expires"`
	Reason  string     `json:"reason"`
}

// IgnoreList maps vulnerability IDs to their ignore metadata.
type IgnoreList map[string]IgnoreEntry

// Has reports whether id is ignored.
func (l IgnoreList) Has(id string) bool {
	_, ok := l[id]
	return ok
}

// IDs returns the ignored IDs in sorted order.
func (l IgnoreList) IDs() []string {
	ids := make([]string, 0, len(l))
	for id := range l {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Merge copies every entry of other into l. Entries from other win.
func (l IgnoreList) Merge(other IgnoreList) {
	for id, e := range other {
		l[id] = e
	}
}

// Prune removes entries that expired before now and returns their IDs.
func (l IgnoreList) Prune(now time.Time) []string {
	var expired []string
	for id, e := range l {
		if e.Expires != nil && e.Expires.Before(now) {
			expired = append(expired, id)
			delete(l, id)
		}
	}
	sort.Strings(expired)
	return expired
}

// Options configures a single scan. It is built once from config and flags
// and not changed afterwards.
type Options struct {
	// Categories are the lockfile categories to scan, in merge order.
	Categories []string
	// Ignore lists vulnerability IDs excluded from the findings.
	Ignore IgnoreList
	// Caching is the checker cache TTL in seconds. Zero disables caching.
	Caching int
	// Telemetry lets the checker send client metadata upstream.
	Telemetry bool

	Output        string
	CheckRequires bool
	Python        string
	PolicyFile    string
	AuditLog      string
	LockfileName  string
	OSVURL        string
}

// Default returns the built-in defaults.
func Default() Options {
	return Options{
		Categories:   []string{constants.DefaultCategory},
		Ignore:       IgnoreList{},
		Caching:      constants.DefaultCachingSecs,
		Output:       OutputText,
		Python:       constants.DefaultPython,
		LockfileName: constants.LockfileName,
		OSVURL:       constants.DefaultOSVURL,
	}
}

// CacheTTL returns Caching as a duration.
func (o Options) CacheTTL() time.Duration {
	return time.Duration(o.Caching) * time.Second
}

// Validate checks values that flags and config cannot constrain by type.
func (o Options) Validate() error {
	if len(o.Categories) == 0 {
		return fmt.Errorf("no categories selected")
	}
	if o.Caching < 0 {
		return fmt.Errorf("caching must be zero or positive, got %d", o.Caching)
	}
	if o.Output != OutputText && o.Output != OutputJSON {
		return fmt.Errorf("unknown output format %q (want %s or %s)", o.Output, OutputText, OutputJSON)
	}
	return nil
}

// ParseCategories splits s on commas and whitespace. Empty fields are dropped
// and duplicates collapse; first occurrence order is kept.
func ParseCategories(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	return AddCategories(nil, fields...)
}

// AddCategories appends names to cats, skipping ones already present.
func AddCategories(cats []string, names ...string) []string {
	for _, n := range names {
		if n == "" || slices.Contains(cats, n) {
			continue
		}
		cats = append(cats, n)
	}
	return cats
}

// ParseIgnore splits s on commas into an IgnoreList with empty metadata.
func ParseIgnore(s string) IgnoreList {
	list := IgnoreList{}
	for _, id := range strings.Split(s, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		list[id] = IgnoreEntry{}
	}
	return list
}
