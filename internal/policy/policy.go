// Package policy reads safety-db style policy files.
//
// Only the ignore list is used:
//
//	security:
//	  ignore-vulnerabilities:
//	    "51457":
//	      reason: not exploitable here
//	      expires: "2027-01-01"
package policy

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dgerlanc/safety-check/internal/options"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by Load when the policy file does not exist.
var ErrNotFound = errors.New("policy file not found")

// dateLayouts are the accepted forms of "expires".
var dateLayouts = []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339}

// File is the YAML document.
type File struct {
	Security Security `yaml:"security"`
}

// Security is the security section of a policy file.
type Security struct {
	IgnoreVulnerabilities map[string]*Entry `yaml:"ignore-vulnerabilities"`
}

// Entry is a single ignored vulnerability. Both fields are optional.
type Entry struct {
	Reason  string `yaml:"reason"`
	Expires string `yaml:"expires"`
}

// Parse decodes a policy document and converts it into an IgnoreList.
func Parse(data []byte) (options.IgnoreList, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid policy YAML: %w", err)
	}

	list := options.IgnoreList{}
	for id, e := range f.Security.IgnoreVulnerabilities {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		entry := options.IgnoreEntry{}
		if e != nil {
			entry.Reason = e.Reason
			if e.Expires != "" {
				t, err := parseDate(e.Expires)
				if err != nil {
					return nil, fmt.Errorf("vulnerability %s: %w", id, err)
				}
				entry.Expires = &t
			}
		}
		list[id] = entry
	}
	return list, nil
}

// Load reads and parses the policy file at path.
func Load(path string) (options.IgnoreList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	list, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return list, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid expires date %q (want YYYY-MM-DD)", s)
}
