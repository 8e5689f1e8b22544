// Package report renders scan findings for the terminal or for machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dgerlanc/safety-check/internal/checker"
	"github.com/dgerlanc/safety-check/internal/options"
)

// Report is the rendered outcome of a scan.
type Report struct {
	Lockfile        string                  `json:"lockfile"`
	Categories      []string                `json:"categories"`
	Requirements    int                     `json:"requirements"`
	Vulnerabilities []checker.Vulnerability `json:"vulnerabilities"`
	Count           int                     `json:"count"`
	Ignored         []string                `json:"ignored"`
}

// Write renders r to w in the given format.
func Write(w io.Writer, format string, r Report) error {
	switch format {
	case options.OutputJSON:
		return WriteJSON(w, r)
	default:
		return WriteText(w, r)
	}
}

// WriteJSON writes r as indented JSON.
func WriteJSON(w io.Writer, r Report) error {
	r.Count = len(r.Vulnerabilities)
	if r.Vulnerabilities == nil {
		r.Vulnerabilities = []checker.Vulnerability{}
	}
	if r.Ignored == nil {
		r.Ignored = []string{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteText writes one line per finding and a summary line.
func WriteText(w io.Writer, r Report) error {
	for _, v := range r.Vulnerabilities {
		line := fmt.Sprintf("%s==%s  %s", v.Package, v.Version, v.ID)
		if len(v.Aliases) > 0 {
			line += " (" + strings.Join(v.Aliases, ", ") + ")"
		}
		if v.Summary != "" {
			line += "  " + v.Summary
		}
		if len(v.FixedVersions) > 0 {
			line += "  [fixed in " + strings.Join(v.FixedVersions, ", ") + "]"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintln(w, Summary(r))
	return err
}

// Summary returns the one-line result of a scan.
func Summary(r Report) string {
	n := len(r.Vulnerabilities)
	var b strings.Builder
	switch n {
	case 0:
		b.WriteString("No known vulnerabilities found")
	case 1:
		b.WriteString("1 vulnerability found")
	default:
		fmt.Fprintf(&b, "%d vulnerabilities found", n)
	}
	fmt.Fprintf(&b, " in %d packages (%s)", r.Requirements, strings.Join(r.Categories, ", "))
	if len(r.Ignored) > 0 {
		fmt.Fprintf(&b, ", %d ignored", len(r.Ignored))
	}
	return b.String()
}
