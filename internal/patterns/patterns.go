// Package patterns recognizes vulnerability ID schemes so IDs from the
// command line, config and policy file can be compared with the IDs and
// aliases the checker reports.
package patterns

import (
	"regexp"
	"strings"
)

// Scheme names
const (
	SchemePYSEC  = "PYSEC"
	SchemeGHSA   = "GHSA"
	SchemeCVE    = "CVE"
	SchemeSafety = "safety-db"
	SchemeOSV    = "OSV"
)

// Pattern holds a compiled regex and the scheme it identifies.
type Pattern struct {
	Regex   *regexp.Regexp
	Name    string
	Pattern string // original pattern string
}

// Known lists the recognized schemes, most specific first. Matching is
// case-insensitive; Canonical fixes the case afterwards.
var Known = []Pattern{
	MustCompile(`(?i)^PYSEC-\d{4}-\d+$`, SchemePYSEC),
	MustCompile(`(?i)^GHSA(-[23456789cfghjmpqrvwx]{4}){3}$`, SchemeGHSA),
	MustCompile(`(?i)^CVE-\d{4}-\d{4,}$`, SchemeCVE),
	MustCompile(`^\d+$`, SchemeSafety),
	MustCompile(`(?i)^[A-Z][A-Z0-9]*-[A-Z0-9][A-Z0-9._:-]*$`, SchemeOSV),
}

// Classify returns the scheme name of id, or "" when no scheme matches.
func Classify(id string) string {
	id = strings.TrimSpace(id)
	for _, p := range Known {
		if p.Regex.MatchString(id) {
			return p.Name
		}
	}
	return ""
}

// Canonical returns id in the form OSV publishes it: upper-case prefixes,
// and for GHSA a lower-case tail ("GHSA-j8r2-6x86-q33q"). Unknown IDs are
// only trimmed.
func Canonical(id string) string {
	id = strings.TrimSpace(id)
	switch Classify(id) {
	case SchemeGHSA:
		return "GHSA" + strings.ToLower(id[4:])
	case SchemePYSEC, SchemeCVE, SchemeOSV:
		return strings.ToUpper(id)
	}
	return id
}

// Compile compiles a pattern string into a Pattern with the given name.
// Returns an error if the pattern is invalid.
func Compile(pattern, name string) (Pattern, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Pattern{}, err
	}
	return Pattern{Regex: re, Name: name, Pattern: pattern}, nil
}

// MustCompile is like Compile but panics if the pattern is invalid.
func MustCompile(pattern, name string) Pattern {
	p, err := Compile(pattern, name)
	if err != nil {
		panic(err)
	}
	return p
}
