// Package markers checks the interpreter requirements recorded in a
// lockfile's _meta.requires block against the local environment.
package markers

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	pep440 "github.com/aquasecurity/go-pep440-version"
	"mvdan.cc/sh/v3/shell"
)

// Marker names understood by Lookup.
const (
	PythonVersion     = "python_version"
	PythonFullVersion = "python_full_version"
)

// Mismatch is a requirement the environment does not satisfy.
type Mismatch struct {
	Key      string
	Required string
	Actual   string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: lockfile requires %s, found %s", m.Key, m.Required, m.Actual)
}

// Check compares every key of requires against lookup. Keys lookup does not
// know are skipped. Versions compare by PEP 440 equality, anything else as
// plain strings. Results are sorted by key.
func Check(requires, lookup map[string]string) []Mismatch {
	var failed []Mismatch
	for key, required := range requires {
		actual, ok := lookup[key]
		if !ok {
			continue
		}
		if !equal(required, actual) {
			failed = append(failed, Mismatch{Key: key, Required: required, Actual: actual})
		}
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i].Key < failed[j].Key })
	return failed
}

func equal(required, actual string) bool {
	rv, err1 := pep440.Parse(required)
	av, err2 := pep440.Parse(actual)
	if err1 != nil || err2 != nil {
		return strings.TrimSpace(required) == strings.TrimSpace(actual)
	}
	return rv.Compare(av) == 0
}

// Lookup runs the interpreter command with --version and returns the
// python_version and python_full_version markers. command is split with
// POSIX shell rules, so "uv run python" or "$PYENV_ROOT/shims/python" work.
func Lookup(ctx context.Context, command string) (map[string]string, error) {
	args, err := shell.Fields(command, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid python command %q: %w", command, err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("empty python command")
	}

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], append(args[1:], "--version")...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("failed to run %q: %w", command, err)
	}
	return ParseVersionOutput(out.String())
}

// ParseVersionOutput reads "Python X.Y.Z" as printed by python --version.
func ParseVersionOutput(s string) (map[string]string, error) {
	fields := strings.Fields(s)
	if len(fields) < 2 || fields[0] != "Python" {
		return nil, fmt.Errorf("unexpected python --version output %q", strings.TrimSpace(s))
	}
	full := fields[1]
	if _, err := pep440.Parse(full); err != nil {
		return nil, fmt.Errorf("unexpected python version %q: %w", full, err)
	}

	parts := strings.SplitN(full, ".", 3)
	short := full
	if len(parts) >= 2 {
		short = parts[0] + "." + parts[1]
	}
	return map[string]string{
		PythonVersion:     short,
		PythonFullVersion: full,
	}, nil
}
