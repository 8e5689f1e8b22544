// Package scan runs one hook invocation: load the lockfile, pick the
// categories, convert them to requirements and ask the checker about them.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgerlanc/safety-check/internal/audit"
	"github.com/dgerlanc/safety-check/internal/checker"
	"github.com/dgerlanc/safety-check/internal/constants"
	"github.com/dgerlanc/safety-check/internal/lockfile"
	"github.com/dgerlanc/safety-check/internal/logger"
	"github.com/dgerlanc/safety-check/internal/markers"
	"github.com/dgerlanc/safety-check/internal/options"
	"github.com/dgerlanc/safety-check/internal/policy"
	"github.com/dgerlanc/safety-check/internal/report"
	"github.com/dgerlanc/safety-check/internal/requirement"
	"github.com/dgerlanc/safety-check/internal/resolve"
)

// LookupFunc reads environment markers for the given interpreter command.
type LookupFunc func(ctx context.Context, command string) (map[string]string, error)

// Result is the outcome of a scan.
type Result struct {
	ExitCode        int
	Outcome         string
	Requirements    []requirement.Requirement
	Unchecked       []string
	Vulnerabilities []checker.Vulnerability
	Ignored         []string
	Missing         []string
	Err             error
}

// Scanner holds what a scan needs besides its options.
type Scanner struct {
	// Dir is where the lockfile and default policy file are looked up.
	Dir string
	// Checker answers vulnerability queries.
	Checker checker.Checker
	// Out receives the report.
	Out io.Writer
	// Err receives single-line diagnostics.
	Err io.Writer
	// Lookup reads interpreter markers for --check-requires.
	Lookup LookupFunc
	// Now is the clock used for ignore expiry.
	Now func() time.Time
}

// Unpinned returns the requirements the checker cannot look up because they
// do not pin a valid exact version.
func Unpinned(reqs []requirement.Requirement) []string {
	var out []string
	for _, r := range reqs {
		if _, ok := r.Pinned(); !ok {
			out = append(out, r.String())
		}
	}
	return out
}

// ExitCode maps the number of findings to the process exit code.
func ExitCode(vulnerabilities int) int {
	if vulnerabilities == 0 {
		return constants.ExitOK
	}
	return constants.ExitVulnerabilitiesFound
}

// Run performs the scan. It never returns an error: every failure is
// reported on s.Err and mapped to an exit code in the Result.
func (s *Scanner) Run(ctx context.Context, opts options.Options) Result {
	start := time.Now()
	res := s.run(ctx, opts)

	entry := audit.Entry{
		DurationMs:   float64(time.Since(start).Microseconds()) / 1000.0,
		Cwd:          s.Dir,
		Lockfile:     filepath.Join(s.Dir, opts.LockfileName),
		Categories:   opts.Categories,
		Requirements: len(res.Requirements),
		Outcome:      res.Outcome,
		ExitCode:     res.ExitCode,
		Ignored:      res.Ignored,
		Missing:      res.Missing,
	}
	for _, v := range res.Vulnerabilities {
		entry.Vulnerabilities = append(entry.Vulnerabilities, v.ID)
	}
	if res.Err != nil {
		entry.Error = res.Err.Error()
	}
	if err := audit.Log(entry); err != nil {
		logger.Debug("failed to write audit entry", "error", err)
	}
	return res
}

func (s *Scanner) fail(outcome string, err error) Result {
	fmt.Fprintf(s.errWriter(), "error: %v\n", err)
	return Result{ExitCode: constants.ExitFailure, Outcome: outcome, Err: err}
}

func (s *Scanner) run(ctx context.Context, opts options.Options) Result {
	lock, err := lockfile.Load(s.Dir, opts.LockfileName)
	switch {
	case errors.Is(err, lockfile.ErrNotFound):
		logger.Debug("no lockfile, nothing to check", "dir", s.Dir, "name", opts.LockfileName)
		return Result{ExitCode: constants.ExitOK, Outcome: audit.OutcomeNoLockfile}
	case err != nil:
		return s.fail(audit.OutcomeInvalidLockfile, err)
	}
	logger.Debug("lockfile loaded", "path", lock.Path, "categories", lock.CategoryNames())

	ignore, expired, err := s.ignoreList(opts)
	if err != nil {
		return s.fail(audit.OutcomeConfigError, err)
	}
	for _, id := range expired {
		fmt.Fprintf(s.errWriter(), "warning: ignore entry for %s has expired and is no longer applied\n", id)
	}

	if opts.CheckRequires {
		if res, ok := s.checkRequires(ctx, opts, lock); !ok {
			return res
		}
	}

	deps, err := resolve.Resolve(lock, opts.Categories)
	if err != nil {
		res := s.fail(audit.OutcomeMissingCategory, err)
		var missing *resolve.MissingCategoriesError
		if errors.As(err, &missing) {
			res.Missing = missing.Names
		}
		return res
	}

	reqs := requirement.FromDependencies(deps)
	logger.Debug("requirements converted", "count", len(reqs), "categories", opts.Categories)

	unchecked := Unpinned(reqs)
	if len(unchecked) > 0 {
		fmt.Fprintf(s.errWriter(), "warning: %d requirement(s) not checked, no exact version: %s\n",
			len(unchecked), strings.Join(unchecked, ", "))
	}

	vulns, err := s.Checker.Check(ctx, reqs, checker.Options{
		IgnoreVulns: ignore,
		Telemetry:   opts.Telemetry,
		Cached:      opts.CacheTTL(),
	})
	if err != nil {
		res := s.fail(audit.OutcomeCheckerError, fmt.Errorf("vulnerability check failed: %w", err))
		res.Requirements = reqs
		return res
	}

	res := Result{
		ExitCode:        ExitCode(len(vulns)),
		Outcome:         audit.OutcomeClean,
		Requirements:    reqs,
		Unchecked:       unchecked,
		Vulnerabilities: vulns,
		Ignored:         ignore.IDs(),
	}
	if len(vulns) > 0 {
		res.Outcome = audit.OutcomeVulnerable
	}

	err = report.Write(s.outWriter(), opts.Output, report.Report{
		Lockfile:        lock.Path,
		Categories:      opts.Categories,
		Requirements:    len(reqs),
		Vulnerabilities: vulns,
		Ignored:         res.Ignored,
	})
	if err != nil {
		logger.Error("failed to write report", "error", err)
	}
	return res
}

// ignoreList merges the policy file with opts.Ignore and drops expired
// entries, returning their IDs.
func (s *Scanner) ignoreList(opts options.Options) (options.IgnoreList, []string, error) {
	ignore, _, err := LoadIgnore(s.Dir, opts)
	if err != nil {
		return nil, nil, err
	}
	expired := ignore.Prune(s.now())
	return ignore, expired, nil
}

// LoadIgnore reads the policy file for dir and merges opts.Ignore on top of
// it, so IDs given explicitly win over policy entries with the same ID. The
// default policy file is optional; one named in opts must exist. The
// returned path is the policy file read, or "" when there was none.
func LoadIgnore(dir string, opts options.Options) (options.IgnoreList, string, error) {
	ignore := options.IgnoreList{}

	path := opts.PolicyFile
	explicit := path != ""
	if !explicit {
		path = filepath.Join(dir, constants.PolicyFileName)
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}

	fromPolicy, err := policy.Load(path)
	switch {
	case err == nil:
		logger.Debug("policy file loaded", "path", path, "entries", len(fromPolicy))
		ignore.Merge(fromPolicy)
	case errors.Is(err, policy.ErrNotFound) && !explicit:
		path = ""
	default:
		return nil, "", err
	}

	ignore.Merge(opts.Ignore)
	return ignore, path, nil
}

func (s *Scanner) checkRequires(ctx context.Context, opts options.Options, lock *lockfile.Lockfile) (Result, bool) {
	if len(lock.Meta.Requires) == 0 {
		return Result{}, true
	}

	lookup := s.Lookup
	if lookup == nil {
		lookup = markers.Lookup
	}
	env, err := lookup(ctx, opts.Python)
	if err != nil {
		return s.fail(audit.OutcomeRequires, err), false
	}

	failed := markers.Check(lock.Meta.Requires, env)
	if len(failed) == 0 {
		return Result{}, true
	}
	for _, m := range failed {
		fmt.Fprintf(s.errWriter(), "error: %s\n", m)
	}
	return Result{
		ExitCode: constants.ExitFailure,
		Outcome:  audit.OutcomeRequires,
		Err:      fmt.Errorf("%d interpreter requirement(s) not met", len(failed)),
	}, false
}

func (s *Scanner) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scanner) outWriter() io.Writer {
	if s.Out != nil {
		return s.Out
	}
	return os.Stdout
}

func (s *Scanner) errWriter() io.Writer {
	if s.Err != nil {
		return s.Err
	}
	return os.Stderr
}
