package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgerlanc/safety-check/internal/config"
	"github.com/dgerlanc/safety-check/internal/lockfile"
	"github.com/dgerlanc/safety-check/internal/options"
	"github.com/dgerlanc/safety-check/internal/patterns"
	"github.com/dgerlanc/safety-check/internal/resolve"
	"github.com/dgerlanc/safety-check/internal/scan"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration, policy file and lockfile categories",
	Long: `Validate loads the safety-check configuration, the policy file and
Pipfile.lock from the current directory without querying the vulnerability
database, and shows what a scan would check.

This is useful for:
- Checking that your config.toml and .safety-policy.yml are correct
- Seeing which categories Pipfile.lock has and how many packages each pins
- Catching category names that would fail the hook`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	registerScanFlags(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	opts, err := buildOptions(cmd)
	if err != nil {
		return err
	}

	cfgPath := config.GetConfigPath()
	if cfgPath == "" {
		cfgPath = "(embedded defaults)"
	}
	fmt.Fprintf(out, "Config file: %s\n", cfgPath)
	fmt.Fprintln(out)

	fmt.Fprintf(out, "Categories: %s\n", strings.Join(opts.Categories, ", "))
	fmt.Fprintf(out, "Caching: %ds\n", opts.Caching)
	fmt.Fprintf(out, "Telemetry: %t\n", opts.Telemetry)
	fmt.Fprintf(out, "Output: %s\n", opts.Output)
	fmt.Fprintln(out)

	dir, err := workingDir()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	ignore, err := validatePolicy(cmd, dir, opts)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Ignored vulnerabilities: %d\n", len(ignore))
	for _, id := range ignore.IDs() {
		e := ignore[id]
		line := "  - " + id
		if scheme := patterns.Classify(id); scheme != "" {
			line += " [" + scheme + "]"
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %q does not look like a known vulnerability ID\n", id)
		}
		if e.Expires != nil {
			line += " until " + e.Expires.Format("2006-01-02")
			if e.Expires.Before(time.Now()) {
				line += " (expired)"
			}
		}
		if e.Reason != "" {
			line += ": " + e.Reason
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out)

	if err := validateLockfile(cmd, dir, opts); err != nil {
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration valid!")
	return nil
}

// validatePolicy loads the policy file the way a scan would and returns the
// merged ignore list.
func validatePolicy(cmd *cobra.Command, dir string, opts options.Options) (options.IgnoreList, error) {
	ignore, path, err := scan.LoadIgnore(dir, opts)
	if err != nil {
		return nil, err
	}
	if path == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "Policy file: none")
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Policy file: %s\n", path)
	}
	return ignore, nil
}

func validateLockfile(cmd *cobra.Command, dir string, opts options.Options) error {
	out := cmd.OutOrStdout()

	lock, err := lockfile.Load(dir, opts.LockfileName)
	if errors.Is(err, lockfile.ErrNotFound) {
		fmt.Fprintf(out, "Lockfile: no %s in %s, nothing to check\n", opts.LockfileName, dir)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Lockfile: %s\n", lock.Path)
	if v, ok := lock.Meta.Requires["python_version"]; ok {
		fmt.Fprintf(out, "Requires python: %s\n", v)
	}
	names := lock.CategoryNames()
	fmt.Fprintf(out, "Lockfile categories: %d\n", len(names))
	for _, name := range names {
		marker := " "
		for _, c := range opts.Categories {
			if c == name {
				marker = "*"
				break
			}
		}
		fmt.Fprintf(out, "  %s %s: %d packages\n", marker, name, len(lock.Categories[name]))
	}

	if missing := resolve.Missing(lock, opts.Categories); len(missing) > 0 {
		return &resolve.MissingCategoriesError{Names: missing}
	}
	return nil
}
