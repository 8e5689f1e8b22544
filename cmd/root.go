// Package cmd implements the CLI commands for safety-check.
package cmd

import (
	"fmt"
	"os"

	"github.com/dgerlanc/safety-check/internal/audit"
	"github.com/dgerlanc/safety-check/internal/config"
	"github.com/dgerlanc/safety-check/internal/constants"
	"github.com/dgerlanc/safety-check/internal/logger"
	"github.com/dgerlanc/safety-check/internal/options"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose    bool
	configFile string

	// Scan flags; only the ones set on the command line override config.
	flagCategories    []string
	flagIgnore        options.IgnoreList
	flagCaching       int
	flagTelemetry     bool
	flagOutput        string
	flagPolicyFile    string
	flagCheckRequires bool
	flagAuditLog      string

	// exitCode is what Execute returns when the command itself succeeds.
	exitCode int
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "safety-check [files...]",
	Short: "Check Pipfile.lock categories for known vulnerabilities",
	Long: `safety-check is a pre-commit hook that reads Pipfile.lock from the current
directory, selects the requested dependency categories and checks every pinned
package against the OSV vulnerability database.

Exit codes:
  0   no known vulnerabilities, or no Pipfile.lock
  1   usage or configuration error, invalid lockfile, unknown category
  64  vulnerabilities found

Usage in .pre-commit-config.yaml:
  - repo: local
    hooks:
      - id: safety-check
        name: safety-check
        entry: safety-check --categories "default develop"
        language: system
        files: ^Pipfile\.lock$`,
	// pre-commit passes the matched file names; they are not used.
	Args: cobra.ArbitraryArgs,
	// Run the hook by default when no subcommand is given
	RunE: runScan,
	// Errors are printed by Execute
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	exitCode = constants.ExitOK
	defer audit.Close()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "error: %v\n", err)
		return constants.ExitFailure
	}
	return exitCode
}

func init() {
	// Initialize before running any command
	cobra.OnInitialize(initApp)

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		cmd.PrintErrln(cmd.UsageString())
		return err
	})

	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output (debug logging)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default $SAFETY_CHECK_CONFIG/config.toml or ~/.config/safety-check/config.toml)")

	registerScanFlags(rootCmd)
}

// registerScanFlags binds the hook flags to the package-level flag vars.
func registerScanFlags(cmd *cobra.Command) {
	defaults := options.Default()
	flagCategories = defaults.Categories
	flagIgnore = options.IgnoreList{}

	f := cmd.Flags()
	f.Var(options.NewCategoriesValue(&flagCategories), "categories",
		`Lockfile categories to check, separated by commas or spaces (e.g. "default develop")`)
	_ = cmd.RegisterFlagCompletionFunc("categories", completeCategories)
	f.VarP(options.NewIgnoreValue(&flagIgnore), "ignore", "i", "Comma-separated vulnerability IDs to ignore")
	f.IntVar(&flagCaching, "caching", defaults.Caching, "Seconds to reuse vulnerability database responses (0 disables caching)")
	f.BoolVar(&flagTelemetry, "telemetry", defaults.Telemetry, "Send client version and platform with queries")
	f.StringVarP(&flagOutput, "output", "o", defaults.Output, "Report format: text or json")
	f.StringVar(&flagPolicyFile, "policy-file", "", "Policy file with ignored vulnerabilities (default ./"+constants.PolicyFileName+" if present)")
	f.BoolVar(&flagCheckRequires, "check-requires", false, "Fail when the local interpreter does not match _meta.requires")
	auditUsage := "Append a JSON line per run to this file"
	if path, err := audit.DefaultLogPath(); err == nil {
		auditUsage += " (e.g. " + path + ")"
	}
	f.StringVar(&flagAuditLog, "audit-log", "", auditUsage)
}

// initApp initializes the application (logger, config)
func initApp() {
	logger.Init(logger.Options{Verbose: verbose})

	if configFile != "" {
		config.SetPath(configFile)
	}
	if err := config.Init(); err != nil {
		logger.Debug("config load failed, using defaults", "error", err)
	}
}

// buildOptions layers defaults, the config file and the flags that were set.
func buildOptions(cmd *cobra.Command) (options.Options, error) {
	opts := options.Default()

	if err := config.InitError(); err != nil {
		return opts, err
	}
	if cfg := config.Get(); cfg != nil {
		if err := cfg.Apply(&opts); err != nil {
			return opts, fmt.Errorf("invalid config %s: %w", config.GetConfigPath(), err)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("categories") {
		opts.Categories = flagCategories
	}
	if flags.Changed("ignore") {
		opts.Ignore.Merge(flagIgnore)
	}
	if flags.Changed("caching") {
		opts.Caching = flagCaching
	}
	if flags.Changed("telemetry") {
		opts.Telemetry = flagTelemetry
	}
	if flags.Changed("output") {
		opts.Output = flagOutput
	}
	if flags.Changed("policy-file") {
		opts.PolicyFile = flagPolicyFile
	}
	if flags.Changed("check-requires") {
		opts.CheckRequires = flagCheckRequires
	}
	if flags.Changed("audit-log") {
		opts.AuditLog = flagAuditLog
	}

	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

// IsVerbose returns whether verbose mode is enabled
func IsVerbose() bool {
	return verbose
}

// workingDir is where Pipfile.lock is read from. Tests replace it.
var workingDir = os.Getwd
