package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/dgerlanc/safety-check/internal/audit"
	"github.com/dgerlanc/safety-check/internal/checker"
	"github.com/dgerlanc/safety-check/internal/config"
	"github.com/dgerlanc/safety-check/internal/options"
	"github.com/dgerlanc/safety-check/internal/requirement"
	"github.com/dgerlanc/safety-check/internal/testutil"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// resetGlobalState resets all global flags to their default values
func resetGlobalState() {
	verbose = false
	configFile = ""
	initForce = false
	exitCode = 0
	config.Reset()
	audit.Reset()

	defaults := options.Default()
	flagCategories = defaults.Categories
	flagIgnore = options.IgnoreList{}
	flagCaching = defaults.Caching
	flagTelemetry = defaults.Telemetry
	flagOutput = defaults.Output
	flagPolicyFile = ""
	flagCheckRequires = false
	flagAuditLog = ""

	for _, c := range []*cobra.Command{rootCmd, validateCmd, initCmd} {
		c.Flags().VisitAll(func(f *pflag.Flag) {
			f.Changed = false
			switch f.Name {
			case "categories":
				f.Value = options.NewCategoriesValue(&flagCategories)
			case "ignore":
				f.Value = options.NewIgnoreValue(&flagIgnore)
			}
		})
		c.PersistentFlags().VisitAll(func(f *pflag.Flag) { f.Changed = false })
	}
}

// fakeChecker reports one advisory per pinned requirement listed in vulns.
type fakeChecker struct {
	vulns map[string]string
	seen  []string
	opts  checker.Options
}

func (f *fakeChecker) Check(_ context.Context, reqs []requirement.Requirement, opts checker.Options) ([]checker.Vulnerability, error) {
	f.seen = requirement.Strings(reqs)
	f.opts = opts
	var found []checker.Vulnerability
	for _, r := range reqs {
		if id, ok := f.vulns[r.String()]; ok {
			v, _ := r.Pinned()
			found = append(found, checker.Vulnerability{ID: id, Package: r.Name, Version: v})
		}
	}
	kept, _ := checker.FilterIgnored(found, opts.IgnoreVulns)
	return kept, nil
}

// testEnv points config, working directory and checker at test doubles.
type testEnv struct {
	dir     string
	checker *fakeChecker
}

func setupTestEnv(t *testing.T, lockfile, configContent string) *testEnv {
	t.Helper()
	resetGlobalState()

	cfgDir := t.TempDir()
	t.Setenv("SAFETY_CHECK_CONFIG", cfgDir)
	t.Setenv("SAFETY_CHECK_CACHE_DIR", t.TempDir())
	if configContent != "" {
		if err := os.WriteFile(filepath.Join(cfgDir, "config.toml"), []byte(configContent), 0644); err != nil {
			t.Fatal(err)
		}
	}

	env := &testEnv{
		dir:     t.TempDir(),
		checker: &fakeChecker{vulns: map[string]string{"requests==2.19.1": "PYSEC-2018-28"}},
	}
	if lockfile != "" {
		if err := os.WriteFile(filepath.Join(env.dir, "Pipfile.lock"), []byte(lockfile), 0644); err != nil {
			t.Fatal(err)
		}
	}

	oldWD, oldChecker := workingDir, newChecker
	workingDir = func() (string, error) { return env.dir, nil }
	newChecker = func(options.Options) checker.Checker { return env.checker }
	t.Cleanup(func() {
		workingDir, newChecker = oldWD, oldChecker
		resetGlobalState()
	})
	return env
}

// execute runs the root command with args and returns stdout, stderr and
// the exit code.
func execute(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	}()
	code := Execute()
	return stdout.String(), stderr.String(), code
}

func TestIsVerbose(t *testing.T) {
	tests := []struct {
		name     string
		value    bool
		expected bool
	}{
		{"verbose false", false, false},
		{"verbose true", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetGlobalState()
			verbose = tt.value
			if got := IsVerbose(); got != tt.expected {
				t.Errorf("IsVerbose() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildOptions(t *testing.T) {
	tests := []struct {
		name   string
		config string
		args   []string
		check  func(t *testing.T, opts options.Options)
	}{
		{
			name: "defaults",
			check: func(t *testing.T, opts options.Options) {
				if !reflect.DeepEqual(opts.Categories, []string{"default"}) || opts.Caching != 3600 || opts.Telemetry {
					t.Errorf("opts = %+v", opts)
				}
			},
		},
		{
			name:   "config overrides defaults",
			config: "categories = [\"develop\"]\ncaching = 0\ntelemetry = true\n",
			check: func(t *testing.T, opts options.Options) {
				if !reflect.DeepEqual(opts.Categories, []string{"develop"}) || opts.Caching != 0 || !opts.Telemetry {
					t.Errorf("opts = %+v", opts)
				}
			},
		},
		{
			name:   "flags override config",
			config: "categories = [\"develop\"]\ncaching = 0\n",
			args:   []string{"--categories", "default, staging", "--caching=60"},
			check: func(t *testing.T, opts options.Options) {
				if !reflect.DeepEqual(opts.Categories, []string{"default", "staging"}) || opts.Caching != 60 {
					t.Errorf("opts = %+v", opts)
				}
			},
		},
		{
			name:   "ignore flags add to config",
			config: "[ignore.\"PYSEC-2023-74\"]\nreason = \"unused\"\n",
			args:   []string{"-i", "1000,2000", "--ignore", "3000"},
			check: func(t *testing.T, opts options.Options) {
				want := []string{"1000", "2000", "3000", "PYSEC-2023-74"}
				if got := opts.Ignore.IDs(); !reflect.DeepEqual(got, want) {
					t.Errorf("Ignore = %v, want %v", got, want)
				}
			},
		},
		{
			name: "flag only options",
			args: []string{"--telemetry", "-o", "json", "--check-requires"},
			check: func(t *testing.T, opts options.Options) {
				if !opts.Telemetry || opts.Output != "json" || !opts.CheckRequires {
					t.Errorf("opts = %+v", opts)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupTestEnv(t, "", tt.config)
			initApp()

			if err := rootCmd.ParseFlags(tt.args); err != nil {
				t.Fatalf("ParseFlags() error = %v", err)
			}
			opts, err := buildOptions(rootCmd)
			if err != nil {
				t.Fatalf("buildOptions() error = %v", err)
			}
			tt.check(t, opts)
		})
	}
}

func TestBuildOptionsBrokenConfig(t *testing.T) {
	setupTestEnv(t, "", "categories = [")
	initApp()

	if _, err := buildOptions(rootCmd); err == nil {
		t.Error("expected error for broken config")
	}
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"caching not a number", []string{"--caching", "soon"}, "invalid argument"},
		{"caching negative", []string{"--caching=-1"}, "caching must be zero or positive"},
		{"unknown flag", []string{"--frobnicate"}, "unknown flag"},
		{"bad output", []string{"-o", "xml"}, "unknown output format"},
		{"empty categories", []string{"--categories", " , "}, "no categories selected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupTestEnv(t, "", "")
			_, stderr, code := execute(t, tt.args...)
			if code != 1 {
				t.Errorf("exit code = %d, want 1", code)
			}
			if !strings.Contains(stderr, tt.wantErr) {
				t.Errorf("stderr = %q, want containing %q", stderr, tt.wantErr)
			}
		})
	}
}

func TestFlagErrorPrintsUsage(t *testing.T) {
	setupTestEnv(t, "", "")
	_, stderr, _ := execute(t, "--caching", "soon")
	if !strings.Contains(stderr, "Usage:") {
		t.Errorf("expected usage on stderr, got %q", stderr)
	}
}

func TestRootCmdHasExpectedSubcommands(t *testing.T) {
	expectedCommands := []string{"init", "validate", "completion"}

	for _, cmdName := range expectedCommands {
		found := false
		for _, cmd := range rootCmd.Commands() {
			if cmd.Name() == cmdName {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected subcommand %q not found", cmdName)
		}
	}
}

func TestRootCmdFlagsRegistered(t *testing.T) {
	for _, name := range []string{"categories", "ignore", "caching", "telemetry", "output", "policy-file", "check-requires", "audit-log"} {
		if rootCmd.Flags().Lookup(name) == nil {
			t.Errorf("flag --%s not registered", name)
		}
	}
	if f := rootCmd.Flags().ShorthandLookup("i"); f == nil || f.Name != "ignore" {
		t.Error("-i should be shorthand for --ignore")
	}
	if f := rootCmd.Flags().Lookup("audit-log"); f.NoOptDefVal != "" {
		t.Error("--audit-log must always take a value")
	}
	if f := rootCmd.Flags().Lookup("caching"); f.DefValue != "3600" {
		t.Errorf("--caching default = %q, want 3600", f.DefValue)
	}
}

func TestRootCmdUsageContainsDescription(t *testing.T) {
	if rootCmd.Short == "" {
		t.Error("rootCmd.Short should not be empty")
	}
	if !strings.Contains(rootCmd.Long, "64") {
		t.Error("rootCmd.Long should document the exit codes")
	}
	if rootCmd.Name() != "safety-check" {
		t.Errorf("rootCmd.Name() = %q, want 'safety-check'", rootCmd.Name())
	}
}

func TestBuildOptionsMinimalConfig(t *testing.T) {
	resetGlobalState()
	cleanup := testutil.SetupTestConfig(t, testutil.MinimalTestConfig)
	defer cleanup()

	opts, err := buildOptions(rootCmd)
	if err != nil {
		t.Fatalf("buildOptions() error = %v", err)
	}
	if opts.Caching != 0 {
		t.Errorf("Caching = %d, want 0 from config", opts.Caching)
	}
	if opts.CacheTTL() != 0 {
		t.Errorf("CacheTTL() = %v, want 0", opts.CacheTTL())
	}
}
