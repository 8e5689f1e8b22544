package cmd

import (
	"reflect"
	"strings"
	"testing"

	"github.com/dgerlanc/safety-check/internal/testutil"
	"github.com/spf13/cobra"
)

func TestCompleteCategories(t *testing.T) {
	tests := []struct {
		name       string
		toComplete string
		want       []string
	}{
		{"all", "", []string{"default", "develop", "staging"}},
		{"prefix", "de", []string{"default", "develop"}},
		{"after comma", "default,", []string{"default,develop", "default,staging"}},
		{"after space", "default st", []string{"default staging"}},
		{"no match", "docs", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupTestEnv(t, testutil.CategoriesLockfile, "")

			got, directive := completeCategories(rootCmd, nil, tt.toComplete)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("completeCategories(%q) = %v, want %v", tt.toComplete, got, tt.want)
			}
			if directive != cobra.ShellCompDirectiveNoFileComp {
				t.Errorf("directive = %v, want NoFileComp", directive)
			}
		})
	}
}

func TestCompleteCategoriesNoLockfile(t *testing.T) {
	setupTestEnv(t, "", "")

	if got, _ := completeCategories(rootCmd, nil, ""); len(got) != 0 {
		t.Errorf("completeCategories() = %v, want none", got)
	}
}

func TestCompletionFlagWired(t *testing.T) {
	setupTestEnv(t, testutil.CategoriesLockfile, "")

	stdout, _, code := execute(t, cobra.ShellCompRequestCmd, "--categories", "sta")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stdout, "staging") {
		t.Errorf("completion output = %q, want staging", stdout)
	}
}

func TestCompletionScripts(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		t.Run(shell, func(t *testing.T) {
			setupTestEnv(t, "", "")
			stdout, _, code := execute(t, "completion", shell)
			if code != 0 || !strings.Contains(stdout, "safety-check") {
				t.Errorf("completion %s: exit %d, output %.80q", shell, code, stdout)
			}
		})
	}
}
