package cmd

import (
	"slices"
	"strings"

	"github.com/dgerlanc/safety-check/internal/lockfile"
	"github.com/dgerlanc/safety-check/internal/options"
	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for safety-check.

Besides subcommands and flags, the scripts complete --categories with the
categories of the Pipfile.lock in the current directory:

  $ safety-check --categories de<TAB>
  default  develop

To load completions:

Bash:
  $ source <(safety-check completion bash)
  # To load completions for each session, execute once:
  $ safety-check completion bash > ~/.local/share/bash-completion/completions/safety-check

Zsh:
  # Completion must be enabled once with: autoload -U compinit; compinit
  $ safety-check completion zsh > "${fpath[1]}/_safety-check"

Fish:
  $ safety-check completion fish > ~/.config/fish/completions/safety-check.fish

PowerShell:
  PS> safety-check completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletionV2(out, true)
		case "zsh":
			return rootCmd.GenZshCompletion(out)
		case "fish":
			return rootCmd.GenFishCompletion(out, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(out)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}

// completeCategories offers the lockfile categories for --categories. Names
// already typed before the last separator are kept as a prefix and not
// offered again.
func completeCategories(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	dir, err := workingDir()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	lock, err := lockfile.Load(dir, options.Default().LockfileName)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	cut := strings.LastIndexAny(toComplete, ", ") + 1
	prefix, partial := toComplete[:cut], toComplete[cut:]
	typed := options.ParseCategories(prefix)

	var out []string
	for _, name := range lock.CategoryNames() {
		if !strings.HasPrefix(name, partial) || strings.ContainsAny(name, ", \t") || slices.Contains(typed, name) {
			continue
		}
		out = append(out, prefix+name)
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}
