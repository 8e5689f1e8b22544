package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgerlanc/safety-check/internal/config"
	"github.com/dgerlanc/safety-check/internal/constants"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new safety-check configuration file",
	Long: `Initialize creates a new safety-check configuration file with default settings.

The config file is written to ~/.config/safety-check/config.toml (or the
directory given by the SAFETY_CHECK_CONFIG environment variable).

Use --force to overwrite an existing configuration file.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configDir, err := config.GetConfigDir()
	if err != nil {
		return fmt.Errorf("failed to get config directory: %w", err)
	}

	configPath := filepath.Join(configDir, constants.ConfigFileName)

	// Check if config already exists
	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
	}

	if err := os.MkdirAll(configDir, constants.DirMode); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configPath, config.GetDefaultConfig(), constants.FileMode); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration written to: %s\n", configPath)
	fmt.Fprintf(out, "Run '%s validate' to verify your configuration.\n", constants.AppName)

	return nil
}
