package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgerlanc/safety-check/internal/config"
	"github.com/dgerlanc/safety-check/internal/testutil"
	"github.com/spf13/cobra"
)

func TestRunInitCreatesConfigFile(t *testing.T) {
	resetGlobalState()

	configDir := filepath.Join(t.TempDir(), "safety-check")
	t.Setenv("SAFETY_CHECK_CONFIG", configDir)

	cmd := &cobra.Command{}
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)

	if err := runInit(cmd, []string{}); err != nil {
		t.Fatalf("runInit() error = %v", err)
	}

	configPath := filepath.Join(configDir, "config.toml")
	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("config file was not created: %v", err)
	}
	if !bytes.Equal(content, config.GetDefaultConfig()) {
		t.Error("config file content does not match default config")
	}
	if !strings.Contains(stdout.String(), configPath) {
		t.Errorf("output should name the config path, got %q", stdout.String())
	}
}

func TestRunInitWithExistingConfigFails(t *testing.T) {
	resetGlobalState()

	configDir := t.TempDir()
	t.Setenv("SAFETY_CHECK_CONFIG", configDir)
	configPath := filepath.Join(configDir, "config.toml")
	existing := []byte("categories = [\"develop\"]\n")
	if err := os.WriteFile(configPath, existing, 0644); err != nil {
		t.Fatal(err)
	}

	err := runInit(&cobra.Command{}, []string{})
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("runInit() error = %v, want 'already exists'", err)
	}

	content, _ := os.ReadFile(configPath)
	if !bytes.Equal(content, existing) {
		t.Error("existing config was modified")
	}
}

func TestRunInitWithForceOverwrites(t *testing.T) {
	resetGlobalState()

	configDir := t.TempDir()
	t.Setenv("SAFETY_CHECK_CONFIG", configDir)
	configPath := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(configPath, []byte("caching = 0\n"), 0644); err != nil {
		t.Fatal(err)
	}

	initForce = true
	defer func() { initForce = false }()

	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})
	if err := runInit(cmd, []string{}); err != nil {
		t.Fatalf("runInit() error = %v", err)
	}

	content, _ := os.ReadFile(configPath)
	if !bytes.Equal(content, config.GetDefaultConfig()) {
		t.Error("config file was not overwritten with defaults")
	}
}

func TestInitThenValidate(t *testing.T) {
	setupTestEnv(t, testutil.CleanLockfile, "")

	if _, stderr, code := execute(t, "init"); code != 0 {
		t.Fatalf("init exit code = %d (stderr %q)", code, stderr)
	}
	resetGlobalState()
	if stdout, stderr, code := execute(t, "validate"); code != 0 {
		t.Fatalf("validate exit code = %d (stderr %q)", code, stderr)
	} else if !strings.Contains(stdout, "config.toml") {
		t.Errorf("validate should report the written config, got %q", stdout)
	}
}

func TestInitCmdHasForceFlag(t *testing.T) {
	flag := initCmd.Flags().Lookup("force")
	if flag == nil {
		t.Fatal("init command should have --force flag")
	}
	if flag.Shorthand != "f" {
		t.Errorf("--force shorthand = %q, want 'f'", flag.Shorthand)
	}
}
