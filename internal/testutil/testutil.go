// Package testutil provides shared test fixtures for safety-check tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dgerlanc/safety-check/internal/config"
	"github.com/dgerlanc/safety-check/internal/constants"
)

// SetupTestConfig points the config dir at a temporary directory, writes
// configContent to config.toml there (unless empty) and reloads the config.
// Returns a cleanup function that should be deferred.
func SetupTestConfig(t *testing.T, configContent string) func() {
	t.Helper()

	tmpDir := t.TempDir()
	os.Setenv(constants.EnvConfigDir, tmpDir)

	if configContent != "" {
		configPath := filepath.Join(tmpDir, constants.ConfigFileName)
		if err := os.WriteFile(configPath, []byte(configContent), constants.FileMode); err != nil {
			t.Fatal(err)
		}
	}

	config.Reset()
	config.Init()

	return func() {
		os.Unsetenv(constants.EnvConfigDir)
		config.Reset()
	}
}

// WriteLockfile writes content as Pipfile.lock into a new temporary
// directory and returns the directory.
func WriteLockfile(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, constants.LockfileName), []byte(content), constants.FileMode); err != nil {
		t.Fatal(err)
	}
	return dir
}

// CategoriesLockfile has three categories. default pins a vulnerable
// requests, develop is clean, staging pins a vulnerable urllib3 and
// repeats requests.
const CategoriesLockfile = `{
    "_meta": {
        "hash": {"sha256": "0f3c"},
        "pipfile-spec": 6,
        "requires": {"python_version": "3.8"},
        "sources": [{"name": "pypi", "url": "https://pypi.org/simple", "verify_ssl": true}]
    },
    "default": {
        "requests": {
            "hashes": ["sha256:63b52e3c866428a224f97cab011de738c36aec0185aa91cfacd418b5d58911d1"],
            "index": "pypi",
            "version": "==2.19.1"
        },
        "idna": {"version": "==2.7"}
    },
    "develop": {
        "pytest": {"version": "==8.3.3", "markers": "python_version >= '3.8'"}
    },
    "staging": {
        "urllib3": {"version": "==1.24.1", "extras": ["secure"]},
        "requests": {"version": "==2.32.3"},
        "mylib": {"git": "https://example.com/mylib.git", "ref": "abc123", "editable": true}
    }
}`

// CleanLockfile pins a single package with no known vulnerabilities.
const CleanLockfile = `{
    "_meta": {"pipfile-spec": 6, "requires": {"python_version": "3.12"}},
    "default": {"six": {"version": "==1.16.0"}},
    "develop": {}
}`

// InvalidLockfile is not JSON.
const InvalidLockfile = `{ "now_this_is_invalid_json:`

// MinimalTestConfig is a minimal config for testing.
const MinimalTestConfig = `
categories = ["default"]
caching = 0
`
