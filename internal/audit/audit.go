// Package audit keeps an optional JSON-lines record of every scan.
package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgerlanc/safety-check/internal/constants"
	"github.com/dgerlanc/safety-check/internal/logger"
)

// Outcome codes
const (
	OutcomeClean           = "CLEAN"
	OutcomeVulnerable      = "VULNERABLE"
	OutcomeNoLockfile      = "NO_LOCKFILE"
	OutcomeInvalidLockfile = "INVALID_LOCKFILE"
	OutcomeMissingCategory = "MISSING_CATEGORY"
	OutcomeRequires        = "REQUIRES_MISMATCH"
	OutcomeCheckerError    = "CHECKER_ERROR"
	OutcomeConfigError     = "CONFIG_ERROR"
)

// TimestampFormat is the format used for audit log timestamps.
const TimestampFormat = "2006-01-02T15:04:05.0Z07:00"

// Version of the entry format.
const Version = 1

// Entry is a single audit log line.
type Entry struct {
	Version         int      `json:"version"`
	Timestamp       string   `json:"timestamp"`
	DurationMs      float64  `json:"duration_ms"`
	Cwd             string   `json:"cwd"`
	Lockfile        string   `json:"lockfile"`
	Categories      []string `json:"categories"`
	Requirements    int      `json:"requirements"`
	Outcome         string   `json:"outcome"`
	ExitCode        int      `json:"exit_code"`
	Vulnerabilities []string `json:"vulnerabilities,omitempty"`
	Ignored         []string `json:"ignored,omitempty"`
	Missing         []string `json:"missing,omitempty"`
	Error           string   `json:"error,omitempty"`
}

var (
	auditFile *os.File
	mu        sync.Mutex
	enabled   bool
)

// DefaultLogPath returns ~/.local/share/safety-check/audit.log.
func DefaultLogPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", constants.AppName, constants.AuditLogFileName), nil
}

// Init opens the audit log at path for appending. An empty path leaves audit
// logging disabled; the hook writes nothing unless asked to.
func Init(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if path == "" {
		enabled = false
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, constants.DirMode); err != nil {
		logger.Debug("failed to create audit log directory", "error", err)
		return err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, constants.FileMode)
	if err != nil {
		logger.Debug("failed to open audit log file", "error", err)
		return err
	}

	auditFile = f
	enabled = true
	logger.Debug("audit logging initialized", "path", path)
	return nil
}

// Close closes the audit log file.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	if auditFile != nil {
		err := auditFile.Close()
		auditFile = nil
		enabled = false
		return err
	}
	return nil
}

// Log writes an entry to the audit log.
// If audit logging is not initialized or disabled, this is a no-op.
func Log(entry Entry) error {
	mu.Lock()
	defer mu.Unlock()

	if !enabled || auditFile == nil {
		return nil
	}

	entry.Version = Version
	entry.Timestamp = time.Now().UTC().Format(TimestampFormat)

	data, err := json.Marshal(entry)
	if err != nil {
		logger.Debug("failed to marshal audit entry", "error", err)
		return err
	}

	if _, err := auditFile.Write(append(data, '\n')); err != nil {
		logger.Debug("failed to write audit entry", "error", err)
		return err
	}

	return nil
}

// IsEnabled returns whether audit logging is enabled.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// Reset resets the audit state. Used for testing.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	if auditFile != nil {
		auditFile.Close()
	}
	auditFile = nil
	enabled = false
}
