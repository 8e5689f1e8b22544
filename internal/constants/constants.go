// Package constants defines shared constants used across the safety-check codebase.
package constants

import "os"

// File permissions
const (
	DirMode  os.FileMode = 0755
	FileMode os.FileMode = 0644
)

// Environment variables
const (
	EnvConfigDir = "SAFETY_CHECK_CONFIG"
	EnvCacheDir  = "SAFETY_CHECK_CACHE_DIR"
)

// Application paths
const (
	AppName          = "safety-check"
	XDGConfigSubdir  = ".config"
	ConfigFileName   = "config.toml"
	LockfileName     = "Pipfile.lock"
	PolicyFileName   = ".safety-policy.yml"
	AuditLogFileName = "audit.log"
)

// Exit codes. ExitVulnerabilitiesFound matches the value safety-db uses so CI
// configurations written for it keep working.
const (
	ExitOK                   = 0
	ExitFailure              = 1
	ExitVulnerabilitiesFound = 64
)

// Scan defaults
const (
	DefaultCategory    = "default"
	DefaultCachingSecs = 3600
	DefaultPython      = "python3"
	DefaultOSVURL      = "https://api.osv.dev"
)

// Version is set at build time with -ldflags "-X ...constants.Version=...".
var Version = "dev"
