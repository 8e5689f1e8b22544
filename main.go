// safety-check - pre-commit hook that checks Pipfile.lock for known vulnerabilities
//
// The hook reads Pipfile.lock from the current directory, merges the selected
// dependency categories and checks every pinned package against OSV:
//
//	CATEGORIES (default, develop, ...) -> REQUIREMENTS (name==version) -> OSV
//
// Usage in .pre-commit-config.yaml:
//
//	repos:
//	  - repo: local
//	    hooks:
//	      - id: safety-check
//	        name: safety-check
//	        entry: safety-check --categories "default develop"
//	        language: system
//	        files: ^Pipfile\.lock$
//
// Test:
//
//	safety-check --categories default --caching 0; echo $?
package main

import (
	"os"

	"github.com/dgerlanc/safety-check/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
