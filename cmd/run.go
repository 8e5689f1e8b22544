package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/dgerlanc/safety-check/internal/audit"
	"github.com/dgerlanc/safety-check/internal/cache"
	"github.com/dgerlanc/safety-check/internal/checker"
	"github.com/dgerlanc/safety-check/internal/checker/osv"
	"github.com/dgerlanc/safety-check/internal/logger"
	"github.com/dgerlanc/safety-check/internal/options"
	"github.com/dgerlanc/safety-check/internal/scan"
	"github.com/spf13/cobra"
)

// scanTimeout bounds a whole run, including every checker request.
const scanTimeout = 2 * time.Minute

// newChecker builds the vulnerability checker for opts. Tests replace it.
var newChecker = func(opts options.Options) checker.Checker {
	var cacheOpts []osv.Option
	if opts.Caching > 0 {
		if dir, err := cache.DefaultDir(); err == nil {
			cacheOpts = append(cacheOpts, osv.WithCacheDir(dir))
		} else {
			logger.Debug("no cache directory, caching disabled", "error", err)
		}
	}
	return osv.New(opts.OSVURL, cacheOpts...)
}

// runScan is the default command: scan Pipfile.lock in the working directory.
func runScan(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		logger.Debug("ignoring file arguments", "args", args)
	}

	opts, err := buildOptions(cmd)
	if err != nil {
		return err
	}

	if err := audit.Init(opts.AuditLog); err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}

	dir, err := workingDir()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, scanTimeout)
	defer cancel()

	s := &scan.Scanner{
		Dir:     dir,
		Checker: newChecker(opts),
		Out:     cmd.OutOrStdout(),
		Err:     cmd.ErrOrStderr(),
	}
	res := s.Run(ctx, opts)
	exitCode = res.ExitCode
	return nil
}
