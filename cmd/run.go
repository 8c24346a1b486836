// Package cmd implements the bootcheck subcommands. Each RunXxx function is
// one subcommand; flag parsing stays in main.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"grimm.is/bootcheck/internal/config"
	"grimm.is/bootcheck/internal/history"
	"grimm.is/bootcheck/internal/logging"
	"grimm.is/bootcheck/internal/report"
	"grimm.is/bootcheck/internal/suite"
)

// ErrTestsFailed signals a clean run whose tests did not all pass. main
// turns it into a non-zero exit without an extra error dump; the rendered
// report already says everything.
var ErrTestsFailed = errors.New("tests failed")

// ErrCancelled signals an interrupted run.
var ErrCancelled = errors.New("run cancelled")

// RunSuite executes one suite run end to end: validate, run, render, write
// the JSON report, and record history. The report is written even when
// tests fail, so failures stay diagnosable without a rerun.
func RunSuite(ctx context.Context, opts config.Options, configPath string) error {
	file, err := config.Load(configPath)
	if err != nil {
		return err
	}
	opts.Apply(file)

	if err := opts.Validate(); err != nil {
		return err
	}
	specs, err := suite.Cases(opts.Suite)
	if err != nil {
		return err
	}

	log := logging.WithComponent("run")
	runID := uuid.NewString()
	log.Info("run starting", "id", runID, "suite", opts.Suite, "arch", opts.Arch)

	warnShortTimeout(log, opts, len(specs))

	started := time.Now()
	run, err := suite.NewRunner().Run(ctx, opts)
	if err != nil {
		return err
	}
	elapsed := time.Since(started)

	run.Render(os.Stdout)

	if opts.Output != "" {
		if err := run.Save(opts.Output); err != nil {
			return err
		}
		log.Info("report written", "path", opts.Output)
	}

	if opts.HistoryDB != "" {
		if err := recordHistory(opts.HistoryDB, runID, run, elapsed); err != nil {
			// History is advisory; never turn a finished run into an error.
			log.Warn("could not record run history", "error", err.Error())
		}
	}

	switch run.Results.OverallStatus {
	case report.OverallPassed:
		return nil
	case report.OverallCancelled:
		return ErrCancelled
	default:
		return ErrTestsFailed
	}
}

// warnShortTimeout compares this run's total budget against the average
// duration of past runs of the same suite, when history exists.
func warnShortTimeout(log *logging.Logger, opts config.Options, numCases int) {
	if opts.HistoryDB == "" {
		return
	}
	if _, err := os.Stat(opts.HistoryDB); err != nil {
		return
	}
	store, err := history.Open(opts.HistoryDB)
	if err != nil {
		return
	}
	defer store.Close()

	expected, err := store.ExpectedDuration(opts.Suite)
	if err != nil {
		return
	}
	if timeoutLooksShort(opts.Timeout, numCases, expected) {
		log.Warn("suite budget is below the average duration of past runs",
			"timeout", opts.Timeout.String(), "cases", numCases,
			"average", expected.Round(time.Second).String())
	}
}

// timeoutLooksShort reports whether a per-case timeout leaves the whole
// suite with less wall-clock budget than past runs actually took. The
// ExpectedDuration average covers full runs, so the per-case timeout is
// multiplied out before comparing.
func timeoutLooksShort(timeout time.Duration, numCases int, expected time.Duration) bool {
	if expected == 0 || numCases <= 0 {
		return false
	}
	return timeout*time.Duration(numCases) < expected
}

func recordHistory(dbPath, runID string, run *report.SuiteRun, elapsed time.Duration) error {
	store, err := history.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.RecordRun(runID, run, elapsed); err != nil {
		return fmt.Errorf("record run %s: %w", runID, err)
	}
	return nil
}
