// Package report collects per-case outcomes into the structured run report.
// The JSON document written here is the one contract outside tooling depends
// on; everything else in the harness may change shape, this may not.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"grimm.is/bootcheck/internal/clock"
)

// Status is a test case outcome.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Overall run statuses. Cancelled is distinct from failed so automation can
// tell an interrupted run from a run that genuinely found a regression.
const (
	OverallPassed    = "passed"
	OverallFailed    = "failed"
	OverallCancelled = "cancelled"
)

// Case is one executed test case. Immutable once recorded.
type Case struct {
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

// RunInfo is the metadata block of the report.
type RunInfo struct {
	Timestamp    time.Time `json:"timestamp"`
	Architecture string    `json:"architecture"`
	TestSuite    string    `json:"test_suite"`
	Timeout      int       `json:"timeout"` // seconds
	Kernel       string    `json:"kernel"`
	Rootfs       string    `json:"rootfs"`
}

// Results holds the recomputed tallies plus the ordered case sequence.
type Results struct {
	OverallStatus string `json:"overall_status"`
	TotalTests    int    `json:"total_tests"`
	Passed        int    `json:"passed"`
	Failed        int    `json:"failed"`
	Skipped       int    `json:"skipped"`
	Tests         []Case `json:"tests"`
}

// SuiteRun is the full structured report.
type SuiteRun struct {
	TestRun RunInfo `json:"test_run"`
	Results Results `json:"results"`
}

// Passed reports whether the run as a whole succeeded. This is the CI gate:
// the process exits zero iff this returns true.
func (r *SuiteRun) Passed() bool {
	return r.Results.OverallStatus == OverallPassed
}

// WriteJSON writes the report as indented JSON.
func (r *SuiteRun) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Save writes the report to path, creating or truncating it.
func (r *SuiteRun) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	defer f.Close()
	if err := r.WriteJSON(f); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// Recorder accumulates cases in execution order. Counts are never kept
// incrementally; Finalize recomputes everything from the case sequence, so a
// duplicate or out-of-band record can skew a tally but never desync it from
// the list it summarizes.
type Recorder struct {
	mu        sync.Mutex
	info      RunInfo
	cases     []Case
	cancelled bool

	clk clock.Clock
}

// NewRecorder starts a recorder for one suite run.
func NewRecorder(info RunInfo) *Recorder {
	if info.Timestamp.IsZero() {
		info.Timestamp = clock.Now().UTC().Truncate(time.Second)
	}
	return &Recorder{info: info, clk: &clock.RealClock{}}
}

// Record appends a case. Order of calls is the order in the report.
func (r *Recorder) Record(c Case) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.Timestamp.IsZero() {
		c.Timestamp = r.clk.Now().UTC().Truncate(time.Second)
	}
	r.cases = append(r.cases, c)
}

// MarkCancelled flags the run as interrupted. The overall status becomes
// "cancelled" regardless of per-case tallies.
func (r *Recorder) MarkCancelled() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = true
}

// Len returns the number of cases recorded so far.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cases)
}

// Finalize computes the report. Counts and overall status are derived from
// the case sequence alone: total == len(tests), passed+failed+skipped ==
// total, overall failed iff any case failed.
func (r *Recorder) Finalize() *SuiteRun {
	r.mu.Lock()
	defer r.mu.Unlock()

	// An empty sequence still marshals as [], not null.
	res := Results{
		Tests: append(make([]Case, 0, len(r.cases)), r.cases...),
	}
	for _, c := range res.Tests {
		switch c.Status {
		case StatusPassed:
			res.Passed++
		case StatusFailed:
			res.Failed++
		case StatusSkipped:
			res.Skipped++
		}
	}
	res.TotalTests = len(res.Tests)

	switch {
	case r.cancelled:
		res.OverallStatus = OverallCancelled
	case res.Failed > 0:
		res.OverallStatus = OverallFailed
	default:
		res.OverallStatus = OverallPassed
	}

	return &SuiteRun{TestRun: r.info, Results: res}
}
