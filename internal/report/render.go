package report

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	passMark = color.New(color.FgGreen, color.Bold).SprintFunc()
	failMark = color.New(color.FgRed, color.Bold).SprintFunc()
	skipMark = color.New(color.FgYellow).SprintFunc()
	dimText  = color.New(color.Faint).SprintFunc()
)

func statusMark(s Status) string {
	switch s {
	case StatusPassed:
		return passMark("PASS")
	case StatusFailed:
		return failMark("FAIL")
	case StatusSkipped:
		return skipMark("SKIP")
	}
	return string(s)
}

// Render writes a human-readable summary. Presentation only; the JSON form
// is the contract.
func (r *SuiteRun) Render(w io.Writer) {
	fmt.Fprintf(w, "Suite %q on %s (kernel %s)\n",
		r.TestRun.TestSuite, r.TestRun.Architecture, r.TestRun.Kernel)
	fmt.Fprintf(w, "Started %s, timeout %ds\n\n",
		r.TestRun.Timestamp.Format("2006-01-02 15:04:05 MST"), r.TestRun.Timeout)

	for _, c := range r.Results.Tests {
		fmt.Fprintf(w, "  [%s] %s", statusMark(c.Status), c.Name)
		if c.Details != "" {
			fmt.Fprintf(w, "  %s", dimText(c.Details))
		}
		fmt.Fprintln(w)
	}

	overall := r.Results.OverallStatus
	switch overall {
	case OverallPassed:
		overall = passMark(overall)
	case OverallFailed:
		overall = failMark(overall)
	case OverallCancelled:
		overall = skipMark(overall)
	}
	fmt.Fprintf(w, "\n%d tests: %d passed, %d failed, %d skipped -> %s\n",
		r.Results.TotalTests, r.Results.Passed, r.Results.Failed,
		r.Results.Skipped, overall)
}
