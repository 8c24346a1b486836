// Package bootwait decides whether a guest booted by polling its console
// log for boot markers. The same poll loop is reused to wait for test
// sentinels once boot has been confirmed.
package bootwait

import (
	"context"
	"regexp"
	"time"

	"grimm.is/bootcheck/internal/clock"
	"grimm.is/bootcheck/internal/console"
	"grimm.is/bootcheck/internal/timeouts"
)

// Outcome classifies one detection attempt.
type Outcome int

const (
	// Booted means a marker appeared in the console log.
	Booted Outcome = iota
	// TimedOut means the timeout elapsed with no marker. A live process
	// with a stalled log is indistinguishable from a hung kernel and lands
	// here too.
	TimedOut
	// ProcessDied means the emulator exited before a marker appeared.
	ProcessDied
	// Cancelled means the surrounding run was cancelled mid-poll.
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Booted:
		return "booted"
	case TimedOut:
		return "timed out"
	case ProcessDied:
		return "process died"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// Result carries the outcome plus evidence for the report.
type Result struct {
	Outcome Outcome
	Matched string // line that matched, when Outcome == Booted
	LogTail string // console tail, for failure evidence
	Elapsed time.Duration
}

// evidenceLines is how much console tail is copied into failure evidence.
const evidenceLines = 15

// DefaultMarkers match the boot-success signals of the images the build
// system produces. Matching is case-sensitive: a cosmetic false positive is
// cheaper than a false negative from an overly strict pattern.
func DefaultMarkers() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`login:`),
		regexp.MustCompile(`Welcome to`),
		regexp.MustCompile(`bootcheck-ready`),
	}
}

// Detector polls a console log at a fixed interval.
type Detector struct {
	Markers  []*regexp.Regexp
	Interval time.Duration
	Clock    clock.Clock
}

// New returns a detector with the default marker set and a 1s poll,
// stretched on slow hosts like every other harness duration.
func New() *Detector {
	return &Detector{
		Markers:  DefaultMarkers(),
		Interval: timeouts.Scale(time.Second),
		Clock:    &clock.RealClock{},
	}
}

// Detect waits for any boot marker. exited is the supervisor's process-exit
// channel; nil means "assume alive forever" (tests).
func (d *Detector) Detect(ctx context.Context, log *console.Log, exited <-chan struct{}, timeout time.Duration) Result {
	return d.WaitFor(ctx, log, exited, d.Markers, timeout)
}

// WaitFor polls until any of patterns matches a console line, the process
// dies, the timeout elapses, or ctx is cancelled, in that order of
// precedence at each poll tick.
func (d *Detector) WaitFor(ctx context.Context, log *console.Log, exited <-chan struct{}, patterns []*regexp.Regexp, timeout time.Duration) Result {
	interval := d.Interval
	if interval <= 0 {
		interval = time.Second
	}
	clk := d.Clock
	if clk == nil {
		clk = &clock.RealClock{}
	}

	start := clk.Now()
	for {
		if line, ok := log.MatchAny(patterns); ok {
			return Result{Outcome: Booted, Matched: line, Elapsed: clk.Since(start)}
		}

		if exited != nil {
			select {
			case <-exited:
				// The pump may still be flushing the last lines; give the
				// log one final look before declaring death.
				log.Wait()
				if line, ok := log.MatchAny(patterns); ok {
					return Result{Outcome: Booted, Matched: line, Elapsed: clk.Since(start)}
				}
				return Result{Outcome: ProcessDied, LogTail: log.Tail(evidenceLines), Elapsed: clk.Since(start)}
			default:
			}
		}

		select {
		case <-ctx.Done():
			return Result{Outcome: Cancelled, LogTail: log.Tail(evidenceLines), Elapsed: clk.Since(start)}
		default:
		}

		if clk.Since(start) >= timeout {
			return Result{Outcome: TimedOut, LogTail: log.Tail(evidenceLines), Elapsed: clk.Since(start)}
		}

		clk.Sleep(interval)
	}
}
