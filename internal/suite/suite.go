// Package suite runs the named test suites. Each case is one full VM
// lifecycle: build a payload, launch a fresh guest, wait for a boot signal,
// wait for the case's sentinel, terminate, record. Cases run strictly
// sequentially; case N+1 never starts before case N's guest is gone.
package suite

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"grimm.is/bootcheck/internal/bootwait"
	"grimm.is/bootcheck/internal/clock"
	"grimm.is/bootcheck/internal/config"
	"grimm.is/bootcheck/internal/logging"
	"grimm.is/bootcheck/internal/payload"
	"grimm.is/bootcheck/internal/report"
	"grimm.is/bootcheck/internal/timeouts"
	"grimm.is/bootcheck/internal/vmm"
)

// CaseSpec is one entry in the static suite table.
type CaseSpec struct {
	Name    string
	Action  payload.Action
	Network vmm.NetworkMode
	// SSHProbe additionally verifies reachability from the host through a
	// forwarded port once the guest reports its sshd is up.
	SSHProbe bool
	// Interactive cases are skipped, not attempted, in unattended runs.
	Interactive bool
}

// The suite table is static and explicit: no discovery, no registration.
// Order within a suite is execution order.
var suites = map[string][]CaseSpec{
	"basic": {
		{Name: "Boot", Action: payload.Boot, Network: vmm.NetworkNone},
		{Name: "SystemInfo", Action: payload.SystemInfo, Network: vmm.NetworkNone},
	},
	"network": {
		{Name: "Boot", Action: payload.Boot, Network: vmm.NetworkNone},
		{Name: "SystemInfo", Action: payload.SystemInfo, Network: vmm.NetworkNone},
		{Name: "Network", Action: payload.NetworkConnectivity, Network: vmm.NetworkUser},
	},
	"ssh": {
		{Name: "Boot", Action: payload.Boot, Network: vmm.NetworkNone},
		{Name: "SystemInfo", Action: payload.SystemInfo, Network: vmm.NetworkNone},
		{Name: "Network", Action: payload.NetworkConnectivity, Network: vmm.NetworkUser},
		{Name: "SSH", Action: payload.SSHReachability, Network: vmm.NetworkUser, SSHProbe: true, Interactive: true},
	},
	"full": {
		{Name: "Boot", Action: payload.Boot, Network: vmm.NetworkNone},
		{Name: "SystemInfo", Action: payload.SystemInfo, Network: vmm.NetworkNone},
		{Name: "Network", Action: payload.NetworkConnectivity, Network: vmm.NetworkUser},
		{Name: "PackageManagement", Action: payload.PackageManagement, Network: vmm.NetworkUser},
		{Name: "Performance", Action: payload.Performance, Network: vmm.NetworkNone},
	},
}

// suiteOrder fixes the listing order for user-facing output.
var suiteOrder = []string{"basic", "network", "ssh", "full"}

// Names returns the defined suite names in presentation order.
func Names() []string {
	return append([]string(nil), suiteOrder...)
}

// Cases resolves a suite name to its ordered case list.
func Cases(name string) ([]CaseSpec, error) {
	specs, ok := suites[name]
	if !ok {
		return nil, &config.ConfigError{
			Field: "suite",
			Msg:   fmt.Sprintf("unsupported suite %q (have: %s)", name, strings.Join(Names(), ", ")),
		}
	}
	return specs, nil
}

// sshGuestPort is the guest port probed by SSHProbe cases.
const sshGuestPort = 22

// Runner executes suites. The zero value is not usable; use NewRunner.
type Runner struct {
	log *logging.Logger
	det *bootwait.Detector
	clk clock.Clock
}

// NewRunner returns a runner with the default boot detector.
func NewRunner() *Runner {
	return &Runner{
		log: logging.WithComponent("suite"),
		det: bootwait.New(),
		clk: &clock.RealClock{},
	}
}

// Run executes the named suite and returns the finalized report. The error
// return is reserved for configuration problems found before any VM starts;
// every per-case failure is captured inside the report instead.
func (r *Runner) Run(ctx context.Context, opts config.Options) (*report.SuiteRun, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	specs, err := Cases(opts.Suite)
	if err != nil {
		return nil, err
	}

	markers := bootwait.DefaultMarkers()
	for _, m := range opts.BootMarkers {
		re, err := regexp.Compile(m)
		if err != nil {
			return nil, &config.ConfigError{Field: "boot_markers", Msg: fmt.Sprintf("bad pattern %q: %v", m, err)}
		}
		markers = append(markers, re)
	}

	rec := report.NewRecorder(report.RunInfo{
		Architecture: opts.Arch,
		TestSuite:    opts.Suite,
		Timeout:      int(opts.Timeout.Seconds()),
		Kernel:       opts.Kernel,
		Rootfs:       opts.Rootfs,
	})

	r.log.Info("starting suite", "suite", opts.Suite, "cases", len(specs),
		"arch", opts.Arch, "timeout", opts.Timeout.String(), "dilation", timeouts.GetFactorString())

	for _, spec := range specs {
		if ctx.Err() != nil {
			rec.MarkCancelled()
			break
		}

		c := r.runCase(ctx, spec, opts, markers)
		rec.Record(c)
		r.log.Info("case finished", "case", spec.Name, "status", string(c.Status))

		if ctx.Err() != nil {
			rec.MarkCancelled()
			break
		}
	}

	return rec.Finalize(), nil
}

// runCase executes one case against a fresh guest. It never returns an
// error: every outcome, including a guest that would not even start, is a
// recorded case.
func (r *Runner) runCase(ctx context.Context, spec CaseSpec, opts config.Options, markers []*regexp.Regexp) report.Case {
	c := report.Case{Name: spec.Name}

	if spec.Interactive && opts.Unattended {
		c.Status = report.StatusSkipped
		c.Details = "not supported in this environment"
		return c
	}

	art, err := payload.Build(spec.Action)
	if err != nil {
		c.Status = report.StatusFailed
		c.Details = err.Error()
		return c
	}
	defer art.Cleanup()

	cfg := vmm.Config{
		Arch:         vmm.Arch(opts.Arch),
		KernelPath:   opts.Kernel,
		RootfsPath:   opts.Rootfs,
		MemoryMB:     opts.MemoryMB,
		Append:       opts.Append,
		Network:      spec.Network,
		PayloadDir:   art.Dir,
		InitOverride: art.InitOverride,
		QEMUBin:      opts.QEMUBin,
		EchoConsole:  opts.EchoConsole,
	}
	if spec.SSHProbe {
		cfg.Forwards = []vmm.PortForward{{Proto: "tcp", HostPort: 0, GuestPort: sshGuestPort}}
	}

	caseTimeout := timeouts.Scale(opts.Timeout)
	deadline := r.clk.Now().Add(caseTimeout)

	h, err := vmm.Launch(ctx, cfg, caseTimeout)
	if err != nil {
		c.Status = report.StatusFailed
		var se *vmm.StartError
		if errors.As(err, &se) && se.Output != "" {
			c.Details = fmt.Sprintf("%v; output: %s", err, se.Output)
		} else {
			c.Details = err.Error()
		}
		return c
	}
	defer h.Terminate()

	sentinel := spec.Action.SentinelPattern()

	// The sentinel itself counts as boot evidence: with an init override
	// the guest goes straight to the payload and never shows a login prompt.
	bootPatterns := append([]*regexp.Regexp{sentinel}, markers...)
	res := r.det.WaitFor(ctx, h.Console(), h.Exited(), bootPatterns, caseTimeout)

	switch res.Outcome {
	case bootwait.Cancelled:
		c.Status = report.StatusFailed
		c.Details = "cancelled"
		return c
	case bootwait.TimedOut:
		c.Status = report.StatusFailed
		c.Details = fmt.Sprintf("boot timed out after %s; last output: %s", caseTimeout, res.LogTail)
		return c
	case bootwait.ProcessDied:
		c.Status = report.StatusFailed
		c.Details = fmt.Sprintf("guest exited during boot; last output: %s", res.LogTail)
		return c
	}

	// Booted. If the matched line was a plain boot marker, keep waiting for
	// the sentinel within what is left of the case budget.
	if !sentinel.MatchString(res.Matched) {
		remaining := deadline.Sub(r.clk.Now())
		res = r.det.WaitFor(ctx, h.Console(), h.Exited(), []*regexp.Regexp{sentinel}, remaining)
		switch res.Outcome {
		case bootwait.Cancelled:
			c.Status = report.StatusFailed
			c.Details = "cancelled"
			return c
		case bootwait.TimedOut:
			c.Status = report.StatusFailed
			c.Details = "no result sentinel observed"
			return c
		case bootwait.ProcessDied:
			c.Status = report.StatusFailed
			c.Details = fmt.Sprintf("guest exited before printing a result; last output: %s", res.LogTail)
			return c
		}
	}

	c.Status, c.Details = classifySentinel(res.Matched)

	if spec.SSHProbe && c.Status == report.StatusPassed {
		hostPort := h.ForwardedPort(sshGuestPort)
		remaining := deadline.Sub(r.clk.Now())
		if err := probeSSH(fmt.Sprintf("127.0.0.1:%d", hostPort), sshSubTimeout(remaining), r.clk); err != nil {
			c.Status = report.StatusFailed
			c.Details = err.Error()
		}
	}

	return c
}

// classifySentinel maps a sentinel line to a case status. The full line is
// kept as details so failure reasons printed by the guest survive into the
// report.
func classifySentinel(line string) (report.Status, string) {
	switch {
	case strings.Contains(line, ": PASSED"):
		return report.StatusPassed, line
	case strings.Contains(line, ": SKIPPED"):
		return report.StatusSkipped, line
	default:
		return report.StatusFailed, line
	}
}
