package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/bootcheck/internal/report"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRun(suite, overall string, cases []report.Case) *report.SuiteRun {
	rec := report.NewRecorder(report.RunInfo{
		Timestamp:    time.Now().UTC().Truncate(time.Second),
		Architecture: "x86_64",
		TestSuite:    suite,
		Timeout:      120,
		Kernel:       "/images/vmlinuz",
		Rootfs:       "/images/rootfs.qcow2",
	})
	for _, c := range cases {
		rec.Record(c)
	}
	if overall == report.OverallCancelled {
		rec.MarkCancelled()
	}
	return rec.Finalize()
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)

	run := sampleRun("basic", report.OverallPassed, []report.Case{
		{Name: "Boot", Status: report.StatusPassed},
		{Name: "SystemInfo", Status: report.StatusPassed},
	})
	id := uuid.NewString()
	require.NoError(t, s.RecordRun(id, run, 42*time.Second))

	recent, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 1)

	got := recent[0]
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "basic", got.Suite)
	assert.Equal(t, "passed", got.Overall)
	assert.Equal(t, 2, got.Total)
	assert.Equal(t, 2, got.Passed)
	assert.Equal(t, 42*time.Second, got.Duration)
}

func TestRecent_NewestFirst(t *testing.T) {
	s := openTestStore(t)

	for i, overall := range []string{report.OverallPassed, report.OverallFailed} {
		run := sampleRun("basic", overall, []report.Case{{Name: "Boot", Status: report.StatusPassed}})
		run.TestRun.Timestamp = time.Date(2026, 1, 1+i, 0, 0, 0, 0, time.UTC)
		if overall == report.OverallFailed {
			run.Results.OverallStatus = report.OverallFailed
		}
		require.NoError(t, s.RecordRun(uuid.NewString(), run, time.Minute))
	}

	recent, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.True(t, recent[0].Started.After(recent[1].Started))
}

func TestExpectedDuration(t *testing.T) {
	s := openTestStore(t)

	d, err := s.ExpectedDuration("basic")
	require.NoError(t, err)
	assert.Zero(t, d, "no history yet")

	for _, dur := range []time.Duration{30 * time.Second, 60 * time.Second} {
		run := sampleRun("basic", report.OverallPassed, []report.Case{{Name: "Boot", Status: report.StatusPassed}})
		require.NoError(t, s.RecordRun(uuid.NewString(), run, dur))
	}

	d, err = s.ExpectedDuration("basic")
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, d)

	d, err = s.ExpectedDuration("full")
	require.NoError(t, err)
	assert.Zero(t, d, "other suites unaffected")
}

func TestHealth(t *testing.T) {
	s := openTestStore(t)

	// Network passes once then fails twice; Boot always passes; SSH always skipped.
	runs := [][]report.Case{
		{
			{Name: "Boot", Status: report.StatusPassed, Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
			{Name: "Network", Status: report.StatusPassed, Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
			{Name: "SSH", Status: report.StatusSkipped, Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		},
		{
			{Name: "Boot", Status: report.StatusPassed, Timestamp: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)},
			{Name: "Network", Status: report.StatusFailed, Timestamp: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)},
			{Name: "SSH", Status: report.StatusSkipped, Timestamp: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)},
		},
		{
			{Name: "Boot", Status: report.StatusPassed, Timestamp: time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)},
			{Name: "Network", Status: report.StatusFailed, Timestamp: time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)},
			{Name: "SSH", Status: report.StatusSkipped, Timestamp: time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)},
		},
	}
	for _, cases := range runs {
		run := sampleRun("network", report.OverallFailed, cases)
		require.NoError(t, s.RecordRun(uuid.NewString(), run, time.Minute))
	}

	health, err := s.Health()
	require.NoError(t, err)
	require.Len(t, health, 3)

	byName := map[string]CaseHealth{}
	for _, h := range health {
		byName[h.Name] = h
	}

	boot := byName["Boot"]
	assert.Equal(t, 3, boot.TotalRuns)
	assert.Equal(t, "A", boot.Grade)
	assert.Equal(t, 3, boot.Streak)

	network := byName["Network"]
	assert.Equal(t, 2, network.FailCount)
	assert.InDelta(t, 1.0/3.0, network.PassRate, 0.001)
	assert.Equal(t, "D", network.Grade)
	assert.Equal(t, 0, network.Streak)

	ssh := byName["SSH"]
	assert.Equal(t, 3, ssh.SkipCount)
	assert.Equal(t, "?", ssh.Grade, "skip-only cases have no pass rate")

	// Worst grade sorts first.
	assert.Equal(t, "Network", health[0].Name)
}
