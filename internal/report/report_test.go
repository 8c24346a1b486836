package report

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInfo() RunInfo {
	return RunInfo{
		Timestamp:    time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC),
		Architecture: "x86_64",
		TestSuite:    "basic",
		Timeout:      120,
		Kernel:       "/images/vmlinuz",
		Rootfs:       "/images/rootfs.qcow2",
	}
}

func TestFinalize_CountsDerivedFromSequence(t *testing.T) {
	rec := NewRecorder(testInfo())
	rec.Record(Case{Name: "Boot", Status: StatusPassed, Details: "Boot Test: PASSED"})
	rec.Record(Case{Name: "SystemInfo", Status: StatusPassed, Details: "SystemInfo Test: PASSED"})
	rec.Record(Case{Name: "Network", Status: StatusFailed, Details: "Network Test: FAILED - Cannot ping gateway"})
	rec.Record(Case{Name: "SSH", Status: StatusSkipped, Details: "not supported in this environment"})

	run := rec.Finalize()

	assert.Equal(t, 4, run.Results.TotalTests)
	assert.Equal(t, 2, run.Results.Passed)
	assert.Equal(t, 1, run.Results.Failed)
	assert.Equal(t, 1, run.Results.Skipped)
	assert.Equal(t, run.Results.TotalTests,
		run.Results.Passed+run.Results.Failed+run.Results.Skipped)
	assert.Equal(t, OverallFailed, run.Results.OverallStatus)
	assert.False(t, run.Passed())
}

func TestFinalize_AllPassed(t *testing.T) {
	rec := NewRecorder(testInfo())
	rec.Record(Case{Name: "Boot", Status: StatusPassed})
	rec.Record(Case{Name: "SystemInfo", Status: StatusPassed})

	run := rec.Finalize()

	assert.Equal(t, OverallPassed, run.Results.OverallStatus)
	assert.True(t, run.Passed())
}

func TestFinalize_SkipsDoNotFail(t *testing.T) {
	rec := NewRecorder(testInfo())
	rec.Record(Case{Name: "Boot", Status: StatusPassed})
	rec.Record(Case{Name: "PackageManagement", Status: StatusSkipped, Details: "no package manager found"})

	run := rec.Finalize()
	assert.Equal(t, OverallPassed, run.Results.OverallStatus)
}

func TestFinalize_EmptySuitePasses(t *testing.T) {
	run := NewRecorder(testInfo()).Finalize()

	assert.Equal(t, OverallPassed, run.Results.OverallStatus)
	assert.Equal(t, 0, run.Results.TotalTests)
	assert.NotNil(t, run.Results.Tests)
}

func TestFinalize_PreservesExecutionOrder(t *testing.T) {
	rec := NewRecorder(testInfo())
	names := []string{"Boot", "SystemInfo", "Network", "PackageManagement", "Performance"}
	for _, n := range names {
		rec.Record(Case{Name: n, Status: StatusPassed})
	}

	run := rec.Finalize()
	require.Len(t, run.Results.Tests, len(names))
	for i, n := range names {
		assert.Equal(t, n, run.Results.Tests[i].Name)
	}
}

func TestMarkCancelled(t *testing.T) {
	rec := NewRecorder(testInfo())
	rec.Record(Case{Name: "Boot", Status: StatusPassed})
	rec.Record(Case{Name: "SystemInfo", Status: StatusFailed, Details: "cancelled"})
	rec.MarkCancelled()

	run := rec.Finalize()
	assert.Equal(t, OverallCancelled, run.Results.OverallStatus)
	assert.False(t, run.Passed())
	// Already-recorded cases keep their outcomes.
	assert.Equal(t, StatusPassed, run.Results.Tests[0].Status)
}

func TestWriteJSON_Shape(t *testing.T) {
	rec := NewRecorder(testInfo())
	rec.Record(Case{
		Name:      "SystemInfo",
		Status:    StatusPassed,
		Details:   "SystemInfo Test: PASSED",
		Timestamp: time.Date(2026, 2, 10, 12, 1, 30, 0, time.UTC),
	})

	var buf bytes.Buffer
	require.NoError(t, rec.Finalize().WriteJSON(&buf))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	testRun, ok := doc["test_run"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "x86_64", testRun["architecture"])
	assert.Equal(t, "basic", testRun["test_suite"])
	assert.Equal(t, float64(120), testRun["timeout"])
	assert.Equal(t, "/images/vmlinuz", testRun["kernel"])
	assert.Equal(t, "/images/rootfs.qcow2", testRun["rootfs"])
	assert.Equal(t, "2026-02-10T12:00:00Z", testRun["timestamp"])

	results, ok := doc["results"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "passed", results["overall_status"])
	assert.Equal(t, float64(1), results["total_tests"])

	tests, ok := results["tests"].([]any)
	require.True(t, ok)
	require.Len(t, tests, 1)
	entry := tests[0].(map[string]any)
	assert.Equal(t, "SystemInfo", entry["name"])
	assert.Equal(t, "passed", entry["status"])
	assert.Equal(t, "SystemInfo Test: PASSED", entry["details"])
	assert.Equal(t, "2026-02-10T12:01:30Z", entry["timestamp"])
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	rec := NewRecorder(testInfo())
	rec.Record(Case{Name: "Boot", Status: StatusPassed})
	require.NoError(t, rec.Finalize().Save(path))

	run := rec.Finalize()
	var buf bytes.Buffer
	require.NoError(t, run.WriteJSON(&buf))
	assert.FileExists(t, path)
}

func TestRender(t *testing.T) {
	rec := NewRecorder(testInfo())
	rec.Record(Case{Name: "Boot", Status: StatusPassed})
	rec.Record(Case{Name: "Network", Status: StatusFailed, Details: "Cannot ping gateway"})

	var buf bytes.Buffer
	rec.Finalize().Render(&buf)

	out := buf.String()
	assert.Contains(t, out, "Boot")
	assert.Contains(t, out, "Cannot ping gateway")
	assert.Contains(t, out, "2 tests: 1 passed, 1 failed, 0 skipped")
}
