package suite

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/bootcheck/internal/config"
	"grimm.is/bootcheck/internal/report"
	"grimm.is/bootcheck/internal/testutil"
)

// TestRun_RealGuest boots a real image end to end. It needs a provisioned
// environment: qemu on PATH plus BOOTCHECK_KERNEL and BOOTCHECK_ROOTFS
// pointing at images produced by the build system.
func TestRun_RealGuest(t *testing.T) {
	testutil.RequireQEMU(t)

	kernel := os.Getenv("BOOTCHECK_KERNEL")
	rootfs := os.Getenv("BOOTCHECK_ROOTFS")
	if kernel == "" || rootfs == "" {
		t.Skip("Skipping test: BOOTCHECK_KERNEL and BOOTCHECK_ROOTFS not set")
	}

	opts := config.Options{
		Arch:       "x86_64",
		Suite:      "basic",
		Timeout:    3 * time.Minute,
		Kernel:     kernel,
		Rootfs:     rootfs,
		Unattended: true,
	}

	run, err := NewRunner().Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, report.OverallPassed, run.Results.OverallStatus)
	assert.Equal(t, 2, run.Results.TotalTests)
}
