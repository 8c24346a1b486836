package testutil

import (
	"os"
	"os/exec"
	"testing"
)

// RequireQEMU skips the test unless the BOOTCHECK_QEMU_TEST environment
// variable is set and a qemu binary is on PATH. Tests that boot real guests
// only run in environments provisioned for it.
func RequireQEMU(t *testing.T) {
	t.Helper()
	if os.Getenv("BOOTCHECK_QEMU_TEST") == "" {
		t.Skip("Skipping test: requires BOOTCHECK_QEMU_TEST environment")
	}
	if _, err := exec.LookPath("qemu-system-x86_64"); err != nil {
		t.Skip("Skipping test: qemu-system-x86_64 not on PATH")
	}
}
