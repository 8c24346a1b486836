package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeImages(t *testing.T) (kernel, rootfs string) {
	t.Helper()
	dir := t.TempDir()
	kernel = filepath.Join(dir, "vmlinuz")
	rootfs = filepath.Join(dir, "rootfs.qcow2")
	require.NoError(t, os.WriteFile(kernel, []byte("kernel"), 0644))
	require.NoError(t, os.WriteFile(rootfs, []byte("rootfs"), 0644))
	return
}

func validOptions(t *testing.T) Options {
	kernel, rootfs := fakeImages(t)
	return Options{
		Arch:    "x86_64",
		Suite:   "basic",
		Timeout: 2 * time.Minute,
		Kernel:  kernel,
		Rootfs:  rootfs,
	}
}

func TestValidate_OK(t *testing.T) {
	opts := validOptions(t)
	assert.NoError(t, opts.Validate())
}

func TestValidate_Failures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Options)
		field  string
	}{
		{"unsupported arch", func(o *Options) { o.Arch = "riscv64" }, "arch"},
		{"missing kernel path", func(o *Options) { o.Kernel = "" }, "kernel"},
		{"kernel does not exist", func(o *Options) { o.Kernel = "/nonexistent/vmlinuz" }, "kernel"},
		{"missing rootfs path", func(o *Options) { o.Rootfs = "" }, "rootfs"},
		{"rootfs does not exist", func(o *Options) { o.Rootfs = "/nonexistent/rootfs" }, "rootfs"},
		{"zero timeout", func(o *Options) { o.Timeout = 0 }, "timeout"},
		{"negative memory", func(o *Options) { o.MemoryMB = -1 }, "memory"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := validOptions(t)
			tc.mutate(&opts)

			err := opts.Validate()
			require.Error(t, err)

			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tc.field, ce.Field)
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bootcheck.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
qemu_binary: /opt/qemu/bin/qemu-system-x86_64
memory_mb: 768
append: "loglevel=4"
boot_markers:
  - "buildroot login:"
history_db: /var/lib/bootcheck/history.db
unattended: true
`), 0644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/opt/qemu/bin/qemu-system-x86_64", f.QEMUBinary)
	assert.Equal(t, 768, f.MemoryMB)
	assert.Equal(t, "loglevel=4", f.Append)
	assert.Equal(t, []string{"buildroot login:"}, f.BootMarkers)
	assert.True(t, f.Unattended)
}

func TestLoad_MissingExplicitPath(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)

	var ce *ConfigError
	assert.ErrorAs(t, err, &ce)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("memory_mb: [not an int"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestApply_FlagsWin(t *testing.T) {
	opts := Options{MemoryMB: 1024, Append: "debug"}
	opts.Apply(&File{
		QEMUBinary: "/usr/bin/qemu-system-x86_64",
		MemoryMB:   512,
		Append:     "quiet",
		HistoryDB:  "/tmp/history.db",
	})

	assert.Equal(t, 1024, opts.MemoryMB, "flag value kept")
	assert.Equal(t, "debug", opts.Append, "flag value kept")
	assert.Equal(t, "/usr/bin/qemu-system-x86_64", opts.QEMUBin, "file fills empty field")
	assert.Equal(t, "/tmp/history.db", opts.HistoryDB)
}
