// Package config validates run options before any VM is launched and loads
// the optional harness config file. Configuration errors are the only fatal
// error class: everything after launch is captured per case.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"grimm.is/bootcheck/internal/vmm"
)

// ConfigError is a pre-launch validation failure. No VM has been started
// and no partial report exists when one of these is returned.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Msg)
}

// Options are the validated inputs for one suite run.
type Options struct {
	Arch    string
	Suite   string
	Timeout time.Duration
	Kernel  string
	Rootfs  string

	// Output is where the JSON report is written; empty means stdout only.
	Output string
	// MemoryMB overrides the default guest memory size.
	MemoryMB int
	// Unattended marks CI-style runs where interactive-only cases are
	// skipped rather than attempted.
	Unattended bool
	// EchoConsole mirrors guest console output to stderr.
	EchoConsole bool

	// QEMUBin overrides emulator discovery, mostly for tests.
	QEMUBin string
	// Append is appended to the kernel command line.
	Append string
	// BootMarkers adds extra patterns treated as boot success.
	BootMarkers []string
	// HistoryDB is the path of the run history database; empty disables it.
	HistoryDB string
}

// Validate checks everything that can be checked without launching a VM.
// Suite names are validated by the orchestrator, which owns the suite table.
func (o *Options) Validate() error {
	if _, err := vmm.ParseArch(o.Arch); err != nil {
		return &ConfigError{Field: "arch", Msg: err.Error()}
	}
	if o.Kernel == "" {
		return &ConfigError{Field: "kernel", Msg: "kernel image path is required"}
	}
	if _, err := os.Stat(o.Kernel); err != nil {
		return &ConfigError{Field: "kernel", Msg: fmt.Sprintf("cannot stat %s: %v", o.Kernel, err)}
	}
	if o.Rootfs == "" {
		return &ConfigError{Field: "rootfs", Msg: "root filesystem image path is required"}
	}
	if _, err := os.Stat(o.Rootfs); err != nil {
		return &ConfigError{Field: "rootfs", Msg: fmt.Sprintf("cannot stat %s: %v", o.Rootfs, err)}
	}
	if o.Timeout <= 0 {
		return &ConfigError{Field: "timeout", Msg: "timeout must be positive"}
	}
	if o.MemoryMB < 0 {
		return &ConfigError{Field: "memory", Msg: "memory size cannot be negative"}
	}
	return nil
}

// File is the optional on-disk harness configuration. Flags win over file
// values; the file is for the settings a site sets once.
type File struct {
	QEMUBinary  string   `yaml:"qemu_binary"`
	MemoryMB    int      `yaml:"memory_mb"`
	Append      string   `yaml:"append"`
	BootMarkers []string `yaml:"boot_markers"`
	HistoryDB   string   `yaml:"history_db"`
	Unattended  bool     `yaml:"unattended"`
}

// DefaultPath is where Load looks when no explicit path is given.
const DefaultPath = "bootcheck.yaml"

// Load reads a harness config file. A missing file at the default path is
// not an error; a missing file at an explicit path is.
func Load(path string) (*File, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return &File{}, nil
		}
		return nil, &ConfigError{Field: "config", Msg: fmt.Sprintf("cannot read %s: %v", path, err)}
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &ConfigError{Field: "config", Msg: fmt.Sprintf("cannot parse %s: %v", path, err)}
	}
	return &f, nil
}

// Apply folds file values into options, filling only fields the flags left
// at their zero value.
func (o *Options) Apply(f *File) {
	if f == nil {
		return
	}
	if o.QEMUBin == "" {
		o.QEMUBin = f.QEMUBinary
	}
	if o.MemoryMB == 0 {
		o.MemoryMB = f.MemoryMB
	}
	if o.Append == "" {
		o.Append = f.Append
	}
	if len(o.BootMarkers) == 0 {
		o.BootMarkers = f.BootMarkers
	}
	if o.HistoryDB == "" {
		o.HistoryDB = f.HistoryDB
	}
	if f.Unattended {
		o.Unattended = true
	}
}
