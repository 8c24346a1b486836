package vmm

import (
	"fmt"
	"os"
)

// Arch identifies the guest CPU architecture.
type Arch string

const (
	ArchX8664   Arch = "x86_64"
	ArchAarch64 Arch = "aarch64"
)

// ParseArch validates an architecture selector from the CLI.
func ParseArch(s string) (Arch, error) {
	switch Arch(s) {
	case ArchX8664, ArchAarch64:
		return Arch(s), nil
	}
	return "", fmt.Errorf("unsupported architecture: %q", s)
}

// NetworkMode selects guest networking.
type NetworkMode string

const (
	NetworkNone   NetworkMode = "none"
	NetworkUser   NetworkMode = "user"
	NetworkBridge NetworkMode = "bridge"
)

// ParseNetworkMode validates a network mode selector.
func ParseNetworkMode(s string) (NetworkMode, error) {
	switch NetworkMode(s) {
	case NetworkNone, NetworkUser, NetworkBridge:
		return NetworkMode(s), nil
	}
	return "", fmt.Errorf("unsupported network mode: %q", s)
}

// PortForward maps a host TCP/UDP port to a guest port (user networking only).
// HostPort 0 means "allocate a free port at launch".
type PortForward struct {
	Proto     string // "tcp" or "udp"
	HostPort  int
	GuestPort int
}

// Config describes one VM launch. It is constructed before each test case
// and treated as read-only once Launch has been called.
type Config struct {
	Arch       Arch
	KernelPath string
	RootfsPath string
	MemoryMB   int
	Append     string // extra kernel command line
	Network    NetworkMode
	Forwards   []PortForward

	// PayloadDir is a host directory exported to the guest read-only as the
	// "payload" share. The injected test script and init override live here.
	PayloadDir string
	// InitOverride is the guest path of a custom init entrypoint inside the
	// payload share, passed via init= on the kernel command line.
	InitOverride string

	// QEMUBin overrides the qemu-system-* binary (for tests and odd hosts).
	QEMUBin string
	// ExtraArgs are appended verbatim to the qemu invocation.
	ExtraArgs []string
	// EchoConsole mirrors guest console output to the harness stderr.
	EchoConsole bool
}

// Validate existence-checks the artifact paths and fills defaults.
// The kernel and rootfs come from the external build system and are opaque;
// only presence is checked, never content.
func (c *Config) Validate() error {
	if _, err := os.Stat(c.KernelPath); err != nil {
		return fmt.Errorf("kernel not found at %s", c.KernelPath)
	}
	if _, err := os.Stat(c.RootfsPath); err != nil {
		return fmt.Errorf("rootfs not found at %s", c.RootfsPath)
	}
	if c.Arch == "" {
		c.Arch = ArchX8664
	} else if _, err := ParseArch(string(c.Arch)); err != nil {
		return err
	}
	if c.Network == "" {
		c.Network = NetworkUser
	} else if _, err := ParseNetworkMode(string(c.Network)); err != nil {
		return err
	}
	if c.MemoryMB <= 0 {
		c.MemoryMB = 512
	}
	for _, fwd := range c.Forwards {
		if c.Network != NetworkUser {
			return fmt.Errorf("port forwards require user networking (mode is %q)", c.Network)
		}
		if fwd.GuestPort <= 0 {
			return fmt.Errorf("invalid guest port %d in forward rule", fwd.GuestPort)
		}
	}
	return nil
}

// ConsoleTTY returns the guest serial console device for the architecture.
func (c *Config) ConsoleTTY() string {
	if c.Arch == ArchAarch64 {
		return "ttyAMA0"
	}
	return "ttyS0"
}
