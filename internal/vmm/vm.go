// Package vmm launches and supervises ephemeral qemu guests. One Handle per
// test case; the handle owns the child process, its console log, its
// forwarded host ports, and the qcow2 overlay, and releases all of them on
// Terminate no matter how the case ended.
package vmm

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"grimm.is/bootcheck/internal/console"
	"grimm.is/bootcheck/internal/logging"
	"grimm.is/bootcheck/internal/timeouts"
)

const (
	// startGrace is how long Launch watches the child before declaring it
	// alive. qemu exits almost immediately on bad arguments or a missing
	// accelerator, so a short window catches nearly all spawn failures.
	startGrace = 500 * time.Millisecond

	// termGrace is how long Terminate waits after SIGTERM before SIGKILL.
	termGrace = 3 * time.Second
)

// Handle is the live reference to one emulator process and its console log.
// It is owned by the caller for the duration of one test case and must be
// terminated on every exit path.
type Handle struct {
	cfg     Config
	bin     string
	cmd     *exec.Cmd
	log     *console.Log
	ports   map[int]int // guest port -> claimed host port
	overlay string
	timer   *time.Timer

	exited  chan struct{}
	waitErr error

	termOnce sync.Once
}

// Launch starts a VM for cfg and returns once the process is confirmed
// started. The hard wall-clock timeout is enforced by the handle itself:
// when it expires the guest is terminated exactly as if Terminate had been
// called. Launch never blocks for longer than the liveness grace period.
func Launch(ctx context.Context, cfg Config, timeout time.Duration) (*Handle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logging.WithComponent("vmm")

	h := &Handle{
		cfg:    cfg,
		log:    console.NewLog(),
		ports:  make(map[int]int),
		exited: make(chan struct{}),
	}

	// Claim host ports before anything can fail-and-leak.
	for _, fwd := range cfg.Forwards {
		hostPort, err := hostPorts.acquire(fwd.HostPort)
		if err != nil {
			h.releasePorts()
			return nil, err
		}
		h.ports[fwd.GuestPort] = hostPort
	}

	// Never boot the pristine rootfs directly: qcow2 images get a throwaway
	// overlay, raw images run with -snapshot.
	if strings.HasSuffix(cfg.RootfsPath, ".qcow2") {
		overlay, err := createOverlay(cfg.RootfsPath)
		if err != nil {
			h.releasePorts()
			return nil, err
		}
		h.overlay = overlay
	}

	h.bin = findBinary(qemuBinary(cfg.Arch))
	if cfg.QEMUBin != "" {
		h.bin = cfg.QEMUBin
	}

	args := h.buildArgs()
	log.Debug("launching emulator", "bin", h.bin, "arch", string(cfg.Arch), "timeout", timeout.String())

	h.cmd = exec.CommandContext(ctx, h.bin, args...)
	setProcessGroup(h.cmd)

	stdout, err := h.cmd.StdoutPipe()
	if err != nil {
		h.cleanupFiles()
		return nil, &StartError{Bin: h.bin, Err: err}
	}
	stderr, err := h.cmd.StderrPipe()
	if err != nil {
		h.cleanupFiles()
		return nil, &StartError{Bin: h.bin, Err: err}
	}

	var outR, errR io.Reader = stdout, stderr
	if cfg.EchoConsole {
		outR = io.TeeReader(stdout, os.Stderr)
		errR = io.TeeReader(stderr, os.Stderr)
	}
	h.log.Attach(outR)
	h.log.Attach(errR)

	if err := h.cmd.Start(); err != nil {
		h.cleanupFiles()
		return nil, &StartError{Bin: h.bin, Err: err}
	}

	go func() {
		// Drain the console pumps before reaping: Wait closes the pipe
		// readers, which would discard any buffered final output. The pumps
		// hit EOF on their own once the child exits, so this cannot hang a
		// live guest. Guests print their result and immediately power off,
		// so the last lines are the ones that matter.
		h.log.Wait()
		h.waitErr = h.cmd.Wait()
		close(h.exited)
	}()

	// Liveness check: a process that dies inside the grace period never
	// started as far as the caller is concerned.
	select {
	case <-h.exited:
		// The wait goroutine drained the pumps before closing exited, so
		// the tail holds everything the child wrote.
		tail := h.log.Tail(10)
		h.cleanupFiles()
		return nil, &StartError{Bin: h.bin, Output: tail, Err: fmt.Errorf("process exited during startup: %v", h.waitErr)}
	case <-time.After(timeouts.Scale(startGrace)):
	}

	h.timer = time.AfterFunc(timeout, func() {
		log.Warn("wall-clock timeout expired, terminating guest", "timeout", timeout.String())
		h.Terminate()
	})

	return h, nil
}

// Console returns the guest's console log. Read-only for callers.
func (h *Handle) Console() *console.Log {
	return h.log
}

// Alive reports whether the emulator process is still running.
func (h *Handle) Alive() bool {
	select {
	case <-h.exited:
		return false
	default:
		return true
	}
}

// Exited returns a channel closed when the emulator process exits.
func (h *Handle) Exited() <-chan struct{} {
	return h.exited
}

// Wait blocks until the process exits and returns its wait error.
func (h *Handle) Wait() error {
	<-h.exited
	return h.waitErr
}

// ForwardedPort returns the host port claimed for guestPort, or 0.
func (h *Handle) ForwardedPort(guestPort int) int {
	return h.ports[guestPort]
}

// Terminate tears the guest down: console log closed, process group killed,
// host ports and overlay released. Idempotent and safe to call after the
// process has already exited on its own; extra calls are no-ops.
func (h *Handle) Terminate() {
	h.termOnce.Do(func() {
		if h.timer != nil {
			h.timer.Stop()
		}
		h.log.Close()

		if h.cmd != nil && h.cmd.Process != nil && h.Alive() {
			pid := h.cmd.Process.Pid
			_ = killProcessGroup(pid, syscall.SIGTERM)
			select {
			case <-h.exited:
			case <-time.After(termGrace):
				_ = killProcessGroup(pid, syscall.SIGKILL)
				<-h.exited
			}
		}

		h.cleanupFiles()
	})
}

// cleanupFiles releases everything Launch claimed before the process ran.
func (h *Handle) cleanupFiles() {
	h.releasePorts()
	if h.overlay != "" {
		_ = os.Remove(h.overlay)
		h.overlay = ""
	}
}

func (h *Handle) releasePorts() {
	for guest, host := range h.ports {
		hostPorts.release(host)
		delete(h.ports, guest)
	}
}

// buildArgs assembles the qemu invocation from the config.
func (h *Handle) buildArgs() []string {
	cfg := h.cfg

	machine, cpu := machineFor(cfg.Arch)

	kernelArgs := fmt.Sprintf("root=/dev/vda rw console=%s rootwait", cfg.ConsoleTTY())
	if cfg.PayloadDir != "" {
		kernelArgs += " bootcheck.payload=on"
	}
	if cfg.InitOverride != "" {
		kernelArgs += " init=" + cfg.InitOverride
	}
	if cfg.Append != "" {
		kernelArgs += " " + cfg.Append
	}

	args := []string{
		"-machine", machine,
		"-cpu", cpu,
		"-smp", "1",
		"-m", fmt.Sprintf("%dM", cfg.MemoryMB),
		"-nographic",
		"-no-reboot",

		"-kernel", cfg.KernelPath,
		"-append", kernelArgs,
	}

	if h.overlay != "" {
		args = append(args,
			"-drive", fmt.Sprintf("file=%s,format=qcow2,if=virtio,id=system_disk", h.overlay),
		)
	} else {
		args = append(args,
			"-drive", fmt.Sprintf("file=%s,format=raw,if=virtio,id=system_disk", cfg.RootfsPath),
			"-snapshot",
		)
	}

	if cfg.PayloadDir != "" {
		args = append(args,
			"-virtfs", fmt.Sprintf("local,path=%s,mount_tag=payload,security_model=none,readonly=on,id=payload", cfg.PayloadDir),
		)
	}

	switch cfg.Network {
	case NetworkNone:
		args = append(args, "-nic", "none")
	case NetworkUser:
		netdev := "user,id=net0"
		for _, fwd := range cfg.Forwards {
			proto := fwd.Proto
			if proto == "" {
				proto = "tcp"
			}
			netdev += fmt.Sprintf(",hostfwd=%s:127.0.0.1:%d-:%d", proto, h.ports[fwd.GuestPort], fwd.GuestPort)
		}
		args = append(args,
			"-netdev", netdev,
			"-device", "virtio-net-pci,netdev=net0,mac=52:54:00:11:00:01",
		)
	case NetworkBridge:
		args = append(args,
			"-netdev", "bridge,id=net0",
			"-device", "virtio-net-pci,netdev=net0",
		)
	}

	args = append(args, cfg.ExtraArgs...)
	return args
}

// qemuBinary returns the qemu-system binary name for a guest architecture.
func qemuBinary(arch Arch) string {
	switch arch {
	case ArchAarch64:
		return "qemu-system-aarch64"
	default:
		return "qemu-system-x86_64"
	}
}

// machineFor picks the machine type and CPU model, using hardware
// acceleration only when the guest matches the host architecture.
func machineFor(arch Arch) (machine, cpu string) {
	hostMatches := (arch == ArchX8664 && runtime.GOARCH == "amd64") ||
		(arch == ArchAarch64 && runtime.GOARCH == "arm64")

	switch arch {
	case ArchAarch64:
		machine, cpu = "virt", "cortex-a72"
		if hostMatches {
			if runtime.GOOS == "darwin" {
				machine = "virt,accel=hvf"
			} else {
				machine = "virt,accel=kvm"
				cpu = "host"
			}
		}
	default:
		machine, cpu = "q35", "qemu64"
		if hostMatches {
			if runtime.GOOS == "darwin" {
				machine = "q35,accel=hvf"
			} else {
				machine = "q35,accel=kvm"
			}
			cpu = "host"
		}
	}
	return machine, cpu
}

// createOverlay makes a throwaway qcow2 overlay backed by the rootfs image.
func createOverlay(rootfs string) (string, error) {
	overlayPath := filepath.Join(os.TempDir(),
		fmt.Sprintf("bootcheck-overlay-%d-%d.qcow2", os.Getpid(), time.Now().UnixNano()))

	imgBin := findBinary("qemu-img")
	createCmd := exec.Command(imgBin, "create", "-f", "qcow2", "-b", rootfs, "-F", "qcow2", overlayPath)
	if out, err := createCmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("failed to create overlay (bin: %s): %v (%s)", imgBin, err, out)
	}
	return overlayPath, nil
}

func findBinary(name string) string {
	if p, err := exec.LookPath(name); err == nil {
		return p
	}

	// Common locations on macOS/Linux if not in PATH
	extraPaths := []string{
		"/usr/local/bin/" + name,
		"/opt/homebrew/bin/" + name,
		"/usr/bin/" + name,
		"/bin/" + name,
	}

	for _, p := range extraPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return name // Fallback to original, which will eventually fail
}
