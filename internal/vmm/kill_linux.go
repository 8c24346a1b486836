//go:build linux

package vmm

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcessGroup puts the child in its own process group so the whole qemu
// tree (including any helper processes it forks) dies together.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup delivers sig to the child's entire process group.
func killProcessGroup(pid int, sig syscall.Signal) error {
	return unix.Kill(-pid, sig)
}
