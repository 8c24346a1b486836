// Package payload synthesizes the in-guest test scripts. Each action is a
// small POSIX sh script that performs one check, prints exactly one sentinel
// line, and powers the guest off. The sentinel is the sole test oracle: the
// host decides pass/fail by searching the console log for it, so the guest
// needs no test framework of any kind.
package payload

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// Action is one guest-side test action.
type Action string

const (
	Boot                Action = "Boot"
	SystemInfo          Action = "SystemInfo"
	NetworkConnectivity Action = "Network"
	SSHReachability     Action = "SSH"
	PackageManagement   Action = "PackageManagement"
	Performance         Action = "Performance"
)

// GuestInitPath is where images built for this harness install the payload
// dispatcher. Passing it as init= bypasses the image's normal init and runs
// the injected script directly.
const GuestInitPath = "/sbin/payload-init"

// GuestMountPoint is where the dispatcher mounts the payload share.
const GuestMountPoint = "/mnt/payload"

// shareTag must match the -virtfs mount_tag the supervisor exports.
const shareTag = "payload"

// SentinelPattern matches the action's result line. Matching is
// case-sensitive and anchored on the fixed "<Name> Test:" prefix so that
// boot noise cannot fake a result.
func (a Action) SentinelPattern() *regexp.Regexp {
	return regexp.MustCompile(regexp.QuoteMeta(string(a)) + ` Test: (PASSED|FAILED|SKIPPED)`)
}

// PassedSentinel is the exact line the action's script prints on success.
func (a Action) PassedSentinel() string {
	return fmt.Sprintf("%s Test: PASSED", string(a))
}

// Artifact is one generated payload, rooted in a temp dir that the
// supervisor exports to the guest as a read-only 9p share.
type Artifact struct {
	// Dir is the host directory exported to the guest.
	Dir string
	// ScriptPath is the host path of the generated test script.
	ScriptPath string
	// InitOverride is the guest path to boot with init=, empty when the
	// image's own init should run.
	InitOverride string
}

// Cleanup removes the artifact directory. Safe to call more than once.
func (a *Artifact) Cleanup() error {
	if a.Dir == "" {
		return nil
	}
	err := os.RemoveAll(a.Dir)
	a.Dir = ""
	return err
}

// Build writes the script for action into a fresh temp dir and returns the
// artifact describing it. Every action, including plain Boot, gets a script:
// a script that runs at all proves the guest booted, which keeps the per-case
// flow uniform.
func Build(action Action) (*Artifact, error) {
	body, ok := scripts[action]
	if !ok {
		return nil, fmt.Errorf("unknown test action %q", action)
	}

	dir, err := os.MkdirTemp("", "bootcheck-payload-")
	if err != nil {
		return nil, fmt.Errorf("creating payload dir: %w", err)
	}

	scriptPath := filepath.Join(dir, "run.sh")
	if err := os.WriteFile(scriptPath, []byte(body), 0755); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("writing payload script: %w", err)
	}

	// Ship the dispatcher alongside the script so the image builder and the
	// harness always agree on its content.
	if err := os.WriteFile(filepath.Join(dir, "init.sh"), []byte(GuestInitScript()), 0755); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("writing init script: %w", err)
	}

	return &Artifact{
		Dir:          dir,
		ScriptPath:   scriptPath,
		InitOverride: GuestInitPath,
	}, nil
}

// GuestInitScript is the payload dispatcher installed into guest images as
// /sbin/payload-init. It mounts the minimum virtual filesystems, mounts the
// payload share, runs the injected script, and powers off no matter what.
func GuestInitScript() string {
	return `#!/bin/sh
# Payload dispatcher. Runs as init when the host boots the guest with
# init=` + GuestInitPath + `.

mount -t proc proc /proc 2>/dev/null
mount -t sysfs sysfs /sys 2>/dev/null
mount -t devtmpfs devtmpfs /dev 2>/dev/null

if grep -q "bootcheck.payload=on" /proc/cmdline 2>/dev/null; then
    mkdir -p ` + GuestMountPoint + `
    if mount -t 9p -o trans=virtio,version=9p2000.L,ro ` + shareTag + ` ` + GuestMountPoint + ` 2>/dev/null; then
        sh ` + GuestMountPoint + `/run.sh
    else
        echo "Payload Test: FAILED - cannot mount payload share"
    fi
fi

sync
poweroff -f
`
}

// Each script prints exactly one result sentinel and then powers off. A
// missing guest capability is the script's own business: it reports SKIPPED
// rather than failing, so the host never has to guess what the image has.
var scripts = map[Action]string{
	Boot: `#!/bin/sh
# If this runs at all, the guest booted far enough to exec userspace.
echo "Boot Test: PASSED"
sync
poweroff -f
`,

	SystemInfo: `#!/bin/sh
echo "=== System Information ==="
if uname -a && cat /proc/meminfo | head -n 3 && cat /proc/cpuinfo | grep -c processor; then
    echo "SystemInfo Test: PASSED"
else
    echo "SystemInfo Test: FAILED - cannot read system information"
fi
sync
poweroff -f
`,

	NetworkConnectivity: `#!/bin/sh
# 10.0.2.2 is the host-side gateway in QEMU user networking.
GATEWAY=10.0.2.2

ip link set lo up 2>/dev/null
IFACE=$(ip -o link show 2>/dev/null | awk -F': ' '$2 != "lo" {print $2; exit}')
if [ -z "$IFACE" ]; then
    echo "Network Test: FAILED - no network interface found"
    sync
    poweroff -f
fi

ip link set "$IFACE" up
if command -v udhcpc >/dev/null 2>&1; then
    udhcpc -i "$IFACE" -n -q -t 5 >/dev/null 2>&1
else
    # QEMU user networking always hands out this address.
    ip addr add 10.0.2.15/24 dev "$IFACE" 2>/dev/null
    ip route add default via $GATEWAY 2>/dev/null
fi

if ping -c 1 -W 3 $GATEWAY >/dev/null 2>&1; then
    echo "Network Test: PASSED"
else
    echo "Network Test: FAILED - Cannot ping gateway"
fi
sync
poweroff -f
`,

	SSHReachability: `#!/bin/sh
if ! command -v sshd >/dev/null 2>&1; then
    echo "SSH Test: SKIPPED - sshd not installed"
    sync
    poweroff -f
fi

ssh-keygen -A >/dev/null 2>&1
mkdir -p /var/run/sshd 2>/dev/null
if sshd 2>/dev/null || /usr/sbin/sshd 2>/dev/null; then
    echo "SSH Test: PASSED"
    # Stay up so the host-side probe can connect through the forwarded port.
    sleep 30
else
    echo "SSH Test: FAILED - sshd would not start"
fi
sync
poweroff -f
`,

	PackageManagement: `#!/bin/sh
PM=""
for candidate in apk apt-get dnf yum; do
    if command -v $candidate >/dev/null 2>&1; then
        PM=$candidate
        break
    fi
done

if [ -z "$PM" ]; then
    echo "PackageManagement Test: SKIPPED - no package manager found"
    sync
    poweroff -f
fi

case "$PM" in
    apk)     $PM info >/dev/null 2>&1 ;;
    apt-get) dpkg -l >/dev/null 2>&1 ;;
    dnf|yum) $PM list installed >/dev/null 2>&1 ;;
esac

if [ $? -eq 0 ]; then
    echo "PackageManagement Test: PASSED"
else
    echo "PackageManagement Test: FAILED - $PM cannot list packages"
fi
sync
poweroff -f
`,

	Performance: `#!/bin/sh
echo "=== Performance Check ==="
START=$(cat /proc/uptime | cut -d' ' -f1)
if dd if=/dev/zero of=/dev/null bs=1M count=256 2>/dev/null; then
    END=$(cat /proc/uptime | cut -d' ' -f1)
    echo "throughput window: $START -> $END"
    echo "Performance Test: PASSED"
else
    echo "Performance Test: FAILED - dd benchmark failed"
fi
sync
poweroff -f
`,
}
