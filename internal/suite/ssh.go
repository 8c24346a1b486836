package suite

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"grimm.is/bootcheck/internal/clock"
)

const (
	// sshProbeInterval is the retry cadence for the host-side probe.
	sshProbeInterval = time.Second
	// sshMaxSubTimeout caps the probe so it can never eat the whole case
	// budget waiting on a dead forward.
	sshMaxSubTimeout = 30 * time.Second
	// sshDialTimeout bounds one connection attempt.
	sshDialTimeout = 3 * time.Second
)

// sshSubTimeout derives the probe budget from what is left of the case.
func sshSubTimeout(remaining time.Duration) time.Duration {
	sub := remaining / 2
	if sub > sshMaxSubTimeout {
		sub = sshMaxSubTimeout
	}
	return sub
}

// probeSSH polls an SSH handshake against addr until it succeeds or the
// sub-timeout expires. Reachability is the oracle, not login: a server that
// completes the handshake and rejects our throwaway credentials is up.
func probeSSH(addr string, timeout time.Duration, clk clock.Clock) error {
	cfg := &ssh.ClientConfig{
		User:            "bootcheck",
		Auth:            []ssh.AuthMethod{ssh.Password("bootcheck")},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         sshDialTimeout,
	}

	deadline := clk.Now().Add(timeout)
	var lastErr error
	for {
		client, err := ssh.Dial("tcp", addr, cfg)
		if err == nil {
			client.Close()
			return nil
		}
		if strings.Contains(err.Error(), "unable to authenticate") {
			// The handshake completed; the server is reachable.
			return nil
		}
		lastErr = err

		if clk.Now().After(deadline) {
			return fmt.Errorf("ssh not reachable on %s within %s: %v", addr, timeout, lastErr)
		}
		clk.Sleep(sshProbeInterval)
	}
}
