package vmm

import (
	"fmt"
	"net"
	"sync"
)

// portRegistry tracks host ports claimed for guest forwards. Two live VM
// handles must never share a forwarded port, even when the kernel would let
// a second hostfwd bind race through; the registry refuses before qemu does.
type portRegistry struct {
	mu    sync.Mutex
	inUse map[int]bool
}

var hostPorts = &portRegistry{inUse: make(map[int]bool)}

// acquire claims port, or any free port if port is 0.
func (r *portRegistry) acquire(port int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if port == 0 {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return 0, fmt.Errorf("failed to probe free port: %w", err)
		}
		port = l.Addr().(*net.TCPAddr).Port
		l.Close()
	}

	if r.inUse[port] {
		return 0, fmt.Errorf("host port %d already claimed by a live VM", port)
	}
	r.inUse[port] = true
	return port, nil
}

// release returns a port to the pool. Safe to call for unclaimed ports.
func (r *portRegistry) release(port int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inUse, port)
}
