package vmm

import "fmt"

// StartError means the emulator process never came up: binary missing,
// spawn failure, or death inside the liveness grace period. It is fatal for
// the affected test case only; the suite carries on with the next case.
type StartError struct {
	Bin    string
	Output string // captured stderr/console tail, may be empty
	Err    error
}

func (e *StartError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("emulator %s failed to start: %v (%s)", e.Bin, e.Err, e.Output)
	}
	return fmt.Sprintf("emulator %s failed to start: %v", e.Bin, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }
