package cmd

import (
	"fmt"
	"runtime"

	"grimm.is/bootcheck/internal/timeouts"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// RunVersion prints build and environment information.
func RunVersion() error {
	fmt.Printf("bootcheck %s (%s/%s, %s)\n", Version, runtime.GOOS, runtime.GOARCH, runtime.Version())
	fmt.Printf("timeout dilation factor: %s\n", timeouts.GetFactorString())
	return nil
}
