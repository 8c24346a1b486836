package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeoutLooksShort(t *testing.T) {
	// A 60s per-case timeout across 3 cases is a 180s budget; a suite that
	// historically takes 120s end to end is comfortably covered.
	assert.False(t, timeoutLooksShort(60*time.Second, 3, 120*time.Second))

	// The same history with a 30s per-case timeout is a 90s budget: short.
	assert.True(t, timeoutLooksShort(30*time.Second, 3, 120*time.Second))

	// Single-case suites compare the timeout directly.
	assert.True(t, timeoutLooksShort(30*time.Second, 1, 45*time.Second))
	assert.False(t, timeoutLooksShort(60*time.Second, 1, 45*time.Second))

	// No history, no warning.
	assert.False(t, timeoutLooksShort(time.Second, 2, 0))
}
