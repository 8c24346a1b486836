package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsoleHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: LevelDebug, Output: &buf})

	log.Info("vm started", "pid", 1234)

	line := buf.String()
	assert.Contains(t, line, "[info]")
	assert.Contains(t, line, "vm started")
	assert.Contains(t, line, "pid=1234")
}

func TestConsoleHandler_ComponentPromoted(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: LevelDebug, Output: &buf}).WithComponent("vmm")

	log.Info("launch")

	line := buf.String()
	assert.Contains(t, line, "vmm: launch")
	assert.NotContains(t, line, "component=")
}

func TestConsoleHandler_QuotesSpacedValues(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: LevelDebug, Output: &buf})

	log.Warn("boot slow", "reason", "no login prompt")

	assert.Contains(t, buf.String(), `reason="no login prompt"`)
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: LevelWarn, Output: &buf})

	log.Debug("hidden")
	log.Info("also hidden")
	log.Error("visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: LevelInfo, Output: &buf})

	log.Debug("before")
	log.SetLevel(LevelDebug)
	log.Debug("after")

	out := buf.String()
	assert.NotContains(t, out, "before")
	assert.Contains(t, out, "after")
}
