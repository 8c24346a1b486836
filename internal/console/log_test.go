package console

import (
	"io"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_AttachCapturesLines(t *testing.T) {
	log := NewLog()
	log.Attach(strings.NewReader("first line\nsecond line\nlogin:\n"))
	log.Wait()

	assert.Equal(t, 3, log.Len())
	assert.True(t, log.Contains("login:"))
	assert.Equal(t, "first line\nsecond line\nlogin:", log.Snapshot())
}

func TestLog_Tail(t *testing.T) {
	log := NewLog()
	log.Attach(strings.NewReader("a\nb\nc\nd\n"))
	log.Wait()

	assert.Equal(t, "c\nd", log.Tail(2))
	assert.Equal(t, "a\nb\nc\nd", log.Tail(100), "tail larger than log returns everything")
}

func TestLog_CaseSensitiveMatch(t *testing.T) {
	log := NewLog()
	log.Attach(strings.NewReader("Welcome to Alpine Linux\n"))
	log.Wait()

	assert.True(t, log.Contains("Alpine"))
	assert.False(t, log.Contains("alpine"))
}

func TestLog_MatchAny(t *testing.T) {
	log := NewLog()
	log.Attach(strings.NewReader("noise\nbuildroot login: \nmore noise\n"))
	log.Wait()

	patterns := []*regexp.Regexp{
		regexp.MustCompile(`login:`),
		regexp.MustCompile(`Welcome to`),
	}
	line, ok := log.MatchAny(patterns)
	require.True(t, ok)
	assert.Contains(t, line, "login:")
}

func TestLog_CloseStopsAppends(t *testing.T) {
	log := NewLog()
	pr, pw := io.Pipe()
	log.Attach(pr)

	_, err := pw.Write([]byte("before close\n"))
	require.NoError(t, err)

	// Give the pump a moment to consume the line.
	deadline := time.Now().Add(2 * time.Second)
	for log.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, 1, log.Len())

	log.Close()
	pw.Write([]byte("after close\n"))
	pw.Close()
	log.Wait()

	assert.Equal(t, 1, log.Len())
	assert.False(t, log.Contains("after close"))
}

func TestLog_CloseDoesNotBlockOnOpenStream(t *testing.T) {
	log := NewLog()
	pr, pw := io.Pipe()
	log.Attach(pr)

	done := make(chan struct{})
	go func() {
		log.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close blocked waiting for end-of-stream")
	}

	pw.Close()
	log.Wait()
}

func TestLog_FindLine(t *testing.T) {
	log := NewLog()
	log.Attach(strings.NewReader("junk\nSystemInfo Test: PASSED\n"))
	log.Wait()

	line, ok := log.FindLine("SystemInfo Test:")
	require.True(t, ok)
	assert.Equal(t, "SystemInfo Test: PASSED", line)

	_, ok = log.FindLine("Network Test:")
	assert.False(t, ok)
}
