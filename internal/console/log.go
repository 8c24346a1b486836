// Package console captures an emulator's serial output as an append-only
// line buffer. One Log belongs to exactly one VM run; the boot detector and
// sentinel search read it, only the attached reader goroutine writes it.
package console

import (
	"bufio"
	"io"
	"regexp"
	"strings"
	"sync"
)

// maxLineBytes bounds a single console line. Kernels can emit very long
// lines (initramfs file lists, stack traces); anything longer is split.
const maxLineBytes = 1024 * 1024

// Log is an append-only console line buffer for one VM run.
type Log struct {
	mu     sync.Mutex
	lines  []string
	closed bool

	pumps sync.WaitGroup
}

// NewLog creates an empty console log.
func NewLog() *Log {
	return &Log{}
}

// Attach starts a goroutine that pumps lines from r into the log until EOF
// or Close. The reader is expected to be a process pipe; killing the process
// closes the pipe and ends the pump, so termination never waits on a read.
func (l *Log) Attach(r io.Reader) {
	l.pumps.Add(1)
	go func() {
		defer l.pumps.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
		for scanner.Scan() {
			if !l.append(scanner.Text()) {
				return
			}
		}
	}()
}

// append adds a line. Returns false once the log is closed.
func (l *Log) append(line string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.lines = append(l.lines, line)
	return true
}

// Close stops accepting new lines. It does not wait for attached readers to
// hit EOF; it must never block the supervisor's termination path.
func (l *Log) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}

// Wait blocks until all attached pumps have finished. Used by tests and by
// the supervisor after the process has exited, never before killing it.
func (l *Log) Wait() {
	l.pumps.Wait()
}

// Len returns the number of captured lines.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines)
}

// Snapshot returns the full captured output as one string.
func (l *Log) Snapshot() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.lines, "\n")
}

// Tail returns the last n lines joined by newlines.
func (l *Log) Tail(n int) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n > len(l.lines) {
		n = len(l.lines)
	}
	return strings.Join(l.lines[len(l.lines)-n:], "\n")
}

// Contains reports whether any captured line contains s. Matching is
// case-sensitive; cosmetic false positives are preferred over missed boots.
func (l *Log) Contains(s string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

// FindLine returns the first captured line containing s.
func (l *Log) FindLine(s string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, s) {
			return line, true
		}
	}
	return "", false
}

// MatchAny returns the first line matching any of the given patterns.
func (l *Log) MatchAny(patterns []*regexp.Regexp) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		for _, re := range patterns {
			if re.MatchString(line) {
				return line, true
			}
		}
	}
	return "", false
}
