package command

import (
	"bytes"
	"strings"
	"sync"
)

// tailBuffer keeps the last maxLines lines written to it.
type tailBuffer struct {
	mu       sync.Mutex
	maxLines int
	lines    []string
	partial  bytes.Buffer
	written  bool
}

func newTailBuffer(maxLines int) *tailBuffer {
	return &tailBuffer{maxLines: maxLines}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.written = true

	t.partial.Write(p)
	for {
		data := t.partial.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		t.push(string(data[:idx]))
		t.partial.Next(idx + 1)
	}
	return len(p), nil
}

func (t *tailBuffer) push(line string) {
	t.lines = append(t.lines, line)
	if over := len(t.lines) - t.maxLines; over > 0 {
		t.lines = append(t.lines[:0], t.lines[over:]...)
	}
}

// String returns the retained lines including any unterminated last line.
func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	lines := append([]string(nil), t.lines...)
	if t.partial.Len() > 0 {
		lines = append(lines, t.partial.String())
		if over := len(lines) - t.maxLines; over > 0 {
			lines = lines[over:]
		}
	}
	return strings.Join(lines, "\n")
}

// Written reports whether anything was ever written.
func (t *tailBuffer) Written() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.written
}
