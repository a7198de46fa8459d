package capture

import (
	"bytes"
	"strings"
	"sync"
)

// lineWriter splits a byte stream into lines and hands each complete line
// to emit. A trailing partial line is held until the next newline or Flush.
type lineWriter struct {
	mu      sync.Mutex
	pending bytes.Buffer
	emit    func(string)
}

func newLineWriter(emit func(string)) *lineWriter {
	return &lineWriter{emit: emit}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending.Write(p)
	for {
		i := bytes.IndexByte(w.pending.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := string(w.pending.Next(i + 1))
		w.emit(strings.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

// Sync satisfies zapcore.WriteSyncer.
func (w *lineWriter) Sync() error { return nil }

// Flush emits any pending partial line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending.Len() == 0 {
		return
	}
	w.emit(w.pending.String())
	w.pending.Reset()
}
