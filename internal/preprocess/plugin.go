package preprocess

import (
	"bytes"
	"io"
	"strings"
	"sync"

	"github.com/bimmerbailey/sift/internal/errors"
)

// Environment variables handed to WASM and external-command transformers.
const (
	EnvFileName   = "SIFT_FILE_NAME"
	EnvFileType   = "SIFT_FILE_TYPE"
	EnvPolicyFile = "SIFT_POLICY_FILE"
)

// LastLine forwards writes to w and remembers the last non-empty line.
// Plugin transformers report failures on stderr; the last line is the
// failure message.
type LastLine struct {
	w       io.Writer
	mu      sync.Mutex
	pending bytes.Buffer
	last    string
}

// NewLastLine wraps w. A nil w discards.
func NewLastLine(w io.Writer) *LastLine {
	if w == nil {
		w = io.Discard
	}
	return &LastLine{w: w}
}

func (l *LastLine) Write(p []byte) (int, error) {
	l.mu.Lock()
	l.pending.Write(p)
	for {
		i := bytes.IndexByte(l.pending.Bytes(), '\n')
		if i < 0 {
			break
		}
		l.remember(string(l.pending.Next(i + 1)))
	}
	l.mu.Unlock()
	return l.w.Write(p)
}

// Line returns the last non-empty line, including an unterminated one.
func (l *LastLine) Line() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s := strings.TrimSpace(l.pending.String()); s != "" {
		return s
	}
	return l.last
}

func (l *LastLine) remember(line string) {
	if s := strings.TrimSpace(line); s != "" {
		l.last = s
	}
}

// ExitFailure is the transform error for a plugin that exited with a
// non-zero status. The message is the plugin's last stderr line when it
// wrote one.
func ExitFailure(name string, code int, lastLine string) error {
	var err error
	if lastLine != "" {
		err = errors.New(lastLine)
	} else {
		err = errors.Newf("%s exited with status %d", name, code)
	}
	err = errors.WithDetailf(err, "exit status %d", code)
	if IsPolicyRejectionText(lastLine) {
		err = errors.Mark(err, ErrPolicyRejection)
	}
	return errors.Mark(err, errors.ErrTransform)
}
