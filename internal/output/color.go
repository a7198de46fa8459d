package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/bimmerbailey/sift/internal/processor"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

// ColorMode determines when to use colored output.
type ColorMode int

const (
	ColorAuto   ColorMode = iota // Auto-detect based on TTY
	ColorAlways                  // Always use colors
	ColorNever                   // Never use colors
)

// ParseColorMode converts "auto", "always" or "never". Anything else is
// auto.
func ParseColorMode(s string) ColorMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "always", "on", "true":
		return ColorAlways
	case "never", "off", "false":
		return ColorNever
	default:
		return ColorAuto
	}
}

// isTerminal checks if the given file is a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// UseColor reports whether output to w should be colorized under mode.
func UseColor(mode ColorMode, w io.Writer) bool {
	switch mode {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	case ColorAuto:
		if f, ok := w.(*os.File); ok {
			return isTerminal(f)
		}
		return false
	}
	return false
}

// ColorizeStatus colors text by outcome: green for transformed, yellow
// for rejected, bold red for errors and gray for skipped files.
func ColorizeStatus(status processor.Status, text string) string {
	switch status {
	case processor.StatusTransformed:
		return colorGreen + text + colorReset
	case processor.StatusRejected:
		return colorYellow + text + colorReset
	case processor.StatusErrored:
		return colorBold + colorRed + text + colorReset
	case processor.StatusUnmatched:
		return colorGray + text + colorReset
	default:
		return text
	}
}

// WriteStatusLine writes line colored by status when mode allows it.
func (wr *Writer) WriteStatusLine(status processor.Status, line string, mode ColorMode) error {
	if UseColor(mode, wr.w) {
		line = ColorizeStatus(status, line)
	}
	_, err := fmt.Fprintln(wr.w, line)
	return err
}
