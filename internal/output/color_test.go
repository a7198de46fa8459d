package output

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/bimmerbailey/sift/internal/processor"
)

func TestColorizeStatus(t *testing.T) {
	tests := []struct {
		name          string
		status        processor.Status
		expectColor   bool
		expectedColor string
	}{
		{"transformed - green", processor.StatusTransformed, true, colorGreen},
		{"rejected - yellow", processor.StatusRejected, true, colorYellow},
		{"errored - bold red", processor.StatusErrored, true, colorBold + colorRed},
		{"unmatched - gray", processor.StatusUnmatched, true, colorGray},
		{"unknown - no color", processor.Status(42), false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ColorizeStatus(tt.status, "scans/a.dcm")

			if tt.expectColor {
				if !strings.HasPrefix(result, tt.expectedColor) {
					t.Errorf("Expected result to start with %q, got: %q", tt.expectedColor, result)
				}
				if !strings.HasSuffix(result, colorReset) {
					t.Errorf("Expected result to end with reset code, got: %q", result)
				}
				if !strings.Contains(result, "scans/a.dcm") {
					t.Errorf("Expected original text in result, got: %q", result)
				}
			} else if result != "scans/a.dcm" {
				t.Errorf("Expected text to be unchanged, got: %q", result)
			}
		})
	}
}

func TestParseColorMode(t *testing.T) {
	tests := []struct {
		input string
		want  ColorMode
	}{
		{"auto", ColorAuto},
		{"", ColorAuto},
		{"always", ColorAlways},
		{"ALWAYS", ColorAlways},
		{"never", ColorNever},
		{"off", ColorNever},
		{"sometimes", ColorAuto},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseColorMode(tt.input); got != tt.want {
				t.Errorf("ParseColorMode(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestUseColor(t *testing.T) {
	tests := []struct {
		name     string
		mode     ColorMode
		writer   io.Writer
		expected bool
	}{
		{"ColorAlways - any writer", ColorAlways, &bytes.Buffer{}, true},
		{"ColorNever - any writer", ColorNever, os.Stdout, false},
		{"ColorAuto - non-file writer", ColorAuto, &bytes.Buffer{}, false},
		{"ColorAuto - file writer (stdout)", ColorAuto, os.Stdout, isTerminal(os.Stdout)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := UseColor(tt.mode, tt.writer); result != tt.expected {
				t.Errorf("UseColor() = %v, expected %v", result, tt.expected)
			}
		})
	}
}

func TestWriteStatusLine(t *testing.T) {
	t.Run("ColorNever mode", func(t *testing.T) {
		buf := &bytes.Buffer{}
		if err := New(buf, FormatText).WriteStatusLine(processor.StatusErrored, "boom", ColorNever); err != nil {
			t.Fatalf("WriteStatusLine() error = %v", err)
		}
		if buf.String() != "boom\n" {
			t.Errorf("Expected plain line, got: %q", buf.String())
		}
	})

	t.Run("ColorAlways mode", func(t *testing.T) {
		buf := &bytes.Buffer{}
		if err := New(buf, FormatText).WriteStatusLine(processor.StatusErrored, "boom", ColorAlways); err != nil {
			t.Fatalf("WriteStatusLine() error = %v", err)
		}
		if !strings.Contains(buf.String(), colorRed) {
			t.Errorf("Expected red color code, got: %q", buf.String())
		}
	})

	t.Run("ColorAuto mode with buffer (not TTY)", func(t *testing.T) {
		buf := &bytes.Buffer{}
		if err := New(buf, FormatText).WriteStatusLine(processor.StatusRejected, "no", ColorAuto); err != nil {
			t.Fatalf("WriteStatusLine() error = %v", err)
		}
		if strings.Contains(buf.String(), "\033[") {
			t.Errorf("Expected no color codes for non-TTY, got: %q", buf.String())
		}
	})
}

func TestANSIColorCodes(t *testing.T) {
	codes := []struct {
		name  string
		value string
	}{
		{"reset", colorReset},
		{"red", colorRed},
		{"green", colorGreen},
		{"yellow", colorYellow},
		{"gray", colorGray},
		{"bold", colorBold},
	}

	for _, code := range codes {
		t.Run(code.name, func(t *testing.T) {
			if !strings.HasPrefix(code.value, "\033[") {
				t.Errorf("Color code %q should start with ANSI escape sequence", code.name)
			}
			if !strings.HasSuffix(code.value, "m") {
				t.Errorf("Color code %q should end with 'm'", code.name)
			}
		})
	}
}
