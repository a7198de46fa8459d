// Package output renders run reports and preprocessor listings as text,
// JSON or a table.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/bimmerbailey/sift/internal/pipeline"
	"github.com/bimmerbailey/sift/internal/preprocess"
	"github.com/bimmerbailey/sift/internal/processor"
)

// Format represents an output format type.
type Format string

const (
	FormatText  Format = "text"
	FormatJSON  Format = "json"
	FormatTable Format = "table"
)

// ParseFormat converts a string to a Format, defaulting to text.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON
	case "table":
		return FormatTable
	default:
		return FormatText
	}
}

// Writer handles writing formatted output.
type Writer struct {
	w      io.Writer
	format Format
}

// New creates a new output Writer.
func New(w io.Writer, format Format) *Writer {
	return &Writer{w: w, format: format}
}

// Format returns the configured format.
func (wr *Writer) Format() Format { return wr.format }

// WriteJSON outputs any value as indented JSON.
func (wr *Writer) WriteJSON(v any) error {
	enc := json.NewEncoder(wr.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteReport outputs a finished run. Text is the summary line followed by
// one colored line per rejected or failed file.
func (wr *Writer) WriteReport(r *pipeline.Report, mode ColorMode) error {
	switch wr.format {
	case FormatJSON:
		return wr.WriteJSON(r)
	case FormatTable:
		return wr.writeReportTable(r)
	default:
		return wr.writeReportText(r, mode)
	}
}

func (wr *Writer) writeReportText(r *pipeline.Report, mode ColorMode) error {
	for _, e := range r.Entries {
		if e.Status == processor.StatusTransformed {
			continue
		}
		line := fmt.Sprintf("%s %s: %s", strings.ToUpper(e.StatusName), e.Path, e.Reason)
		if err := wr.WriteStatusLine(e.Status, line, mode); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(wr.w, r.Summary())
	return err
}

func (wr *Writer) writeReportTable(r *pipeline.Report) error {
	tw := tabwriter.NewWriter(wr.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tSTATUS\tPREPROCESSOR\tLOGS\tREASON")
	fmt.Fprintln(tw, "----\t------\t------------\t----\t------")

	for _, e := range r.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", e.Path, e.StatusName, e.Preprocessor, len(e.Logs), truncate(e.Reason, 80))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(wr.w, r.Summary())
	return err
}

// PreprocessorInfo describes one registry entry for listings.
type PreprocessorInfo struct {
	Position    int    `json:"position"`
	Name        string `json:"name"`
	Kind        string `json:"kind,omitempty"`
	Description string `json:"description,omitempty"`
	Timeout     string `json:"timeout,omitempty"`
}

// Describe converts entries to listing rows, keeping their order.
func Describe(entries []preprocess.Entry) []PreprocessorInfo {
	infos := make([]PreprocessorInfo, 0, len(entries))
	for i, e := range entries {
		info := PreprocessorInfo{
			Position:    i + 1,
			Name:        e.Name,
			Kind:        e.Kind,
			Description: e.Description,
		}
		if e.Timeout > 0 {
			info.Timeout = e.Timeout.String()
		}
		infos = append(infos, info)
	}
	return infos
}

// WritePreprocessors outputs the entries in load order.
func (wr *Writer) WritePreprocessors(entries []preprocess.Entry) error {
	infos := Describe(entries)
	switch wr.format {
	case FormatJSON:
		return wr.WriteJSON(infos)
	case FormatTable:
		tw := tabwriter.NewWriter(wr.w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "#\tNAME\tKIND\tTIMEOUT\tDESCRIPTION")
		fmt.Fprintln(tw, "-\t----\t----\t-------\t-----------")
		for _, p := range infos {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", p.Position, p.Name, p.Kind, p.Timeout, truncate(p.Description, 60))
		}
		return tw.Flush()
	default:
		if len(infos) == 0 {
			_, err := fmt.Fprintln(wr.w, "No preprocessors registered; every file will be skipped.")
			return err
		}
		for _, p := range infos {
			line := fmt.Sprintf("%d. %s", p.Position, p.Name)
			if p.Kind != "" {
				line += " [" + p.Kind + "]"
			}
			if p.Timeout != "" {
				line += " timeout=" + p.Timeout
			}
			if p.Description != "" {
				line += " - " + p.Description
			}
			if _, err := fmt.Fprintln(wr.w, line); err != nil {
				return err
			}
		}
		return nil
	}
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}
