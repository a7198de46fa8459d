package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bimmerbailey/sift/internal/processor"
)

// DefaultReportName is the report file written under the output root.
const DefaultReportName = "preprocessor_logs.txt"

// Report tags.
const (
	TagLogs     = "LOGS"
	TagRejected = "REJECTED"
	TagError    = "ERROR"
)

// Entry is the report record for one claimed file.
type Entry struct {
	Path         string           `json:"path"`
	Status       processor.Status `json:"-"`
	StatusName   string           `json:"status"`
	Preprocessor string           `json:"preprocessor,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	Logs         []string         `json:"logs"`
}

// Tag returns the entry's header tag.
func (e Entry) Tag() string {
	switch e.Status {
	case processor.StatusRejected:
		return TagRejected
	case processor.StatusErrored:
		return TagError
	}
	return TagLogs
}

// Format renders the entry as it appears in the report file:
//
//	[scans/a.dcm] LOGS:
//	line one
//	line two
//
// Rejected and errored entries carry the reason after the tag. A rejected
// entry leaves out its captured lines; they stay on the Entry for the json
// and table formats.
func (e Entry) Format() string {
	var b strings.Builder
	b.WriteString("[" + e.Path + "] " + e.Tag() + ":")
	if e.Status == processor.StatusRejected || e.Status == processor.StatusErrored {
		b.WriteString(" " + e.Reason)
	}
	b.WriteString("\n")
	if e.Status != processor.StatusRejected {
		b.WriteString(strings.Join(e.Logs, "\n"))
	}
	b.WriteString("\n")
	return b.String()
}

// Report aggregates the outcomes of one run. Total always equals the sum
// of the four outcome counters.
type Report struct {
	RunID    string    `json:"run_id"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	// Partial is set when the run was interrupted before every path was
	// visited.
	Partial bool `json:"partial"`

	Total       int `json:"total"`
	Transformed int `json:"transformed"`
	Rejected    int `json:"rejected"`
	Errored     int `json:"errored"`
	Unmatched   int `json:"unmatched"`

	// Entries holds one record per claimed file in visitation order.
	Entries []Entry `json:"entries"`
}

// NewReport starts an empty report.
func NewReport() *Report {
	return &Report{RunID: uuid.NewString(), Started: time.Now(), Entries: []Entry{}}
}

// Record accounts for one outcome. Unmatched files only move counters.
func (r *Report) Record(path string, o processor.Outcome) {
	r.Total++
	switch o.Status {
	case processor.StatusTransformed:
		r.Transformed++
	case processor.StatusRejected:
		r.Rejected++
	case processor.StatusErrored:
		r.Errored++
	case processor.StatusUnmatched:
		r.Unmatched++
		return
	}

	logs := o.Logs
	if logs == nil {
		logs = []string{}
	}
	r.Entries = append(r.Entries, Entry{
		Path:         path,
		Status:       o.Status,
		StatusName:   o.Status.String(),
		Preprocessor: o.Entry,
		Reason:       o.Reason,
		Logs:         logs,
	})
}

// Text renders the report file: every entry, joined by a blank line.
func (r *Report) Text() string {
	parts := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		parts[i] = e.Format()
	}
	return strings.Join(parts, "\n")
}

// Summary is the one-line digest printed at the end of a run.
func (r *Report) Summary() string {
	s := fmt.Sprintf("Summary: total=%d, transformed=%d, rejected=%d, errors=%d, skipped=%d",
		r.Total, r.Transformed, r.Rejected, r.Errored, r.Unmatched)
	if r.Partial {
		s += " (partial)"
	}
	return s
}

// Duration is how long the run took.
func (r *Report) Duration() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// ParseEntries reads a report file back into entries. Status is derived
// from each header's tag; lines before the first header are ignored.
func ParseEntries(text string) []Entry {
	var (
		entries []Entry
		cur     *Entry
	)
	flush := func() {
		if cur == nil {
			return
		}
		// Format ends every entry with a newline and Text adds one more
		// between entries.
		for len(cur.Logs) > 0 && cur.Logs[len(cur.Logs)-1] == "" {
			cur.Logs = cur.Logs[:len(cur.Logs)-1]
		}
		if cur.Logs == nil {
			cur.Logs = []string{}
		}
		entries = append(entries, *cur)
		cur = nil
	}

	for _, line := range strings.Split(text, "\n") {
		if e, ok := parseHeader(line); ok {
			flush()
			cur = &e
			continue
		}
		if cur != nil {
			cur.Logs = append(cur.Logs, line)
		}
	}
	flush()
	return entries
}

func parseHeader(line string) (Entry, bool) {
	if !strings.HasPrefix(line, "[") {
		return Entry{}, false
	}
	for from := 1; from < len(line); {
		end := strings.Index(line[from:], "] ")
		if end < 0 {
			return Entry{}, false
		}
		end += from
		if e, ok := parseTag(line[1:end], line[end+2:]); ok {
			return e, true
		}
		from = end + 2
	}
	return Entry{}, false
}

func parseTag(path, rest string) (Entry, bool) {
	for _, tag := range []struct {
		name   string
		status processor.Status
	}{
		{TagLogs, processor.StatusTransformed},
		{TagRejected, processor.StatusRejected},
		{TagError, processor.StatusErrored},
	} {
		prefix := tag.name + ":"
		if !strings.HasPrefix(rest, prefix) {
			continue
		}
		return Entry{
			Path:       path,
			Status:     tag.status,
			StatusName: tag.status.String(),
			Reason:     strings.TrimPrefix(strings.TrimPrefix(rest, prefix), " "),
		}, true
	}
	return Entry{}, false
}
