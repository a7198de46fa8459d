// Package explain condenses the rejected and failed entries of a run
// report and asks a local model to explain them.
//
// Reasons are redacted before grouping, so nothing sent to the model
// carries the values the redactor recognises. Paths are reduced to their
// file extension for the same reason.
package explain

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/bimmerbailey/sift/internal/pipeline"
	"github.com/bimmerbailey/sift/internal/preprocess"
	"github.com/bimmerbailey/sift/internal/processor"
)

// Group is one reason template for one outcome.
type Group struct {
	Status   string   `json:"status"`
	Pattern  string   `json:"pattern"`
	Count    int      `json:"count"`
	Examples []string `json:"examples"`
}

// Summary is the condensed view of a report.
type Summary struct {
	Rejected int     `json:"rejected"`
	Errored  int     `json:"errored"`
	Groups   []Group `json:"groups"`
	// Extensions counts problem files per extension.
	Extensions map[string]int `json:"extensions"`
}

// Empty reports whether the report had nothing to explain.
func (s *Summary) Empty() bool { return s.Rejected+s.Errored == 0 }

// Summarize groups the reasons of rejected and errored entries. A nil
// redactor leaves reasons as they are.
func Summarize(entries []pipeline.Entry, redactor *preprocess.Redactor) *Summary {
	s := &Summary{Extensions: make(map[string]int)}
	rejected := NewExtractor(0, 0, 0)
	errored := NewExtractor(0, 0, 0)

	for _, e := range entries {
		var ex *Extractor
		switch e.Status {
		case processor.StatusRejected:
			s.Rejected++
			ex = rejected
		case processor.StatusErrored:
			s.Errored++
			ex = errored
		default:
			continue
		}
		reason := e.Reason
		if redactor != nil {
			reason = redactor.Redact(reason)
		}
		if strings.TrimSpace(reason) == "" {
			reason = "(no reason given)"
		}
		ex.Add(reason)

		ext := strings.ToLower(path.Ext(e.Path))
		if ext == "" {
			ext = "(none)"
		}
		s.Extensions[ext]++
	}

	s.Groups = append(groups(processor.StatusRejected, rejected), groups(processor.StatusErrored, errored)...)
	return s
}

func groups(status processor.Status, ex *Extractor) []Group {
	var out []Group
	for _, t := range ex.Templates() {
		out = append(out, Group{
			Status:   status.String(),
			Pattern:  t.Pattern,
			Count:    t.Count,
			Examples: t.Examples,
		})
	}
	return out
}

// Text renders the summary for people and for the prompt.
func (s *Summary) Text() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Rejected files: %d\nFailed files: %d\n", s.Rejected, s.Errored)

	if len(s.Extensions) > 0 {
		sb.WriteString("By extension:")
		for _, ext := range sortedKeys(s.Extensions) {
			fmt.Fprintf(&sb, " %s=%d", ext, s.Extensions[ext])
		}
		sb.WriteString("\n")
	}

	for _, g := range s.Groups {
		fmt.Fprintf(&sb, "\n[%s] %s (%d occurrences)\n", strings.ToUpper(g.Status), g.Pattern, g.Count)
		if g.Count > 1 || g.Examples[0] != g.Pattern {
			sb.WriteString("  Examples:\n")
			for _, ex := range g.Examples {
				fmt.Fprintf(&sb, "    - %s\n", ex)
			}
		}
	}
	return sb.String()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
