package output

import (
	"fmt"
	"io"
	"sync"

	"github.com/pterm/pterm"

	"github.com/bimmerbailey/sift/internal/processor"
)

// Progress prints one marker line per finished file:
//
//	✔ scans/a.dcm
//	⊘ scans/c.dcm (rejected: ...)
//	✖ scans/d.dcm (error: ...)
//	- notes.txt (skipped)
type Progress struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
}

// NewProgress writes markers to w, styled with pterm when color is set.
func NewProgress(w io.Writer, color bool) *Progress {
	return &Progress{w: w, color: color}
}

// File implements pipeline.Progress.
func (p *Progress) File(path string, o processor.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, p.line(path, o))
}

func (p *Progress) line(path string, o processor.Outcome) string {
	switch o.Status {
	case processor.StatusTransformed:
		return p.style(pterm.FgGreen, "✔") + " " + path
	case processor.StatusRejected:
		return p.style(pterm.FgYellow, "⊘") + " " + path + p.style(pterm.FgGray, " (rejected: "+o.Reason+")")
	case processor.StatusErrored:
		return p.style(pterm.FgRed, "✖") + " " + path + p.style(pterm.FgRed, " (error: "+o.Reason+")")
	default:
		return p.style(pterm.FgGray, "- "+path+" (skipped)")
	}
}

func (p *Progress) style(c pterm.Color, s string) string {
	if !p.color {
		return s
	}
	return c.Sprint(s)
}
