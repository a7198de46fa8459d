// Package pipeline drives every file under an input root through the
// processor, persists transformed output, and writes the run report.
package pipeline

import (
	"context"
	"iter"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bimmerbailey/sift/internal/errors"
	"github.com/bimmerbailey/sift/internal/preprocess"
	"github.com/bimmerbailey/sift/internal/processor"
	"github.com/bimmerbailey/sift/internal/store"
	"github.com/bimmerbailey/sift/internal/walker"
)

// Progress is told about each file as its outcome is recorded, in
// visitation order.
type Progress interface {
	File(path string, o processor.Outcome)
}

// Config tunes a Runner.
type Config struct {
	// Workers is the number of files processed at once. Zero or one
	// processes files sequentially.
	Workers int
	// ReportName is the report's path under the output root.
	ReportName string
	// Progress receives per-file notifications. Optional.
	Progress Progress
}

// Runner executes runs against one processor and store.
type Runner struct {
	proc   *processor.Processor
	store  store.Store
	logger *slog.Logger
	cfg    Config
}

// New returns a Runner. A processor that diverts the process-wide
// loggers cannot be shared by concurrent workers.
func New(proc *processor.Processor, st store.Store, logger *slog.Logger, cfg Config) (*Runner, error) {
	if proc == nil || st == nil {
		return nil, errors.New("pipeline: processor and store are required")
	}
	if logger == nil {
		return nil, errors.New("pipeline: logger is required")
	}
	if cfg.Workers < 0 {
		return nil, errors.Newf("pipeline: invalid worker count %d", cfg.Workers)
	}
	if cfg.Workers > 1 && proc.DivertsDefaults() {
		return nil, errors.WithHint(
			errors.New("process-wide log capture needs sequential processing"),
			"run with --workers 1, or hand plugins their logger instead of using the defaults")
	}
	if cfg.ReportName == "" {
		cfg.ReportName = DefaultReportName
	}
	return &Runner{proc: proc, store: st, logger: logger, cfg: cfg}, nil
}

// result is one visited path's outcome.
type result struct {
	path    string
	outcome processor.Outcome
	// abandoned is set when the run was cancelled while the file was in
	// flight; it is left out of the report.
	abandoned bool
}

// Run processes every regular file under root. The report is written once
// at the end, also when ctx is cancelled, in which case it is marked
// partial and the returned error is ErrInterrupted. A missing or
// unreadable root fails before any file is touched.
func (r *Runner) Run(ctx context.Context, root string) (*Report, error) {
	paths, err := walker.Walk(root)
	if err != nil {
		return nil, err
	}

	report := NewReport()
	r.logger.Info("run started", "run_id", report.RunID, "input", root, "workers", max(r.cfg.Workers, 1))

	if r.cfg.Workers > 1 {
		r.concurrent(ctx, root, paths, report)
	} else {
		r.sequential(ctx, root, paths, report)
	}

	report.Finished = time.Now()
	report.Partial = ctx.Err() != nil

	if err := r.store.Put(context.WithoutCancel(ctx), r.cfg.ReportName, []byte(report.Text())); err != nil {
		return report, errors.Wrap(err, "write report")
	}
	r.logger.Info("run finished",
		"run_id", report.RunID,
		"total", report.Total,
		"transformed", report.Transformed,
		"rejected", report.Rejected,
		"errored", report.Errored,
		"unmatched", report.Unmatched,
		"partial", report.Partial,
		"duration", report.Duration(),
		"report", r.store.Location(r.cfg.ReportName),
	)

	if report.Partial {
		return report, errors.Mark(errors.Wrap(ctx.Err(), "run interrupted"), errors.ErrInterrupted)
	}
	return report, nil
}

func (r *Runner) sequential(ctx context.Context, root string, paths iter.Seq2[string, error], report *Report) {
	for rel, walkErr := range paths {
		if ctx.Err() != nil {
			return
		}
		res := r.handle(ctx, root, rel, walkErr)
		if res.abandoned {
			return
		}
		r.record(report, res)
	}
}

// concurrent fans paths out to at most Workers goroutines and records
// results in visitation order.
func (r *Runner) concurrent(ctx context.Context, root string, paths iter.Seq2[string, error], report *Report) {
	type indexed struct {
		i int
		result
	}
	results := make(chan indexed, r.cfg.Workers)
	aggregated := make(chan struct{})

	go func() {
		defer close(aggregated)
		pending := make(map[int]result)
		next := 0
		for res := range results {
			pending[res.i] = res.result
			for {
				p, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				next++
				if !p.abandoned {
					r.record(report, p)
				}
			}
		}
	}()

	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)
	i := 0
	for rel, walkErr := range paths {
		if ctx.Err() != nil {
			break
		}
		idx := i
		i++
		g.Go(func() error {
			results <- indexed{i: idx, result: r.handle(ctx, root, rel, walkErr)}
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	<-aggregated
}

// handle reads, processes, and persists one path. Every failure other
// than cancellation becomes the file's errored outcome.
func (r *Runner) handle(ctx context.Context, root, rel string, walkErr error) result {
	if walkErr != nil {
		r.logger.Warn("cannot visit path", "path", rel, "error", walkErr)
		return result{path: rel, outcome: errored(walkErr)}
	}

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		err = errors.Filesystem(err, "read %s", rel)
		r.logger.Warn("cannot read file", "path", rel, "error", err)
		return result{path: rel, outcome: errored(err)}
	}

	f := &preprocess.File{Name: rel, Data: data, Type: TypeOf(rel)}
	out, err := r.proc.Process(ctx, f)
	if err != nil {
		if errors.Is(err, errors.ErrInterrupted) {
			return result{path: rel, abandoned: true}
		}
		r.logger.Error("processing failed", "path", rel, "error", err)
		return result{path: rel, outcome: out}
	}

	if out.Status == processor.StatusTransformed {
		if err := r.store.Put(context.WithoutCancel(ctx), rel, out.Data); err != nil {
			r.logger.Error("cannot write output", "path", rel, "error", err)
			out.Status = processor.StatusErrored
			out.Reason = err.Error()
		}
		out.Data = nil
	}
	return result{path: rel, outcome: out}
}

func (r *Runner) record(report *Report, res result) {
	report.Record(res.path, res.outcome)
	if r.cfg.Progress != nil {
		r.cfg.Progress.File(res.path, res.outcome)
	}
}

func errored(err error) processor.Outcome {
	return processor.Outcome{Status: processor.StatusErrored, Reason: err.Error()}
}

var knownTypes = map[string]string{
	".dcm":   "application/dicom",
	".dicom": "application/dicom",
	".hl7":   "x-application/hl7-v2+er7",
	".nii":   "application/x-nifti",
}

// TypeOf guesses a content type from the file extension. Unknown
// extensions yield "".
func TypeOf(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return ""
	}
	if t, ok := knownTypes[ext]; ok {
		return t
	}
	return mime.TypeByExtension(ext)
}
