// Package processor turns one input file into a classified outcome.
//
// Process selects the claiming preprocessor, runs its transformer inside a
// fresh capture, and classifies the result. It performs no file I/O: the
// caller reads the input and persists whatever a Transformed outcome
// carries.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bimmerbailey/sift/internal/capture"
	"github.com/bimmerbailey/sift/internal/errors"
	"github.com/bimmerbailey/sift/internal/policy"
	"github.com/bimmerbailey/sift/internal/preprocess"
)

// Status classifies an outcome.
type Status int

const (
	StatusTransformed Status = iota
	StatusRejected
	StatusErrored
	StatusUnmatched
)

func (s Status) String() string {
	switch s {
	case StatusTransformed:
		return "transformed"
	case StatusRejected:
		return "rejected"
	case StatusErrored:
		return "errored"
	case StatusUnmatched:
		return "unmatched"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Outcome is the result of processing one file.
type Outcome struct {
	Status Status
	// Data holds the transformed bytes when Status is StatusTransformed.
	Data []byte
	// Reason is the failure message for rejected and errored files.
	Reason string
	// Logs are the lines captured while the transformer ran. Always empty
	// for unmatched files.
	Logs []string
	// Entry names the preprocessor that claimed the file.
	Entry string
}

// Processor classifies files against a registry.
type Processor struct {
	registry *preprocess.Registry
	logger   *slog.Logger
	policy   *policy.Document
	timeout  time.Duration

	level    slog.Level
	defaults bool
	loggers  *capture.Registry
}

// Option configures a Processor.
type Option func(*Processor)

// WithPolicy hands doc to every transformer.
func WithPolicy(doc *policy.Document) Option {
	return func(p *Processor) {
		p.policy = doc
	}
}

// WithTimeout bounds each transform. Entries with their own timeout use
// theirs. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(p *Processor) {
		p.timeout = d
	}
}

// WithCaptureLevel sets the minimum level recorded in captured logs.
func WithCaptureLevel(level slog.Level) Option {
	return func(p *Processor) {
		p.level = level
	}
}

// WithProcessDefaults also diverts the process-wide loggers, and every
// logger in reg, while a transformer runs. Only valid when files are
// processed one at a time.
func WithProcessDefaults(reg *capture.Registry) Option {
	return func(p *Processor) {
		p.defaults = true
		p.loggers = reg
	}
}

// New returns a Processor selecting from registry.
func New(registry *preprocess.Registry, logger *slog.Logger, opts ...Option) (*Processor, error) {
	if registry == nil {
		return nil, errors.New("processor: registry is required")
	}
	if logger == nil {
		return nil, errors.New("processor: logger is required")
	}
	p := &Processor{
		registry: registry,
		logger:   logger,
		policy:   &policy.Document{},
		level:    slog.LevelDebug,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.policy == nil {
		p.policy = &policy.Document{}
	}
	return p, nil
}

// DivertsDefaults reports whether Process redirects the process-wide
// loggers.
func (p *Processor) DivertsDefaults() bool { return p.defaults }

// Process classifies f. Transformer failures are contained in the
// outcome. The returned error is non-nil only when the capture could not
// begin (ErrCapture) or ctx was cancelled (ErrInterrupted).
func (p *Processor) Process(ctx context.Context, f *preprocess.File) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, errors.Mark(errors.Wrapf(err, "process %s", f.Name), errors.ErrInterrupted)
	}

	e, ok := p.registry.Select(ctx, f)
	if !ok {
		p.logger.Debug("no preprocessor claimed file", "file", f.Name)
		return Outcome{Status: StatusUnmatched}, nil
	}

	c, err := capture.Begin(p.captureOptions()...)
	if err != nil {
		err = errors.Mark(errors.Wrapf(err, "capture logs for %s", f.Name), errors.ErrCapture)
		return Outcome{Status: StatusErrored, Entry: e.Name, Reason: err.Error()}, err
	}
	defer c.Release()

	p.logger.Debug("transforming", "file", f.Name, "preprocessor", e.Name)
	out, err := p.transform(ctx, e, f, preprocess.NewEnv(c, p.policy))
	logs := c.Drain()

	switch {
	case err != nil && errors.Is(err, errors.ErrInterrupted):
		return Outcome{}, err
	case err != nil && preprocess.IsPolicyRejection(err):
		return Outcome{Status: StatusRejected, Entry: e.Name, Reason: err.Error(), Logs: logs}, nil
	case err != nil:
		return Outcome{Status: StatusErrored, Entry: e.Name, Reason: err.Error(), Logs: logs}, nil
	}
	return Outcome{Status: StatusTransformed, Entry: e.Name, Data: out.Data, Logs: logs}, nil
}

func (p *Processor) captureOptions() []capture.Option {
	opts := []capture.Option{capture.WithLevel(p.level)}
	if p.defaults {
		opts = append(opts, capture.WithDefaults(p.loggers))
	}
	return opts
}

type result struct {
	file *preprocess.File
	err  error
}

// transform runs the entry's transformer on its own goroutine so a
// transformer that ignores ctx cannot hold the run past its deadline. A
// transformer abandoned this way writes into a released capture, which
// discards its output.
func (p *Processor) transform(ctx context.Context, e *preprocess.Entry, f *preprocess.File, env preprocess.Env) (*preprocess.File, error) {
	parent := ctx
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = p.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: errors.Mark(errors.Newf("preprocessor %q panicked: %v", e.Name, r), errors.ErrTransform)}
			}
		}()
		out, err := e.Transformer.Transform(ctx, f, env)
		done <- result{file: out, err: err}
	}()

	var r result
	select {
	case r = <-done:
	case <-ctx.Done():
		r = result{err: ctx.Err()}
	}

	if r.err != nil {
		if perr := parent.Err(); perr != nil {
			return nil, errors.Mark(errors.Wrapf(perr, "process %s", f.Name), errors.ErrInterrupted)
		}
		if timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			p.logger.Warn("preprocessor timed out", "preprocessor", e.Name, "file", f.Name, "timeout", timeout)
			return nil, errors.Mark(errors.Newf("preprocessor %q timed out after %s", e.Name, timeout), errors.ErrTransform)
		}
		if !errors.Is(r.err, errors.ErrTransform) {
			r.err = errors.Mark(r.err, errors.ErrTransform)
		}
		return nil, r.err
	}
	if r.file == nil {
		return nil, errors.Mark(errors.Newf("preprocessor %q returned no output", e.Name), errors.ErrTransform)
	}
	return r.file, nil
}
