package preprocess

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.uber.org/zap"

	"github.com/bimmerbailey/sift/internal/capture"
	"github.com/bimmerbailey/sift/internal/errors"
	"github.com/bimmerbailey/sift/internal/policy"
)

// APIVersion is the preprocessor API this build provides. Manifests declare
// the range they support with a semver constraint.
const APIVersion = "1.0.0"

// File is one input file as seen by matchers and transformers.
//
// Name is the slash-separated path relative to the input root. Data must
// not be modified; a transformer returns a new File instead. Type is the
// declared content type and may be empty.
type File struct {
	Name string
	Data []byte
	Type string
}

// Matcher decides whether an entry claims a file.
type Matcher interface {
	Match(ctx context.Context, f *File) (bool, error)
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(ctx context.Context, f *File) (bool, error)

func (fn MatcherFunc) Match(ctx context.Context, f *File) (bool, error) { return fn(ctx, f) }

// Transformer converts a claimed file into a new one, or fails. A failure
// whose message contains PolicyRejectionMessage is a policy rejection.
type Transformer interface {
	Transform(ctx context.Context, f *File, env Env) (*File, error)
}

// TransformerFunc adapts a function to Transformer.
type TransformerFunc func(ctx context.Context, f *File, env Env) (*File, error)

func (fn TransformerFunc) Transform(ctx context.Context, f *File, env Env) (*File, error) {
	return fn(ctx, f, env)
}

// Env carries everything a transformer may use besides the file. All the
// loggers and writers feed the same per-file capture.
type Env struct {
	Log     *slog.Logger
	Zap     *zap.SugaredLogger
	Console *capture.Logger
	Stdout  io.Writer
	Stderr  io.Writer
	Policy  *policy.Document
}

// NewEnv builds an Env backed by c.
func NewEnv(c *capture.Capture, doc *policy.Document) Env {
	if doc == nil {
		doc = &policy.Document{}
	}
	return Env{
		Log:     c.Slog(),
		Zap:     c.Zap(),
		Console: c.Console(),
		Stdout:  c.Stdout(),
		Stderr:  c.Stderr(),
		Policy:  doc,
	}
}

// Entry is one claim-and-transform unit.
type Entry struct {
	Name        string
	Matcher     Matcher
	Transformer Transformer
	// Timeout bounds a single Transform call. Zero defers to the run's
	// per-file timeout.
	Timeout time.Duration
	// Kind and Description are informational.
	Kind        string
	Description string
}

// Source supplies the ordered entries for a run.
type Source interface {
	Load(ctx context.Context) ([]Entry, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]Entry, error)

func (fn SourceFunc) Load(ctx context.Context) ([]Entry, error) { return fn(ctx) }

// Static returns a Source that always yields entries, in order.
func Static(entries ...Entry) Source {
	return SourceFunc(func(context.Context) ([]Entry, error) {
		out := make([]Entry, len(entries))
		copy(out, entries)
		return out, nil
	})
}

// Registry is the ordered, immutable entry list for one run.
type Registry struct {
	entries []Entry
	logger  *slog.Logger
}

// NewRegistry validates entries and returns a Registry preserving their
// order. An empty registry is valid: every file is then unmatched.
func NewRegistry(entries []Entry, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		return nil, errors.New("preprocess: logger is required")
	}
	for i, e := range entries {
		if e.Matcher == nil || e.Transformer == nil {
			return nil, errors.Newf("preprocessor %d (%q) needs both a matcher and a transformer", i, e.Name)
		}
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return &Registry{entries: out, logger: logger}, nil
}

// Load builds a Registry from src. Any failure is a collaborator load error.
func Load(ctx context.Context, src Source, logger *slog.Logger) (*Registry, error) {
	entries, err := src.Load(ctx)
	if err != nil {
		if errors.IsCollaboratorLoadError(err) {
			return nil, err
		}
		return nil, errors.CollaboratorLoad(err, "load preprocessors")
	}
	reg, err := NewRegistry(entries, logger)
	if err != nil {
		return nil, errors.CollaboratorLoad(err, "load preprocessors")
	}
	return reg, nil
}

// Entries returns a copy of the entries in priority order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of entries.
func (r *Registry) Len() int { return len(r.entries) }

// Select returns the first entry whose matcher accepts f. A matcher that
// fails or panics counts as not matching.
func (r *Registry) Select(ctx context.Context, f *File) (*Entry, bool) {
	for i := range r.entries {
		e := &r.entries[i]
		ok, err := safeMatch(ctx, e.Matcher, f)
		if err != nil {
			r.logger.Warn("matcher failed, trying next preprocessor",
				"preprocessor", e.Name, "file", f.Name, "error", err)
			continue
		}
		if ok {
			return e, true
		}
	}
	return nil, false
}

func safeMatch(ctx context.Context, m Matcher, f *File) (ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			ok, err = false, fmt.Errorf("matcher panic: %v", p)
		}
	}()
	return m.Match(ctx, f)
}
