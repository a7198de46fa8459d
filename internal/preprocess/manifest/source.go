package manifest

import (
	"context"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/bimmerbailey/sift/internal/errors"
	"github.com/bimmerbailey/sift/internal/fetch"
	"github.com/bimmerbailey/sift/internal/preprocess"
	"github.com/bimmerbailey/sift/internal/preprocess/exec"
	"github.com/bimmerbailey/sift/internal/preprocess/wasm"
)

// Reader retrieves the bytes at a location. *fetch.Fetcher satisfies it.
type Reader interface {
	Read(ctx context.Context, src string) (data []byte, localPath string, err error)
}

// Source loads entries from the manifest at Location. It is a
// preprocess.Source and re-reads the manifest on every Load.
type Source struct {
	Location string
	Reader   Reader
	// WASM compiles wasm entries. It may be nil when the manifest has none.
	WASM   *wasm.Runtime
	Logger *slog.Logger
}

// Load reads, validates, and instantiates the manifest. Every failure is a
// collaborator load error.
func (s *Source) Load(ctx context.Context) ([]preprocess.Entry, error) {
	if s.Reader == nil || s.Logger == nil {
		return nil, errors.CollaboratorLoad(errors.New("manifest source needs a reader and a logger"), "load manifest %s", s.Location)
	}

	data, localPath, err := s.Reader.Read(ctx, s.Location)
	if err != nil {
		return nil, errors.CollaboratorLoad(err, "read manifest")
	}
	m, err := Parse(data, FormatFor(s.Location))
	if err != nil {
		return nil, errors.CollaboratorLoad(err, "manifest %s", s.Location)
	}

	base := newResolver(s.Location, localPath)
	entries := make([]preprocess.Entry, 0, len(m.Preprocessors))
	for i := range m.Preprocessors {
		spec := &m.Preprocessors[i]
		e, err := s.entry(ctx, spec, base)
		if err != nil {
			return nil, errors.CollaboratorLoad(err, "preprocessor %q", spec.Name)
		}
		entries = append(entries, e)
	}

	s.Logger.Info("loaded manifest", "location", s.Location, "preprocessors", len(entries))
	return entries, nil
}

func (s *Source) entry(ctx context.Context, spec *Spec, base resolver) (preprocess.Entry, error) {
	matcher, err := spec.Matcher()
	if err != nil {
		return preprocess.Entry{}, err
	}
	timeout, err := spec.Timeout()
	if err != nil {
		return preprocess.Entry{}, err
	}

	kind := spec.Transform.ResolvedKind()
	var tr preprocess.Transformer
	switch kind {
	case KindBuiltin:
		tr, err = preprocess.NewBuiltin(spec.Transform.Builtin, spec.Transform.Options)
	case KindExec:
		tr, err = exec.Parse(spec.Name, spec.Transform.Command, base.dir)
	case KindWASM:
		tr, err = s.wasm(ctx, spec, base)
	default:
		err = errors.Newf("unknown transform kind %q", kind)
	}
	if err != nil {
		return preprocess.Entry{}, err
	}

	return preprocess.Entry{
		Name:        spec.Name,
		Kind:        kind,
		Description: spec.Description,
		Matcher:     matcher,
		Transformer: tr,
		Timeout:     timeout,
	}, nil
}

func (s *Source) wasm(ctx context.Context, spec *Spec, base resolver) (preprocess.Transformer, error) {
	if s.WASM == nil {
		return nil, errors.New("wasm preprocessors are not enabled")
	}
	loc := base.resolve(spec.Transform.Module)
	module, _, err := s.Reader.Read(ctx, loc)
	if err != nil {
		return nil, err
	}
	s.Logger.Debug("loaded wasm module", "preprocessor", spec.Name, "location", loc, "bytes", len(module))
	return s.WASM.Transformer(ctx, spec.Name, module)
}

// resolver resolves module references relative to the manifest.
type resolver struct {
	// dir is the manifest's directory when it is a local file.
	dir string
	// remote is the manifest URL when it was downloaded.
	remote *url.URL
	forced string
}

func newResolver(location, localPath string) resolver {
	if !fetch.IsRemote(location) {
		return resolver{dir: filepath.Dir(localPath)}
	}
	forced, rest := "", location
	if i := strings.Index(location, "::"); i >= 0 {
		forced, rest = location[:i+2], location[i+2:]
	}
	u, err := url.Parse(rest)
	if err != nil {
		return resolver{}
	}
	return resolver{remote: u, forced: forced}
}

func (r resolver) resolve(ref string) string {
	if fetch.IsRemote(ref) || filepath.IsAbs(ref) || strings.HasPrefix(ref, "~") {
		return ref
	}
	if r.remote != nil {
		rel, err := url.Parse(filepath.ToSlash(ref))
		if err != nil {
			return ref
		}
		return r.forced + r.remote.ResolveReference(rel).String()
	}
	if r.dir != "" {
		return filepath.Join(r.dir, ref)
	}
	return ref
}
