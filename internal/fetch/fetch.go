// Package fetch resolves locations of policy documents, preprocessor
// manifests, and WASM modules to local files.
//
// A location is anything go-getter understands:
//   - Local paths: ./policy.json, /etc/sift/manifest.yaml, ~/deid.wasm
//   - HTTP(S) URLs: https://example.com/procedure.json
//   - Forced getters: s3::https://bucket.s3.amazonaws.com/manifest.yaml
//
// Local files are used in place. Remote files are downloaded into a
// per-run directory that Cleanup removes.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hashicorp/go-getter"

	"github.com/bimmerbailey/sift/internal/errors"
)

// Fetcher downloads remote locations into a working directory.
type Fetcher struct {
	dir    string
	owned  bool
	logger *slog.Logger

	mu   sync.Mutex
	seq  int
	seen map[string]string
}

// New creates a Fetcher that downloads into dir. An empty dir creates a
// temporary directory that Cleanup removes.
func New(dir string, logger *slog.Logger) (*Fetcher, error) {
	if logger == nil {
		return nil, errors.New("fetch: logger is required")
	}

	owned := false
	if dir == "" {
		tmp, err := os.MkdirTemp("", "sift-fetch-*")
		if err != nil {
			return nil, errors.Filesystem(err, "create fetch directory")
		}
		dir, owned = tmp, true
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Filesystem(err, "create fetch directory %s", dir)
	}

	return &Fetcher{dir: dir, owned: owned, logger: logger, seen: make(map[string]string)}, nil
}

// Dir returns the download directory.
func (f *Fetcher) Dir() string { return f.dir }

// File returns a local path holding the content at src. Remote sources are
// downloaded once per Fetcher; later calls with the same src reuse the file.
func (f *Fetcher) File(ctx context.Context, src string) (string, error) {
	local, detected, err := Resolve(src)
	if err != nil {
		return "", errors.CollaboratorLoad(err, "resolve %s", src)
	}
	if local != "" {
		if _, err := os.Stat(local); err != nil {
			return "", errors.CollaboratorLoad(err, "open %s", src)
		}
		return local, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.seen[detected]; ok {
		return p, nil
	}

	f.seq++
	dst := filepath.Join(f.dir, fmt.Sprintf("%03d-%s", f.seq, baseName(detected)))

	f.logger.Debug("fetching", "source", src, "detected", detected, "destination", dst)

	client := &getter.Client{
		Ctx:     ctx,
		Src:     detected,
		Dst:     dst,
		Mode:    getter.ClientModeFile,
		Getters: getter.Getters,
	}
	if err := client.Get(); err != nil {
		_ = os.Remove(dst)
		return "", errors.WithHint(
			errors.CollaboratorLoad(err, "fetch %s", src),
			"check the location and network access",
		)
	}

	f.logger.Info("fetched", "source", src, "destination", dst)
	f.seen[detected] = dst
	return dst, nil
}

// Read returns the content at src.
func (f *Fetcher) Read(ctx context.Context, src string) ([]byte, string, error) {
	p, err := f.File(ctx, src)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, "", errors.CollaboratorLoad(err, "read %s", src)
	}
	return data, p, nil
}

// Cleanup removes the download directory if New created it.
func (f *Fetcher) Cleanup() error {
	if !f.owned {
		return nil
	}
	return os.RemoveAll(f.dir)
}

// Resolve classifies src. For a local file it returns its absolute path;
// otherwise it returns the go-getter source string to download.
func Resolve(src string) (local, detected string, err error) {
	if src == "" {
		return "", "", errors.New("empty location")
	}
	if src == "~" || strings.HasPrefix(src, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", errors.Wrap(err, "expand home directory")
		}
		src = filepath.Join(home, strings.TrimPrefix(src[1:], "/"))
	}

	pwd, err := os.Getwd()
	if err != nil {
		pwd = "."
	}

	detected, err = getter.Detect(src, pwd, getter.Detectors)
	if err != nil {
		return "", "", errors.Wrap(err, "detect source type")
	}

	u, err := url.Parse(detected)
	if err != nil {
		return "", "", errors.Wrap(err, "parse detected source")
	}
	switch u.Scheme {
	case "file":
		return filepath.FromSlash(u.Path), detected, nil
	case "":
		abs, err := filepath.Abs(src)
		if err != nil {
			return "", "", errors.Wrap(err, "absolute path")
		}
		return abs, detected, nil
	}
	return "", detected, nil
}

// IsRemote reports whether src would be downloaded.
func IsRemote(src string) bool {
	local, _, err := Resolve(src)
	return err == nil && local == ""
}

func baseName(detected string) string {
	s := detected
	if i := strings.Index(s, "::"); i >= 0 {
		s = s[i+2:]
	}
	if u, err := url.Parse(s); err == nil && u.Path != "" {
		s = u.Path
	}
	name := path.Base(s)
	if name == "" || name == "." || name == "/" {
		return "download"
	}
	return name
}
