// Package store persists transformed files and the run report.
//
// Paths handed to a Store are slash-separated and relative to the output
// root. Local writes a mirrored directory tree; S3 writes objects under a
// key prefix.
package store

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bimmerbailey/sift/internal/errors"
)

// Store writes output files.
type Store interface {
	// Put writes data at rel, creating any parents, and replaces what
	// was there.
	Put(ctx context.Context, rel string, data []byte) error
	// Location describes where rel ends up, for messages.
	Location(rel string) string
}

// Clean validates rel and returns it in canonical slash form. Absolute
// paths and paths that climb out of the root are rejected.
func Clean(rel string) (string, error) {
	if rel == "" {
		return "", errors.New("empty output path")
	}
	slashed := filepath.ToSlash(rel)
	if strings.HasPrefix(slashed, "/") || filepath.IsAbs(rel) {
		return "", errors.Newf("output path %q is absolute", rel)
	}
	cleaned := path.Clean(slashed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.Newf("output path %q escapes the output root", rel)
	}
	return cleaned, nil
}

// Local writes under a directory on disk.
type Local struct {
	root string
}

// NewLocal creates root if needed and returns a Store writing beneath it.
func NewLocal(root string) (*Local, error) {
	if root == "" {
		return nil, errors.New("store: output root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Filesystem(err, "create output root %s", root)
	}
	return &Local{root: root}, nil
}

func (l *Local) Location(rel string) string {
	return filepath.Join(l.root, filepath.FromSlash(rel))
}

func (l *Local) Put(_ context.Context, rel string, data []byte) error {
	cleaned, err := Clean(rel)
	if err != nil {
		return errors.Mark(err, errors.ErrFilesystem)
	}
	dst := l.Location(cleaned)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Filesystem(err, "create directory for %s", rel)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return errors.Filesystem(err, "write %s", dst)
	}
	return nil
}
