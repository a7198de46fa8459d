// Package walker enumerates the regular files under an input root.
package walker

import (
	"io/fs"
	"iter"
	"os"
	"path/filepath"

	"github.com/bimmerbailey/sift/internal/errors"
)

// Walk returns a lazy sequence of slash-separated paths, relative to root,
// for every regular file in the tree. Directories are recursed in lexical
// order; symlinks, sockets, devices, and other non-regular entries are
// skipped silently.
//
// The sequence is single-use: ranging over it a second time starts a new
// traversal of the tree as it is then. A directory that cannot be read is
// yielded once as (relPath, err) and traversal continues with its
// siblings. A root that is missing, not a directory, or unreadable fails
// Walk itself.
func Walk(root string) (iter.Seq2[string, error], error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Filesystem(err, "input root %s", root)
	}
	if !info.IsDir() {
		return nil, errors.Mark(errors.Newf("input root %s is not a directory", root), errors.ErrFilesystem)
	}
	if _, err := os.ReadDir(root); err != nil {
		return nil, errors.Filesystem(err, "read input root %s", root)
	}

	return func(yield func(string, error) bool) {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == root {
					yield("", errors.Filesystem(err, "read input root"))
					return filepath.SkipAll
				}
				if !yield(rel(root, path), errors.Filesystem(err, "walk %s", path)) {
					return filepath.SkipAll
				}
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			if !yield(rel(root, path), nil) {
				return filepath.SkipAll
			}
			return nil
		})
	}, nil
}

// Collect drains a fresh traversal into a slice. Intended for small trees
// and tests; the pipeline ranges over Walk directly.
func Collect(root string) ([]string, error) {
	seq, err := Walk(root)
	if err != nil {
		return nil, err
	}
	var paths []string
	for p, err := range seq {
		if err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func rel(root, path string) string {
	r, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(r)
}
