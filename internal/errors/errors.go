// Package errors provides error handling for sift.
//
// This package re-exports github.com/cockroachdb/errors so every package
// gets stack traces, wrapping, hints, and marker-based classification from
// one import:
//
//	if err := os.MkdirAll(dir, 0o755); err != nil {
//	    return errors.Mark(errors.Wrapf(err, "create %s", dir), errors.ErrFilesystem)
//	}
//
//	if errors.Is(err, errors.ErrFilesystem) {
//	    // input root missing, unreadable file, output write failure
//	}
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint       = crdb.WithHint
	WithHintf      = crdb.WithHintf
	WithDetail     = crdb.WithDetail
	WithDetailf    = crdb.WithDetailf
	GetAllHints    = crdb.GetAllHints
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Error inspection and classification
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
	Mark      = crdb.Mark
)

// Error taxonomy for a pipeline run. Wrap the underlying cause and Mark it
// with one of these so callers can classify with Is.
var (
	// ErrFilesystem covers a missing or unreadable input root, unreadable
	// input files, and output write failures.
	ErrFilesystem = New("filesystem error")

	// ErrTransform is a failure raised by a preprocessor's transformer.
	// It never escapes the file processor.
	ErrTransform = New("transform failed")

	// ErrCollaboratorLoad means the preprocessor list or the policy
	// document could not be obtained. Fatal before any file is touched.
	ErrCollaboratorLoad = New("collaborator load failed")

	// ErrCapture means diagnostic capture could not be established for a file.
	ErrCapture = New("log capture failed")

	// ErrInterrupted means the run was cancelled before every path was visited.
	ErrInterrupted = New("run interrupted")
)

// Filesystem marks err as an ErrFilesystem with the given context.
func Filesystem(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Mark(Wrapf(err, format, args...), ErrFilesystem)
}

// CollaboratorLoad marks err as an ErrCollaboratorLoad with the given context.
func CollaboratorLoad(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Mark(Wrapf(err, format, args...), ErrCollaboratorLoad)
}

// IsFilesystemError checks if an error is or wraps ErrFilesystem.
func IsFilesystemError(err error) bool {
	return err != nil && Is(err, ErrFilesystem)
}

// IsCollaboratorLoadError checks if an error is or wraps ErrCollaboratorLoad.
func IsCollaboratorLoadError(err error) bool {
	return err != nil && Is(err, ErrCollaboratorLoad)
}
