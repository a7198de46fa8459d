// Package policy loads the de-identification policy document handed to
// preprocessors. The document is opaque: it is read, fingerprinted, and
// passed along, never parsed.
package policy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/bimmerbailey/sift/internal/errors"
)

// Document is a loaded policy.
type Document struct {
	// Source is the location as configured.
	Source string `json:"source"`
	// Path is the local file holding the document.
	Path string `json:"path"`
	// Digest is the hex SHA-256 of Data.
	Digest string `json:"digest"`
	Data   []byte `json:"-"`
}

// Empty reports whether no policy was configured.
func (d *Document) Empty() bool {
	return d == nil || d.Source == ""
}

// Reader retrieves the bytes at a location. *fetch.Fetcher satisfies it.
type Reader interface {
	Read(ctx context.Context, src string) (data []byte, localPath string, err error)
}

// Load reads the policy at location. An empty location yields an empty
// document.
func Load(ctx context.Context, location string, r Reader) (*Document, error) {
	if location == "" {
		return &Document{}, nil
	}
	if r == nil {
		return nil, errors.CollaboratorLoad(errors.New("no reader configured"), "load policy %s", location)
	}

	data, p, err := r.Read(ctx, location)
	if err != nil {
		return nil, errors.CollaboratorLoad(err, "load policy")
	}

	sum := sha256.Sum256(data)
	return &Document{
		Source: location,
		Path:   p,
		Digest: hex.EncodeToString(sum[:]),
		Data:   data,
	}, nil
}
