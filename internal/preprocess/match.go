package preprocess

import (
	"bytes"
	"context"
	"path"
	"strings"

	"github.com/bimmerbailey/sift/internal/errors"
)

// MatchAll accepts every file.
func MatchAll() Matcher {
	return MatcherFunc(func(context.Context, *File) (bool, error) { return true, nil })
}

// MatchExtensions accepts files whose name ends in one of exts, compared
// case-insensitively. A leading dot is optional.
func MatchExtensions(exts ...string) Matcher {
	norm := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		norm = append(norm, e)
	}
	return MatcherFunc(func(_ context.Context, f *File) (bool, error) {
		ext := strings.ToLower(path.Ext(f.Name))
		for _, e := range norm {
			if ext == e {
				return true, nil
			}
		}
		return false, nil
	})
}

// MatchGlobs accepts files whose relative path, or base name, matches one
// of patterns using path.Match syntax. Patterns are validated up front.
func MatchGlobs(patterns ...string) (Matcher, error) {
	for _, p := range patterns {
		if _, err := path.Match(p, ""); err != nil {
			return nil, errors.Wrapf(err, "invalid glob %q", p)
		}
	}
	return MatcherFunc(func(_ context.Context, f *File) (bool, error) {
		base := path.Base(f.Name)
		for _, p := range patterns {
			if ok, _ := path.Match(p, f.Name); ok {
				return true, nil
			}
			if ok, _ := path.Match(p, base); ok {
				return true, nil
			}
		}
		return false, nil
	}), nil
}

// MatchTypes accepts files whose declared type is one of types. A type
// ending in "/*" matches any subtype.
func MatchTypes(types ...string) Matcher {
	return MatcherFunc(func(_ context.Context, f *File) (bool, error) {
		ft := strings.ToLower(f.Type)
		for _, t := range types {
			t = strings.ToLower(t)
			if strings.HasSuffix(t, "/*") && strings.HasPrefix(ft, strings.TrimSuffix(t, "*")) {
				return true, nil
			}
			if ft == t {
				return true, nil
			}
		}
		return false, nil
	})
}

// MatchMagic accepts files holding magic at offset.
func MatchMagic(offset int, magic []byte) Matcher {
	return MatcherFunc(func(_ context.Context, f *File) (bool, error) {
		end := offset + len(magic)
		if offset < 0 || end > len(f.Data) {
			return false, nil
		}
		return bytes.Equal(f.Data[offset:end], magic), nil
	})
}

// AllOf accepts a file only when every matcher does. It stops at the first
// refusal or error. With no matchers it accepts everything.
func AllOf(ms ...Matcher) Matcher {
	return MatcherFunc(func(ctx context.Context, f *File) (bool, error) {
		for _, m := range ms {
			ok, err := m.Match(ctx, f)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	})
}
