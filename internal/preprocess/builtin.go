package preprocess

import (
	"context"
	"sort"
	"unicode/utf8"

	"github.com/bimmerbailey/sift/internal/errors"
)

// Built-in transformer names.
const (
	BuiltinPassthrough = "passthrough"
	BuiltinRedact      = "redact"
	BuiltinReject      = "reject"
)

// DefaultTextExtensions are redacted by the default source.
var DefaultTextExtensions = []string{".txt", ".log", ".csv", ".json", ".xml", ".hl7"}

type builtinFactory func(opts map[string]any) (Transformer, error)

var builtins = map[string]builtinFactory{
	BuiltinPassthrough: func(map[string]any) (Transformer, error) {
		return Passthrough(), nil
	},
	BuiltinRedact: func(opts map[string]any) (Transformer, error) {
		patterns, err := stringsOption(opts, "patterns")
		if err != nil {
			return nil, err
		}
		for _, name := range patterns {
			if _, ok := BuiltInPatterns[name]; !ok {
				return nil, errors.WithHintf(errors.Newf("unknown redaction pattern %q", name),
					"available: %v", PatternNames())
			}
		}
		return Redact(NewRedactor(true, patterns)), nil
	},
	BuiltinReject: func(opts map[string]any) (Transformer, error) {
		reason, _ := opts["reason"].(string)
		return RejectAll(reason), nil
	},
}

// BuiltinNames lists the built-in transformers.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewBuiltin returns the named built-in transformer configured by opts.
//
//	redact:  patterns ([]string, default DefaultPatterns)
//	reject:  reason (string, appended to the rejection sentence)
func NewBuiltin(name string, opts map[string]any) (Transformer, error) {
	factory, ok := builtins[name]
	if !ok {
		return nil, errors.WithHintf(errors.Newf("unknown builtin %q", name), "available: %v", BuiltinNames())
	}
	return factory(opts)
}

// Passthrough returns the file unchanged.
func Passthrough() Transformer {
	return TransformerFunc(func(_ context.Context, f *File, env Env) (*File, error) {
		env.Log.Debug("passthrough", "file", f.Name, "bytes", len(f.Data))
		return &File{Name: f.Name, Data: f.Data, Type: f.Type}, nil
	})
}

// Redact replaces sensitive values in text files with correlation
// preserving placeholders. Binary content is an error.
func Redact(r *Redactor) Transformer {
	return TransformerFunc(func(_ context.Context, f *File, env Env) (*File, error) {
		if !utf8.Valid(f.Data) {
			return nil, errors.Mark(errors.Newf("redact: %s is not UTF-8 text", f.Name), errors.ErrTransform)
		}
		out, n := r.RedactAndCount(string(f.Data))
		env.Log.Info("redacted", "file", f.Name, "replacements", n)
		return &File{Name: f.Name, Data: []byte(out), Type: f.Type}, nil
	})
}

// RejectAll rejects every file it is given.
func RejectAll(reason string) Transformer {
	return TransformerFunc(func(_ context.Context, f *File, env Env) (*File, error) {
		env.Log.Warn("rejecting by rule", "file", f.Name)
		return nil, Reject(reason)
	})
}

// Defaults is the source used when no manifest is configured: text files
// are redacted with patterns (DefaultPatterns when empty), everything else
// is left unmatched.
func Defaults(patterns []string) Source {
	return Static(Entry{
		Name:        "redact-text",
		Kind:        "builtin",
		Description: "redact sensitive values in text files",
		Matcher:     MatchExtensions(DefaultTextExtensions...),
		Transformer: Redact(NewRedactor(true, patterns)),
	})
}

func stringsOption(opts map[string]any, key string) ([]string, error) {
	v, ok := opts[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, errors.Newf("option %s: %v is not a string", key, item)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		return []string{list}, nil
	}
	return nil, errors.Newf("option %s: expected a list of strings", key)
}
