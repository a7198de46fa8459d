// Package manifest declares preprocessors in a YAML or TOML file.
//
//	requires: ">= 1.0.0"
//	preprocessors:
//	  - name: dicom-deid
//	    match:
//	      extensions: [".dcm"]
//	      magic: { offset: 128, text: "DICM" }
//	    transform:
//	      kind: wasm
//	      module: ./deid.wasm
//	      timeout: 30s
//	  - name: redact-text
//	    match:
//	      extensions: [".txt", ".log"]
//	    transform:
//	      kind: builtin
//	      builtin: redact
//	      options: { patterns: [email, phone] }
//
// Entries keep file order. Within one match block every given criterion
// must hold; within a list any element may. An empty match claims every
// file.
package manifest

import (
	"bytes"
	"encoding/hex"
	"io"
	"path"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/bimmerbailey/sift/internal/config"
	"github.com/bimmerbailey/sift/internal/errors"
	"github.com/bimmerbailey/sift/internal/preprocess"
)

// Transformer kinds.
const (
	KindWASM    = "wasm"
	KindExec    = "exec"
	KindBuiltin = "builtin"
)

// Format is a manifest encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFor picks the format from a location's extension. Anything that is
// not .toml is read as YAML.
func FormatFor(location string) Format {
	loc := location
	if i := strings.IndexAny(loc, "?#"); i >= 0 {
		loc = loc[:i]
	}
	if strings.EqualFold(path.Ext(loc), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Manifest is the decoded file.
type Manifest struct {
	Requires      string `yaml:"requires" toml:"requires"`
	Preprocessors []Spec `yaml:"preprocessors" toml:"preprocessors"`
}

// Spec declares one preprocessor.
type Spec struct {
	Name        string        `yaml:"name" toml:"name"`
	Description string        `yaml:"description" toml:"description"`
	Match       MatchSpec     `yaml:"match" toml:"match"`
	Transform   TransformSpec `yaml:"transform" toml:"transform"`
}

// MatchSpec lists the criteria a file must meet.
type MatchSpec struct {
	Extensions []string   `yaml:"extensions" toml:"extensions"`
	Globs      []string   `yaml:"globs" toml:"globs"`
	Types      []string   `yaml:"types" toml:"types"`
	Magic      *MagicSpec `yaml:"magic" toml:"magic"`
}

// MagicSpec matches bytes at a fixed offset, given as hex or as text.
type MagicSpec struct {
	Offset int    `yaml:"offset" toml:"offset"`
	Hex    string `yaml:"hex" toml:"hex"`
	Text   string `yaml:"text" toml:"text"`
}

// TransformSpec selects and configures the transformer.
type TransformSpec struct {
	Kind    string         `yaml:"kind" toml:"kind"`
	Module  string         `yaml:"module" toml:"module"`
	Command string         `yaml:"command" toml:"command"`
	Builtin string         `yaml:"builtin" toml:"builtin"`
	Options map[string]any `yaml:"options" toml:"options"`
	Timeout string         `yaml:"timeout" toml:"timeout"`
}

// Parse decodes and validates a manifest. Unknown keys are errors.
func Parse(data []byte, format Format) (*Manifest, error) {
	var m Manifest
	switch format {
	case FormatTOML:
		md, err := toml.Decode(string(data), &m)
		if err != nil {
			return nil, errors.Wrap(err, "decode TOML manifest")
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, errors.Newf("unknown manifest key %q", undecoded[0].String())
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
			return nil, errors.Wrap(err, "decode YAML manifest")
		}
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the manifest against this build and checks every entry
// for structural errors.
func (m *Manifest) Validate() error {
	if err := CheckRequires(m.Requires); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(m.Preprocessors))
	for i := range m.Preprocessors {
		s := &m.Preprocessors[i]
		if s.Name == "" {
			return errors.Newf("preprocessor %d: name is required", i)
		}
		if _, dup := seen[s.Name]; dup {
			return errors.Newf("preprocessor %q declared twice", s.Name)
		}
		seen[s.Name] = struct{}{}

		if _, err := s.Matcher(); err != nil {
			return errors.Wrapf(err, "preprocessor %q", s.Name)
		}
		if _, err := s.Timeout(); err != nil {
			return errors.Wrapf(err, "preprocessor %q", s.Name)
		}
		if err := s.Transform.validate(); err != nil {
			return errors.Wrapf(err, "preprocessor %q", s.Name)
		}
	}
	return nil
}

// CheckRequires verifies that preprocess.APIVersion satisfies constraint.
// An empty constraint accepts any version.
func CheckRequires(constraint string) error {
	if constraint == "" {
		return nil
	}
	current, err := semver.NewVersion(preprocess.APIVersion)
	if err != nil {
		return errors.Wrapf(err, "invalid API version %s", preprocess.APIVersion)
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return errors.Wrapf(err, "invalid version constraint %s", constraint)
	}
	if !c.Check(current) {
		return errors.WithHint(
			errors.Newf("manifest requires preprocessor API %s, but this build provides %s", constraint, preprocess.APIVersion),
			"upgrade sift or pin an older manifest",
		)
	}
	return nil
}

// ResolvedKind returns the transformer kind, inferring it from whichever of
// builtin, module, or command is set when kind is omitted.
func (t *TransformSpec) ResolvedKind() string {
	if t.Kind != "" {
		return strings.ToLower(t.Kind)
	}
	switch {
	case t.Builtin != "":
		return KindBuiltin
	case t.Module != "":
		return KindWASM
	case t.Command != "":
		return KindExec
	}
	return ""
}

func (t *TransformSpec) validate() error {
	switch kind := t.ResolvedKind(); kind {
	case KindWASM:
		if t.Module == "" {
			return errors.New("wasm transform needs a module")
		}
	case KindExec:
		if strings.TrimSpace(t.Command) == "" {
			return errors.New("exec transform needs a command")
		}
	case KindBuiltin:
		if _, err := preprocess.NewBuiltin(t.Builtin, t.Options); err != nil {
			return err
		}
	case "":
		return errors.New("transform needs a kind")
	default:
		return errors.Newf("unknown transform kind %q", kind)
	}
	return nil
}

// Timeout parses the per-entry timeout. Empty means none.
func (s *Spec) Timeout() (d time.Duration, err error) {
	if s.Transform.Timeout == "" {
		return 0, nil
	}
	d, err = config.ParseDuration(s.Transform.Timeout)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, errors.Newf("negative timeout %s", s.Transform.Timeout)
	}
	return d, nil
}

// Matcher builds the matcher for the match block.
func (s *Spec) Matcher() (preprocess.Matcher, error) {
	var ms []preprocess.Matcher
	m := s.Match

	if len(m.Extensions) > 0 {
		ms = append(ms, preprocess.MatchExtensions(m.Extensions...))
	}
	if len(m.Globs) > 0 {
		g, err := preprocess.MatchGlobs(m.Globs...)
		if err != nil {
			return nil, err
		}
		ms = append(ms, g)
	}
	if len(m.Types) > 0 {
		ms = append(ms, preprocess.MatchTypes(m.Types...))
	}
	if m.Magic != nil {
		magic, err := m.Magic.bytes()
		if err != nil {
			return nil, err
		}
		ms = append(ms, preprocess.MatchMagic(m.Magic.Offset, magic))
	}

	if len(ms) == 1 {
		return ms[0], nil
	}
	return preprocess.AllOf(ms...), nil
}

func (m *MagicSpec) bytes() ([]byte, error) {
	if m.Offset < 0 {
		return nil, errors.Newf("magic offset %d is negative", m.Offset)
	}
	switch {
	case m.Hex != "" && m.Text != "":
		return nil, errors.New("magic takes hex or text, not both")
	case m.Hex != "":
		b, err := hex.DecodeString(strings.ReplaceAll(m.Hex, " ", ""))
		if err != nil {
			return nil, errors.Wrapf(err, "magic hex %q", m.Hex)
		}
		return b, nil
	case m.Text != "":
		return []byte(m.Text), nil
	}
	return nil, errors.New("magic needs hex or text")
}
