package preprocess

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bimmerbailey/sift/internal/capture"
	"github.com/bimmerbailey/sift/internal/errors"
)

func runBuiltin(t *testing.T, tr Transformer, f *File) (*File, []string, error) {
	t.Helper()
	c, err := capture.Begin()
	require.NoError(t, err)
	defer c.Release()

	out, err := tr.Transform(context.Background(), f, NewEnv(c, nil))
	return out, c.Drain(), err
}

func TestBuiltinNames(t *testing.T) {
	assert.Equal(t, []string{"passthrough", "redact", "reject"}, BuiltinNames())
}

func TestNewBuiltin(t *testing.T) {
	_, err := NewBuiltin("scrub", nil)
	require.Error(t, err)
	assert.NotEmpty(t, errors.GetAllHints(err))

	_, err = NewBuiltin(BuiltinRedact, map[string]any{"patterns": []any{"email", "nope"}})
	assert.Error(t, err)

	_, err = NewBuiltin(BuiltinRedact, map[string]any{"patterns": 3})
	assert.Error(t, err)

	tr, err := NewBuiltin(BuiltinRedact, map[string]any{"patterns": []any{"email"}})
	require.NoError(t, err)
	out, _, err := runBuiltin(t, tr, &File{Name: "n.txt", Data: []byte("to a@b.org from 10.0.0.1")})
	require.NoError(t, err)
	assert.Contains(t, string(out.Data), "10.0.0.1", "only the configured pattern applies")
	assert.NotContains(t, string(out.Data), "a@b.org")
}

func TestPassthrough(t *testing.T) {
	in := &File{Name: "a.dcm", Data: []byte{0, 1, 2}, Type: "application/dicom"}
	out, _, err := runBuiltin(t, Passthrough(), in)
	require.NoError(t, err)
	assert.Equal(t, in.Data, out.Data)
	assert.Equal(t, in.Type, out.Type)
	assert.NotSame(t, in, out)
}

func TestRedact(t *testing.T) {
	in := &File{Name: "report.txt", Data: []byte("Patient contact: jane@example.com")}
	out, logs, err := runBuiltin(t, Redact(NewRedactor(true, nil)), in)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(string(out.Data), "Patient contact: [EMAIL:"))
	assert.Equal(t, "Patient contact: jane@example.com", string(in.Data), "input is never modified")
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0], "replacements=1")
}

func TestRedact_BinaryIsError(t *testing.T) {
	_, _, err := runBuiltin(t, Redact(NewRedactor(true, nil)), &File{Name: "a.bin", Data: []byte{0xff, 0xfe, 0xfd}})
	require.Error(t, err)
	assert.False(t, IsPolicyRejection(err))
	assert.True(t, errors.Is(err, errors.ErrTransform))
}

func TestRejectAll(t *testing.T) {
	_, logs, err := runBuiltin(t, RejectAll("ultrasound not allowed"), &File{Name: "us.dcm"})
	require.Error(t, err)
	assert.True(t, IsPolicyRejection(err))
	assert.Contains(t, err.Error(), "ultrasound not allowed")
	assert.Len(t, logs, 1)
}

func TestDefaults(t *testing.T) {
	reg, err := Load(context.Background(), Defaults(nil), discardLogger())
	require.NoError(t, err)

	e, ok := reg.Select(context.Background(), &File{Name: "notes/visit.txt"})
	require.True(t, ok)
	assert.Equal(t, "redact-text", e.Name)

	_, ok = reg.Select(context.Background(), &File{Name: "a.dcm"})
	assert.False(t, ok)
}
