package preprocess

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bimmerbailey/sift/internal/capture"
	"github.com/bimmerbailey/sift/internal/errors"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func named(name string, m Matcher) Entry {
	return Entry{Name: name, Matcher: m, Transformer: Passthrough()}
}

func TestNewRegistry_RequiresLoggerAndParts(t *testing.T) {
	_, err := NewRegistry(nil, nil)
	assert.Error(t, err)

	_, err = NewRegistry([]Entry{{Name: "half", Matcher: MatchAll()}}, discardLogger())
	assert.Error(t, err)

	reg, err := NewRegistry(nil, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 0, reg.Len())
}

func TestSelect_EmptyRegistryMatchesNothing(t *testing.T) {
	reg, err := NewRegistry(nil, discardLogger())
	require.NoError(t, err)

	_, ok := reg.Select(context.Background(), &File{Name: "a.dcm"})
	assert.False(t, ok)
}

func TestSelect_FirstMatchWins(t *testing.T) {
	reg, err := NewRegistry([]Entry{
		named("text", MatchExtensions(".txt")),
		named("dicom-strict", MatchExtensions(".dcm")),
		named("dicom-loose", MatchExtensions("dcm")),
		named("catch-all", MatchAll()),
	}, discardLogger())
	require.NoError(t, err)

	tests := []struct {
		file string
		want string
	}{
		{"a.dcm", "dicom-strict"},
		{"notes/b.TXT", "text"},
		{"c.bin", "catch-all"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			e, ok := reg.Select(context.Background(), &File{Name: tt.file})
			require.True(t, ok)
			assert.Equal(t, tt.want, e.Name)
		})
	}
}

func TestSelect_MatcherFailureSkipsToNextEntry(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	failing := MatcherFunc(func(context.Context, *File) (bool, error) {
		return false, errors.New("header unreadable")
	})
	panicking := MatcherFunc(func(context.Context, *File) (bool, error) {
		panic("boom")
	})

	reg, err := NewRegistry([]Entry{
		named("broken", failing),
		named("panics", panicking),
		named("fallback", MatchAll()),
	}, logger)
	require.NoError(t, err)

	e, ok := reg.Select(context.Background(), &File{Name: "a.dcm"})
	require.True(t, ok)
	assert.Equal(t, "fallback", e.Name)
	assert.Contains(t, buf.String(), "header unreadable")
	assert.Contains(t, buf.String(), "matcher panic: boom")
}

func TestLoad(t *testing.T) {
	reg, err := Load(context.Background(), Static(
		named("one", MatchAll()),
		named("two", MatchAll()),
	), discardLogger())
	require.NoError(t, err)

	entries := reg.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "one", entries[0].Name)
	assert.Equal(t, "two", entries[1].Name)
}

func TestLoad_SourceFailureIsCollaboratorLoad(t *testing.T) {
	src := SourceFunc(func(context.Context) ([]Entry, error) {
		return nil, errors.New("manifest unreachable")
	})

	_, err := Load(context.Background(), src, discardLogger())
	require.Error(t, err)
	assert.True(t, errors.IsCollaboratorLoadError(err))
}

func TestPolicyRejection(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"exact sentence", errors.New(PolicyRejectionMessage), true},
		{"embedded sentence", errors.Newf("tag (0010,0010): %s", PolicyRejectionMessage), true},
		{"wrapped", errors.Wrap(errors.New(PolicyRejectionMessage), "dicom-deid"), true},
		{"structured", Reject("burned-in annotation"), true},
		{"other failure", errors.New("invalid DICOM preamble"), false},
		{"near miss", errors.New("Image is rejected due to de-identification protocol"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPolicyRejection(tt.err))
		})
	}

	assert.Equal(t, PolicyRejectionMessage+" burned-in annotation", Reject("burned-in annotation").Error())
	assert.Equal(t, PolicyRejectionMessage, Reject("").Error())
}

func TestNewEnv_FeedsCapture(t *testing.T) {
	c, err := capture.Begin()
	require.NoError(t, err)
	defer c.Release()

	env := NewEnv(c, nil)
	require.NotNil(t, env.Policy)
	assert.True(t, env.Policy.Empty())

	env.Console.Print("console")
	env.Log.Info("slog")
	_, _ = io.WriteString(env.Stderr, "stderr\n")

	assert.Equal(t, []string{"console", "level=INFO msg=slog", "stderr"}, c.Drain())
}
