package wasm

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bimmerbailey/sift/internal/capture"
	"github.com/bimmerbailey/sift/internal/preprocess"
)

// Tiny hand-assembled WASI command modules, so the tests need no toolchain.

func uleb(n int) []byte {
	var out []byte
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if n == 0 {
			return out
		}
	}
}

func vec(items ...[]byte) []byte {
	out := uleb(len(items))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func name(s string) []byte { return append(uleb(len(s)), s...) }

func section(id byte, payload []byte) []byte {
	return append(append([]byte{id}, uleb(len(payload))...), payload...)
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

var header = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// emptyModule exports a _start that does nothing.
func emptyModule() []byte {
	return cat(header,
		section(1, vec([]byte{0x60, 0x00, 0x00})),
		section(3, vec([]byte{0x00})),
		section(7, vec(cat(name("_start"), []byte{0x00, 0x00}))),
		section(10, vec(cat(uleb(2), []byte{0x00, 0x0b}))),
	)
}

// writeModule writes msg to fd, then exits with code when code > 0.
func writeModule(fd int, msg string, code int) []byte {
	const msgAt = 16

	data := make([]byte, msgAt)
	binary.LittleEndian.PutUint32(data[0:], msgAt)
	binary.LittleEndian.PutUint32(data[4:], uint32(len(msg)))
	data = append(data, msg...)

	body := []byte{0x00,
		0x41, byte(fd), // fd
		0x41, 0x00,     // iovs
		0x41, 0x01,     // iovs_len
		0x41, 0x08,     // nwritten
		0x10, 0x00,     // call fd_write
		0x1a,           // drop
	}
	if code > 0 {
		body = append(body, 0x41, byte(code), 0x10, 0x01)
	}
	body = append(body, 0x0b)

	return cat(header,
		section(1, vec(
			[]byte{0x60, 0x04, 0x7f, 0x7f, 0x7f, 0x7f, 0x01, 0x7f},
			[]byte{0x60, 0x01, 0x7f, 0x00},
			[]byte{0x60, 0x00, 0x00},
		)),
		section(2, vec(
			cat(name("wasi_snapshot_preview1"), name("fd_write"), []byte{0x00, 0x00}),
			cat(name("wasi_snapshot_preview1"), name("proc_exit"), []byte{0x00, 0x01}),
		)),
		section(3, vec([]byte{0x02})),
		section(5, vec([]byte{0x00, 0x01})),
		section(7, vec(
			cat(name("_start"), []byte{0x00, 0x02}),
			cat(name("memory"), []byte{0x02, 0x00}),
		)),
		section(10, vec(cat(uleb(len(body)), body))),
		section(11, vec(cat([]byte{0x00, 0x41, 0x00, 0x0b}, uleb(len(data)), data))),
	)
}

func newRuntime(t *testing.T) *Runtime {
	t.Helper()
	ctx := context.Background()
	rt, err := NewRuntime(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)), 2)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(ctx) })
	return rt
}

func transform(t *testing.T, tr preprocess.Transformer, f *preprocess.File) (*preprocess.File, []string, error) {
	t.Helper()
	c, err := capture.Begin()
	require.NoError(t, err)
	defer c.Release()

	out, err := tr.Transform(context.Background(), f, preprocess.NewEnv(c, nil))
	return out, c.Drain(), err
}

func TestNewRuntime_RequiresLogger(t *testing.T) {
	_, err := NewRuntime(context.Background(), nil, 0)
	assert.Error(t, err)
}

func TestCompile_CachesBySHA256(t *testing.T) {
	rt := newRuntime(t)
	ctx := context.Background()

	a, err := rt.Compile(ctx, emptyModule())
	require.NoError(t, err)
	b, err := rt.Compile(ctx, emptyModule())
	require.NoError(t, err)

	assert.True(t, a == b, "second compile must come from cache")
	assert.Equal(t, 1, rt.Cached())

	_, err = rt.Compile(ctx, []byte("not wasm"))
	assert.Error(t, err)
}

func TestTransform_StdoutBecomesOutput(t *testing.T) {
	rt := newRuntime(t)
	tr, err := rt.Transformer(context.Background(), "stamp", writeModule(1, "deidentified", 0))
	require.NoError(t, err)

	in := &preprocess.File{Name: "a.dcm", Data: []byte("original")}
	out, _, err := transform(t, tr, in)
	require.NoError(t, err)
	assert.Equal(t, "deidentified", string(out.Data))
	assert.Equal(t, "a.dcm", out.Name)
	assert.Equal(t, "original", string(in.Data))
}

func TestTransform_EmptyModule(t *testing.T) {
	rt := newRuntime(t)
	tr, err := rt.Transformer(context.Background(), "noop", emptyModule())
	require.NoError(t, err)

	out, _, err := transform(t, tr, &preprocess.File{Name: "a.dcm", Data: []byte("x")})
	require.NoError(t, err)
	assert.Empty(t, out.Data)
}

func TestTransform_RejectionOnStderr(t *testing.T) {
	rt := newRuntime(t)
	tr, err := rt.Transformer(context.Background(), "deid", writeModule(2, preprocess.PolicyRejectionMessage+"\n", 1))
	require.NoError(t, err)

	_, logs, err := transform(t, tr, &preprocess.File{Name: "c.dcm"})
	require.Error(t, err)
	assert.True(t, preprocess.IsPolicyRejection(err))
	assert.Equal(t, preprocess.PolicyRejectionMessage, err.Error())
	assert.Contains(t, logs, preprocess.PolicyRejectionMessage, "stderr is captured")
}

func TestTransform_NonZeroExitWithoutStderr(t *testing.T) {
	rt := newRuntime(t)
	tr, err := rt.Transformer(context.Background(), "deid", writeModule(1, "partial", 3))
	require.NoError(t, err)

	_, _, err = transform(t, tr, &preprocess.File{Name: "c.dcm"})
	require.Error(t, err)
	assert.False(t, preprocess.IsPolicyRejection(err))
	assert.Equal(t, "deid exited with status 3", err.Error())
}
