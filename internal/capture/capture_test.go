package capture

import (
	"bytes"
	"fmt"
	"log"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bimmerbailey/sift/internal/errors"
)

func TestFormat(t *testing.T) {
	type tag struct {
		Group   string `json:"group"`
		Element string `json:"element"`
	}

	tests := []struct {
		name string
		args []any
		want string
	}{
		{"scalars", []any{"removed", 3, "tags", true}, "removed 3 tags true"},
		{"empty", nil, ""},
		{"nil", []any{"value:", nil}, "value: null"},
		{"error", []any{fmt.Errorf("bad header")}, "bad header"},
		{"bytes", []any{[]byte("raw")}, "raw"},
		{"map", []any{"tags", map[string]int{"a": 1}}, "tags {\n  \"a\": 1\n}"},
		{"slice", []any{[]string{"x", "y"}}, "[\n  \"x\",\n  \"y\"\n]"},
		{"struct pointer", []any{&tag{"0010", "0020"}}, "{\n  \"group\": \"0010\",\n  \"element\": \"0020\"\n}"},
		{"nil pointer", []any{(*tag)(nil)}, "<nil>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.args...))
		})
	}
}

func TestCapture_RecordsEveryChannelInOrder(t *testing.T) {
	c, err := Begin()
	require.NoError(t, err)
	defer c.Release()

	c.Console().Print("start", 1)
	c.Slog().Info("scrubbing", "tags", 12)
	c.Zap().Named("dicom").Warnw("missing tag", "tag", "0010")
	fmt.Fprintln(c.Stdout(), "from stdout")
	fmt.Fprint(c.Stderr(), "partial")
	c.Named("deid").Error("failed")

	lines := c.Drain()
	require.Len(t, lines, 6)
	assert.Equal(t, "start 1", lines[0])
	assert.Equal(t, "level=INFO msg=scrubbing tags=12", lines[1])
	assert.Contains(t, lines[2], "WARN dicom missing tag")
	assert.Contains(t, lines[2], `"tag": "0010"`)
	assert.Equal(t, "from stdout", lines[3])
	assert.Equal(t, "deid: failed", lines[4])
	assert.Equal(t, "partial", lines[5], "pending partial lines are flushed on Drain")
}

func TestCapture_DrainEmpties(t *testing.T) {
	c, err := Begin()
	require.NoError(t, err)
	defer c.Release()

	c.Console().Print("one")
	assert.Equal(t, []string{"one"}, c.Drain())
	assert.Empty(t, c.Drain())
}

func TestCapture_LevelFiltersDebug(t *testing.T) {
	c, err := Begin(WithLevel(slog.LevelInfo))
	require.NoError(t, err)
	defer c.Release()

	c.Console().Debug("hidden")
	c.Slog().Debug("hidden")
	c.Zap().Debug("hidden")
	c.Console().Warn("shown")

	assert.Equal(t, []string{"shown"}, c.Drain())
}

func TestCapture_ReleaseIsIdempotentAndDropsLateEmissions(t *testing.T) {
	c, err := Begin()
	require.NoError(t, err)

	c.Console().Print("before")
	c.Release()
	c.Release()
	c.Console().Print("after")
	c.Slog().Info("after")

	assert.True(t, c.Released())
	assert.Equal(t, []string{"before"}, c.Drain())
}

func TestCapture_NamedNesting(t *testing.T) {
	c, err := Begin()
	require.NoError(t, err)
	defer c.Release()

	c.Named("deid").Named("tags").Print("ok")
	assert.Equal(t, []string{"deid.tags: ok"}, c.Drain())
}

func TestCapture_ConcurrentCapturesAreIsolated(t *testing.T) {
	const n = 8
	caps := make([]*Capture, n)
	for i := range caps {
		c, err := Begin()
		require.NoError(t, err)
		caps[i] = c
	}

	var wg sync.WaitGroup
	for i, c := range caps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.Console().Print("worker", i)
			}
		}()
	}
	wg.Wait()

	for i, c := range caps {
		lines := c.Drain()
		require.Len(t, lines, 50)
		for _, line := range lines {
			assert.Equal(t, fmt.Sprintf("worker %d", i), line)
		}
		c.Release()
	}
}

func TestWithDefaults_DivertsAndRestores(t *testing.T) {
	prevSlog := slog.Default()
	prevZap := zap.L()

	c, err := Begin(WithDefaults(nil))
	require.NoError(t, err)

	slog.Info("via default")
	log.Print("via log package")
	zap.S().Infow("via zap global")

	lines := c.Drain()
	require.Len(t, lines, 3)
	assert.Equal(t, "level=INFO msg=\"via default\"", lines[0])
	assert.Contains(t, lines[1], "via log package")
	assert.Contains(t, lines[2], "via zap global")

	c.Release()

	assert.Same(t, prevSlog, slog.Default())
	assert.Same(t, prevZap, zap.L())

	slog.Info("outside")
	assert.Empty(t, c.Drain(), "emissions after release must reach their normal destination")
}

func TestWithDefaults_RedirectsRegistry(t *testing.T) {
	var buf bytes.Buffer
	reg := NewRegistry(slog.NewTextHandler(&buf, nil))
	plugin := reg.Logger("dicom").With("file", "a.dcm")

	c, err := Begin(WithDefaults(reg))
	require.NoError(t, err)

	plugin.Warn("inside")
	lines := c.Drain()
	c.Release()

	require.Len(t, lines, 1)
	assert.Equal(t, "level=WARN msg=inside logger=dicom file=a.dcm", lines[0])
	assert.Empty(t, buf.String())

	plugin.Warn("outside")
	assert.Contains(t, buf.String(), "msg=outside")
	assert.Contains(t, buf.String(), "logger=dicom")
	assert.Equal(t, []string{"dicom"}, reg.Names())
}

func TestWithDefaults_OnlyOneActive(t *testing.T) {
	first, err := Begin(WithDefaults(nil))
	require.NoError(t, err)

	_, err = Begin(WithDefaults(nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCapture))

	first.Release()

	second, err := Begin(WithDefaults(nil))
	require.NoError(t, err)
	second.Release()
}
