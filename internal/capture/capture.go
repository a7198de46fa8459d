// Package capture intercepts the diagnostic output of one preprocessor
// invocation.
//
// A Capture is a scoped region: Begin acquires it, Release ends it. Every
// emission made through the capture's loggers and writers while the region
// is active is appended, in order, to an in-memory line buffer:
//
//	c, err := capture.Begin()
//	if err != nil {
//	    return err
//	}
//	defer c.Release()
//
//	c.Slog().Info("scrubbing", "tags", 12)
//	c.Console().Warn("missing header", map[string]int{"offset": 128})
//	lines := c.Drain()
//
// Captures are handed to collaborators explicitly, so any number can be
// active at once. WithDefaults additionally diverts the process-wide slog,
// log, and zap defaults plus every logger in a Registry for code that
// cannot be handed a logger; only one such capture may be active at a time.
package capture

import (
	"io"
	"log"
	"log/slog"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bimmerbailey/sift/internal/errors"
)

// Capture is an active (or released) interception region.
type Capture struct {
	mu       sync.Mutex
	lines    []string
	released bool

	level   slog.Level
	sink    *lineWriter
	stdout  *lineWriter
	stderr  *lineWriter
	slog    *slog.Logger
	zap     *zap.SugaredLogger
	console *Logger

	restores    []func()
	releaseOnce sync.Once
}

// Option configures Begin.
type Option func(*options)

type options struct {
	level    slog.Level
	defaults bool
	registry *Registry
}

// WithLevel sets the minimum level recorded from the slog and zap loggers
// and from Console().Debug. The default records everything.
func WithLevel(level slog.Level) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithDefaults diverts slog.Default, the standard log package, the zap
// globals, and every logger in reg into the capture until Release. A nil
// registry is skipped.
func WithDefaults(reg *Registry) Option {
	return func(o *options) {
		o.defaults = true
		o.registry = reg
	}
}

var (
	defaultsMu     sync.Mutex
	defaultsActive bool
)

// Begin opens a capture region. The caller must Release it on every path.
func Begin(opts ...Option) (*Capture, error) {
	o := options{level: slog.LevelDebug}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Capture{level: o.level}
	c.sink = newLineWriter(c.append)
	c.stdout = newLineWriter(c.append)
	c.stderr = newLineWriter(c.append)
	c.console = &Logger{c: c}

	c.slog = slog.New(slog.NewTextHandler(c.sink, &slog.HandlerOptions{
		Level: o.level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	}))

	encCfg := zapcore.EncoderConfig{
		MessageKey:       "msg",
		LevelKey:         "level",
		NameKey:          "logger",
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		ConsoleSeparator: " ",
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(c.sink), zapLevel(o.level))
	c.zap = zap.New(core).Sugar()

	if o.defaults {
		if err := c.divertDefaults(o.registry); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Capture) divertDefaults(reg *Registry) error {
	defaultsMu.Lock()
	defer defaultsMu.Unlock()
	if defaultsActive {
		return errors.Mark(errors.New("a process-wide capture is already active"), errors.ErrCapture)
	}
	defaultsActive = true

	prevSlog := slog.Default()
	prevOut, prevFlags, prevPrefix := log.Writer(), log.Flags(), log.Prefix()
	slog.SetDefault(c.slog)
	c.restores = append(c.restores, func() {
		slog.SetDefault(prevSlog)
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
		log.SetPrefix(prevPrefix)
	})

	undoZap := zap.ReplaceGlobals(c.zap.Desugar())
	c.restores = append(c.restores, undoZap)

	if reg != nil {
		base := c.slog.Handler()
		c.restores = append(c.restores, reg.redirect(func(name string) slog.Handler {
			return base.WithAttrs([]slog.Attr{slog.String("logger", name)})
		}))
	}

	c.restores = append(c.restores, func() {
		defaultsMu.Lock()
		defaultsActive = false
		defaultsMu.Unlock()
	})
	return nil
}

// Slog returns a structured logger writing into the capture.
func (c *Capture) Slog() *slog.Logger { return c.slog }

// Zap returns a sugared zap logger writing into the capture.
func (c *Capture) Zap() *zap.SugaredLogger { return c.zap }

// Console returns the console-style logger.
func (c *Capture) Console() *Logger { return c.console }

// Named returns a console-style logger whose lines carry name as a prefix.
func (c *Capture) Named(name string) *Logger { return c.console.Named(name) }

// Stdout returns a writer whose complete lines are captured.
func (c *Capture) Stdout() io.Writer { return c.stdout }

// Stderr returns a writer whose complete lines are captured.
func (c *Capture) Stderr() io.Writer { return c.stderr }

// Drain returns the lines captured so far, in emission order, and empties
// the buffer. Partial lines pending on the writers are flushed first.
func (c *Capture) Drain() []string {
	c.sink.Flush()
	c.stdout.Flush()
	c.stderr.Flush()

	c.mu.Lock()
	defer c.mu.Unlock()
	lines := c.lines
	c.lines = nil
	return lines
}

// Release restores anything diverted by Begin. It is safe to call more
// than once; only the first call has an effect. Emissions after Release
// are discarded.
func (c *Capture) Release() {
	c.releaseOnce.Do(func() {
		for i := len(c.restores) - 1; i >= 0; i-- {
			c.restores[i]()
		}
		c.restores = nil

		c.mu.Lock()
		c.released = true
		c.mu.Unlock()
	})
}

// Released reports whether Release has been called.
func (c *Capture) Released() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

func (c *Capture) append(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return
	}
	c.lines = append(c.lines, line)
}

func zapLevel(l slog.Level) zapcore.Level {
	switch {
	case l <= slog.LevelDebug:
		return zapcore.DebugLevel
	case l <= slog.LevelInfo:
		return zapcore.InfoLevel
	case l <= slog.LevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// Logger is a console-style logger. Each call becomes one captured line
// rendered with Format.
type Logger struct {
	c    *Capture
	name string
}

// Named returns a sub-logger. Names nest with a dot.
func (l *Logger) Named(name string) *Logger {
	if l.name != "" {
		name = l.name + "." + name
	}
	return &Logger{c: l.c, name: name}
}

func (l *Logger) Print(args ...any) { l.emit(args) }
func (l *Logger) Info(args ...any) { l.emit(args) }
func (l *Logger) Warn(args ...any) { l.emit(args) }
func (l *Logger) Error(args ...any) { l.emit(args) }

func (l *Logger) Debug(args ...any) {
	if l.c.level > slog.LevelDebug {
		return
	}
	l.emit(args)
}

func (l *Logger) emit(args []any) {
	line := Format(args...)
	if l.name != "" {
		line = l.name + ": " + line
	}
	l.c.append(line)
}
