package capture

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
)

// Registry hands out named slog loggers whose destination can be swapped
// at runtime. Collaborators that keep a logger across files take theirs
// from a Registry so a process-wide capture can reach it.
type Registry struct {
	mu      sync.Mutex
	base    slog.Handler
	targets map[string]*target
}

// NewRegistry returns a registry whose loggers write to base when no
// capture is active. A nil base uses slog.Default's handler at call time.
func NewRegistry(base slog.Handler) *Registry {
	if base == nil {
		base = slog.Default().Handler()
	}
	return &Registry{base: base, targets: make(map[string]*target)}
}

// Logger returns the logger registered under name, creating it on first use.
func (r *Registry) Logger(name string) *slog.Logger {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.targets[name]
	if !ok {
		t = &target{}
		t.store(r.base.WithAttrs([]slog.Attr{slog.String("logger", name)}))
		r.targets[name] = t
	}
	return slog.New(&switchHandler{target: t})
}

// Names lists the registered logger names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.targets))
	for name := range r.targets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// redirect points every registered logger at to(name) and returns a func
// that puts the previous destinations back.
func (r *Registry) redirect(to func(name string) slog.Handler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := make(map[*target]slog.Handler, len(r.targets))
	for name, t := range r.targets {
		prev[t] = t.swap(to(name))
	}
	return func() {
		for t, h := range prev {
			t.store(h)
		}
	}
}

type handlerBox struct{ h slog.Handler }

type target struct {
	cur atomic.Pointer[handlerBox]
}

func (t *target) load() slog.Handler { return t.cur.Load().h }
func (t *target) store(h slog.Handler) { t.cur.Store(&handlerBox{h: h}) }
func (t *target) swap(h slog.Handler) slog.Handler {
	return t.cur.Swap(&handlerBox{h: h}).h
}

// switchHandler resolves its target on every call, replaying any WithAttrs
// and WithGroup derivations on top of it.
type switchHandler struct {
	target *target
	derive []func(slog.Handler) slog.Handler
}

func (h *switchHandler) current() slog.Handler {
	cur := h.target.load()
	for _, d := range h.derive {
		cur = d(cur)
	}
	return cur
}

func (h *switchHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.current().Enabled(ctx, level)
}

func (h *switchHandler) Handle(ctx context.Context, rec slog.Record) error {
	return h.current().Handle(ctx, rec)
}

func (h *switchHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.with(func(next slog.Handler) slog.Handler { return next.WithAttrs(attrs) })
}

func (h *switchHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.with(func(next slog.Handler) slog.Handler { return next.WithGroup(name) })
}

func (h *switchHandler) with(d func(slog.Handler) slog.Handler) slog.Handler {
	derive := make([]func(slog.Handler) slog.Handler, len(h.derive), len(h.derive)+1)
	copy(derive, h.derive)
	return &switchHandler{target: h.target, derive: append(derive, d)}
}
