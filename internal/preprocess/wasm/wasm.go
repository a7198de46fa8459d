// Package wasm runs preprocessors compiled to WebAssembly (WASI command
// modules) with wazero.
//
// A module reads the file from stdin and writes the transformed bytes to
// stdout. Anything on stderr is captured; a non-zero exit fails the file
// with the last stderr line as the reason. argv is [entry name, relative
// path] and the environment carries SIFT_FILE_NAME, SIFT_FILE_TYPE and,
// when a policy is loaded, SIFT_POLICY_FILE pointing into a read-only
// /policy mount.
package wasm

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/bimmerbailey/sift/internal/errors"
	"github.com/bimmerbailey/sift/internal/preprocess"
)

// DefaultCacheSize is the number of compiled modules kept by NewRuntime
// when size is not positive.
const DefaultCacheSize = 16

// PolicyMount is where the policy document's directory is mounted.
const PolicyMount = "/policy"

// Runtime compiles and runs modules. Compiled modules are cached by the
// SHA-256 of their bytes, so reloading a manifest does not recompile.
// Evicted modules are released when the runtime closes.
type Runtime struct {
	rt     wazero.Runtime
	cache  *lru.Cache[string, wazero.CompiledModule]
	logger *slog.Logger

	mu sync.Mutex
}

// NewRuntime creates a wazero runtime with WASI preview 1 available.
func NewRuntime(ctx context.Context, logger *slog.Logger, cacheSize int) (*Runtime, error) {
	if logger == nil {
		return nil, errors.New("wasm: logger is required")
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}

	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, errors.Wrap(err, "instantiate WASI")
	}

	cache, err := lru.New[string, wazero.CompiledModule](cacheSize)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, errors.Wrap(err, "create module cache")
	}

	return &Runtime{rt: rt, cache: cache, logger: logger}, nil
}

// Close releases the runtime and every compiled module.
func (r *Runtime) Close(ctx context.Context) error {
	r.cache.Purge()
	return r.rt.Close(ctx)
}

// Compile returns the compiled form of module, from cache when possible.
func (r *Runtime) Compile(ctx context.Context, module []byte) (wazero.CompiledModule, error) {
	sum := sha256.Sum256(module)
	key := hex.EncodeToString(sum[:])

	r.mu.Lock()
	defer r.mu.Unlock()

	if compiled, ok := r.cache.Get(key); ok {
		r.logger.Debug("wasm module cache hit", "sha256", key[:12])
		return compiled, nil
	}

	compiled, err := r.rt.CompileModule(ctx, module)
	if err != nil {
		return nil, errors.Wrap(err, "compile WASM module")
	}
	r.cache.Add(key, compiled)
	r.logger.Debug("compiled wasm module", "sha256", key[:12], "bytes", len(module))
	return compiled, nil
}

// Cached reports how many compiled modules are cached.
func (r *Runtime) Cached() int { return r.cache.Len() }

// Transformer compiles module and returns a transformer that runs it once
// per file.
func (r *Runtime) Transformer(ctx context.Context, name string, module []byte) (preprocess.Transformer, error) {
	compiled, err := r.Compile(ctx, module)
	if err != nil {
		return nil, err
	}
	return &transformer{rt: r.rt, name: name, compiled: compiled}, nil
}

type transformer struct {
	rt       wazero.Runtime
	name     string
	compiled wazero.CompiledModule
}

func (t *transformer) Transform(ctx context.Context, f *preprocess.File, env preprocess.Env) (*preprocess.File, error) {
	var stdout bytes.Buffer
	stderr := preprocess.NewLastLine(env.Stderr)

	cfg := wazero.NewModuleConfig().
		WithName("").
		WithArgs(t.name, f.Name).
		WithStdin(bytes.NewReader(f.Data)).
		WithStdout(&stdout).
		WithStderr(stderr).
		WithEnv(preprocess.EnvFileName, f.Name).
		WithEnv(preprocess.EnvFileType, f.Type)

	if doc := env.Policy; !doc.Empty() && doc.Path != "" {
		cfg = cfg.
			WithFSConfig(wazero.NewFSConfig().WithReadOnlyDirMount(filepath.Dir(doc.Path), PolicyMount)).
			WithEnv(preprocess.EnvPolicyFile, PolicyMount+"/"+filepath.Base(doc.Path))
	}

	mod, err := t.rt.InstantiateModule(ctx, t.compiled, cfg)
	if mod != nil {
		_ = mod.Close(ctx)
	}
	if err != nil {
		var exit *sys.ExitError
		switch {
		case ctx.Err() != nil:
			return nil, errors.Wrapf(ctx.Err(), "%s interrupted", t.name)
		case errors.As(err, &exit):
			if exit.ExitCode() != 0 {
				return nil, preprocess.ExitFailure(t.name, int(exit.ExitCode()), stderr.Line())
			}
		default:
			return nil, errors.Mark(errors.Wrapf(err, "run %s", t.name), errors.ErrTransform)
		}
	}

	env.Log.Debug("wasm module finished", "module", t.name, "bytes_out", stdout.Len())
	return &preprocess.File{Name: f.Name, Data: stdout.Bytes(), Type: f.Type}, nil
}
