// Package exec runs preprocessors implemented as external commands.
//
// The protocol matches WASM modules: the file arrives on stdin, the result
// is read from stdout, stderr is captured, and a non-zero exit fails the
// file with the last stderr line as the reason. SIFT_POLICY_FILE holds the
// host path of the policy document.
package exec

import (
	"bytes"
	"context"
	"os"
	osexec "os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/bimmerbailey/sift/internal/errors"
	"github.com/bimmerbailey/sift/internal/preprocess"
)

// WaitDelay bounds how long a cancelled command's output pipes are
// drained before they are closed.
var WaitDelay = time.Second

// Command is a parsed external command.
type Command struct {
	Name string
	Path string
	Args []string
	Dir  string
}

// Parse splits a shell-quoted command line and resolves the program with
// LookPath. dir is the working directory; relative programs containing a
// slash are resolved against it.
func Parse(name, line, dir string) (*Command, error) {
	words, err := shellquote.Split(line)
	if err != nil {
		return nil, errors.Wrapf(err, "parse command %q", line)
	}
	if len(words) == 0 {
		return nil, errors.Newf("preprocessor %q: empty command", name)
	}

	prog := words[0]
	if dir != "" && !filepath.IsAbs(prog) && strings.ContainsRune(prog, '/') {
		prog = filepath.Join(dir, filepath.FromSlash(prog))
	}
	path, err := osexec.LookPath(prog)
	if err != nil {
		return nil, errors.WithHintf(errors.Wrapf(err, "preprocessor %q", name),
			"install %s or fix the command in the manifest", words[0])
	}

	return &Command{Name: name, Path: path, Args: words[1:], Dir: dir}, nil
}

// Transform runs the command once for f.
func (c *Command) Transform(ctx context.Context, f *preprocess.File, env preprocess.Env) (*preprocess.File, error) {
	cmd := osexec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.WaitDelay = WaitDelay

	var stdout bytes.Buffer
	stderr := preprocess.NewLastLine(env.Stderr)
	cmd.Stdin = bytes.NewReader(f.Data)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	cmd.Env = append(os.Environ(),
		preprocess.EnvFileName+"="+f.Name,
		preprocess.EnvFileType+"="+f.Type,
	)
	if doc := env.Policy; !doc.Empty() && doc.Path != "" {
		cmd.Env = append(cmd.Env, preprocess.EnvPolicyFile+"="+doc.Path)
	}

	env.Log.Debug("running command", "preprocessor", c.Name, "path", c.Path, "args", c.Args)

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrapf(ctx.Err(), "%s interrupted", c.Name)
		}
		var exitErr *osexec.ExitError
		if errors.As(err, &exitErr) {
			return nil, preprocess.ExitFailure(c.Name, exitErr.ExitCode(), stderr.Line())
		}
		return nil, errors.Mark(errors.Wrapf(err, "run %s", c.Name), errors.ErrTransform)
	}

	return &preprocess.File{Name: f.Name, Data: stdout.Bytes(), Type: f.Type}, nil
}
