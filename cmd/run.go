package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bimmerbailey/sift/internal/config"
	"github.com/bimmerbailey/sift/internal/errors"
	"github.com/bimmerbailey/sift/internal/output"
	"github.com/bimmerbailey/sift/internal/watch"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every input file through the preprocessors",
	Long: `Run walks the input directory and hands each file to the first preprocessor
that claims it. Transformed files are written under the same relative path in the
output directory; rejected, failed and unclaimed files are not written. Diagnostic
output from the preprocessors is collected into a report under the output root.

Without --manifest, text files are redacted with the built-in redactor and
everything else is skipped.

Examples:
  sift run --input scans --output clean
  sift run --manifest preprocessors.yaml --policy policy.json --timeout 30s
  sift run --manifest https://example.org/sift/preprocessors.toml --workers 4
  sift run --watch`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(c *cobra.Command) {
	c.Flags().StringP("input", "i", "", "input directory (default \"input\")")
	c.Flags().StringP("output", "o", "", "output directory (default \"output\")")
	c.Flags().StringP("manifest", "m", "", "preprocessor manifest path or URL (YAML or TOML)")
	c.Flags().StringP("policy", "p", "", "policy document path or URL")
	c.Flags().IntP("workers", "w", 0, "files processed at once (default 1)")
	c.Flags().String("timeout", "", "per-file transform limit, e.g. 30s or 2m")
	c.Flags().Bool("watch", false, "re-run when the input tree changes")
	c.Flags().Bool("no-color", false, "disable colored output")
}

// applyRunFlags overrides configuration with the flags that were set.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("input") {
		cfg.Input, _ = flags.GetString("input")
	}
	if flags.Changed("output") {
		cfg.Output, _ = flags.GetString("output")
	}
	if flags.Changed("manifest") {
		cfg.Preprocessors.Manifest, _ = flags.GetString("manifest")
	}
	if flags.Changed("policy") {
		cfg.Policy.Location, _ = flags.GetString("policy")
	}
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("timeout") {
		cfg.Timeout, _ = flags.GetString("timeout")
	}
	if noColor, _ := flags.GetBool("no-color"); noColor {
		cfg.Color = "never"
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	watchMode, _ := cmd.Flags().GetBool("watch")
	logger := newLogger(cfg)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := newSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.close()

	st, err := s.store()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	// Progress markers would corrupt structured output on stdout.
	progress := out
	if output.ParseFormat(cfg.Format) != output.FormatText {
		progress = cmd.ErrOrStderr()
	}

	_, err = s.run(ctx, st, out, progress)
	if !watchMode || ctx.Err() != nil {
		return err
	}
	if err != nil {
		logger.Error("run failed", "error", err)
		printError(cmd.ErrOrStderr(), err)
	}

	debounce, err := cfg.WatchDebounce()
	if err != nil {
		return err
	}
	w, err := watch.New(watch.Options{
		Root:     cfg.Input,
		Debounce: debounce,
		Ignore:   outsideIgnore(cfg),
		Logger:   logger,
		OnChange: func(ctx context.Context) error {
			_, err := s.run(ctx, st, out, progress)
			if err != nil && !errors.Is(err, errors.ErrInterrupted) {
				printError(cmd.ErrOrStderr(), err)
			}
			return err
		},
	})
	if err != nil {
		return err
	}
	io.WriteString(cmd.ErrOrStderr(), "Watching "+cfg.Input+" for changes (Ctrl-C to stop)\n")
	return w.Run(ctx)
}

// outsideIgnore skips events under the output and cache directories.
func outsideIgnore(cfg *config.Config) func(string) bool {
	var roots []string
	for _, dir := range []string{cfg.Output, cfg.Preprocessors.CacheDir} {
		if dir == "" {
			continue
		}
		if abs, err := filepath.Abs(dir); err == nil {
			roots = append(roots, abs)
		}
	}
	return func(path string) bool {
		abs, err := filepath.Abs(path)
		if err != nil {
			return false
		}
		for _, root := range roots {
			if abs == root || strings.HasPrefix(abs, root+string(filepath.Separator)) {
				return true
			}
		}
		return false
	}
}
