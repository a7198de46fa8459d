package cmd

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/bimmerbailey/sift/internal/capture"
	"github.com/bimmerbailey/sift/internal/config"
	"github.com/bimmerbailey/sift/internal/errors"
	"github.com/bimmerbailey/sift/internal/fetch"
	"github.com/bimmerbailey/sift/internal/output"
	"github.com/bimmerbailey/sift/internal/pipeline"
	"github.com/bimmerbailey/sift/internal/policy"
	"github.com/bimmerbailey/sift/internal/preprocess"
	"github.com/bimmerbailey/sift/internal/preprocess/manifest"
	"github.com/bimmerbailey/sift/internal/preprocess/wasm"
	"github.com/bimmerbailey/sift/internal/processor"
	"github.com/bimmerbailey/sift/internal/store"
)

// session holds what stays fixed across the runs of one invocation. The
// registry is rebuilt for every run so watch mode picks up manifest edits.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	fetcher *fetch.Fetcher
	runtime *wasm.Runtime
	loggers *capture.Registry
}

func newSession(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*session, error) {
	fetcher, err := fetch.New(cfg.Preprocessors.CacheDir, logger)
	if err != nil {
		return nil, err
	}
	s := &session{
		cfg:     cfg,
		logger:  logger,
		fetcher: fetcher,
		loggers: capture.NewRegistry(logger.Handler()),
	}
	if cfg.Preprocessors.Manifest != "" {
		rt, err := wasm.NewRuntime(ctx, s.loggers.Logger("wasm"), cfg.Preprocessors.ModuleCache)
		if err != nil {
			s.close()
			return nil, err
		}
		s.runtime = rt
	}
	return s, nil
}

func (s *session) close() {
	if s.runtime != nil {
		if err := s.runtime.Close(context.Background()); err != nil {
			s.logger.Warn("close wasm runtime", "error", err)
		}
	}
	if err := s.fetcher.Cleanup(); err != nil {
		s.logger.Warn("remove fetch directory", "error", err)
	}
}

// source picks the manifest when one is configured, otherwise the
// built-in text redaction (or nothing when redaction is disabled).
func (s *session) source() preprocess.Source {
	if s.cfg.Preprocessors.Manifest != "" {
		return &manifest.Source{
			Location: s.cfg.Preprocessors.Manifest,
			Reader:   s.fetcher,
			WASM:     s.runtime,
			Logger:   s.logger,
		}
	}
	if !s.cfg.Redaction.Enabled {
		return preprocess.Static()
	}
	return preprocess.Defaults(s.cfg.Redaction.Patterns)
}

func (s *session) registry(ctx context.Context) (*preprocess.Registry, error) {
	return preprocess.Load(ctx, s.source(), s.logger)
}

func (s *session) policy(ctx context.Context) (*policy.Document, error) {
	doc, err := policy.Load(ctx, s.cfg.Policy.Location, s.fetcher)
	if err != nil {
		return nil, err
	}
	if !doc.Empty() {
		s.logger.Info("loaded policy", "source", doc.Source, "digest", doc.Digest)
	}
	return doc, nil
}

func (s *session) store() (store.Store, error) {
	switch strings.ToLower(s.cfg.Store.Kind) {
	case "s3":
		c := s.cfg.Store.S3
		return store.NewS3(store.S3Config{
			Endpoint:  c.Endpoint,
			Region:    c.Region,
			AccessKey: c.AccessKey,
			SecretKey: c.SecretKey,
			Bucket:    c.Bucket,
			Prefix:    c.Prefix,
			UseSSL:    c.UseSSL,
		}, s.logger)
	default:
		nested, err := config.Nested(s.cfg.Input, s.cfg.Output)
		if err != nil {
			return nil, errors.Filesystem(err, "resolve output %s", s.cfg.Output)
		}
		if nested {
			return nil, errors.WithHint(
				errors.Newf("output %q is inside input %q", s.cfg.Output, s.cfg.Input),
				"choose an output directory outside the input tree, otherwise outputs are re-processed")
		}
		return store.NewLocal(s.cfg.Output)
	}
}

// run performs one pass over the input tree and prints the summary.
func (s *session) run(ctx context.Context, st store.Store, out, progress io.Writer) (*pipeline.Report, error) {
	reg, err := s.registry(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := s.policy(ctx)
	if err != nil {
		return nil, err
	}
	timeout, err := s.cfg.FileTimeout()
	if err != nil {
		return nil, err
	}

	opts := []processor.Option{
		processor.WithPolicy(doc),
		processor.WithTimeout(timeout),
	}
	if s.cfg.CaptureLevel != "" {
		opts = append(opts, processor.WithCaptureLevel(config.ParseLevel(s.cfg.CaptureLevel).Slog()))
	}
	if s.cfg.Workers <= 1 {
		opts = append(opts, processor.WithProcessDefaults(s.loggers))
	}
	proc, err := processor.New(reg, s.logger, opts...)
	if err != nil {
		return nil, err
	}

	mode := output.ParseColorMode(s.cfg.Color)
	runner, err := pipeline.New(proc, st, s.logger, pipeline.Config{
		Workers:    s.cfg.Workers,
		ReportName: s.cfg.ReportName,
		Progress:   output.NewProgress(progress, output.UseColor(mode, progress)),
	})
	if err != nil {
		return nil, err
	}

	report, runErr := runner.Run(ctx, s.cfg.Input)
	if report == nil {
		return nil, runErr
	}

	format := output.ParseFormat(s.cfg.Format)
	if err := output.New(out, format).WriteReport(report, mode); err != nil {
		return report, err
	}
	if format == output.FormatText {
		name := s.cfg.ReportName
		if name == "" {
			name = pipeline.DefaultReportName
		}
		if _, err := io.WriteString(out, "Report: "+st.Location(name)+"\n"); err != nil {
			return report, err
		}
	}
	return report, runErr
}
