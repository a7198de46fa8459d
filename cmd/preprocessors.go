package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/bimmerbailey/sift/internal/output"
)

var preprocessorsCmd = &cobra.Command{
	Use:     "preprocessors",
	Aliases: []string{"ls"},
	Short:   "List the preprocessors a run would use, in priority order",
	Long: `Preprocessors loads the manifest exactly as run would and prints the entries in
load order. The first entry whose matcher claims a file handles it.

Examples:
  sift preprocessors
  sift preprocessors --manifest preprocessors.yaml --format table`,
	Args: cobra.NoArgs,
	RunE: runPreprocessors,
}

func init() {
	preprocessorsCmd.Flags().StringP("manifest", "m", "", "preprocessor manifest path or URL (YAML or TOML)")
	rootCmd.AddCommand(preprocessorsCmd)
}

func runPreprocessors(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("manifest") {
		cfg.Preprocessors.Manifest, _ = cmd.Flags().GetString("manifest")
	}
	logger := newLogger(cfg)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := newSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.close()

	reg, err := s.registry(ctx)
	if err != nil {
		return err
	}
	return output.New(cmd.OutOrStdout(), output.ParseFormat(cfg.Format)).WritePreprocessors(reg.Entries())
}
