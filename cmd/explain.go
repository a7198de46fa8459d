package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bimmerbailey/sift/internal/config"
	"github.com/bimmerbailey/sift/internal/errors"
	"github.com/bimmerbailey/sift/internal/explain"
	"github.com/bimmerbailey/sift/internal/llm/ollama"
	"github.com/bimmerbailey/sift/internal/output"
	"github.com/bimmerbailey/sift/internal/pipeline"
	"github.com/bimmerbailey/sift/internal/preprocess"
)

var explainCmd = &cobra.Command{
	Use:   "explain <report-or-output-dir>...",
	Short: "Explain the rejections and failures in a run report",
	Long: `Explain reads one or more run reports, groups the reasons of rejected and failed
files into templates, redacts them, and asks a local Ollama model what they mean.

Examples:
  sift explain output/preprocessor_logs.txt
  sift explain output
  sift explain 'runs/*/preprocessor_logs.txt' --model llama3.2
  sift explain output/preprocessor_logs.txt --summary-only --format json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExplain,
}

func init() {
	explainCmd.Flags().String("model", "", "Ollama model (default from llm.ollama.model)")
	explainCmd.Flags().Bool("summary-only", false, "print the grouped reasons without asking a model")
	rootCmd.AddCommand(explainCmd)
}

// explanation is the JSON form of explain's output.
type explanation struct {
	Summary     *explain.Summary `json:"summary"`
	Explanation string           `json:"explanation,omitempty"`
	Model       string           `json:"model,omitempty"`
}

func runExplain(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("model") {
		cfg.LLM.Ollama.Model, _ = cmd.Flags().GetString("model")
	}
	summaryOnly, _ := cmd.Flags().GetBool("summary-only")
	logger := newLogger(cfg)
	format := output.ParseFormat(cfg.Format)
	out := cmd.OutOrStdout()

	files, err := config.ExpandReports(args, cfg.ReportName)
	if err != nil {
		return err
	}

	var entries []pipeline.Entry
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return errors.Filesystem(err, "read report %s", file)
		}
		entries = append(entries, pipeline.ParseEntries(string(data))...)
	}
	logger.Info("parsed reports", "files", len(files), "entries", len(entries))

	redactor := preprocess.NewRedactor(cfg.Redaction.Enabled, cfg.Redaction.Patterns)
	if !redactor.IsEnabled() {
		logger.Warn("redaction disabled, report reasons are summarized as written")
	}
	summary := explain.Summarize(entries, redactor)

	if summary.Empty() {
		if format == output.FormatJSON {
			return output.New(out, format).WriteJSON(explanation{Summary: summary})
		}
		fmt.Fprintln(out, "Nothing to explain: no rejected or failed files in the report.")
		return nil
	}

	if summaryOnly {
		if format == output.FormatJSON {
			return output.New(out, format).WriteJSON(explanation{Summary: summary})
		}
		fmt.Fprint(out, summary.Text())
		return nil
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	client, err := ollama.New(ollama.Config{Host: cfg.LLM.Ollama.Host, Model: cfg.LLM.Ollama.Model}, logger)
	if err != nil {
		return err
	}
	if err := client.Heartbeat(ctx); err != nil {
		return err
	}
	available, err := client.ModelAvailable(ctx, client.Model())
	if err != nil {
		return err
	}
	if !available {
		return errors.WithHintf(errors.Newf("model %q is not available", client.Model()),
			"run: ollama pull %s", client.Model())
	}

	opts := &ollama.ChatOptions{
		Model:       client.Model(),
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	}

	if format == output.FormatJSON {
		text, err := explain.Explain(ctx, client, summary, opts, nil)
		if err != nil {
			return err
		}
		return output.New(out, format).WriteJSON(explanation{Summary: summary, Explanation: text, Model: client.Model()})
	}

	fmt.Fprint(out, summary.Text())
	fmt.Fprintln(out)
	fmt.Fprintln(out, "=== Explanation ===")
	fmt.Fprintln(out)
	if _, err := explain.Explain(ctx, client, summary, opts, out); err != nil {
		fmt.Fprintln(out)
		return err
	}
	fmt.Fprintln(out)
	return nil
}
