package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bimmerbailey/sift/internal/config"
	"github.com/bimmerbailey/sift/internal/errors"
	"github.com/bimmerbailey/sift/internal/preprocess"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sift",
	Short: "De-identify a directory of files through pluggable preprocessors",
	Long: `Sift walks an input directory and hands every file to the first registered
preprocessor that claims it. Claimed files are transformed and written under the
output directory, rejected, or recorded as failed; unclaimed files are skipped.
Every preprocessor's diagnostic output is captured into a per-run report.

Examples:
  sift run --input scans --output clean
  sift run --manifest preprocessors.yaml --policy https://example.org/policy.json
  sift run --workers 4 --watch
  sift preprocessors --manifest preprocessors.toml --format table
  sift explain clean/preprocessor_logs.txt`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute is called by main.main(). It runs the root command and prints
// any remediation hints attached to the error.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError(os.Stderr, err)
	}
	return err
}

func printError(w io.Writer, err error) {
	fmt.Fprintln(w, "Error:", err)
	for _, hint := range errors.GetAllHints(err) {
		for _, line := range strings.Split(hint, "\n") {
			fmt.Fprintln(w, "Hint:", line)
		}
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.sift.yaml)")
	rootCmd.PersistentFlags().StringP("format", "f", config.DefaultFormat, "output format (text, json, table)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto, always, never)")

	_ = viper.BindPFlag("format", rootCmd.PersistentFlags().Lookup("format"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("color", rootCmd.PersistentFlags().Lookup("color"))
}

func initConfig() {
	// .env supplies secrets such as SIFT_STORE_S3_SECRET_KEY. A missing file
	// is fine.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error finding home directory:", err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigName(".sift")
		viper.SetConfigType("yaml")
	}

	setDefaults()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// setDefaults registers every key so that SIFT_* variables reach
// viper.Unmarshal.
func setDefaults() {
	viper.SetEnvPrefix("SIFT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("format", config.DefaultFormat)
	viper.SetDefault("verbose", false)
	viper.SetDefault("debug", false)
	viper.SetDefault("color", "auto")

	viper.SetDefault("input", config.DefaultInput)
	viper.SetDefault("output", config.DefaultOutput)
	viper.SetDefault("workers", 1)
	viper.SetDefault("timeout", "")
	viper.SetDefault("report_name", config.DefaultReportName)
	viper.SetDefault("capture_level", "debug")

	viper.SetDefault("policy.location", "")
	viper.SetDefault("preprocessors.manifest", "")
	viper.SetDefault("preprocessors.cache_dir", "")
	viper.SetDefault("preprocessors.module_cache", 16)

	viper.SetDefault("store.kind", config.DefaultStoreKind)
	viper.SetDefault("store.s3.endpoint", "")
	viper.SetDefault("store.s3.region", "")
	viper.SetDefault("store.s3.access_key", "")
	viper.SetDefault("store.s3.secret_key", "")
	viper.SetDefault("store.s3.bucket", "")
	viper.SetDefault("store.s3.prefix", "")
	viper.SetDefault("store.s3.use_ssl", true)

	viper.SetDefault("redaction.enabled", true)
	viper.SetDefault("redaction.patterns", preprocess.DefaultPatterns())

	viper.SetDefault("watch.debounce", config.DefaultDebounce)

	viper.SetDefault("llm.temperature", 0.0)
	viper.SetDefault("llm.max_tokens", 0)
	viper.SetDefault("llm.ollama.host", "")
	viper.SetDefault("llm.ollama.model", "llama3.2")
}

// loadConfig reads the merged configuration.
func loadConfig() (*config.Config, error) {
	cfg := &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithHint(err, "check ~/.sift.yaml, ./.sift.yaml and SIFT_* environment variables")
	}
	return cfg, nil
}

// newLogger logs to stderr at Error, Info with --verbose, or Debug with
// --debug.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelError
	switch {
	case cfg.Debug:
		level = slog.LevelDebug
	case cfg.Verbose:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
