package cmd

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sandrolain/goshape/pkg/config"
	"github.com/sandrolain/goshape/pkg/document"
	"github.com/sandrolain/goshape/pkg/native"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "goshape",
	Short: "Compile and run shape expressions",
	Long: `goshape compiles expressions of the shape language and runs them
against JSON, YAML or SQLite data, or translates them into aggregation
documents.

Expressions:
  Age > 30 and Name startsWith 'A'
  Orders(Status = 'Done'):count
  Orders:groupBy(Status).{Status, :count as N}

The configuration is read from --config, $GOSHAPE_CONFIG or
./goshape.yaml, in that order.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (.yaml or .toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json")
}

func setup(cmd *cobra.Command, _ []string) error {
	var err error
	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err = cfg.Logger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

func nativeBuilder() (*native.Builder, error) {
	opts, err := cfg.NativeOptions(logger)
	if err != nil {
		return nil, err
	}
	return native.New(opts...), nil
}

func documentBuilder() *document.Builder {
	return document.New(document.WithLogger(logger))
}

// withTimeout bounds a command by the configured source timeout.
func withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if d := cfg.Source.Timeout.Duration; d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
