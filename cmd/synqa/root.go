package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/brunobiangulo/synqa"
)

var (
	configPath string
	force      bool
	devLogs    bool

	cfg    synqa.Config
	logger *zapLogger
)

var rootCmd = &cobra.Command{
	Use:   "synqa",
	Short: "Generate and filter synthetic long-document QA benchmarks",
	Long: `synqa clusters parsed document sources, generates multi-source
question-answer pairs with an LLM, and filters them for quality and
difficulty. Each stage reads the previous stage's output directory and
skips documents it has already processed.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		_ = godotenv.Load()

		var err error
		if logger, err = newLogger(devLogs); err != nil {
			return err
		}
		slog.SetDefault(logger.slogger())

		if cfg, err = synqa.LoadConfig(configPath); err != nil {
			return err
		}
		if force {
			cfg.Force = true
		}
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		if logger != nil {
			logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML or JSON config file")
	rootCmd.PersistentFlags().BoolVar(&force, "force", false, "reprocess documents whose stage output exists")
	rootCmd.PersistentFlags().BoolVar(&devLogs, "dev", false, "human-readable debug logs")
}

// Execute runs the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// printJSON writes v as indented JSON to the command's output.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
