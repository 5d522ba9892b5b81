package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelbrown/cadforge/internal/config"
	"github.com/michaelbrown/cadforge/internal/logging"
)

var (
	configFlag   string
	providerFlag string
	modelFlag    string
	profileFlag  string
	verboseFlag  bool

	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "cadforge",
	Short: "cadforge - natural language CAD scripting",
	Long: `cadforge turns natural-language CAD requests into Go scripts for the
adsk host API, validates them statically, runs them in an embedded
interpreter and repairs a failing script once.

It connects to Ollama, LM Studio, OpenAI-compatible servers or Gemini.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configFlag)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		level := cfg.Log.Level
		if cfg.Log.File == "" && !verboseFlag {
			// keep the terminal for results unless asked otherwise
			level = "warn"
		}
		logger, err = logging.New(logging.Options{
			Level:   level,
			File:    cfg.Log.File,
			Verbose: verboseFlag,
			Console: cfg.Log.File == "",
		})
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default ./cadforge.yaml or ~/.cadforge/cadforge.yaml)")
	rootCmd.PersistentFlags().StringVar(&providerFlag, "provider", "", "LLM provider (ollama, lmstudio, gemini, ...)")
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "Model to use (overrides config)")
	rootCmd.PersistentFlags().StringVar(&profileFlag, "profile", "", "Generation profile from the profiles directory")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
