package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/cadforge/internal/llm"
)

var explainCmd = &cobra.Command{
	Use:   "explain <operation>",
	Short: "Explain a CAD operation",
	Long: `Ask the backend for a short explanation of a CAD operation and how it
is done through the adsk API.

Examples:
  cadforge explain "fillet"
  cadforge explain "sweep along a path"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExplain,
}

func init() {
	rootCmd.AddCommand(explainCmd)
}

func runExplain(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	gen, _, err := newGenerator(ctx, providerFlag, modelFlag, cfg.Agent.SystemPrompt)
	if err != nil {
		return err
	}
	text, err := gen.Explain(ctx, strings.Join(args, " "))
	if err != nil {
		return fmt.Errorf("%s", llm.Describe(err))
	}
	fmt.Println(text)
	return nil
}
