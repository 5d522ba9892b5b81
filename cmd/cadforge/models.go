package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/cadforge/internal/llm"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List configured LLM providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range cfg.ProviderNames() {
			p := cfg.Providers[name]
			marker := " "
			if name == cfg.DefaultProvider {
				marker = "*"
			}
			where := "hosted"
			if p.IsLocal() {
				where = "local"
			}
			fmt.Printf("%s %-12s %-8s %-7s %s\n", marker, name, p.ClientKind(), where, p.Models["default"])
		}
		return nil
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models [provider]",
	Short: "List models for a provider",
	Long: `List models for a provider. Local OpenAI-compatible servers such as
Ollama are asked for their installed models; others show the configured
model aliases.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runModels,
}

func init() {
	rootCmd.AddCommand(providersCmd, modelsCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	name := providerFlag
	if len(args) > 0 {
		name = args[0]
	}
	if name == "" {
		name = cfg.DefaultProvider
	}
	p, err := cfg.Provider(name)
	if err != nil {
		return err
	}

	if p.ClientKind() == llm.KindOpenAI && p.IsLocal() {
		models, err := llm.NewClient(name, p.BaseURL, p.APIKey, "").ListModels(ctx)
		if err != nil {
			return fmt.Errorf("%s", llm.Describe(err))
		}
		for _, m := range models {
			fmt.Printf("%-40s %8.1f GB\n", m.Name, float64(m.Size)/1e9)
		}
		return nil
	}

	keys := make([]string, 0, len(p.Models))
	for k := range p.Models {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%-12s %s\n", k, p.Models[k])
	}
	return nil
}
