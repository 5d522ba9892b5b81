package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/cadforge/internal/sandbox"
	"github.com/michaelbrown/cadforge/internal/script"
)

var validationProfileFlag string

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Statically validate a script",
	Long: `Check a script against a validation profile without running it.

Examples:
  cadforge validate part.go
  cadforge validate --validation host part.go`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

var execCmd = &cobra.Command{
	Use:   "exec <file>",
	Short: "Validate and run a script without a backend",
	Long: `Validate a script and run it in the sandbox. No CAD application is
attached, so host calls are answered by stand-ins and listed afterwards.

Examples:
  cadforge exec part.go
  cadforge exec --json part.go`,
	Args: cobra.ExactArgs(1),
	RunE: runExec,
}

func init() {
	for _, c := range []*cobra.Command{validateCmd, execCmd} {
		c.Flags().StringVar(&validationProfileFlag, "validation", "", "Validation profile (generic, host)")
		c.Flags().BoolVar(&jsonFlag, "json", false, "Print the result as JSON")
		rootCmd.AddCommand(c)
	}
}

func loadScript(path string) (script.Source, script.Checker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}

	p := cfg.ValidationProfile(false)
	if validationProfileFlag != "" {
		p, err = script.LookupProfile(validationProfileFlag)
		if err != nil {
			return "", nil, err
		}
	}
	checker, err := newChecker(p)
	if err != nil {
		return "", nil, err
	}
	return script.Source(data), checker, nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	src, checker, err := loadScript(args[0])
	if err != nil {
		return err
	}
	verdict := checker.Validate(src)

	if jsonFlag {
		data, err := json.MarshalIndent(verdict, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	} else {
		printVerdict(checker.Profile().Name, verdict)
	}
	if !verdict.Safe {
		return fmt.Errorf("%s: validation failed", args[0])
	}
	return nil
}

func printVerdict(profile string, v script.Verdict) {
	if v.Safe {
		fmt.Printf("%s (%s profile)\n", replyColor("✓ safe"), profile)
	} else {
		fmt.Printf("%s (%s profile)\n", errorColor("✗ refused"), profile)
	}
	for _, e := range v.Errors {
		fmt.Printf("  %s\n", errorColor("error: "+e))
	}
	for _, w := range v.Warnings {
		fmt.Printf("  %s\n", pluginColor("warning: "+w))
	}
}

func runExec(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	src, checker, err := loadScript(args[0])
	if err != nil {
		return err
	}
	verdict := checker.Validate(src)
	box := sandbox.NewInterpreter(cfg.SandboxPolicy(), logger)
	out := box.Run(ctx, src, verdict, nil)

	if jsonFlag {
		data, err := json.MarshalIndent(struct {
			*sandbox.Outcome
			Bindings []string `json:"bindings,omitempty"`
		}{out, out.BindingSummary()}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	} else {
		if !verdict.Safe {
			printVerdict(checker.Profile().Name, verdict)
		} else {
			printOutcome(os.Stdout, out)
		}
		if out.Success {
			fmt.Println(replyColor("✓ succeeded"))
		} else {
			fmt.Println(errorColor("✗ " + strings.TrimSpace(out.ErrorSummary)))
		}
	}
	if !out.Success {
		return fmt.Errorf("%s: %s", args[0], out.ErrorSummary)
	}
	return nil
}
