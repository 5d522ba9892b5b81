package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var jsonFlag bool

var errCycleFailed = errors.New("request failed")

var runCmd = &cobra.Command{
	Use:   "run <request>",
	Short: "Run a single CAD request",
	Long: `Run one request cycle and print the result. The exit status is non-zero
when the cycle fails.

Examples:
  cadforge run "create a 20mm cube"
  cadforge run --json "what is the density of steel"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print the cycle as JSON")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	c := a.agent.Process(ctx, strings.Join(args, " "))

	if jsonFlag {
		data, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	} else {
		printCycle(os.Stdout, c, true)
	}

	if !c.Success {
		return errCycleFailed
	}
	return nil
}
