package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var paramsFlag string

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List and invoke plugins",
	RunE:  runPluginsList,
}

var pluginsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered plugins",
	RunE:  runPluginsList,
}

var pluginsInvokeCmd = &cobra.Command{
	Use:   "invoke <name>",
	Short: "Invoke a plugin directly",
	Long: `Invoke a plugin by name with JSON parameters.

Examples:
  cadforge plugins invoke material_database --params '{"material":"steel"}'
  cadforge plugins invoke file_converter --params '{"from":"stl","to":"step","file":"part.stl"}'`,
	Args: cobra.ExactArgs(1),
	RunE: runPluginsInvoke,
}

func init() {
	pluginsInvokeCmd.Flags().StringVar(&paramsFlag, "params", "{}", "Parameters as a JSON object")
	pluginsCmd.AddCommand(pluginsListCmd, pluginsInvokeCmd)
	rootCmd.AddCommand(pluginsCmd)
}

func runPluginsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	reg := newRegistry(ctx)
	defer reg.Close()

	for _, info := range reg.List() {
		fmt.Printf("%-24s %s\n", pluginColor(info.Name), info.Description)
	}
	return nil
}

func runPluginsInvoke(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var params map[string]any
	if err := json.Unmarshal([]byte(paramsFlag), &params); err != nil {
		return fmt.Errorf("parsing --params: %w", err)
	}

	reg := newRegistry(ctx)
	defer reg.Close()

	res := reg.Invoke(ctx, args[0], params)
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	if !res.Success {
		return fmt.Errorf("%s: %s", args[0], res.Error)
	}
	return nil
}
