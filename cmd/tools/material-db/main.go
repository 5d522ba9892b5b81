// Command material-db serves the material table over MCP stdio so other
// clients can use it as a tool server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/michaelbrown/cadforge/internal/config"
	"github.com/michaelbrown/cadforge/internal/plugins"
)

func main() {
	var extra map[string]plugins.MaterialProperties
	if cfg, err := config.Load(os.Getenv("CADFORGE_CONFIG")); err == nil {
		extra = cfg.Materials
	} else {
		fmt.Fprintf(os.Stderr, "material-db: using standard materials: %v\n", err)
	}
	db := plugins.NewMaterialDatabase(extra)

	s := server.NewMCPServer("cadforge-material-db", "0.1.0")

	s.AddTool(mcp.Tool{
		Name:        "material_lookup",
		Description: "Look up engineering properties of a material: density (g/cm3), tensile and yield strength (MPa), Young's modulus (GPa) and Poisson ratio.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"material": map[string]any{
					"type":        "string",
					"description": "Material name, e.g. aluminum or steel",
				},
			},
			Required: []string{"material"},
		},
	}, lookupHandler(db))

	s.AddTool(mcp.Tool{
		Name:        "material_list",
		Description: "List the materials in the database.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return textResult(strings.Join(db.Names(), "\n")), nil
	})

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func lookupHandler(db *plugins.MaterialDatabase) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]any)
		res := db.Execute(ctx, args)
		if !res.Success {
			return errResult(res.Error), nil
		}
		data, err := json.MarshalIndent(res.Data, "", "  ")
		if err != nil {
			return errResult(fmt.Sprintf("encoding result: %v", err)), nil
		}
		return textResult(string(data)), nil
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
	}
}

func errResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
		IsError: true,
	}
}
