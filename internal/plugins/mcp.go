package plugins

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// toolServer is a running MCP stdio server.
type toolServer struct {
	name   string
	client *client.Client
	tools  []mcp.Tool
}

func startToolServer(ctx context.Context, name string, cfg ToolServerConfig) (*toolServer, error) {
	c, err := client.NewStdioMCPClient(cfg.Binary, serverEnv(cfg.Env), cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("starting tool server %s (%s): %w", name, cfg.Binary, err)
	}

	_, err = c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    "cadforge",
				Version: "0.1.0",
			},
		},
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("initializing tool server %s: %w", name, err)
	}

	result, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("listing tools from %s: %w", name, err)
	}

	return &toolServer{name: name, client: c, tools: result.Tools}, nil
}

// serverEnv expands ${VAR} references against the current environment.
func serverEnv(extra map[string]string) []string {
	env := os.Environ()
	for k, v := range extra {
		if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
			v = os.Getenv(v[2 : len(v)-1])
		}
		env = append(env, k+"="+v)
	}
	return env
}

func (s *toolServer) plugins() []Plugin {
	out := make([]Plugin, 0, len(s.tools))
	for _, t := range s.tools {
		out = append(out, &MCPPlugin{server: s, tool: t})
	}
	return out
}

func (s *toolServer) close() error {
	return s.client.Close()
}

// MCPPlugin exposes one tool of an MCP server as a plugin.
type MCPPlugin struct {
	server *toolServer
	tool   mcp.Tool
}

func (p *MCPPlugin) Name() string        { return p.tool.Name }
func (p *MCPPlugin) Description() string { return p.tool.Description }

// Server is the name of the tool server that provides this plugin.
func (p *MCPPlugin) Server() string { return p.server.name }

func (p *MCPPlugin) Execute(ctx context.Context, params map[string]any) Result {
	result, err := p.server.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      p.tool.Name,
			Arguments: params,
		},
	})
	if err != nil {
		return failure(p.tool.Name, fmt.Sprintf("calling %s on %s: %v", p.tool.Name, p.server.name, err))
	}

	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	text := truncate(strings.Join(parts, "\n"))
	if result.IsError {
		return Result{Plugin: p.tool.Name, Error: text}
	}
	return Result{Plugin: p.tool.Name, Success: true, Output: text}
}
