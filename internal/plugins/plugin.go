// Package plugins holds capabilities that can satisfy a request directly,
// without generating a script.
package plugins

import "context"

// Result is the outcome of invoking a plugin.
type Result struct {
	Plugin  string         `json:"plugin"`
	Success bool           `json:"success"`
	Output  string         `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// Plugin is a named capability.
type Plugin interface {
	Name() string
	Description() string
	Execute(ctx context.Context, params map[string]any) Result
}

// RequestParser is implemented by plugins that recognise requests aimed at
// them and extract their parameters from the text.
type RequestParser interface {
	ParseRequest(request string) (map[string]any, bool)
}

// Info describes a registered plugin.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func failure(plugin, msg string) Result {
	return Result{Plugin: plugin, Error: msg}
}
