package plugins

import (
	"fmt"
	"time"
)

// Plugin types accepted in the config file.
const (
	TypeExternalApp = "external_app"
	TypeWebAPI      = "web_api"
)

// ToolServerConfig describes an MCP tool server binary. Every tool it
// exposes becomes a plugin.
type ToolServerConfig struct {
	Binary  string            `mapstructure:"binary"`
	Args    []string          `mapstructure:"args"`
	Env     map[string]string `mapstructure:"env"`
	Enabled bool              `mapstructure:"enabled"`
}

// Config declares an external_app or web_api plugin.
type Config struct {
	Type        string            `mapstructure:"type"`
	Name        string            `mapstructure:"name"`
	Description string            `mapstructure:"description"`
	Command     string            `mapstructure:"command"`
	Args        []string          `mapstructure:"args"`
	URL         string            `mapstructure:"url"`
	Method      string            `mapstructure:"method"`
	Headers     map[string]string `mapstructure:"headers"`
	Timeout     time.Duration     `mapstructure:"timeout"`
}

// Build creates the plugin a Config describes.
func (c Config) Build() (Plugin, error) {
	if c.Name == "" {
		return nil, fmt.Errorf("plugin of type %q has no name", c.Type)
	}
	switch c.Type {
	case TypeExternalApp:
		if c.Command == "" {
			return nil, fmt.Errorf("plugin %s: command is required", c.Name)
		}
		return NewExternalApp(c.Name, c.Description, c.Command, c.Args, c.Timeout), nil
	case TypeWebAPI:
		if c.URL == "" {
			return nil, fmt.Errorf("plugin %s: url is required", c.Name)
		}
		return NewWebAPI(c.Name, c.Description, c.URL, c.Method, c.Headers, c.Timeout), nil
	default:
		return nil, fmt.Errorf("plugin %s: unknown type %q", c.Name, c.Type)
	}
}
