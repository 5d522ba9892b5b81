// Package config loads cadforge.yaml through viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/michaelbrown/cadforge/internal/codegen"
	"github.com/michaelbrown/cadforge/internal/llm"
	"github.com/michaelbrown/cadforge/internal/plugins"
	"github.com/michaelbrown/cadforge/internal/sandbox"
	"github.com/michaelbrown/cadforge/internal/script"
)

// ErrConfig marks a configuration fault. Commands abort before running
// any cycle when Validate returns it.
var ErrConfig = errors.New("invalid configuration")

type ProviderConfig struct {
	Kind    string            `mapstructure:"kind"`
	BaseURL string            `mapstructure:"base_url"`
	APIKey  string            `mapstructure:"api_key"`
	Models  map[string]string `mapstructure:"models"`
	Timeout time.Duration     `mapstructure:"timeout"`
}

type AgentConfig struct {
	RecentInteractions int    `mapstructure:"recent_interactions"`
	ContextMaxTokens   int    `mapstructure:"context_max_tokens"`
	ProfilesDir        string `mapstructure:"profiles_dir"`
	SystemPrompt       string `mapstructure:"system_prompt"`
}

type SandboxConfig struct {
	// Profile is "generic", "host" or empty to choose by host presence.
	Profile        string        `mapstructure:"profile"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxOutputBytes int           `mapstructure:"max_output_bytes"`
	Packages       []string      `mapstructure:"packages"`
}

type ValidatorConfig struct {
	CacheSize int `mapstructure:"cache_size"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type Config struct {
	Providers       map[string]ProviderConfig             `mapstructure:"providers"`
	DefaultProvider string                                `mapstructure:"default_provider"`
	Agent           AgentConfig                           `mapstructure:"agent"`
	Sandbox         SandboxConfig                         `mapstructure:"sandbox"`
	Validator       ValidatorConfig                       `mapstructure:"validator"`
	Server          ServerConfig                          `mapstructure:"server"`
	Storage         StorageConfig                         `mapstructure:"storage"`
	Log             LogConfig                             `mapstructure:"log"`
	Plugins         []plugins.Config                      `mapstructure:"plugins"`
	Tools           map[string]plugins.ToolServerConfig   `mapstructure:"tools"`
	Materials       map[string]plugins.MaterialProperties `mapstructure:"materials"`
}

// Load reads the config file at path, or cadforge.yaml from the working
// directory or $HOME/.cadforge when path is empty. A missing default file
// is not an error; defaults apply. A .env file in the working directory is
// loaded into the environment first.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("cadforge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.cadforge")
	}
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	for name, p := range cfg.Providers {
		p.APIKey = expandEnv(p.APIKey)
		p.BaseURL = expandEnv(p.BaseURL)
		cfg.Providers[name] = p
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	home := os.Getenv("HOME")
	v.SetDefault("default_provider", "ollama")
	v.SetDefault("providers.ollama.kind", llm.KindOpenAI)
	v.SetDefault("providers.ollama.base_url", "http://localhost:11434/v1")
	v.SetDefault("providers.ollama.models.default", "qwen2.5-coder:7b")
	v.SetDefault("agent.recent_interactions", 5)
	v.SetDefault("agent.context_max_tokens", 2000)
	v.SetDefault("agent.profiles_dir", filepath.Join(home, ".cadforge", "profiles"))
	v.SetDefault("sandbox.timeout", "10s")
	v.SetDefault("sandbox.max_output_bytes", 1<<20)
	v.SetDefault("validator.cache_size", script.DefaultCacheSize)
	v.SetDefault("server.port", 8080)
	v.SetDefault("storage.db_path", filepath.Join(home, ".cadforge", "cadforge.db"))
	v.SetDefault("log.level", "info")
}

// expandEnv replaces a whole-value ${VAR} reference.
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	return s
}

// Validate reports every configuration fault, wrapped in ErrConfig.
func (c *Config) Validate() error {
	var problems []error
	if _, ok := c.Providers[c.DefaultProvider]; !ok {
		problems = append(problems, fmt.Errorf("default provider %q is not configured", c.DefaultProvider))
	}

	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := c.Providers[name]
		switch p.ClientKind() {
		case llm.KindOpenAI:
			if p.BaseURL == "" {
				problems = append(problems, fmt.Errorf("provider %s: base_url is required", name))
			} else if !p.IsLocal() && p.APIKey == "" {
				problems = append(problems, fmt.Errorf("provider %s: api_key is required for a hosted endpoint", name))
			}
		case llm.KindGemini:
			if p.APIKey == "" {
				problems = append(problems, fmt.Errorf("provider %s: api_key is required", name))
			}
		default:
			problems = append(problems, fmt.Errorf("provider %s: unknown kind %q", name, p.Kind))
		}
	}

	if c.Sandbox.Profile != "" {
		if _, err := script.LookupProfile(c.Sandbox.Profile); err != nil {
			problems = append(problems, fmt.Errorf("sandbox: %w", err))
		}
	}
	if c.Sandbox.Timeout < 0 {
		problems = append(problems, errors.New("sandbox: timeout must not be negative"))
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrConfig, errors.Join(problems...))
}

// ClientKind is the configured kind, defaulting to an OpenAI-compatible
// endpoint.
func (p ProviderConfig) ClientKind() string {
	if p.Kind == "" {
		return llm.KindOpenAI
	}
	return strings.ToLower(p.Kind)
}

// IsLocal reports whether the provider runs on this machine (Ollama, LM
// Studio or anything on localhost).
func (p ProviderConfig) IsLocal() bool {
	u := strings.ToLower(p.BaseURL)
	for _, marker := range []string{"localhost", "127.0.0.1", "[::1]", ":11434", ":1234", "ollama"} {
		if strings.Contains(u, marker) {
			return true
		}
	}
	return false
}

// RequestTimeout is the configured timeout, or the hosted/local default.
func (p ProviderConfig) RequestTimeout() time.Duration {
	switch {
	case p.Timeout > 0:
		return p.Timeout
	case p.IsLocal():
		return codegen.LocalTimeout
	default:
		return codegen.HostedTimeout
	}
}

// Provider returns the config for a named provider, falling back to the default.
func (c *Config) Provider(name string) (ProviderConfig, error) {
	if name == "" {
		name = c.DefaultProvider
	}
	p, ok := c.Providers[name]
	if !ok {
		return ProviderConfig{}, fmt.Errorf("unknown provider: %s", name)
	}
	return p, nil
}

// Settings resolves connection details for a provider. An empty model
// selects the provider's default model.
func (c *Config) Settings(name, model string) (llm.Settings, error) {
	if name == "" {
		name = c.DefaultProvider
	}
	p, err := c.Provider(name)
	if err != nil {
		return llm.Settings{}, err
	}
	if model == "" {
		model = p.Models["default"]
	}
	if model == "" {
		return llm.Settings{}, fmt.Errorf("provider %s has no default model", name)
	}
	return llm.Settings{
		Name:    name,
		Kind:    p.ClientKind(),
		BaseURL: p.BaseURL,
		APIKey:  p.APIKey,
		Model:   model,
	}, nil
}

// ProviderNames returns the configured providers in sorted order.
func (c *Config) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SandboxPolicy merges the sandbox section into the default policy.
func (c *Config) SandboxPolicy() sandbox.Policy {
	p := sandbox.DefaultPolicy()
	if c.Sandbox.Timeout > 0 {
		p.Timeout = c.Sandbox.Timeout
	}
	if c.Sandbox.MaxOutputBytes > 0 {
		p.MaxOutputBytes = c.Sandbox.MaxOutputBytes
	}
	if len(c.Sandbox.Packages) > 0 {
		p.Packages = c.Sandbox.Packages
	}
	return p
}

// ValidationProfile returns the configured profile, or the one matching
// whether a host application is attached.
func (c *Config) ValidationProfile(hostAttached bool) script.Profile {
	if c.Sandbox.Profile == "" {
		return script.ProfileFor(hostAttached)
	}
	if p, err := script.LookupProfile(c.Sandbox.Profile); err == nil {
		return p
	}
	return script.ProfileFor(hostAttached)
}
