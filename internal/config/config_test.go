package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelbrown/cadforge/internal/codegen"
	"github.com/michaelbrown/cadforge/internal/llm"
	"github.com/michaelbrown/cadforge/internal/plugins"
	"github.com/michaelbrown/cadforge/internal/script"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cadforge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	t.Setenv("TEST_GEMINI_KEY", "secret")
	path := writeConfig(t, `
default_provider: gemini
providers:
  gemini:
    kind: gemini
    api_key: ${TEST_GEMINI_KEY}
    models:
      default: gemini-2.5-flash
  lmstudio:
    base_url: http://localhost:1234/v1
    models:
      default: qwen2.5-coder
    timeout: 45s
sandbox:
  profile: host
  timeout: 3s
validator:
  cache_size: 64
plugins:
  - type: external_app
    name: slicer
    command: echo
    args: ["{file}"]
    timeout: 5s
tools:
  materials:
    binary: ./bin/material-db
    enabled: true
materials:
  titanium:
    density: 4.5
    youngs_modulus: 114
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "gemini", cfg.DefaultProvider)
	assert.Equal(t, "secret", cfg.Providers["gemini"].APIKey)
	assert.Equal(t, 45*time.Second, cfg.Providers["lmstudio"].RequestTimeout())
	assert.Equal(t, codegen.HostedTimeout, cfg.Providers["gemini"].RequestTimeout())
	assert.Equal(t, 64, cfg.Validator.CacheSize)
	assert.Equal(t, 3*time.Second, cfg.SandboxPolicy().Timeout)
	assert.Equal(t, script.ProfileHost, cfg.ValidationProfile(false).Name)

	require.Len(t, cfg.Plugins, 1)
	assert.Equal(t, plugins.TypeExternalApp, cfg.Plugins[0].Type)
	assert.Equal(t, []string{"{file}"}, cfg.Plugins[0].Args)
	assert.Equal(t, 5*time.Second, cfg.Plugins[0].Timeout)
	assert.True(t, cfg.Tools["materials"].Enabled)
	assert.Equal(t, 4.5, cfg.Materials["titanium"].Density)

	// defaults still apply
	assert.Equal(t, 5, cfg.Agent.RecentInteractions)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Contains(t, cfg.ProviderNames(), "ollama")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestDefaultsValidate(t *testing.T) {
	path := writeConfig(t, "log:\n  level: debug\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	s, err := cfg.Settings("", "")
	require.NoError(t, err)
	assert.Equal(t, llm.Settings{
		Name:    "ollama",
		Kind:    llm.KindOpenAI,
		BaseURL: "http://localhost:11434/v1",
		Model:   "qwen2.5-coder:7b",
	}, s)
	assert.Equal(t, codegen.LocalTimeout, cfg.Providers["ollama"].RequestTimeout())
	assert.Equal(t, script.ProfileGeneric, cfg.ValidationProfile(false).Name)
	assert.Equal(t, script.ProfileHost, cfg.ValidationProfile(true).Name)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want []string
	}{
		{
			name: "unknown default provider",
			cfg: Config{
				DefaultProvider: "missing",
				Providers:       map[string]ProviderConfig{"ollama": {BaseURL: "http://localhost:11434/v1"}},
			},
			want: []string{`default provider "missing" is not configured`},
		},
		{
			name: "hosted provider without key",
			cfg: Config{
				DefaultProvider: "openai",
				Providers:       map[string]ProviderConfig{"openai": {BaseURL: "https://api.openai.com/v1"}},
			},
			want: []string{"provider openai: api_key is required for a hosted endpoint"},
		},
		{
			name: "compatible provider without base url",
			cfg: Config{
				DefaultProvider: "local",
				Providers:       map[string]ProviderConfig{"local": {}},
			},
			want: []string{"provider local: base_url is required"},
		},
		{
			name: "gemini without key and bad profile",
			cfg: Config{
				DefaultProvider: "gemini",
				Providers:       map[string]ProviderConfig{"gemini": {Kind: "gemini"}},
				Sandbox:         SandboxConfig{Profile: "paranoid"},
			},
			want: []string{"provider gemini: api_key is required", "unknown validation profile: paranoid"},
		},
		{
			name: "unknown kind",
			cfg: Config{
				DefaultProvider: "x",
				Providers:       map[string]ProviderConfig{"x": {Kind: "bard"}},
			},
			want: []string{`provider x: unknown kind "bard"`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfig))
			for _, w := range tt.want {
				assert.ErrorContains(t, err, w)
			}
		})
	}
}

func TestSettingsUnknownProvider(t *testing.T) {
	cfg := &Config{DefaultProvider: "ollama", Providers: map[string]ProviderConfig{}}
	_, err := cfg.Settings("nope", "")
	assert.ErrorContains(t, err, "unknown provider: nope")
}
