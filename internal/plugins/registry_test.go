package plugins_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelbrown/cadforge/internal/plugins"
)

type stubPlugin struct {
	name, desc string
	calls      int
}

func (s *stubPlugin) Name() string        { return s.name }
func (s *stubPlugin) Description() string { return s.desc }
func (s *stubPlugin) Execute(ctx context.Context, params map[string]any) plugins.Result {
	s.calls++
	return plugins.Result{Success: true, Output: "done", Data: params}
}

func newRegistry(t *testing.T) *plugins.Registry {
	t.Helper()
	r := plugins.NewRegistry(zaptest.NewLogger(t))
	require.NoError(t, r.RegisterBuiltins(nil))
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRegistryList(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.Register(&stubPlugin{name: "bolt_sizer", desc: "Sizes bolts"}))

	var names []string
	for _, info := range r.List() {
		names = append(names, info.Name)
	}
	assert.Equal(t, []string{"bolt_sizer", plugins.FileConverterName, plugins.MaterialDatabaseName}, names)
}

func TestRegistryDuplicate(t *testing.T) {
	r := newRegistry(t)
	err := r.Register(plugins.NewMaterialDatabase(nil))
	assert.ErrorContains(t, err, "already registered")
}

func TestRegistryMatch(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.Register(&stubPlugin{name: "bolt_sizer", desc: "Sizes bolts"}))

	tests := []struct {
		request string
		plugin  string
		ok      bool
	}{
		{"What is the density of aluminum?", plugins.MaterialDatabaseName, true},
		{"convert gear.step to stl", plugins.FileConverterName, true},
		{"run the bolt sizer for M8", "bolt_sizer", true},
		{"Create a 50mm cube", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.request, func(t *testing.T) {
			m, ok := r.Match(tt.request)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.plugin, m.Plugin)
			assert.Equal(t, tt.ok, r.HasCapability(tt.request))
		})
	}
}

func TestRegistryInvoke(t *testing.T) {
	r := newRegistry(t)
	stub := &stubPlugin{name: "bolt_sizer"}
	require.NoError(t, r.Register(stub))

	res := r.Invoke(context.Background(), "bolt_sizer", map[string]any{"size": "M8"})
	assert.True(t, res.Success)
	assert.Equal(t, "bolt_sizer", res.Plugin)
	assert.Equal(t, "M8", res.Data["size"])
	assert.Equal(t, 1, stub.calls)

	res = r.Invoke(context.Background(), "missing", nil)
	assert.False(t, res.Success)
	assert.Equal(t, "plugin 'missing' not found", res.Error)
}

func TestRegistryConfigs(t *testing.T) {
	r := newRegistry(t)
	err := r.RegisterConfigs([]plugins.Config{
		{Type: plugins.TypeExternalApp, Name: "slicer", Command: "echo"},
		{Type: plugins.TypeWebAPI, Name: "quote"},
		{Type: "ftp", Name: "legacy"},
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "url is required")
	assert.ErrorContains(t, err, `unknown type "ftp"`)
	assert.Len(t, r.List(), 3)
}

func TestRegistrySkipsDisabledServer(t *testing.T) {
	r := newRegistry(t)
	err := r.RegisterServer(context.Background(), "disabled", plugins.ToolServerConfig{
		Binary: "/nonexistent/binary",
	})
	require.NoError(t, err)
	assert.Len(t, r.List(), 2)
}
