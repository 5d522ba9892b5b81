package plugins_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelbrown/cadforge/internal/plugins"
)

func TestFileConverter(t *testing.T) {
	c := plugins.NewFileConverter()
	ctx := context.Background()

	res := c.Execute(ctx, map[string]any{"file": "bracket.f3d", "to": "STEP"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "f3d", res.Data["from"])
	assert.Equal(t, "step", res.Data["to"])

	res = c.Execute(ctx, map[string]any{"from": "stl", "to": "step"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not supported")

	res = c.Execute(ctx, map[string]any{"to": "step"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "required")
}

func TestFileConverterParseRequest(t *testing.T) {
	c := plugins.NewFileConverter()

	params, ok := c.ParseRequest("convert part.stp to STL")
	require.True(t, ok)
	assert.Equal(t, "step", params["from"])
	assert.Equal(t, "stl", params["to"])

	_, ok = c.ParseRequest("convert this sketch to a body")
	assert.False(t, ok)

	_, ok = c.ParseRequest("export an stl of the step model")
	assert.False(t, ok)
}
