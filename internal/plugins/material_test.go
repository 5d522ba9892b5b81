package plugins_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelbrown/cadforge/internal/plugins"
)

func TestMaterialLookup(t *testing.T) {
	db := plugins.NewMaterialDatabase(nil)

	res := db.Execute(context.Background(), map[string]any{"material": "Aluminum"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, plugins.MaterialDatabaseName, res.Plugin)
	assert.Equal(t, "aluminum", res.Data["material"])
	assert.Equal(t, plugins.MaterialProperties{
		Density:         2.7,
		TensileStrength: 90,
		YieldStrength:   55,
		YoungsModulus:   70,
		PoissonRatio:    0.33,
	}, res.Data["properties"])
	assert.Contains(t, res.Output, "density 2.70 g/cm3")
}

func TestMaterialNotFound(t *testing.T) {
	db := plugins.NewMaterialDatabase(nil)

	res := db.Execute(context.Background(), map[string]any{"material": "unobtainium"})
	assert.False(t, res.Success)
	assert.Equal(t, `Material "unobtainium" not found. Available materials: [aluminum plastic steel]`, res.Error)
}

func TestMaterialList(t *testing.T) {
	db := plugins.NewMaterialDatabase(map[string]plugins.MaterialProperties{
		"Titanium": {Density: 4.5},
	})

	res := db.Execute(context.Background(), map[string]any{"action": "list"})
	require.True(t, res.Success)
	assert.Equal(t, []string{"aluminum", "plastic", "steel", "titanium"}, res.Data["materials"])

	props, ok := db.Lookup("titanium")
	require.True(t, ok)
	assert.Equal(t, 4.5, props.Density)
}

func TestMaterialParseRequest(t *testing.T) {
	db := plugins.NewMaterialDatabase(nil)

	tests := []struct {
		request string
		want    string
		ok      bool
	}{
		{"What is the density of steel?", "steel", true},
		{"Show the properties of plastic", "plastic", true},
		{"look up copper", "copper", true},
		{"Look up the material brass", "brass", true},
		{"Create a 50mm cube", "", false},
		{"Make a steel bracket", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.request, func(t *testing.T) {
			params, ok := db.ParseRequest(tt.request)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, params["material"])
			}
		})
	}
}
