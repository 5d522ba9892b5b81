package plugins

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"
)

// MaterialDatabaseName is the registered name of the material plugin.
const MaterialDatabaseName = "material_database"

// MaterialProperties are mechanical properties of one material. Density is
// in g/cm3, strengths in MPa and Young's modulus in GPa.
type MaterialProperties struct {
	Density         float64 `json:"density" mapstructure:"density"`
	TensileStrength float64 `json:"tensile_strength" mapstructure:"tensile_strength"`
	YieldStrength   float64 `json:"yield_strength" mapstructure:"yield_strength"`
	YoungsModulus   float64 `json:"youngs_modulus" mapstructure:"youngs_modulus"`
	PoissonRatio    float64 `json:"poisson_ratio" mapstructure:"poisson_ratio"`
}

// StandardMaterials is the built-in table.
func StandardMaterials() map[string]MaterialProperties {
	return map[string]MaterialProperties{
		"aluminum": {Density: 2.7, TensileStrength: 90, YieldStrength: 55, YoungsModulus: 70, PoissonRatio: 0.33},
		"steel":    {Density: 7.85, TensileStrength: 400, YieldStrength: 250, YoungsModulus: 200, PoissonRatio: 0.27},
		"plastic":  {Density: 1.2, TensileStrength: 50, YieldStrength: 30, YoungsModulus: 2.5, PoissonRatio: 0.35},
	}
}

var (
	materialTopics = []string{"propert", "density", "look up", "lookup", "strength", "modulus"}
	materialWordRe = regexp.MustCompile(`(?i)\b(?:look\s*up|properties\s+of)\s+(?:the\s+)?(?:material\s+)?"?([a-z][a-z0-9_-]*)`)
)

// MaterialDatabase looks up material properties.
type MaterialDatabase struct {
	materials map[string]MaterialProperties
}

// NewMaterialDatabase creates the plugin with the standard table plus any
// extra entries, which override standard ones of the same name.
func NewMaterialDatabase(extra map[string]MaterialProperties) *MaterialDatabase {
	m := StandardMaterials()
	for name, props := range extra {
		m[strings.ToLower(name)] = props
	}
	return &MaterialDatabase{materials: m}
}

func (d *MaterialDatabase) Name() string { return MaterialDatabaseName }

func (d *MaterialDatabase) Description() string {
	return "Look up density, strength and stiffness of engineering materials"
}

// Names returns the known materials in sorted order.
func (d *MaterialDatabase) Names() []string {
	names := make([]string, 0, len(d.materials))
	for name := range d.materials {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the stored record for a material.
func (d *MaterialDatabase) Lookup(name string) (MaterialProperties, bool) {
	props, ok := d.materials[strings.ToLower(strings.TrimSpace(name))]
	return props, ok
}

// Execute expects params["material"]. params["action"] == "list" returns
// every known material instead.
func (d *MaterialDatabase) Execute(ctx context.Context, params map[string]any) Result {
	if action, _ := params["action"].(string); action == "list" {
		names := d.Names()
		return Result{
			Plugin:  d.Name(),
			Success: true,
			Output:  "Available materials: " + strings.Join(names, ", "),
			Data:    map[string]any{"materials": names},
		}
	}

	name, _ := params["material"].(string)
	props, ok := d.Lookup(name)
	if !ok {
		return failure(d.Name(), fmt.Sprintf("Material %q not found. Available materials: %v", name, d.Names()))
	}

	name = strings.ToLower(strings.TrimSpace(name))
	return Result{
		Plugin:  d.Name(),
		Success: true,
		Output: fmt.Sprintf("%s: density %.2f g/cm3, tensile strength %g MPa, yield strength %g MPa, Young's modulus %g GPa, Poisson ratio %.2f",
			name, props.Density, props.TensileStrength, props.YieldStrength, props.YoungsModulus, props.PoissonRatio),
		Data: map[string]any{
			"material":   name,
			"properties": props,
		},
	}
}

// ParseRequest recognises property questions about a known material, then
// "look up <name>" and "properties of <name>" phrases.
func (d *MaterialDatabase) ParseRequest(request string) (map[string]any, bool) {
	lower := strings.ToLower(request)
	if slices.ContainsFunc(materialTopics, func(t string) bool { return strings.Contains(lower, t) }) {
		for _, name := range d.Names() {
			if regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`).MatchString(lower) {
				return map[string]any{"material": name}, true
			}
		}
	}
	if m := materialWordRe.FindStringSubmatch(request); m != nil {
		return map[string]any{"material": strings.ToLower(m[1])}, true
	}
	return nil, false
}
