package plugins

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// FileConverterName is the registered name of the converter plugin.
const FileConverterName = "file_converter"

// formatAliases maps file extensions to canonical format names.
var formatAliases = map[string]string{
	"step": "step",
	"stp":  "step",
	"iges": "iges",
	"igs":  "iges",
	"stl":  "stl",
	"obj":  "obj",
	"f3d":  "f3d",
	"dxf":  "dxf",
	"sat":  "sat",
	"smt":  "smt",
}

// conversions lists the targets each source format can be exported to.
var conversions = map[string][]string{
	"f3d":  {"step", "iges", "stl", "obj", "sat", "smt", "dxf"},
	"step": {"f3d", "iges", "stl", "obj"},
	"iges": {"f3d", "step", "stl", "obj"},
	"sat":  {"f3d", "step", "iges", "stl"},
	"smt":  {"f3d", "step", "iges", "stl"},
	"dxf":  {"f3d"},
	"stl":  {"obj"},
	"obj":  {"stl"},
}

var convertRe = regexp.MustCompile(`(?i)\bconvert\b`)

// FileConverter reports whether a CAD format conversion is supported and
// how to perform it through the host's export manager.
type FileConverter struct{}

func NewFileConverter() *FileConverter { return &FileConverter{} }

func (c *FileConverter) Name() string { return FileConverterName }

func (c *FileConverter) Description() string {
	return "Check and plan CAD file format conversions (STEP, IGES, STL, OBJ, F3D, DXF, SAT, SMT)"
}

// Execute expects params["from"] and params["to"] as format names or file
// paths, and optionally params["file"].
func (c *FileConverter) Execute(ctx context.Context, params map[string]any) Result {
	from := canonicalFormat(stringParam(params, "from"))
	to := canonicalFormat(stringParam(params, "to"))
	if from == "" {
		from = canonicalFormat(stringParam(params, "file"))
	}
	if from == "" || to == "" {
		return failure(c.Name(), fmt.Sprintf("both source and target formats are required; supported formats: %v", supportedFormats()))
	}

	targets := conversions[from]
	supported := false
	for _, t := range targets {
		if t == to {
			supported = true
		}
	}
	if !supported {
		return Result{
			Plugin: c.Name(),
			Error:  fmt.Sprintf("conversion from %s to %s is not supported; %s converts to %v", upper(from), upper(to), upper(from), targets),
			Data:   map[string]any{"from": from, "to": to, "supported": false},
		}
	}

	return Result{
		Plugin:  c.Name(),
		Success: true,
		Output:  fmt.Sprintf("Conversion from %s to %s is supported: open the file in the design workspace and export it with the %s export options.", upper(from), upper(to), upper(to)),
		Data:    map[string]any{"from": from, "to": to, "supported": true},
	}
}

// ParseRequest recognises "convert <a> to <b>" requests that name two
// formats or files.
func (c *FileConverter) ParseRequest(request string) (map[string]any, bool) {
	if !convertRe.MatchString(request) {
		return nil, false
	}
	var found []string
	for _, word := range strings.FieldsFunc(request, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t' || r == '"' || r == '\''
	}) {
		if f := canonicalFormat(word); f != "" {
			found = append(found, f)
		}
	}
	if len(found) < 2 {
		return nil, false
	}
	return map[string]any{"from": found[0], "to": found[len(found)-1]}, true
}

// canonicalFormat accepts "STEP", ".stp" or "part.stp".
func canonicalFormat(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if ext := filepath.Ext(s); ext != "" {
		s = ext
	}
	s = strings.TrimPrefix(s, ".")
	s = strings.TrimRight(s, ".?!")
	return formatAliases[s]
}

func supportedFormats() []string {
	var out []string
	for f := range conversions {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func stringParam(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}

func upper(s string) string { return strings.ToUpper(s) }
