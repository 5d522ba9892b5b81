package script

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"path"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/michaelbrown/cadforge/internal/observability"
)

// ScriptFilename is the name parse positions are reported against.
const ScriptFilename = "script.go"

var (
	// Case-insensitive so calls such as os.Open count.
	fileTokenRe = regexp.MustCompile(`(?i)\b(open|file)\b`)
	quotedRe    = regexp.MustCompile("['\"].*['\"]|`[^`]*`")
)

// Validator checks scripts against a single Profile. It holds no mutable
// state and is safe for concurrent use.
type Validator struct {
	profile Profile
	logger  *zap.Logger
}

// NewValidator creates a Validator for the given profile.
func NewValidator(p Profile, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{profile: p, logger: logger}
}

// Profile returns the denylist configuration in use.
func (v *Validator) Profile() Profile {
	return v.profile
}

// Validate parses src and reports every denied import and call. It never
// returns an error: malformed input becomes an unsafe verdict.
func (v *Validator) Validate(src Source) Verdict {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, ScriptFilename, string(src), parser.SkipObjectResolution)
	if err != nil {
		observability.ValidationsTotal.WithLabelValues(v.profile.Name, "syntax").Inc()
		return Verdict{
			Safe:   false,
			Errors: []string{"Syntax error: " + syntaxMessage(err)},
		}
	}

	var errs []string
	for _, imp := range file.Imports {
		p, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}
		if v.profile.deniesImport(p) || (unqualifiedImport(imp) && v.profile.hasDeniedCalls(p)) {
			errs = append(errs, fmt.Sprintf("Dangerous import found: %s", p))
		}
	}

	// Every package-qualified reference is checked, called or not, so a
	// denied function cannot be taken as a value and invoked later.
	aliases := importAliases(file)
	ast.Inspect(file, func(n ast.Node) bool {
		sel, ok := n.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		if _, ok := sel.X.(*ast.Ident); !ok {
			return true
		}
		name, ok := ResolveDottedName(sel)
		if !ok {
			return true
		}
		if qualified, ok := qualify(name, aliases); ok && v.profile.deniesCall(qualified) {
			errs = append(errs, fmt.Sprintf("Dangerous function call: %s", qualified))
		}
		return true
	})

	verdict := Verdict{
		Safe:     len(errs) == 0,
		Errors:   errs,
		Warnings: lineWarnings(src),
	}

	result := "safe"
	if !verdict.Safe {
		result = "unsafe"
		v.logger.Debug("script rejected",
			zap.String("profile", v.profile.Name),
			zap.Strings("errors", errs))
	}
	observability.ValidationsTotal.WithLabelValues(v.profile.Name, result).Inc()
	return verdict
}

// ResolveDottedName walks a selector chain such as a.b.c back to its root
// identifier and returns "a.b.c". It reports false for expressions whose
// root is not an identifier, e.g. f().g.
func ResolveDottedName(expr ast.Expr) (string, bool) {
	switch e := expr.(type) {
	case *ast.Ident:
		return e.Name, true
	case *ast.SelectorExpr:
		base, ok := ResolveDottedName(e.X)
		if !ok {
			return "", false
		}
		return base + "." + e.Sel.Name, true
	case *ast.ParenExpr:
		return ResolveDottedName(e.X)
	case *ast.IndexExpr:
		return ResolveDottedName(e.X)
	case *ast.IndexListExpr:
		return ResolveDottedName(e.X)
	default:
		return "", false
	}
}

// importAliases maps each local package name in file to its import path.
func importAliases(file *ast.File) map[string]string {
	aliases := make(map[string]string, len(file.Imports))
	for _, imp := range file.Imports {
		p, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}
		name := path.Base(p)
		if imp.Name != nil {
			name = imp.Name.Name
		}
		if name == "_" || name == "." {
			continue
		}
		aliases[name] = p
	}
	return aliases
}

// unqualifiedImport reports dot and blank imports, whose members are never
// reached through a package name.
func unqualifiedImport(imp *ast.ImportSpec) bool {
	return imp.Name != nil && (imp.Name.Name == "." || imp.Name.Name == "_")
}

// qualify rewrites the root of a dotted name to its import path. Names
// whose root is not an imported package are reported as not qualified.
func qualify(name string, aliases map[string]string) (string, bool) {
	root, rest, found := strings.Cut(name, ".")
	if !found {
		return "", false
	}
	p, ok := aliases[root]
	if !ok {
		return "", false
	}
	return p + "." + rest, true
}

// lineWarnings flags lines that mention open/file next to a string literal.
func lineWarnings(src Source) []string {
	var warnings []string
	for i, line := range strings.Split(string(src), "\n") {
		if fileTokenRe.MatchString(line) && quotedRe.MatchString(line) {
			warnings = append(warnings,
				fmt.Sprintf("Potential file operation on line %d: %s", i+1, strings.TrimSpace(line)))
		}
	}
	return warnings
}

func syntaxMessage(err error) string {
	if list, ok := err.(scanner.ErrorList); ok && len(list) > 0 {
		return list[0].Error()
	}
	return err.Error()
}
