package sandbox

import (
	"io/fs"
	"maps"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/michaelbrown/cadforge/internal/host"
)

// withheldSymbols are removed from otherwise allowed packages. Process
// control stays out of reach even when a host lets scripts use os.
var withheldSymbols = map[string][]string{
	"os/os": {"StartProcess", "FindProcess", "Exit"},
}

// stdlibSymbols filters yaegi's stdlib exports down to the policy's
// packages. Keys have the form "<path>/<name>", e.g. "math/rand/rand".
func stdlibSymbols(p Policy, hostAttached bool) interp.Exports {
	out := make(interp.Exports)
	for key, symbols := range stdlib.Symbols {
		path := key
		if i := strings.LastIndex(key, "/"); i >= 0 {
			path = key[:i]
		}
		if !p.IsPackageAllowed(path, hostAttached) {
			continue
		}
		if names, ok := withheldSymbols[key]; ok {
			symbols = maps.Clone(symbols)
			for _, name := range names {
				delete(symbols, name)
			}
		}
		out[key] = symbols
	}
	return out
}

// adskSymbols binds the host API under the import path "adsk".
func adskSymbols(h host.Host) interp.Exports {
	return interp.Exports{
		"adsk/adsk": {
			"App":    reflect.ValueOf(func() host.Object { return h.Application() }),
			"Core":   reflect.ValueOf(func() host.Object { return h.Namespace(host.NamespaceCore) }),
			"Fusion": reflect.ValueOf(func() host.Object { return h.Namespace(host.NamespaceFusion) }),
			"Cam":    reflect.ValueOf(func() host.Object { return h.Namespace(host.NamespaceCam) }),
			"Object": reflect.ValueOf((*host.Object)(nil)),
		},
	}
}

// emptyFS keeps the interpreter from loading package sources off disk.
type emptyFS struct{}

func (emptyFS) Open(name string) (fs.File, error) {
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}
