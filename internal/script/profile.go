package script

import (
	"fmt"
	"slices"
	"strings"
)

const (
	ProfileGeneric = "generic"
	ProfileHost    = "host"
)

// Profile is the denylist configuration a Validator is built from.
//
// Import entries are package paths; an entry ending in "/..." denies the
// package and everything below it. Call entries are qualified names of the
// form "<import path>.<Func>"; "<import path>.*" denies every function of
// the package. Exempt lists import paths that are never reported.
type Profile struct {
	Name    string   `yaml:"name" mapstructure:"name"`
	Imports []string `yaml:"imports" mapstructure:"imports"`
	Calls   []string `yaml:"calls" mapstructure:"calls"`
	Exempt  []string `yaml:"exempt" mapstructure:"exempt"`
}

// GenericProfile is used when no trusted host application is present.
// Process, network, filesystem and reflection escapes are all denied.
func GenericProfile() Profile {
	return Profile{
		Name: ProfileGeneric,
		Imports: []string{
			"os",
			"os/exec",
			"os/signal",
			"os/user",
			"io/ioutil",
			"io/fs",
			"path/filepath",
			"embed",
			"syscall",
			"unsafe",
			"reflect",
			"plugin",
			"runtime/...",
			"net/...",
			"log/syslog",
			"debug/...",
			"go/build",
			"golang.org/x/sys/...",
			"github.com/traefik/yaegi/...",
		},
		Calls: []string{
			"os.Open",
			"os.OpenFile",
			"os.Create",
			"os.ReadFile",
			"os.WriteFile",
			"os.Remove",
			"os.RemoveAll",
			"os.Rename",
			"os.Truncate",
			"os.Chmod",
			"os.Chown",
			"os.Mkdir",
			"os.MkdirAll",
			"os.Exit",
			"os.Setenv",
			"os.StartProcess",
			"io/ioutil.WriteFile",
			"io/ioutil.ReadFile",
			"os/exec.*",
			"syscall.*",
			"unsafe.*",
			"plugin.Open",
			"github.com/traefik/yaegi/interp.*",
		},
	}
}

// HostProfile is used inside the trusted CAD host. Filesystem access and
// the adsk API are allowed; process, network, interpreter and dynamic
// loading stay denied.
func HostProfile() Profile {
	return Profile{
		Name: ProfileHost,
		Imports: []string{
			"os/exec",
			"syscall",
			"unsafe",
			"reflect",
			"plugin",
			"runtime/...",
			"net/...",
			"golang.org/x/sys/...",
			"github.com/traefik/yaegi/...",
		},
		Calls: []string{
			"os.StartProcess",
			"os/exec.*",
			"syscall.*",
			"unsafe.*",
			"plugin.Open",
			"github.com/traefik/yaegi/interp.*",
		},
		Exempt: []string{"adsk"},
	}
}

// LookupProfile returns a built-in profile by name.
func LookupProfile(name string) (Profile, error) {
	switch name {
	case "", ProfileGeneric:
		return GenericProfile(), nil
	case ProfileHost:
		return HostProfile(), nil
	default:
		return Profile{}, fmt.Errorf("unknown validation profile: %s", name)
	}
}

// ProfileFor picks the host profile when a host application is attached.
func ProfileFor(hostAttached bool) Profile {
	if hostAttached {
		return HostProfile()
	}
	return GenericProfile()
}

// deniesImport reports whether path matches an import entry.
func (p Profile) deniesImport(path string) bool {
	if p.exempt(path) {
		return false
	}
	for _, entry := range p.Imports {
		if matchPattern(entry, path) {
			return true
		}
	}
	return false
}

// deniesCall reports whether a qualified call name matches a call entry.
func (p Profile) deniesCall(name string) bool {
	pkg, fn := splitQualified(name)
	if p.exempt(pkg) {
		return false
	}
	for _, entry := range p.Calls {
		if entry == name {
			return true
		}
		if base, ok := strings.CutSuffix(entry, ".*"); ok && fn != "" && base == pkg {
			return true
		}
	}
	return false
}

// hasDeniedCalls reports whether any call entry names a function of path.
func (p Profile) hasDeniedCalls(path string) bool {
	if p.exempt(path) {
		return false
	}
	for _, entry := range p.Calls {
		if pkg, _ := splitQualified(entry); pkg == path {
			return true
		}
	}
	return false
}

func (p Profile) exempt(path string) bool {
	return slices.ContainsFunc(p.Exempt, func(e string) bool {
		return matchPattern(e, path) || matchPattern(e+"/...", path)
	})
}

// matchPattern implements the "/..." suffix of Go package patterns.
func matchPattern(pattern, path string) bool {
	if base, ok := strings.CutSuffix(pattern, "/..."); ok {
		return path == base || strings.HasPrefix(path, base+"/")
	}
	return pattern == path
}

// splitQualified splits "os/exec.Command" into "os/exec" and "Command".
func splitQualified(name string) (pkg, fn string) {
	slash := strings.LastIndex(name, "/")
	dot := strings.Index(name[slash+1:], ".")
	if dot < 0 {
		return name, ""
	}
	dot += slash + 1
	return name[:dot], name[dot+1:]
}
