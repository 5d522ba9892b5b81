// Package host describes the CAD application surface that scripts reach
// through the adsk package, and the stand-ins used when no application is
// attached.
package host

import (
	"fmt"
	"strings"
	"sync"
)

// Namespaces bound under adsk besides App.
const (
	NamespaceCore   = "core"
	NamespaceFusion = "fusion"
	NamespaceCam    = "cam"
)

// Object is one value of the host API as seen by a script.
type Object interface {
	// Attr looks up a property or method by name.
	Attr(name string) Object
	// Call invokes the object.
	Call(args ...any) Object
	// Value returns the underlying Go value, or nil for stand-ins.
	Value() any
}

// Host is the embedding application.
type Host interface {
	Application() Object
	Namespace(name string) Object
}

// StandIn answers every attribute lookup and call with another StandIn.
// Path records how it was reached, e.g. "app.activeProduct.rootComponent()".
type StandIn struct {
	Path  string
	trace *Trace
}

func (s StandIn) Attr(name string) Object {
	return s.child(s.Path + "." + name)
}

func (s StandIn) Call(args ...any) Object {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = formatArg(a)
	}
	return s.child(s.Path + "(" + strings.Join(parts, ", ") + ")")
}

func (s StandIn) Value() any { return nil }

func (s StandIn) String() string { return "<stand-in " + s.Path + ">" }

func (s StandIn) child(path string) StandIn {
	s.trace.record(path)
	return StandIn{Path: path, trace: s.trace}
}

func formatArg(a any) string {
	switch v := a.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case StandIn:
		return v.Path
	default:
		return fmt.Sprint(v)
	}
}

// Trace collects the paths touched on a StandInHost.
type Trace struct {
	mu      sync.Mutex
	paths   []string
	dropped int
}

// Bounds on what a Trace retains. A script looping over stand-ins would
// otherwise grow it for the whole run.
const (
	MaxTraceEntries  = 1000
	maxTracePathLen  = 256
	traceTruncated   = "... (trace truncated, %d more)"
	pathTruncatedTag = "..."
)

func (t *Trace) record(path string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.paths) >= MaxTraceEntries {
		t.dropped++
		return
	}
	if len(path) > maxTracePathLen {
		path = path[:maxTracePathLen] + pathTruncatedTag
	}
	t.paths = append(t.paths, path)
}

// Paths returns the recorded paths in order, followed by a marker when
// entries were dropped.
func (t *Trace) Paths() []string {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.paths), len(t.paths)+1)
	copy(out, t.paths)
	if t.dropped > 0 {
		out = append(out, fmt.Sprintf(traceTruncated, t.dropped))
	}
	return out
}

// StandInHost is the Host used in standalone mode.
type StandInHost struct {
	trace Trace
}

// NewStandInHost creates a host whose every object is a StandIn.
func NewStandInHost() *StandInHost {
	return &StandInHost{}
}

func (h *StandInHost) Application() Object {
	return StandIn{Path: "app", trace: &h.trace}
}

func (h *StandInHost) Namespace(name string) Object {
	return StandIn{Path: "adsk." + name, trace: &h.trace}
}

// Trace returns the paths scripts touched on this host.
func (h *StandInHost) Trace() []string {
	return h.trace.Paths()
}
