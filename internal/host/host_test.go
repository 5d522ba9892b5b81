package host

import (
	"reflect"
	"testing"
)

func TestStandInChains(t *testing.T) {
	h := NewStandInHost()

	sketch := h.Application().
		Attr("activeProduct").
		Attr("rootComponent").
		Attr("sketches").
		Attr("add").
		Call("xy", 2.5)

	s, ok := sketch.(StandIn)
	if !ok {
		t.Fatalf("got %T, want StandIn", sketch)
	}
	want := `app.activeProduct.rootComponent.sketches.add("xy", 2.5)`
	if s.Path != want {
		t.Errorf("path = %q, want %q", s.Path, want)
	}
	if s.Value() != nil {
		t.Errorf("stand-in value = %v, want nil", s.Value())
	}
}

func TestStandInHostTrace(t *testing.T) {
	h := NewStandInHost()
	h.Namespace(NamespaceFusion).Attr("Design").Call()

	want := []string{"adsk.fusion.Design", "adsk.fusion.Design()"}
	if got := h.Trace(); !reflect.DeepEqual(got, want) {
		t.Errorf("trace = %v, want %v", got, want)
	}
}

func TestStandInWithoutTrace(t *testing.T) {
	var s StandIn
	got := s.Attr("x").Call()
	if got.(StandIn).Path != ".x()" {
		t.Errorf("path = %q", got.(StandIn).Path)
	}
}

func TestStandInHostTraceBounded(t *testing.T) {
	h := NewStandInHost()
	app := h.Application()
	for range MaxTraceEntries + 500 {
		app.Attr("x")
	}

	got := h.Trace()
	if len(got) != MaxTraceEntries+1 {
		t.Fatalf("trace has %d entries, want %d", len(got), MaxTraceEntries+1)
	}
	if last := got[len(got)-1]; last != "... (trace truncated, 500 more)" {
		t.Errorf("last entry = %q", last)
	}
}

func TestStandInHostTraceLongPath(t *testing.T) {
	h := NewStandInHost()
	obj := h.Application()
	for range 100 {
		obj = obj.Attr("component")
	}

	for _, p := range h.Trace() {
		if len(p) > maxTracePathLen+len(pathTruncatedTag) {
			t.Fatalf("recorded path of %d bytes", len(p))
		}
	}
}
