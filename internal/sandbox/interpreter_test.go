package sandbox

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/michaelbrown/cadforge/internal/host"
	"github.com/michaelbrown/cadforge/internal/script"
)

var safe = script.Verdict{Safe: true}

func testInterpreter(t *testing.T, policy Policy) *Interpreter {
	t.Helper()
	return NewInterpreter(policy, zaptest.NewLogger(t))
}

func TestRunPrintsOutput(t *testing.T) {
	src := script.Source(`package main

import "fmt"

func Run() {
	fmt.Println("Cube created")
}
`)
	out := testInterpreter(t, DefaultPolicy()).Run(context.Background(), src, safe, nil)

	if !out.Success {
		t.Fatalf("expected success, got error %q", out.ErrorSummary)
	}
	if !strings.Contains(out.Stdout, "Cube created") {
		t.Errorf("stdout = %q, want it to contain %q", out.Stdout, "Cube created")
	}
	if out.ErrorSummary != "" {
		t.Errorf("error summary = %q, want empty", out.ErrorSummary)
	}
}

func TestRunPanicIsCaptured(t *testing.T) {
	src := script.Source(`package main

import "fmt"

func Run() {
	fmt.Println("before the fault")
	panic("boom")
}
`)
	out := testInterpreter(t, DefaultPolicy()).Run(context.Background(), src, safe, nil)

	if out.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(out.ErrorSummary, "boom") {
		t.Errorf("error summary = %q, want it to contain boom", out.ErrorSummary)
	}
	if !strings.Contains(out.Stdout, "before the fault") {
		t.Errorf("output captured before the fault was lost: %q", out.Stdout)
	}
}

func TestRunReturnedError(t *testing.T) {
	src := script.Source(`package main

import "errors"

func Run() error {
	return errors.New("boom")
}
`)
	out := testInterpreter(t, DefaultPolicy()).Run(context.Background(), src, safe, nil)

	if out.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(out.ErrorSummary, "boom") {
		t.Errorf("error summary = %q, want it to contain boom", out.ErrorSummary)
	}
}

func TestRunRefusesUnsafeVerdict(t *testing.T) {
	src := script.Source(`package main

import "fmt"

func Run() { fmt.Println("should never print") }
`)
	verdict := script.Verdict{Safe: false, Errors: []string{"Dangerous import found: os"}}
	out := testInterpreter(t, DefaultPolicy()).Run(context.Background(), src, verdict, nil)

	if out.Success {
		t.Fatal("unsafe script must not succeed")
	}
	if out.Stdout != "" {
		t.Errorf("stdout = %q, want empty", out.Stdout)
	}
	if out.ErrorSummary != "validation failed" {
		t.Errorf("error summary = %q, want %q", out.ErrorSummary, "validation failed")
	}
	if len(out.Validation.Errors) != 1 || out.Validation.Errors[0] != verdict.Errors[0] {
		t.Errorf("verdict not embedded: %+v", out.Validation)
	}
}

func TestRunLeavesProcessStreamsAlone(t *testing.T) {
	stdout, stderr := os.Stdout, os.Stderr

	src := script.Source(`package main

import "fmt"

func Run() {
	fmt.Println("noise")
	panic("boom")
}
`)
	testInterpreter(t, DefaultPolicy()).Run(context.Background(), src, safe, nil)

	if os.Stdout != stdout {
		t.Error("os.Stdout was replaced")
	}
	if os.Stderr != stderr {
		t.Error("os.Stderr was replaced")
	}
}

func TestRunTimeout(t *testing.T) {
	policy := DefaultPolicy()
	policy.Timeout = 200 * time.Millisecond

	src := script.Source(`package main

import "time"

func Run() {
	for {
		time.Sleep(10 * time.Millisecond)
	}
}
`)
	out := testInterpreter(t, policy).Run(context.Background(), src, safe, nil)

	if out.Success {
		t.Fatal("expected timeout failure")
	}
	if !strings.Contains(out.ErrorSummary, "time budget") {
		t.Errorf("error summary = %q, want a time budget message", out.ErrorSummary)
	}
}

// countingHost counts every attribute lookup made by a script.
type countingHost struct {
	calls atomic.Int64
}

type countingObject struct{ h *countingHost }

func (o countingObject) Attr(string) host.Object {
	o.h.calls.Add(1)
	return o
}

func (o countingObject) Call(...any) host.Object { return o }

func (o countingObject) Value() any { return nil }

func (h *countingHost) Application() host.Object { return countingObject{h: h} }

func (h *countingHost) Namespace(string) host.Object { return countingObject{h: h} }

func TestRunTimeoutStopsScript(t *testing.T) {
	policy := DefaultPolicy()
	policy.Timeout = 200 * time.Millisecond

	h := &countingHost{}
	src := script.Source(`package main

import "adsk"

func Run() {
	for {
		adsk.App().Attr("x")
	}
}
`)
	out := testInterpreter(t, policy).Run(context.Background(), src, safe, h)

	if out.Success {
		t.Fatal("expected timeout failure")
	}
	if !strings.Contains(out.ErrorSummary, "time budget") {
		t.Errorf("error summary = %q, want a time budget message", out.ErrorSummary)
	}

	before := h.calls.Load()
	if before == 0 {
		t.Fatal("script never reached the host")
	}
	time.Sleep(300 * time.Millisecond)
	if after := h.calls.Load(); after-before > 2 {
		t.Errorf("script kept touching the host after the timeout: %d calls at return, %d later", before, after)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := script.Source(`package main

import "time"

func Run() { time.Sleep(time.Second) }
`)
	out := testInterpreter(t, DefaultPolicy()).Run(ctx, src, safe, nil)

	if out.Success {
		t.Fatal("expected cancelled run to fail")
	}
	if out.ErrorSummary != "execution cancelled" {
		t.Errorf("error summary = %q", out.ErrorSummary)
	}
}

func TestRunStandInsWithoutHost(t *testing.T) {
	src := script.Source(`package main

import (
	"fmt"

	"adsk"
)

func Run() {
	root := adsk.App().Attr("activeProduct").Attr("rootComponent")
	sketch := root.Attr("sketches").Attr("add").Call(root.Attr("xYConstructionPlane"))
	fmt.Println(sketch.Value() == nil)
}
`)
	out := testInterpreter(t, DefaultPolicy()).Run(context.Background(), src, safe, nil)

	if !out.Success {
		t.Fatalf("expected success, got %q", out.ErrorSummary)
	}
	if strings.TrimSpace(out.Stdout) != "true" {
		t.Errorf("stdout = %q, want true", out.Stdout)
	}
	if len(out.HostTrace) == 0 {
		t.Error("expected stand-in trace")
	}
}

// recordingHost is a minimal host whose application reports a document name.
type recordingHost struct {
	mu    sync.Mutex
	attrs []string
}

type recordingObject struct {
	h    *recordingHost
	name string
}

func (o recordingObject) Attr(name string) host.Object {
	o.h.mu.Lock()
	o.h.attrs = append(o.h.attrs, name)
	o.h.mu.Unlock()
	return recordingObject{h: o.h, name: name}
}

func (o recordingObject) Call(args ...any) host.Object { return o }

func (o recordingObject) Value() any { return "value of " + o.name }

func (h *recordingHost) Application() host.Object { return recordingObject{h: h, name: "app"} }

func (h *recordingHost) Namespace(name string) host.Object {
	return recordingObject{h: h, name: name}
}

func TestRunWithHostHandle(t *testing.T) {
	h := &recordingHost{}
	src := script.Source(`package main

import (
	"fmt"

	"adsk"
)

func Run() {
	doc := adsk.App().Attr("activeDocument")
	fmt.Println(doc.Value())
}
`)
	out := testInterpreter(t, DefaultPolicy()).Run(context.Background(), src, safe, h)

	if !out.Success {
		t.Fatalf("expected success, got %q", out.ErrorSummary)
	}
	if strings.TrimSpace(out.Stdout) != "value of activeDocument" {
		t.Errorf("stdout = %q", out.Stdout)
	}
	if len(h.attrs) != 1 || h.attrs[0] != "activeDocument" {
		t.Errorf("host saw attrs %v", h.attrs)
	}
	if out.HostTrace != nil {
		t.Errorf("host trace should only be set for stand-ins, got %v", out.HostTrace)
	}
}

func TestRunWithHostCannotSpawnProcesses(t *testing.T) {
	src := script.Source(`package main

import . "os"

func Run() error {
	_, err := StartProcess("/bin/sh", []string{"sh", "-c", "true"}, &ProcAttr{})
	return err
}
`)
	out := testInterpreter(t, DefaultPolicy()).Run(context.Background(), src, safe, &recordingHost{})

	if out.Success {
		t.Fatal("os.StartProcess must not be reachable from a script")
	}
}

func TestRunBindings(t *testing.T) {
	src := script.Source(`package main

var Side = 2.5

var Count int

func Run() {
	Count = 3
}
`)
	out := testInterpreter(t, DefaultPolicy()).Run(context.Background(), src, safe, nil)

	if !out.Success {
		t.Fatalf("expected success, got %q", out.ErrorSummary)
	}
	if out.Bindings["Side"] != 2.5 {
		t.Errorf("Side = %v, want 2.5", out.Bindings["Side"])
	}
	if out.Bindings["Count"] != 3 {
		t.Errorf("Count = %v, want 3", out.Bindings["Count"])
	}
	if got := out.BindingSummary(); len(got) != 2 || got[0] != "Count = 3" {
		t.Errorf("binding summary = %v", got)
	}
}

func TestRunDeniedPackagesAreAbsent(t *testing.T) {
	// A verdict forged as safe still cannot reach packages outside the policy.
	src := script.Source(`package main

import "os"

func Run() { os.Exit(3) }
`)
	out := testInterpreter(t, DefaultPolicy()).Run(context.Background(), src, safe, nil)

	if out.Success {
		t.Fatal("expected failure importing a package outside the policy")
	}
	if out.ErrorSummary == "" {
		t.Error("expected an error summary")
	}
}

func TestRunMissingEntryPoint(t *testing.T) {
	src := script.Source("package main\n\nvar X = 1\n")
	out := testInterpreter(t, DefaultPolicy()).Run(context.Background(), src, safe, nil)

	if out.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(out.ErrorSummary, "does not define func Run") {
		t.Errorf("error summary = %q", out.ErrorSummary)
	}
}

func TestRunConcurrentCaptureIsIsolated(t *testing.T) {
	s := testInterpreter(t, DefaultPolicy())

	const n = 8
	outs := make([]*Outcome, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			src := script.Source(fmt.Sprintf(`package main

import "fmt"

func Run() {
	for i := 0; i < 20; i++ {
		fmt.Println("run-%d")
	}
}
`, i))
			outs[i] = s.Run(context.Background(), src, safe, nil)
		}()
	}
	wg.Wait()

	for i, out := range outs {
		if !out.Success {
			t.Fatalf("run %d failed: %s", i, out.ErrorSummary)
		}
		want := fmt.Sprintf("run-%d", i)
		for _, line := range strings.Split(strings.TrimSpace(out.Stdout), "\n") {
			if line != want {
				t.Fatalf("run %d captured foreign output %q", i, line)
			}
		}
	}
}

func TestRunOutputTruncated(t *testing.T) {
	policy := DefaultPolicy()
	policy.MaxOutputBytes = 16

	src := script.Source(`package main

import (
	"fmt"
	"strings"
)

func Run() { fmt.Println(strings.Repeat("x", 100)) }
`)
	out := testInterpreter(t, policy).Run(context.Background(), src, safe, nil)

	if !out.Success {
		t.Fatalf("expected success, got %q", out.ErrorSummary)
	}
	if !strings.HasSuffix(out.Stdout, "(output truncated)") {
		t.Errorf("stdout = %q, want truncation marker", out.Stdout)
	}
}
