package sandbox

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"reflect"
	"runtime/debug"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"go.uber.org/zap"

	"github.com/michaelbrown/cadforge/internal/host"
	"github.com/michaelbrown/cadforge/internal/observability"
	"github.com/michaelbrown/cadforge/internal/script"
)

// EntryPoint is the function every script must define.
const EntryPoint = "Run"

// maxTraceLines bounds the stack appended to a panic summary.
const maxTraceLines = 16

// Interpreter runs scripts with yaegi. Every call builds a fresh
// interpreter with its own output sinks, so concurrent runs never share
// state.
type Interpreter struct {
	policy Policy
	logger *zap.Logger
}

// NewInterpreter creates an Interpreter with the given policy.
func NewInterpreter(policy Policy, logger *zap.Logger) *Interpreter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interpreter{policy: policy, logger: logger}
}

// Policy returns the execution policy in use.
func (s *Interpreter) Policy() Policy {
	return s.policy
}

// Run executes src when verdict is safe. With a nil host the adsk package
// is bound to stand-ins.
func (s *Interpreter) Run(ctx context.Context, src script.Source, verdict script.Verdict, h host.Host) *Outcome {
	start := time.Now()
	out := &Outcome{Validation: verdict.Clone()}

	s.logger.Info("executing script",
		zap.Bool("host_attached", h != nil),
		zap.String("script", string(src)))

	if !verdict.Safe {
		out.ErrorSummary = "validation failed"
		observability.ExecutionsTotal.WithLabelValues("refused").Inc()
		s.logger.Warn("script refused", zap.Strings("errors", verdict.Errors))
		return out
	}

	hostAttached := h != nil
	var standIns *host.StandInHost
	if !hostAttached {
		standIns = host.NewStandInHost()
		h = standIns
	}

	stdout := newCapture(s.policy.MaxOutputBytes)
	stderr := newCapture(s.policy.MaxOutputBytes)
	status := s.execute(ctx, src, h, hostAttached, stdout, stderr, out)

	out.Stdout = stdout.String()
	out.Stderr = stderr.String()
	out.Duration = time.Since(start)
	if standIns != nil {
		out.HostTrace = standIns.Trace()
	}

	observability.ExecutionsTotal.WithLabelValues(status).Inc()
	observability.ExecutionDuration.Observe(out.Duration.Seconds())

	fields := []zap.Field{
		zap.Bool("success", out.Success),
		zap.Duration("duration", out.Duration),
		zap.String("stdout", out.Stdout),
		zap.String("stderr", out.Stderr),
	}
	if out.Success {
		s.logger.Info("script finished", fields...)
	} else {
		s.logger.Warn("script failed", append(fields, zap.String("error", out.ErrorSummary))...)
	}
	return out
}

// execute fills in out and returns the metrics status label.
func (s *Interpreter) execute(ctx context.Context, src script.Source, h host.Host, hostAttached bool, stdout, stderr *capture, out *Outcome) (status string) {
	defer func() {
		if r := recover(); r != nil {
			out.Success = false
			out.ErrorSummary = formatPanic(r, debug.Stack())
			status = "fault"
		}
	}()

	decls, err := inspect(src)
	if err != nil {
		out.ErrorSummary = err.Error()
		return "fault"
	}

	if s.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.policy.Timeout)
		defer cancel()
	}

	i := interp.New(interp.Options{
		Stdin:                strings.NewReader(""),
		Stdout:               stdout,
		Stderr:               stderr,
		Args:                 []string{"script"},
		Env:                  []string{},
		SourcecodeFilesystem: emptyFS{},
	})
	if err := i.Use(stdlibSymbols(s.policy, hostAttached)); err != nil {
		out.ErrorSummary = fmt.Sprintf("loading packages: %v", err)
		return "fault"
	}
	if err := i.Use(adskSymbols(h)); err != nil {
		out.ErrorSummary = fmt.Sprintf("binding host api: %v", err)
		return "fault"
	}

	if _, err := i.EvalWithContext(ctx, string(src)); err != nil {
		return s.fault(ctx, err, out)
	}

	entry, err := i.Eval(decls.pkg + "." + EntryPoint)
	if err != nil {
		out.ErrorSummary = fmt.Sprintf("resolving %s: %v", EntryPoint, err)
		return "fault"
	}
	if err := checkEntrySignature(entry); err != nil {
		out.ErrorSummary = err.Error()
		return "fault"
	}

	// The entrypoint runs inside the interpreter so a cancelled ctx stops it
	// rather than abandoning it.
	result, err := i.EvalWithContext(ctx, decls.pkg+"."+EntryPoint+"()")
	if err != nil {
		return s.fault(ctx, err, out)
	}
	if entry.Type().NumOut() == 0 {
		result = reflect.Value{}
	}
	if err := returnedError(result); err != nil {
		return s.fault(ctx, fmt.Errorf("%s returned error: %w", EntryPoint, err), out)
	}

	out.Bindings = readBindings(i, decls)
	out.Success = true
	return "ok"
}

// fault converts an execution error into a summary and a status label.
func (s *Interpreter) fault(ctx context.Context, err error, out *Outcome) string {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			out.ErrorSummary = fmt.Sprintf("execution exceeded time budget of %s", s.policy.Timeout)
			return "timeout"
		}
		out.ErrorSummary = "execution cancelled"
		return "cancelled"
	}

	var p interp.Panic
	if errors.As(err, &p) {
		out.ErrorSummary = formatPanic(p.Value, p.Stack)
		return "fault"
	}
	out.ErrorSummary = "error: " + err.Error()
	return "fault"
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// checkEntrySignature accepts func() and func() error.
func checkEntrySignature(entry reflect.Value) error {
	if !entry.IsValid() {
		return fmt.Errorf("%s is not a function", EntryPoint)
	}
	t := entry.Type()
	ok := entry.Kind() == reflect.Func && t.NumIn() == 0 &&
		(t.NumOut() == 0 || (t.NumOut() == 1 && t.Out(0) == errorType))
	if !ok {
		return fmt.Errorf("%s has signature %s, want func() or func() error", EntryPoint, t)
	}
	return nil
}

// returnedError extracts a non-nil error from the value of the entrypoint call.
func returnedError(v reflect.Value) error {
	if !v.IsValid() || !v.CanInterface() {
		return nil
	}
	if v.Kind() == reflect.Interface && v.IsNil() {
		return nil
	}
	switch e := v.Interface().(type) {
	case nil:
		return nil
	case error:
		return e
	default:
		return fmt.Errorf("%v", e)
	}
}

func formatPanic(value any, stack []byte) string {
	var b strings.Builder
	fmt.Fprintf(&b, "panic: %v", value)
	if len(stack) > 0 {
		lines := strings.Split(strings.TrimSpace(string(stack)), "\n")
		if len(lines) > maxTraceLines {
			lines = append(lines[:maxTraceLines], "...")
		}
		b.WriteString("\n\n")
		b.WriteString(strings.Join(lines, "\n"))
	}
	return b.String()
}

// declarations are the parts of a script the sandbox needs before running it.
type declarations struct {
	pkg   string
	names []string // package-level vars and consts
}

func inspect(src script.Source) (declarations, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, script.ScriptFilename, string(src), parser.SkipObjectResolution)
	if err != nil {
		return declarations{}, fmt.Errorf("error: %v", err)
	}
	d := declarations{pkg: file.Name.Name}
	if d.pkg != "main" {
		return d, fmt.Errorf("error: script must be package main, got package %s", d.pkg)
	}

	hasEntry := false
	for _, decl := range file.Decls {
		switch decl := decl.(type) {
		case *ast.FuncDecl:
			if decl.Recv == nil && decl.Name.Name == EntryPoint {
				hasEntry = true
			}
		case *ast.GenDecl:
			if decl.Tok != token.VAR && decl.Tok != token.CONST {
				continue
			}
			for _, spec := range decl.Specs {
				for _, name := range spec.(*ast.ValueSpec).Names {
					if name.Name != "_" {
						d.names = append(d.names, name.Name)
					}
				}
			}
		}
	}
	if !hasEntry {
		return d, fmt.Errorf("error: script does not define func %s()", EntryPoint)
	}
	return d, nil
}

// readBindings reads back the final value of every package-level name.
func readBindings(i *interp.Interpreter, d declarations) map[string]any {
	bindings := make(map[string]any, len(d.names))
	for _, name := range d.names {
		v, err := i.Eval(d.pkg + "." + name)
		if err != nil || !v.IsValid() || !v.CanInterface() {
			continue
		}
		bindings[name] = v.Interface()
	}
	return bindings
}
