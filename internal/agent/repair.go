package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/michaelbrown/cadforge/internal/codegen"
	"github.com/michaelbrown/cadforge/internal/host"
	"github.com/michaelbrown/cadforge/internal/observability"
	"github.com/michaelbrown/cadforge/internal/sandbox"
	"github.com/michaelbrown/cadforge/internal/script"
)

// Attempt phases.
const (
	PhaseGenerate = "generate"
	PhaseRepair   = "repair"
)

// ScriptGenerator produces scripts and corrective rewrites.
type ScriptGenerator interface {
	Generate(ctx context.Context, request string, recent []codegen.Interaction) (script.Source, error)
	Repair(ctx context.Context, src script.Source, failure string) (script.Source, error)
}

// Attempt is one script and the outcome of validating and running it.
type Attempt struct {
	Phase   string           `json:"phase"`
	Script  script.Source    `json:"script"`
	Outcome *sandbox.Outcome `json:"outcome"`
}

// Attempts holds the initial attempt and, when it failed, the repair.
type Attempts struct {
	Initial Attempt  `json:"initial"`
	Repair  *Attempt `json:"repair,omitempty"`
}

// Final is the attempt whose outcome is reported to the caller.
func (a *Attempts) Final() Attempt {
	if a.Repair != nil {
		return *a.Repair
	}
	return a.Initial
}

// List returns the attempts in the order they ran.
func (a *Attempts) List() []Attempt {
	if a.Repair != nil {
		return []Attempt{a.Initial, *a.Repair}
	}
	return []Attempt{a.Initial}
}

// RepairLoop composes generation, validation and execution with a single
// corrective rewrite.
type RepairLoop struct {
	gen     ScriptGenerator
	checker script.Checker
	box     sandbox.Sandbox
	logger  *zap.Logger
}

func NewRepairLoop(gen ScriptGenerator, checker script.Checker, box sandbox.Sandbox, logger *zap.Logger) *RepairLoop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RepairLoop{gen: gen, checker: checker, box: box, logger: logger}
}

// AttemptWithRepair generates a script for request and runs it. If the
// outcome failed, for any reason, the backend is asked once to repair it
// and the rewrite is run; that second outcome is final whatever it is.
//
// A generation error before anything ran returns nil attempts. A
// generation error during repair returns the initial attempt as final
// along with the error.
func (l *RepairLoop) AttemptWithRepair(ctx context.Context, request string, recent []codegen.Interaction, h host.Host) (*Attempts, error) {
	src, err := l.gen.Generate(ctx, request, recent)
	if err != nil {
		return nil, err
	}

	attempts := &Attempts{Initial: l.run(ctx, PhaseGenerate, src, h)}
	if attempts.Initial.Outcome.Success {
		return attempts, nil
	}

	failure := FailureText(attempts.Initial.Outcome)
	l.logger.Info("repairing script", zap.String("failure", failure))

	fixed, err := l.gen.Repair(ctx, src, failure)
	if err != nil {
		observability.RepairsTotal.WithLabelValues("unavailable").Inc()
		return attempts, err
	}

	repair := l.run(ctx, PhaseRepair, fixed, h)
	attempts.Repair = &repair
	observability.RepairsTotal.WithLabelValues(observability.Status(repair.Outcome.Success)).Inc()
	return attempts, nil
}

func (l *RepairLoop) run(ctx context.Context, phase string, src script.Source, h host.Host) Attempt {
	verdict := l.checker.Validate(src)
	return Attempt{
		Phase:   phase,
		Script:  src,
		Outcome: l.box.Run(ctx, src, verdict, h),
	}
}

// FailureText is the error description sent with a repair request. For
// refused scripts it lists the validator's errors.
func FailureText(o *sandbox.Outcome) string {
	if len(o.Validation.Errors) > 0 && !o.Validation.Safe {
		return fmt.Sprintf("%s:\n%s", o.ErrorSummary, strings.Join(o.Validation.Errors, "\n"))
	}
	if o.Stderr != "" {
		return o.ErrorSummary + "\nstderr:\n" + o.Stderr
	}
	return o.ErrorSummary
}
