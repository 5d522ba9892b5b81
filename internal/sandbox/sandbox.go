// Package sandbox interprets validated scripts in process with a restricted
// package set and per-run output capture.
package sandbox

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/michaelbrown/cadforge/internal/host"
	"github.com/michaelbrown/cadforge/internal/script"
)

// Outcome is the record of one execution attempt.
type Outcome struct {
	Success      bool           `json:"success"`
	Stdout       string         `json:"stdout"`
	Stderr       string         `json:"stderr"`
	ErrorSummary string         `json:"error_summary,omitempty"`
	Validation   script.Verdict `json:"validation"`
	Bindings     map[string]any `json:"-"`
	HostTrace    []string       `json:"host_trace,omitempty"`
	Duration     time.Duration  `json:"duration"`
}

// BindingSummary renders bindings as strings, sorted by name, for display
// and serialisation.
func (o *Outcome) BindingSummary() []string {
	names := make([]string, 0, len(o.Bindings))
	for name := range o.Bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = fmt.Sprintf("%s = %v", name, o.Bindings[name])
	}
	return out
}

// Sandbox runs a script that has already been validated. Implementations
// must not return or panic with faults; every failure becomes Outcome data.
// A nil host means standalone mode.
type Sandbox interface {
	Run(ctx context.Context, src script.Source, verdict script.Verdict, h host.Host) *Outcome
}
