package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/michaelbrown/cadforge/internal/agent"
	"github.com/michaelbrown/cadforge/internal/sandbox"
)

var (
	promptColor  = color.New(color.FgCyan).SprintFunc()
	replyColor   = color.New(color.FgGreen).SprintFunc()
	pluginColor  = color.New(color.FgYellow).SprintFunc()
	errorColor   = color.New(color.FgRed).SprintFunc()
	dimColor     = color.New(color.FgHiBlack).SprintFunc()
	headingColor = color.New(color.Bold).SprintFunc()
)

const previewLines = 8

// printCycle writes a human-readable summary of c.
func printCycle(w io.Writer, c *agent.Cycle, showScript bool) {
	if c.Kind == agent.KindCapability && c.Capability != nil {
		fmt.Fprintf(w, "  %s\n", pluginColor("⚡ plugin: "+c.Capability.Plugin))
	}

	if showScript {
		for i, att := range c.Attempts {
			fmt.Fprintf(w, "\n%s\n", headingColor(fmt.Sprintf("attempt %d (%s)", i+1, att.Phase)))
			printBlock(w, string(att.Script), 0)
			if att.Outcome != nil && !att.Outcome.Success {
				fmt.Fprintf(w, "  %s\n", errorColor("✗ "+failureLine(att.Outcome)))
			}
		}
	}

	if c.Outcome != nil {
		printOutcome(w, c.Outcome)
	}

	switch {
	case c.Success && c.Repaired():
		fmt.Fprintf(w, "%s\n", replyColor("✓ succeeded after repair"))
	case c.Success:
		fmt.Fprintf(w, "%s\n", replyColor("✓ succeeded"))
	default:
		fmt.Fprintf(w, "%s\n", errorColor("✗ "+c.Error))
	}
	if c.Kind == agent.KindCapability && c.Output != "" {
		printBlock(w, c.Output, previewLines)
	}
}

// printOutcome shows captured output, bindings and stand-in calls.
func printOutcome(w io.Writer, o *sandbox.Outcome) {
	if o.Stdout != "" {
		printBlock(w, o.Stdout, previewLines)
	}
	if o.Stderr != "" {
		fmt.Fprintf(w, "  %s\n", errorColor("stderr:"))
		printBlock(w, o.Stderr, previewLines)
	}
	for _, warning := range o.Validation.Warnings {
		fmt.Fprintf(w, "  %s\n", pluginColor("warning: "+warning))
	}
	if b := o.BindingSummary(); len(b) > 0 {
		fmt.Fprintf(w, "  %s\n", dimColor("bindings:"))
		printBlock(w, strings.Join(b, "\n"), previewLines)
	}
	if len(o.HostTrace) > 0 {
		fmt.Fprintf(w, "  %s\n", dimColor("host calls:"))
		printBlock(w, strings.Join(o.HostTrace, "\n"), previewLines)
	}
	fmt.Fprintf(w, "  %s\n", dimColor("took "+o.Duration.Round(time.Millisecond).String()))
}

func failureLine(o *sandbox.Outcome) string {
	if len(o.Validation.Errors) > 0 {
		return "validation: " + strings.Join(o.Validation.Errors, "; ")
	}
	return o.ErrorSummary
}

// printBlock prints text as an indented block; limit 0 prints everything.
func printBlock(w io.Writer, text string, limit int) {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	shown := lines
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	for _, line := range shown {
		fmt.Fprintf(w, "  %s\n", dimColor("│ "+line))
	}
	if len(shown) < len(lines) {
		fmt.Fprintf(w, "  %s\n", dimColor(fmt.Sprintf("│ ... (%d more lines)", len(lines)-len(shown))))
	}
}

func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
