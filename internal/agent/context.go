package agent

import (
	"github.com/michaelbrown/cadforge/internal/codegen"
)

const (
	defaultRecentInteractions = 5
	defaultContextMaxTokens   = 2000
)

// estimateTokens returns an approximate token count for an interaction
// using the chars/4 heuristic.
func estimateTokens(in codegen.Interaction) int {
	tokens := (len(in.Request) + len(in.Script) + len(in.Result)) / 4
	if tokens == 0 {
		tokens = 1
	}
	return tokens
}

// trimInteractions keeps the newest interactions, at most keep of them,
// whose combined estimate fits within budget. Order is preserved.
func trimInteractions(history []codegen.Interaction, keep, budget int) []codegen.Interaction {
	if keep <= 0 || len(history) == 0 {
		return nil
	}
	start := max(len(history)-keep, 0)

	tokens := 0
	for i := len(history) - 1; i >= start; i-- {
		tokens += estimateTokens(history[i])
		if tokens > budget {
			start = i + 1
			break
		}
	}

	out := make([]codegen.Interaction, len(history)-start)
	copy(out, history[start:])
	return out
}

// interactionFor condenses a finished cycle into generator context.
func interactionFor(c *Cycle) codegen.Interaction {
	in := codegen.Interaction{
		Request: c.Request,
		Script:  string(c.Script),
		Success: c.Success,
	}
	switch {
	case c.Error != "":
		in.Result = c.Error
	default:
		in.Result = c.Output
	}
	if len(in.Result) > maxResultChars {
		in.Result = in.Result[:maxResultChars] + "\n... (truncated)"
	}
	return in
}

const maxResultChars = 1000
