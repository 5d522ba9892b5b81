package storage

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExportMarkdown renders a cycle and its attempts as a markdown document.
func ExportMarkdown(c *CycleRecord) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", c.Request)
	fmt.Fprintf(&b, "- **Cycle:** %s\n", c.ID)
	fmt.Fprintf(&b, "- **Status:** %s\n", c.Status)
	if c.Kind != "" {
		fmt.Fprintf(&b, "- **Kind:** %s\n", c.Kind)
	}
	if c.Plugin != "" {
		fmt.Fprintf(&b, "- **Plugin:** %s\n", c.Plugin)
	}
	if c.Provider != "" {
		fmt.Fprintf(&b, "- **Provider:** %s\n", c.Provider)
		fmt.Fprintf(&b, "- **Model:** %s\n", c.Model)
	}
	if c.Profile != "" {
		fmt.Fprintf(&b, "- **Profile:** %s\n", c.Profile)
	}
	fmt.Fprintf(&b, "- **Created:** %s\n", c.CreatedAt.Format("2006-01-02 15:04:05"))
	b.WriteString("\n---\n\n")

	for i, a := range c.Attempts {
		fmt.Fprintf(&b, "## Attempt %d (%s)\n\n", i+1, a.Phase)
		fmt.Fprintf(&b, "```go\n%s\n```\n\n", strings.TrimRight(a.Script, "\n"))
		for _, e := range a.Errors {
			fmt.Fprintf(&b, "- **Validation error:** %s\n", e)
		}
		for _, w := range a.Warnings {
			fmt.Fprintf(&b, "- **Warning:** %s\n", w)
		}
		if len(a.Errors) > 0 || len(a.Warnings) > 0 {
			b.WriteString("\n")
		}
		if a.Stdout != "" {
			fmt.Fprintf(&b, "**Output:**\n```\n%s\n```\n\n", strings.TrimRight(a.Stdout, "\n"))
		}
		if a.Success {
			fmt.Fprintf(&b, "Succeeded in %s.\n\n", a.Duration)
		} else {
			fmt.Fprintf(&b, "<details>\n<summary>Failure</summary>\n\n```\n%s\n```\n</details>\n\n", a.ErrorSummary)
		}
	}

	if c.Output != "" {
		fmt.Fprintf(&b, "## Result\n\n%s\n", c.Output)
	}
	if c.Error != "" {
		fmt.Fprintf(&b, "## Error\n\n%s\n", c.Error)
	}
	return b.String()
}

// ExportJSON renders a cycle and its attempts as formatted JSON.
func ExportJSON(c *CycleRecord) ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}
