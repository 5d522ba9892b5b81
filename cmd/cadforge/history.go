package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/cadforge/internal/storage"
)

var (
	statusFilter string
	limitFlag    int
	exportFormat string
	exportOutput string
	forceFlag    bool
)

var historyCmd = &cobra.Command{
	Use:     "history",
	Aliases: []string{"cycles", "h"},
	Short:   "Inspect recorded request cycles",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded cycles",
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <cycle-id>",
	Short: "Show a cycle and its attempts",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <cycle-id>",
	Short: "Delete a cycle",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryDelete,
}

var historyExportCmd = &cobra.Command{
	Use:   "export <cycle-id>",
	Short: "Export a cycle as markdown or JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryExport,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDeleteCmd, historyExportCmd)

	historyListCmd.Flags().StringVar(&statusFilter, "status", "", "Filter by status (pending, succeeded, failed)")
	historyListCmd.Flags().IntVar(&limitFlag, "limit", 20, "Max cycles to show")

	historyExportCmd.Flags().StringVar(&exportFormat, "format", "md", "Export format: md or json")
	historyExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")

	historyDeleteCmd.Flags().BoolVar(&forceFlag, "force", false, "Skip confirmation")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	cycles, err := store.ListCycles(context.Background(), storage.ListOptions{
		Status: storage.CycleStatus(statusFilter),
		Limit:  limitFlag,
	})
	if err != nil {
		return err
	}

	if len(cycles) == 0 {
		fmt.Println("No cycles found.")
		return nil
	}

	fmt.Printf("%-10s %-10s %-11s %-44s %s\n", "ID", "STATUS", "KIND", "REQUEST", "CREATED")
	fmt.Println(strings.Repeat("─", 95))

	for _, c := range cycles {
		request := c.Request
		if len(request) > 42 {
			request = request[:42] + ".."
		}
		kind := c.Kind
		if c.Plugin != "" {
			kind = c.Plugin
		}
		if len(kind) > 10 {
			kind = kind[:9] + "."
		}
		status := string(c.Status)
		switch c.Status {
		case storage.StatusSucceeded:
			status = replyColor(fmt.Sprintf("%-10s", status))
		case storage.StatusFailed:
			status = errorColor(fmt.Sprintf("%-10s", status))
		default:
			status = fmt.Sprintf("%-10s", status)
		}

		fmt.Printf("%-10s %s %-11s %-44s %s\n",
			shortID(c.ID), status, kind, request, timeAgo(c.CreatedAt))
	}
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	c, err := store.GetCycle(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Cycle:    %s\n", c.ID)
	fmt.Printf("Request:  %s\n", c.Request)
	fmt.Printf("Status:   %s\n", c.Status)
	if c.Kind != "" {
		fmt.Printf("Kind:     %s\n", c.Kind)
	}
	if c.Plugin != "" {
		fmt.Printf("Plugin:   %s\n", c.Plugin)
	}
	fmt.Printf("Provider: %s\n", c.Provider)
	fmt.Printf("Model:    %s\n", c.Model)
	if c.Profile != "" {
		fmt.Printf("Profile:  %s\n", c.Profile)
	}
	fmt.Printf("Created:  %s\n", c.CreatedAt.Format(time.RFC3339))
	if !c.CompletedAt.IsZero() {
		fmt.Printf("Finished: %s\n", c.CompletedAt.Format(time.RFC3339))
	}
	if c.Error != "" {
		fmt.Printf("Error:    %s\n", errorColor(c.Error))
	}

	fmt.Printf("\nAttempts: %d\n", len(c.Attempts))
	fmt.Println(strings.Repeat("─", 60))

	for i, att := range c.Attempts {
		mark := replyColor("✓")
		if !att.Success {
			mark = errorColor("✗")
		}
		fmt.Printf("\n%s %s\n", mark, headingColor(fmt.Sprintf("attempt %d (%s)", i+1, att.Phase)))
		printBlock(os.Stdout, att.Script, 0)
		for _, e := range att.Errors {
			fmt.Printf("  %s\n", errorColor("validation: "+e))
		}
		if att.ErrorSummary != "" && len(att.Errors) == 0 {
			fmt.Printf("  %s\n", errorColor(truncate(att.ErrorSummary, 200)))
		}
		if att.Stdout != "" {
			fmt.Printf("  %s\n", dimColor("stdout: "+truncate(att.Stdout, 200)))
		}
	}
	if c.Output != "" && len(c.Attempts) == 0 {
		printBlock(os.Stdout, c.Output, previewLines)
	}
	return nil
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	c, err := store.GetCycle(ctx, args[0])
	if err != nil {
		return err
	}

	if !forceFlag {
		fmt.Printf("Delete cycle %s - %q? [y/N] ", shortID(c.ID), truncate(c.Request, 60))
		var confirm string
		fmt.Scanln(&confirm)
		if strings.ToLower(confirm) != "y" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := store.DeleteCycle(ctx, c.ID); err != nil {
		return err
	}
	fmt.Printf("Deleted cycle %s\n", shortID(c.ID))
	return nil
}

func runHistoryExport(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	c, err := store.GetCycle(context.Background(), args[0])
	if err != nil {
		return err
	}

	var output string
	switch exportFormat {
	case "json":
		data, err := storage.ExportJSON(c)
		if err != nil {
			return err
		}
		output = string(data) + "\n"
	default:
		output = storage.ExportMarkdown(c)
	}

	if exportOutput != "" {
		return os.WriteFile(exportOutput, []byte(output), 0o644)
	}

	fmt.Print(output)
	return nil
}
