package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

var showScriptFlag bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive CAD session",
	Long: `Start an interactive session. Each line is a CAD request: it is answered
by a matching plugin, or turned into a script that is validated, run and
repaired once if it fails.

Examples:
  cadforge chat
  cadforge chat --provider gemini
  cadforge chat --provider ollama --model qwen2.5-coder:14b`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&showScriptFlag, "show-script", true, "Print generated scripts")
	rootCmd.AddCommand(chatCmd)
}

// requestCancel holds the cancel func of the request in flight.
type requestCancel struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

func (r *requestCancel) set(c context.CancelFunc) {
	r.mu.Lock()
	r.cancel = c
	r.mu.Unlock()
}

func (r *requestCancel) fire() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Printf("cadforge - interactive CAD scripting\n")
	if a.profile != nil {
		fmt.Printf("Profile: %s\n", a.profile.Name)
	}
	fmt.Printf("Provider: %s | Model: %s | Validation: %s\n",
		a.settings.Name, a.settings.Model, a.checker.Profile().Name)
	if infos := a.registry.List(); len(infos) > 0 {
		names := make([]string, len(infos))
		for i, info := range infos {
			names[i] = info.Name
		}
		fmt.Printf("Plugins: %s\n", strings.Join(names, ", "))
	}
	fmt.Printf("Type /help for commands, /quit to exit\n\n")

	a.generator.OnDelta = streamDelta

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          promptColor("cad>") + " ",
		HistoryFile:     filepath.Join(filepath.Dir(cfg.Storage.DBPath), "chat_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	// Ctrl+C cancels the request in flight, not the session.
	var inflight requestCancel
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			inflight.fire()
		}
	}()

	for {
		input, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Println("\nGoodbye!")
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if strings.HasPrefix(input, "/") {
			if !handleCommand(ctx, input, a) {
				return nil
			}
			continue
		}

		reqCtx, cancel := context.WithCancel(ctx)
		inflight.set(cancel)

		fmt.Println()
		c := a.agent.Process(reqCtx, input)
		interrupted := reqCtx.Err() != nil
		cancel()
		inflight.set(nil)

		fmt.Println()
		if interrupted && !c.Success {
			fmt.Println(errorColor("(interrupted)"))
			fmt.Println()
			continue
		}
		printCycle(os.Stdout, c, showScriptFlag)
		fmt.Println()
	}
}

func streamDelta(delta string) {
	fmt.Print(dimColor(delta))
}

// handleCommand runs a slash command. It returns false when the session
// should end.
func handleCommand(ctx context.Context, input string, a *app) bool {
	fields := strings.Fields(input)
	switch strings.ToLower(fields[0]) {
	case "/quit", "/exit", "/q":
		fmt.Println("Goodbye!")
		return false
	case "/reset":
		a.agent.Reset()
		fmt.Println("Recent context cleared.")
	case "/recent":
		data, err := json.MarshalIndent(a.agent.Recent(), "", "  ")
		if err != nil {
			fmt.Println(errorColor(err.Error()))
			break
		}
		fmt.Println(string(data))
	case "/plugins":
		for _, info := range a.registry.List() {
			fmt.Printf("  %-20s %s\n", pluginColor(info.Name), info.Description)
		}
	case "/explain":
		operation := strings.TrimSpace(strings.TrimPrefix(input, fields[0]))
		if operation == "" {
			fmt.Println("Usage: /explain <operation>")
			break
		}
		a.generator.OnDelta = nil
		text, err := a.generator.Explain(ctx, operation)
		a.generator.OnDelta = streamDelta
		if err != nil {
			fmt.Println(errorColor(err.Error()))
			break
		}
		fmt.Println(text)
	case "/help":
		fmt.Println("Commands:")
		fmt.Println("  /help              - Show this help")
		fmt.Println("  /reset             - Forget recent interactions")
		fmt.Println("  /recent            - Show the context sent with each request (JSON)")
		fmt.Println("  /plugins           - List plugins")
		fmt.Println("  /explain <op>      - Explain a CAD operation")
		fmt.Println("  /quit              - Exit")
	default:
		fmt.Printf("Unknown command: %s (try /help)\n", input)
	}
	fmt.Println()
	return true
}
