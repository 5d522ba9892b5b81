// Package codegen turns natural-language CAD requests into scripts using
// an LLM backend.
package codegen

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/michaelbrown/cadforge/internal/llm"
	"github.com/michaelbrown/cadforge/internal/observability"
	"github.com/michaelbrown/cadforge/internal/script"
)

// Default request budgets for hosted and local backends.
const (
	HostedTimeout = 30 * time.Second
	LocalTimeout  = 120 * time.Second
)

var (
	fenceRe   = regexp.MustCompile("(?s)```[a-zA-Z]*[ \t]*\r?\n(.*?)```")
	packageRe = regexp.MustCompile(`(?m)^package\s+\w+`)
)

// Interaction is one earlier request passed to the backend as context.
type Interaction struct {
	Request string `json:"request"`
	Script  string `json:"script,omitempty"`
	Success bool   `json:"success"`
	Result  string `json:"result,omitempty"`
}

// Options configures a Generator.
type Options struct {
	Timeout      time.Duration
	SystemPrompt string
	Logger       *zap.Logger
}

// Generator produces and repairs scripts.
type Generator struct {
	client   llm.Client
	provider string
	timeout  time.Duration
	system   string
	logger   *zap.Logger

	// OnDelta, when set, receives streamed text while a reply arrives.
	OnDelta llm.StreamHandler
}

// New creates a Generator for the named provider.
func New(client llm.Client, provider string, opts Options) *Generator {
	g := &Generator{
		client:   client,
		provider: provider,
		timeout:  opts.Timeout,
		system:   opts.SystemPrompt,
		logger:   opts.Logger,
	}
	if g.timeout <= 0 {
		g.timeout = HostedTimeout
	}
	if g.system == "" {
		g.system = DefaultSystemPrompt
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	return g
}

// Provider returns the backend name used in logs and metrics.
func (g *Generator) Provider() string {
	return g.provider
}

// Generate asks the backend for a script fulfilling request.
func (g *Generator) Generate(ctx context.Context, request string, recent []Interaction) (script.Source, error) {
	prompt := "Request: " + request
	if len(recent) > 0 {
		data, err := json.MarshalIndent(map[string]any{"recent_interactions": recent}, "", "  ")
		if err == nil {
			prompt = "Context:\n" + string(data) + "\n\n" + prompt
		}
	}

	text, err := g.complete(ctx, "generate", []llm.Message{
		llm.SystemMessage(g.system),
		llm.UserMessage(prompt),
	})
	if err != nil {
		return "", err
	}
	return ExtractCode(text), nil
}

// Repair asks the backend to fix src given the failure it produced.
func (g *Generator) Repair(ctx context.Context, src script.Source, failure string) (script.Source, error) {
	text, err := g.complete(ctx, "repair", []llm.Message{
		llm.SystemMessage(g.system),
		llm.UserMessage(fmt.Sprintf(repairTemplate, strings.TrimSpace(string(src)), failure)),
	})
	if err != nil {
		return "", err
	}
	return ExtractCode(text), nil
}

// Explain returns a prose explanation of a CAD operation.
func (g *Generator) Explain(ctx context.Context, operation string) (string, error) {
	text, err := g.complete(ctx, "explain", []llm.Message{
		llm.SystemMessage(explainPrompt),
		llm.UserMessage(operation),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (g *Generator) complete(ctx context.Context, kind string, messages []llm.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	var resp *llm.Response
	var err error
	if g.OnDelta != nil {
		resp, err = g.client.ChatCompletionStream(ctx, messages, g.OnDelta)
	} else {
		resp, err = g.client.ChatCompletion(ctx, messages)
	}
	elapsed := time.Since(start)

	observability.GenerationLatency.WithLabelValues(g.provider).Observe(elapsed.Seconds())
	observability.GenerationRequestsTotal.WithLabelValues(g.provider, kind, observability.Status(err == nil)).Inc()

	if err != nil {
		g.logger.Warn("generation failed",
			zap.String("provider", g.provider),
			zap.String("kind", kind),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return "", fmt.Errorf("%s: %w", kind, err)
	}
	g.logger.Debug("generation finished",
		zap.String("provider", g.provider),
		zap.String("kind", kind),
		zap.Duration("elapsed", elapsed))
	return resp.Message.Content, nil
}

// ExtractCode pulls the script out of a backend reply. The first fenced
// block wins; otherwise the whole reply is used. A missing package clause
// is added.
func ExtractCode(text string) script.Source {
	code := text
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		code = m[1]
	}
	code = strings.TrimSpace(code)
	if code != "" && !packageRe.MatchString(code) {
		code = "package main\n\n" + code
	}
	if code != "" {
		code += "\n"
	}
	return script.Source(code)
}
