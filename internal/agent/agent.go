// Package agent runs request cycles: a plugin capability when one claims
// the request, otherwise a generated script with one repair.
package agent

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/michaelbrown/cadforge/internal/codegen"
	"github.com/michaelbrown/cadforge/internal/host"
	"github.com/michaelbrown/cadforge/internal/llm"
	"github.com/michaelbrown/cadforge/internal/observability"
	"github.com/michaelbrown/cadforge/internal/plugins"
	"github.com/michaelbrown/cadforge/internal/sandbox"
	"github.com/michaelbrown/cadforge/internal/script"
	"github.com/michaelbrown/cadforge/internal/storage"
)

// Kind tags how a cycle was satisfied.
type Kind string

const (
	KindCapability Kind = "capability"
	KindScript     Kind = "script"
)

// Cycle is the result of one request.
type Cycle struct {
	ID          string           `json:"id"`
	Request     string           `json:"request"`
	Kind        Kind             `json:"kind"`
	Success     bool             `json:"success"`
	Output      string           `json:"output,omitempty"`
	Error       string           `json:"error,omitempty"`
	Capability  *plugins.Result  `json:"capability,omitempty"`
	Attempts    []Attempt        `json:"attempts,omitempty"`
	Script      script.Source    `json:"script,omitempty"`
	Outcome     *sandbox.Outcome `json:"outcome,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt time.Time        `json:"completed_at"`
}

// Repaired reports whether the final outcome came from a repair.
func (c *Cycle) Repaired() bool {
	return len(c.Attempts) > 1
}

// Capabilities is the plugin collaborator consulted before generation.
type Capabilities interface {
	Match(request string) (plugins.Match, bool)
	Invoke(ctx context.Context, name string, params map[string]any) plugins.Result
}

// Event types delivered to OnEvent.
const (
	EventCycleStarted   = "cycle_started"
	EventCapability     = "capability"
	EventAttempt        = "attempt"
	EventCycleCompleted = "cycle_completed"
)

// Event reports progress of a cycle.
type Event struct {
	Type    string `json:"type"`
	CycleID string `json:"cycle_id"`
	Data    any    `json:"data,omitempty"`
}

// Options configures an Agent. Zero values fall back to defaults.
type Options struct {
	Plugins            Capabilities
	Store              storage.Store
	Host               host.Host
	RecentInteractions int
	ContextMaxTokens   int
	Provider           string
	Model              string
	Logger             *zap.Logger
}

// Agent processes requests one at a time. Cycles that share the host
// handle are serialised.
type Agent struct {
	mu      sync.Mutex
	loop    *RepairLoop
	plugins Capabilities
	store   storage.Store
	host    host.Host
	profile string
	logger  *zap.Logger

	provider, model string

	recent     []codegen.Interaction
	keepRecent int
	maxTokens  int

	OnEvent func(Event)
}

// New creates an Agent. checker decides which validation profile applies;
// it should match whether opts.Host is set.
func New(gen ScriptGenerator, checker script.Checker, box sandbox.Sandbox, opts Options) *Agent {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	a := &Agent{
		loop:       NewRepairLoop(gen, checker, box, opts.Logger),
		plugins:    opts.Plugins,
		store:      opts.Store,
		host:       opts.Host,
		profile:    checker.Profile().Name,
		logger:     opts.Logger,
		provider:   opts.Provider,
		model:      opts.Model,
		keepRecent: opts.RecentInteractions,
		maxTokens:  opts.ContextMaxTokens,
	}
	if a.keepRecent <= 0 {
		a.keepRecent = defaultRecentInteractions
	}
	if a.maxTokens <= 0 {
		a.maxTokens = defaultContextMaxTokens
	}
	return a
}

// Process runs one request cycle. It never returns nil and never fails:
// faults are recorded on the cycle.
func (a *Agent) Process(ctx context.Context, request string) *Cycle {
	a.mu.Lock()
	defer a.mu.Unlock()

	c := &Cycle{
		ID:        uuid.NewString(),
		Request:   request,
		StartedAt: time.Now().UTC(),
	}
	log := a.logger.With(zap.String("cycle", c.ID))
	log.Info("cycle started", zap.String("request", request))

	a.recordRequest(ctx, c)
	a.emit(EventCycleStarted, c.ID, map[string]string{"request": request})

	if a.tryCapability(ctx, c, log) {
		return a.finish(ctx, c, log)
	}

	c.Kind = KindScript
	attempts, err := a.loop.AttemptWithRepair(ctx, request, a.recentContext(), a.host)
	if attempts != nil {
		c.Attempts = attempts.List()
		for _, at := range c.Attempts {
			a.emit(EventAttempt, c.ID, at)
		}
		final := attempts.Final()
		c.Script = final.Script
		c.Outcome = final.Outcome
		c.Success = final.Outcome.Success
		c.Output = final.Outcome.Stdout
		if !c.Success {
			c.Error = final.Outcome.ErrorSummary
		}
	}
	if err != nil {
		log.Warn("generation failed", zap.Error(err))
		c.Success = false
		c.Error = llm.Describe(err)
	}

	a.remember(c)
	return a.finish(ctx, c, log)
}

// tryCapability invokes the matching plugin, if any. It reports whether
// the plugin satisfied the request; a failed plugin falls through to
// generation.
func (a *Agent) tryCapability(ctx context.Context, c *Cycle, log *zap.Logger) bool {
	if a.plugins == nil {
		return false
	}
	m, ok := a.plugins.Match(c.Request)
	if !ok {
		return false
	}

	res := a.plugins.Invoke(ctx, m.Plugin, m.Params)
	c.Capability = &res
	a.emit(EventCapability, c.ID, res)
	if !res.Success {
		log.Info("capability did not satisfy request, generating script",
			zap.String("plugin", m.Plugin),
			zap.String("error", res.Error))
		return false
	}

	c.Kind = KindCapability
	c.Success = true
	c.Output = res.Output
	return true
}

func (a *Agent) finish(ctx context.Context, c *Cycle, log *zap.Logger) *Cycle {
	c.CompletedAt = time.Now().UTC()
	observability.CyclesTotal.WithLabelValues(string(c.Kind), observability.Status(c.Success)).Inc()
	a.completeCycle(ctx, c)
	a.emit(EventCycleCompleted, c.ID, c)
	log.Info("cycle completed",
		zap.String("kind", string(c.Kind)),
		zap.Bool("success", c.Success),
		zap.Int("attempts", len(c.Attempts)),
		zap.Duration("elapsed", c.CompletedAt.Sub(c.StartedAt)))
	return c
}

func (a *Agent) recordRequest(ctx context.Context, c *Cycle) {
	if a.store == nil {
		return
	}
	rec := &storage.CycleRecord{
		ID:        c.ID,
		Request:   c.Request,
		Provider:  a.provider,
		Model:     a.model,
		Profile:   a.profile,
		CreatedAt: c.StartedAt,
	}
	if err := a.store.RecordRequest(ctx, rec); err != nil {
		a.logger.Warn("recording request", zap.String("cycle", c.ID), zap.Error(err))
	}
}

func (a *Agent) completeCycle(ctx context.Context, c *Cycle) {
	if a.store == nil {
		return
	}
	// the cycle may have been cancelled; history is still written
	ctx = context.WithoutCancel(ctx)
	if err := a.store.CompleteCycle(ctx, a.Record(c)); err != nil {
		a.logger.Warn("completing cycle", zap.String("cycle", c.ID), zap.Error(err))
	}
}

// Record converts a cycle to its persisted form.
func (a *Agent) Record(c *Cycle) *storage.CycleRecord {
	rec := &storage.CycleRecord{
		ID:          c.ID,
		Request:     c.Request,
		Kind:        string(c.Kind),
		Status:      storage.StatusFailed,
		Provider:    a.provider,
		Model:       a.model,
		Profile:     a.profile,
		Output:      c.Output,
		Error:       c.Error,
		CreatedAt:   c.StartedAt,
		CompletedAt: c.CompletedAt,
	}
	if c.Success {
		rec.Status = storage.StatusSucceeded
	}
	if c.Capability != nil {
		rec.Plugin = c.Capability.Plugin
	}
	for _, at := range c.Attempts {
		o := at.Outcome
		rec.Attempts = append(rec.Attempts, storage.AttemptRecord{
			Phase:        at.Phase,
			Script:       string(at.Script),
			Success:      o.Success,
			Stdout:       o.Stdout,
			Stderr:       o.Stderr,
			ErrorSummary: o.ErrorSummary,
			Errors:       o.Validation.Errors,
			Warnings:     o.Validation.Warnings,
			Duration:     o.Duration,
		})
	}
	return rec
}

func (a *Agent) emit(typ, cycleID string, data any) {
	if a.OnEvent != nil {
		a.OnEvent(Event{Type: typ, CycleID: cycleID, Data: data})
	}
}

func (a *Agent) remember(c *Cycle) {
	// a cycle that never produced a script says nothing useful to the backend
	if c.Script == "" {
		return
	}
	a.recent = append(a.recent, interactionFor(c))
	if len(a.recent) > a.keepRecent {
		a.recent = a.recent[len(a.recent)-a.keepRecent:]
	}
}

func (a *Agent) recentContext() []codegen.Interaction {
	return trimInteractions(a.recent, a.keepRecent, a.maxTokens)
}

// Recent returns the interactions that will accompany the next request.
func (a *Agent) Recent() []codegen.Interaction {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recentContext()
}

// Reset forgets recent interactions.
func (a *Agent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recent = nil
}
