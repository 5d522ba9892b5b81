package plugins

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/michaelbrown/cadforge/internal/observability"
)

// Match is a plugin selected for a request together with the parameters
// to invoke it with.
type Match struct {
	Plugin string         `json:"plugin"`
	Params map[string]any `json:"params"`
}

// Registry holds the plugins available to the agent and the MCP servers
// backing some of them.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
	servers map[string]*toolServer
	logger  *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		plugins: make(map[string]Plugin),
		servers: make(map[string]*toolServer),
		logger:  logger,
	}
}

// Register adds a plugin. Names must be unique.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.plugins[p.Name()]; ok {
		return fmt.Errorf("plugin %q already registered", p.Name())
	}
	r.plugins[p.Name()] = p
	r.logger.Debug("plugin registered", zap.String("plugin", p.Name()))
	return nil
}

// RegisterBuiltins adds the material database and the file converter.
func (r *Registry) RegisterBuiltins(materials map[string]MaterialProperties) error {
	return errors.Join(
		r.Register(NewMaterialDatabase(materials)),
		r.Register(NewFileConverter()),
	)
}

// RegisterConfigs builds and registers each configured plugin.
func (r *Registry) RegisterConfigs(cfgs []Config) error {
	var errs []error
	for _, c := range cfgs {
		p, err := c.Build()
		if err == nil {
			err = r.Register(p)
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// RegisterServer launches an MCP tool server and registers each of its
// tools. Disabled servers are skipped.
func (r *Registry) RegisterServer(ctx context.Context, name string, cfg ToolServerConfig) error {
	if !cfg.Enabled {
		return nil
	}
	srv, err := startToolServer(ctx, name, cfg)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.servers[name] = srv
	r.mu.Unlock()

	var errs []error
	for _, p := range srv.plugins() {
		errs = append(errs, r.Register(p))
	}
	r.logger.Info("tool server started",
		zap.String("server", name),
		zap.Int("tools", len(srv.tools)),
	)
	return errors.Join(errs...)
}

// Match finds the first plugin, in name order, that claims the request.
// Plugins that parse requests themselves are matched only by their parser;
// the others match when their name (underscores read as spaces) or their
// description appears in the request.
func (r *Registry) Match(request string) (Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lower := strings.ToLower(request)
	for _, name := range r.namesLocked() {
		p := r.plugins[name]
		if parser, ok := p.(RequestParser); ok {
			if params, ok := parser.ParseRequest(request); ok {
				return Match{Plugin: name, Params: params}, true
			}
			continue
		}
		if keywordMatch(lower, p) {
			return Match{Plugin: name, Params: map[string]any{"request": request}}, true
		}
	}
	return Match{}, false
}

func keywordMatch(lower string, p Plugin) bool {
	name := strings.ToLower(strings.ReplaceAll(p.Name(), "_", " "))
	if name != "" && strings.Contains(lower, name) {
		return true
	}
	desc := strings.ToLower(strings.TrimSpace(p.Description()))
	return desc != "" && strings.Contains(lower, desc)
}

// Lookup returns the named plugin.
func (r *Registry) Lookup(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p, ok
}

// HasCapability reports whether some plugin claims the request.
func (r *Registry) HasCapability(request string) bool {
	_, ok := r.Match(request)
	return ok
}

// Invoke runs the named plugin.
func (r *Registry) Invoke(ctx context.Context, name string, params map[string]any) Result {
	r.mu.RLock()
	p, ok := r.plugins[name]
	r.mu.RUnlock()
	if !ok {
		return failure(name, fmt.Sprintf("plugin '%s' not found", name))
	}
	if params == nil {
		params = map[string]any{}
	}

	start := time.Now()
	res := p.Execute(ctx, params)
	if res.Plugin == "" {
		res.Plugin = name
	}

	observability.PluginInvocationsTotal.WithLabelValues(name, observability.Status(res.Success)).Inc()
	r.logger.Info("plugin invoked",
		zap.String("plugin", name),
		zap.Bool("success", res.Success),
		zap.Duration("duration", time.Since(start)),
	)
	return res
}

// List describes the registered plugins in name order.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := r.namesLocked()
	out := make([]Info, len(names))
	for i, n := range names {
		out[i] = Info{Name: n, Description: r.plugins[n].Description()}
	}
	return out
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.plugins))
	for n := range r.plugins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Close shuts down every MCP server.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for name, srv := range r.servers {
		if err := srv.close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", name, err))
		}
	}
	r.servers = make(map[string]*toolServer)
	return errors.Join(errs...)
}
