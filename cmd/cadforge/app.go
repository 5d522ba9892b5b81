package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/michaelbrown/cadforge/internal/agent"
	"github.com/michaelbrown/cadforge/internal/codegen"
	"github.com/michaelbrown/cadforge/internal/llm"
	"github.com/michaelbrown/cadforge/internal/plugins"
	"github.com/michaelbrown/cadforge/internal/sandbox"
	"github.com/michaelbrown/cadforge/internal/script"
	"github.com/michaelbrown/cadforge/internal/storage"
	"github.com/michaelbrown/cadforge/internal/storage/sqlite"
)

// app holds everything a request cycle needs.
type app struct {
	profile   *agent.Profile
	settings  llm.Settings
	checker   script.Checker
	box       *sandbox.Interpreter
	generator *codegen.Generator
	registry  *plugins.Registry
	store     storage.Store
	agent     *agent.Agent
}

// newApp validates the config and builds the full pipeline. The host is
// never attached from the command line, so scripts see stand-ins.
func newApp(ctx context.Context) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{}
	var err error
	if profileFlag != "" {
		a.profile, err = agent.FindProfile(cfg.Agent.ProfilesDir, profileFlag)
		if err != nil {
			return nil, fmt.Errorf("loading profile: %w", err)
		}
	}

	a.checker, err = newChecker(a.validationProfile())
	if err != nil {
		return nil, err
	}
	a.box = sandbox.NewInterpreter(cfg.SandboxPolicy(), logger)

	a.generator, a.settings, err = a.newGenerator(ctx)
	if err != nil {
		return nil, err
	}

	a.registry = newRegistry(ctx)

	a.store, err = sqlite.Open(cfg.Storage.DBPath)
	if err != nil {
		a.registry.Close()
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	recent := cfg.Agent.RecentInteractions
	if a.profile != nil && a.profile.RecentInteractions > 0 {
		recent = a.profile.RecentInteractions
	}
	a.agent = agent.New(a.generator, a.checker, a.box, agent.Options{
		Plugins:            a.registry,
		Store:              a.store,
		RecentInteractions: recent,
		ContextMaxTokens:   cfg.Agent.ContextMaxTokens,
		Provider:           a.settings.Name,
		Model:              a.settings.Model,
		Logger:             logger,
	})
	return a, nil
}

func (a *app) Close() {
	if a.registry != nil {
		if err := a.registry.Close(); err != nil {
			logger.Warn("closing tool servers", zap.Error(err))
		}
	}
	if a.store != nil {
		a.store.Close()
	}
}

func (a *app) validationProfile() script.Profile {
	if a.profile != nil && a.profile.Validation != "" {
		if p, err := script.LookupProfile(a.profile.Validation); err == nil {
			return p
		}
	}
	return cfg.ValidationProfile(false)
}

// newGenerator resolves provider and model from flags, then the profile,
// then the config default.
func (a *app) newGenerator(ctx context.Context) (*codegen.Generator, llm.Settings, error) {
	provider, model := providerFlag, modelFlag
	system := cfg.Agent.SystemPrompt
	if a.profile != nil {
		if provider == "" {
			provider = a.profile.Provider
		}
		if model == "" {
			model = a.profile.Model
		}
		if a.profile.SystemPrompt != "" {
			system = a.profile.SystemPrompt
		}
	}
	return newGenerator(ctx, provider, model, system)
}

func newGenerator(ctx context.Context, provider, model, system string) (*codegen.Generator, llm.Settings, error) {
	settings, err := cfg.Settings(provider, model)
	if err != nil {
		return nil, llm.Settings{}, err
	}
	client, err := llm.Open(ctx, settings)
	if err != nil {
		return nil, llm.Settings{}, fmt.Errorf("connecting to %s: %w", settings.Name, err)
	}
	if c, ok := client.(*llm.OpenAICompatClient); ok {
		c.SetLogger(logger)
	}

	pc, _ := cfg.Provider(settings.Name)
	gen := codegen.New(client, settings.Name, codegen.Options{
		Timeout:      pc.RequestTimeout(),
		SystemPrompt: system,
		Logger:       logger,
	})
	return gen, settings, nil
}

func newChecker(p script.Profile) (script.Checker, error) {
	c, err := script.NewCachingValidator(script.NewValidator(p, logger), cfg.Validator.CacheSize)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// newRegistry registers built-in, configured and MCP plugins. Plugins that
// fail to load are logged and skipped.
func newRegistry(ctx context.Context) *plugins.Registry {
	reg := plugins.NewRegistry(logger)
	if err := reg.RegisterBuiltins(cfg.Materials); err != nil {
		logger.Warn("registering built-in plugins", zap.Error(err))
	}
	if err := reg.RegisterConfigs(cfg.Plugins); err != nil {
		logger.Warn("registering configured plugins", zap.Error(err))
	}
	for name, tc := range cfg.Tools {
		if err := reg.RegisterServer(ctx, name, tc); err != nil {
			logger.Warn("starting tool server", zap.String("server", name), zap.Error(err))
		}
	}
	return reg
}

func openStore() (storage.Store, error) {
	return sqlite.Open(cfg.Storage.DBPath)
}
