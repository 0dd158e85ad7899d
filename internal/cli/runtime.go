package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/maulida/sleuth/internal/config"
	"github.com/maulida/sleuth/internal/logger"
	"github.com/maulida/sleuth/pkg/agent"
	"github.com/maulida/sleuth/pkg/audit"
	"github.com/maulida/sleuth/pkg/httpapi"
	"github.com/maulida/sleuth/pkg/manifest"
	"github.com/maulida/sleuth/pkg/mcp"
	"github.com/maulida/sleuth/pkg/router"
	"github.com/maulida/sleuth/pkg/store"
	"github.com/rs/zerolog"
)

// runtime holds the assembled service graph shared by the commands.
type runtime struct {
	cfg         *config.Config
	log         *logger.Logger
	store       *store.SQLiteStore
	manifest    *manifest.Loader
	watcher     *manifest.Watcher
	invokers    map[string]*agent.Invoker
	dispatcher  *agent.Dispatcher
	service     *audit.Service
	broadcaster *httpapi.RunBroadcaster
}

// loadConfig loads and validates the configuration. A validation
// failure here is fatal; the process must not start half-configured.
func loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, console bool) (*logger.Logger, error) {
	return logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   console,
		Pretty:    console,
		Redaction: cfg.Logging.Redaction,
	})
}

// buildRuntime assembles the store, tool clients, agents, and batch
// service. Any failure is a startup failure; nothing is left running.
func buildRuntime(ctx context.Context, cfg *config.Config, log *logger.Logger) (*runtime, error) {
	rt := &runtime{
		cfg:      cfg,
		log:      log,
		invokers: make(map[string]*agent.Invoker),
	}
	zl := log.GetZerolog()

	assembled := false
	defer func() {
		if !assembled {
			rt.Close()
		}
	}()

	st, err := store.Open(cfg.Store.Path, zl)
	if err != nil {
		return nil, fmt.Errorf("failed to open question store: %w", err)
	}
	rt.store = st

	rt.manifest = manifest.NewLoader(cfg.Manifest.Path, zl)
	if err := rt.manifest.Load(); err != nil {
		return nil, fmt.Errorf("failed to load analysis manifest: %w", err)
	}

	profiles := make([]agent.AuthProfile, 0, len(cfg.AI.Profiles))
	for _, p := range cfg.AI.Profiles {
		profiles = append(profiles, agent.AuthProfile{
			ID:       p.ID,
			Provider: p.Provider,
			APIKey:   p.APIKey,
			Priority: p.Priority,
		})
	}

	byCategory := make(map[string]agent.AskInvoker)
	for _, ac := range cfg.Agents {
		inv, err := rt.buildInvoker(ctx, ac, profiles, zl)
		if err != nil {
			return nil, err
		}
		rt.invokers[ac.ID] = inv
		if ac.Category != "" {
			byCategory[ac.Category] = inv
		}
	}

	if cfg.Manifest.Watch {
		watcher, err := manifest.NewWatcher(rt.manifest, 0, rt.refreshAuditorPrompts, zl)
		if err != nil {
			return nil, fmt.Errorf("failed to create manifest watcher: %w", err)
		}
		if err := watcher.Start(); err != nil {
			return nil, fmt.Errorf("failed to start manifest watcher: %w", err)
		}
		rt.watcher = watcher
	}

	classifier, err := router.NewClassifier(router.Config{
		Model:           cfg.Router.Model,
		DefaultCategory: cfg.Router.DefaultCategory,
		Profiles:        profiles,
		Logger:          zl,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier: %w", err)
	}

	rt.dispatcher, err = agent.NewDispatcher(classifier, byCategory, zl)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	auditInvoker, found := rt.invokers[cfg.Audit.Agent]
	if !found {
		return nil, fmt.Errorf("audit agent %q is not configured", cfg.Audit.Agent)
	}

	rt.broadcaster = httpapi.NewRunBroadcaster(zl)

	runner, err := audit.NewRunner(audit.Config{
		Store:             st,
		Invoker:           auditInvoker,
		InvocationTimeout: time.Duration(cfg.Audit.InvocationTimeout) * time.Second,
		Observer:          rt.broadcaster.Observer(),
		Logger:            zl,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create batch runner: %w", err)
	}
	rt.service = audit.NewService(runner, zl)

	assembled = true
	return rt, nil
}

// buildInvoker connects an agent's MCP tool server and wraps it in an
// invoker with the category's system prompt.
func (rt *runtime) buildInvoker(ctx context.Context, ac config.AgentConfig, profiles []agent.AuthProfile, zl zerolog.Logger) (*agent.Invoker, error) {
	sc := rt.cfg.MCPServerByID(ac.MCPServer)
	if sc == nil {
		return nil, fmt.Errorf("agent %q references unknown mcp server %q", ac.ID, ac.MCPServer)
	}

	client, err := mcp.New(sc.ID, sc.Transport, sc.URL, sc.Command, sc.Args, zl)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp client for agent %q: %w", ac.ID, err)
	}
	if err := client.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect mcp server %q: %w", sc.ID, err)
	}

	inv, err := agent.NewInvoker(agent.InvokerConfig{
		ID:           ac.ID,
		SystemPrompt: rt.systemPromptFor(ac.Category),
		Model:        ac.Model,
		Temperature:  ac.Temperature,
		MaxTokens:    ac.MaxTokens,
		MaxSteps:     ac.MaxSteps,
		Timeout:      time.Duration(rt.cfg.Audit.InvocationTimeout) * time.Second,
		Tools:        client,
		Profiles:     profiles,
		Logger:       zl,
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create agent %q: %w", ac.ID, err)
	}
	return inv, nil
}

func (rt *runtime) systemPromptFor(category string) string {
	switch category {
	case router.CategoryClickHouseAnalyst:
		return agent.ClickHouseAuditorPrompt(rt.manifest.JSON())
	default:
		return agent.SupabaseAnalystPrompt()
	}
}

// refreshAuditorPrompts re-renders manifest-dependent system prompts
// after a manifest reload.
func (rt *runtime) refreshAuditorPrompts() {
	prompt := agent.ClickHouseAuditorPrompt(rt.manifest.JSON())
	for _, ac := range rt.cfg.Agents {
		if ac.Category == router.CategoryClickHouseAnalyst {
			if inv, ok := rt.invokers[ac.ID]; ok {
				inv.SetSystemPrompt(prompt)
			}
		}
	}
}

// Close tears the runtime down in reverse dependency order.
func (rt *runtime) Close() {
	if rt.watcher != nil {
		rt.watcher.Stop()
	}
	if rt.broadcaster != nil {
		rt.broadcaster.Close()
	}
	for _, inv := range rt.invokers {
		inv.Release()
	}
	if rt.store != nil {
		rt.store.Close()
	}
}
