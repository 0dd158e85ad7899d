// Package agent wires LLM providers to MCP tool servers. An Invoker is
// one configured specialist: a system prompt, a tool client and a step
// limit, executed as a provider tool loop.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/maulida/sleuth/pkg/mcp"
	"github.com/rs/zerolog"
)

// InvokerConfig configures a specialist agent.
type InvokerConfig struct {
	ID           string
	SystemPrompt string
	Model        string
	Temperature  float64
	MaxTokens    int
	MaxSteps     int
	MaxRetries   int
	Timeout      time.Duration
	Tools        mcp.Client
	Profiles     []AuthProfile
	Factory      ProviderCreator
	Logger       zerolog.Logger
}

// Invoker answers one free-text prompt at a time, invoking tools on its
// MCP server as the model requests them. Safe for sequential reuse
// across a batch; not proven safe for concurrent use.
type Invoker struct {
	cfg      InvokerConfig
	factory  ProviderCreator
	logger   zerolog.Logger
	releaseO sync.Once

	promptMu     sync.RWMutex
	systemPrompt string
}

// NewInvoker creates a specialist agent invoker.
func NewInvoker(cfg InvokerConfig) (*Invoker, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("invoker id is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.Tools == nil {
		return nil, fmt.Errorf("tool client is required")
	}
	if len(cfg.Profiles) == 0 {
		return nil, fmt.Errorf("at least one auth profile is required")
	}

	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 40
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Minute
	}

	factory := cfg.Factory
	if factory == nil {
		factory = &ProviderFactory{}
	}

	return &Invoker{
		cfg:          cfg,
		factory:      factory,
		logger:       cfg.Logger.With().Str("agent", cfg.ID).Logger(),
		systemPrompt: cfg.SystemPrompt,
	}, nil
}

// SetSystemPrompt replaces the system prompt for subsequent calls.
// Used when the analysis manifest is reloaded.
func (inv *Invoker) SetSystemPrompt(prompt string) {
	inv.promptMu.Lock()
	inv.systemPrompt = prompt
	inv.promptMu.Unlock()
}

func (inv *Invoker) currentSystemPrompt() string {
	inv.promptMu.RLock()
	defer inv.promptMu.RUnlock()
	return inv.systemPrompt
}

// ID returns the invoker's configured identifier.
func (inv *Invoker) ID() string {
	return inv.cfg.ID
}

// Invoke runs the tool loop for a single prompt and returns the final
// text answer. The call is bounded by the configured timeout.
func (inv *Invoker) Invoke(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, inv.cfg.Timeout)
	defer cancel()

	tools, err := inv.loadTools(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load tools: %w", err)
	}

	messages := []Message{{Role: "user", Content: prompt}}

	for step := 0; step < inv.cfg.MaxSteps; step++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		response, err := inv.callWithFailover(ctx, messages, tools)
		if err != nil {
			return "", err
		}

		if len(response.ToolCalls) == 0 {
			return response.Content, nil
		}

		messages = append(messages, Message{
			Role:      "assistant",
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		})

		for _, tc := range response.ToolCalls {
			inv.logger.Debug().Str("tool", tc.Name).Msg("Executing tool call")

			output, err := inv.cfg.Tools.CallTool(ctx, tc.Name, tc.Parameters)
			if err != nil {
				if ctx.Err() != nil {
					return "", ctx.Err()
				}
				output = fmt.Sprintf("tool error: %s", err)
			}

			messages = append(messages, Message{
				Role:       "tool",
				Content:    output,
				ToolCallID: tc.ID,
			})
		}
	}

	return "", fmt.Errorf("maximum tool execution steps (%d) exceeded", inv.cfg.MaxSteps)
}

// Release closes the underlying tool-server session. Idempotent; must
// run on every exit path so batch aborts do not leak connections.
func (inv *Invoker) Release() error {
	var err error
	inv.releaseO.Do(func() {
		err = inv.cfg.Tools.Close()
	})
	return err
}

// loadTools converts the MCP tool listing into provider tool specs.
func (inv *Invoker) loadTools(ctx context.Context) ([]ToolSpec, error) {
	mcpTools, err := inv.cfg.Tools.ListTools(ctx)
	if err != nil {
		return nil, err
	}

	specs := make([]ToolSpec, 0, len(mcpTools))
	for _, t := range mcpTools {
		schema := map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		}
		if len(t.InputSchema) > 0 {
			if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
				inv.logger.Warn().Str("tool", t.Name).Err(err).Msg("Unparseable tool schema, offering empty object")
			}
		}
		specs = append(specs, ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	return specs, nil
}

// callWithFailover tries auth profiles by priority until one succeeds.
func (inv *Invoker) callWithFailover(ctx context.Context, messages []Message, tools []ToolSpec) (*Response, error) {
	profiles := make([]AuthProfile, len(inv.cfg.Profiles))
	copy(profiles, inv.cfg.Profiles)
	sortProfilesByPriority(profiles)

	var lastErr error

	for _, profile := range profiles {
		provider, err := inv.factory.NewProvider(profile)
		if err != nil {
			inv.logger.Warn().Str("profile", profile.ID).Err(err).Msg("Failed to create provider")
			lastErr = err
			continue
		}

		response, err := inv.callWithRetry(ctx, provider, messages, tools)
		if err == nil {
			return response, nil
		}

		lastErr = err
		inv.logger.Warn().Str("profile", profile.ID).Err(err).Msg("Auth profile failed")

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !IsRetryableError(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("all auth profiles failed: %w", lastErr)
}

// callWithRetry calls the provider with exponential backoff.
func (inv *Invoker) callWithRetry(ctx context.Context, provider LLMProvider, messages []Message, tools []ToolSpec) (*Response, error) {
	request := Request{
		Model:        inv.cfg.Model,
		Messages:     messages,
		Tools:        tools,
		Temperature:  inv.cfg.Temperature,
		MaxTokens:    inv.cfg.MaxTokens,
		SystemPrompt: inv.currentSystemPrompt(),
	}

	var lastErr error

	for attempt := 0; attempt < inv.cfg.MaxRetries; attempt++ {
		response, err := provider.Call(ctx, request)
		if err == nil {
			return response, nil
		}

		lastErr = err

		if !IsRetryableError(err) {
			return nil, err
		}
		if attempt == inv.cfg.MaxRetries-1 {
			break
		}

		// Exponential backoff: 1s, 2s, 4s
		delay := time.Duration(1<<attempt) * time.Second
		inv.logger.Info().Int("attempt", attempt+1).Dur("delay", delay).Msg("Retrying after error")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", inv.cfg.MaxRetries, lastErr)
}
