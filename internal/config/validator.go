package config

import (
	"fmt"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateMCPServer validates an MCP server entry
func (v *Validator) ValidateMCPServer(s MCPServerConfig) error {
	if s.ID == "" {
		return fmt.Errorf("mcp server id cannot be empty")
	}
	switch s.Transport {
	case "stdio":
		if s.Command == "" {
			return fmt.Errorf("mcp server %q: stdio transport requires a command", s.ID)
		}
	case "sse":
		if s.URL == "" {
			return fmt.Errorf("mcp server %q: sse transport requires a url", s.ID)
		}
	default:
		return fmt.Errorf("mcp server %q: unknown transport %q", s.ID, s.Transport)
	}
	return nil
}

// Validate checks that the configuration is complete enough to start.
// Missing required settings refuse startup rather than failing later
// mid-batch.
func (v *Validator) Validate(cfg *Config) error {
	if cfg.Store.Path == "" {
		return fmt.Errorf("store path is required")
	}

	if len(cfg.AI.Profiles) == 0 {
		return fmt.Errorf("at least one AI profile is required")
	}
	for _, p := range cfg.AI.Profiles {
		if p.Provider != "anthropic" && p.Provider != "openai" {
			return fmt.Errorf("ai profile %q: unsupported provider %q", p.ID, p.Provider)
		}
		if err := v.ValidateAPIKey(p.APIKey, p.Provider); err != nil {
			return fmt.Errorf("ai profile %q: %w", p.ID, err)
		}
	}

	if len(cfg.MCP.Servers) == 0 {
		return fmt.Errorf("at least one MCP tool server is required")
	}
	for _, s := range cfg.MCP.Servers {
		if err := v.ValidateMCPServer(s); err != nil {
			return err
		}
	}

	if len(cfg.Agents) == 0 {
		return fmt.Errorf("at least one agent is required")
	}
	for _, a := range cfg.Agents {
		if a.ID == "" {
			return fmt.Errorf("agent id cannot be empty")
		}
		if a.Model == "" {
			return fmt.Errorf("agent %q: model cannot be empty", a.ID)
		}
		if a.MCPServer != "" && cfg.MCPServerByID(a.MCPServer) == nil {
			return fmt.Errorf("agent %q: unknown mcp server %q", a.ID, a.MCPServer)
		}
	}

	if cfg.Audit.Agent != "" && cfg.AgentByID(cfg.Audit.Agent) == nil {
		return fmt.Errorf("audit agent %q is not configured", cfg.Audit.Agent)
	}
	if cfg.Audit.InvocationTimeout <= 0 {
		return fmt.Errorf("audit invocation timeout must be positive")
	}

	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535")
	}

	return nil
}
