package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Store.Path = "/tmp/sleuth.db"
	cfg.AI.Profiles = []AIProfile{
		{ID: "primary", Provider: "openai", APIKey: "sk-test1234567890", Priority: 1},
	}
	cfg.MCP.Servers = []MCPServerConfig{
		{ID: "clickhouse", Transport: "sse", URL: "http://127.0.0.1:8000/sse/"},
	}
	cfg.Agents = []AgentConfig{
		{ID: "clickhouse-auditor", Category: "clickhouse_analyst", Model: "gpt-4.1-mini", MCPServer: "clickhouse"},
	}
	return cfg
}

func TestValidate(t *testing.T) {
	v := NewValidator()

	t.Run("should accept a complete config", func(t *testing.T) {
		require.NoError(t, v.Validate(validConfig()))
	})

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing store path",
			mutate:  func(c *Config) { c.Store.Path = "" },
			wantErr: "store path",
		},
		{
			name:    "no ai profiles",
			mutate:  func(c *Config) { c.AI.Profiles = nil },
			wantErr: "AI profile",
		},
		{
			name:    "unsupported provider",
			mutate:  func(c *Config) { c.AI.Profiles[0].Provider = "groq" },
			wantErr: "unsupported provider",
		},
		{
			name:    "bad anthropic key",
			mutate:  func(c *Config) { c.AI.Profiles[0] = AIProfile{ID: "a", Provider: "anthropic", APIKey: "sk-wrong"} },
			wantErr: "sk-ant-",
		},
		{
			name:    "no mcp servers",
			mutate:  func(c *Config) { c.MCP.Servers = nil },
			wantErr: "MCP tool server",
		},
		{
			name:    "sse server without url",
			mutate:  func(c *Config) { c.MCP.Servers[0].URL = "" },
			wantErr: "requires a url",
		},
		{
			name:    "stdio server without command",
			mutate:  func(c *Config) { c.MCP.Servers[0] = MCPServerConfig{ID: "s", Transport: "stdio"} },
			wantErr: "requires a command",
		},
		{
			name:    "unknown transport",
			mutate:  func(c *Config) { c.MCP.Servers[0].Transport = "grpc" },
			wantErr: "unknown transport",
		},
		{
			name:    "no agents",
			mutate:  func(c *Config) { c.Agents = nil },
			wantErr: "at least one agent",
		},
		{
			name:    "agent references unknown mcp server",
			mutate:  func(c *Config) { c.Agents[0].MCPServer = "missing" },
			wantErr: "unknown mcp server",
		},
		{
			name:    "audit agent not configured",
			mutate:  func(c *Config) { c.Audit.Agent = "missing" },
			wantErr: "not configured",
		},
		{
			name:    "non-positive invocation timeout",
			mutate:  func(c *Config) { c.Audit.InvocationTimeout = 0 },
			wantErr: "timeout",
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.HTTP.Port = 70000 },
			wantErr: "port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := v.Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
