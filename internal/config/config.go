package config

// Config represents the main Sleuth configuration
type Config struct {
	// Store
	Store StoreConfig `json:"store" mapstructure:"store"`

	// MCP tool servers
	MCP MCPConfig `json:"mcp" mapstructure:"mcp"`

	// AI provider profiles
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Router
	Router RouterConfig `json:"router" mapstructure:"router"`

	// Specialist agents
	Agents []AgentConfig `json:"agents" mapstructure:"agents"`

	// Batch audit
	Audit AuditConfig `json:"audit" mapstructure:"audit"`

	// HTTP server
	HTTP HTTPConfig `json:"http" mapstructure:"http"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Analysis manifest
	Manifest ManifestConfig `json:"manifest" mapstructure:"manifest"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// StoreConfig holds question/answer store configuration
type StoreConfig struct {
	// Path to the sqlite database file
	Path string `json:"path" mapstructure:"path"`
}

// MCPConfig holds MCP tool server configuration
type MCPConfig struct {
	Servers []MCPServerConfig `json:"servers" mapstructure:"servers"`
}

// MCPServerConfig describes one MCP tool server
type MCPServerConfig struct {
	ID        string   `json:"id" mapstructure:"id"`
	Transport string   `json:"transport" mapstructure:"transport"` // stdio, sse
	URL       string   `json:"url" mapstructure:"url"`             // sse transport
	Command   string   `json:"command" mapstructure:"command"`     // stdio transport
	Args      []string `json:"args" mapstructure:"args"`
}

// AIConfig holds AI provider configuration
type AIConfig struct {
	Profiles []AIProfile `json:"profiles" mapstructure:"profiles"`
}

// AIProfile represents an AI provider profile
type AIProfile struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, openai
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	Priority int    `json:"priority" mapstructure:"priority"`
}

// RouterConfig holds orchestrator routing configuration
type RouterConfig struct {
	Model           string `json:"model" mapstructure:"model"`
	DefaultCategory string `json:"default_category" mapstructure:"default_category"`
}

// AgentConfig represents a specialist agent configuration
type AgentConfig struct {
	ID          string  `json:"id" mapstructure:"id"`
	Category    string  `json:"category" mapstructure:"category"` // routing category served by this agent
	Model       string  `json:"model" mapstructure:"model"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
	MaxSteps    int     `json:"max_steps" mapstructure:"max_steps"`
	MCPServer   string  `json:"mcp_server" mapstructure:"mcp_server"`
}

// AuditConfig holds batch audit configuration
type AuditConfig struct {
	// Per-item invocation timeout in seconds
	InvocationTimeout int `json:"invocation_timeout" mapstructure:"invocation_timeout"`
	// Optional cron expression for scheduled runs
	Schedule string `json:"schedule" mapstructure:"schedule"`
	// Agent used for batch runs, by id
	Agent string `json:"agent" mapstructure:"agent"`
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// ManifestConfig holds analysis manifest configuration
type ManifestConfig struct {
	Path  string `json:"path" mapstructure:"path"`
	Watch bool   `json:"watch" mapstructure:"watch"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Router: RouterConfig{
			Model:           "llama3-70b-8192",
			DefaultCategory: "clickhouse_analyst",
		},
		Audit: AuditConfig{
			InvocationTimeout: 180,
		},
		HTTP: HTTPConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Redaction: true,
		},
		Manifest: ManifestConfig{
			Watch: true,
		},
	}
}

// AgentByID returns the agent config with the given id, or nil
func (c *Config) AgentByID(id string) *AgentConfig {
	for i := range c.Agents {
		if c.Agents[i].ID == id {
			return &c.Agents[i]
		}
	}
	return nil
}

// AgentByCategory returns the agent config serving the given routing
// category, or nil
func (c *Config) AgentByCategory(category string) *AgentConfig {
	for i := range c.Agents {
		if c.Agents[i].Category == category {
			return &c.Agents[i]
		}
	}
	return nil
}

// MCPServerByID returns the MCP server config with the given id, or nil
func (c *Config) MCPServerByID(id string) *MCPServerConfig {
	for i := range c.MCP.Servers {
		if c.MCP.Servers[i].ID == id {
			return &c.MCP.Servers[i]
		}
	}
	return nil
}
