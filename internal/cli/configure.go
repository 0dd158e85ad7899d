package cli

import (
	"fmt"
	"os"

	"github.com/maulida/sleuth/internal/config"
	"github.com/spf13/cobra"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write a starter configuration file",
	Long: `Write a starter configuration file with the default settings and
example agent definitions. Existing configuration is never overwritten.`,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	configPath := loader.GetConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration already exists at %s", configPath)
	}

	cfg := config.DefaultConfig()
	cfg.AI.Profiles = []config.AIProfile{
		{ID: "primary", Provider: "openai", APIKey: "sk-REPLACE-ME", Priority: 1},
	}
	cfg.MCP.Servers = []config.MCPServerConfig{
		{ID: "supabase", Transport: "sse", URL: "http://127.0.0.1:8000/sse/"},
		{ID: "clickhouse", Transport: "sse", URL: "http://127.0.0.1:8001/sse/"},
	}
	cfg.Agents = []config.AgentConfig{
		{ID: "supabase_analyst", Category: "supabase_analyst", Model: "gpt-4o", MCPServer: "supabase"},
		{ID: "clickhouse_auditor", Category: "clickhouse_analyst", Model: "gpt-4o", MCPServer: "clickhouse"},
	}
	cfg.Audit.Agent = "clickhouse_auditor"

	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Printf("Configuration saved to: %s\n", configPath)
	fmt.Println("Edit the API key and MCP server URLs, then start with: sleuth serve")
	return nil
}
