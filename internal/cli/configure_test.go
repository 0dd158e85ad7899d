package cli

import (
	"path/filepath"
	"testing"

	"github.com/maulida/sleuth/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunConfigure(t *testing.T) {
	original := cfgFile
	defer func() { cfgFile = original }()

	cfgFile = filepath.Join(t.TempDir(), "sleuth.json")

	require.NoError(t, runConfigure(configureCmd, nil))

	cfg, err := config.NewLoader(cfgFile).Load()
	require.NoError(t, err)
	assert.Len(t, cfg.AI.Profiles, 1)
	assert.Len(t, cfg.Agents, 2)
	assert.Equal(t, "clickhouse_auditor", cfg.Audit.Agent)
	assert.NotNil(t, cfg.AgentByCategory("supabase_analyst"))

	// Never overwrites an existing config.
	assert.ErrorContains(t, runConfigure(configureCmd, nil), "already exists")
}
