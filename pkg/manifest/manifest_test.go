package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validManifest = `[
  {
    "analysis_type": "late_payment_trend",
    "sql_template_path": "late_payment_trend.sql",
    "view_name": "v_late_payment_trend",
    "description": "Monthly trend of late mortgage payments",
    "udf_required": false
  },
  {
    "analysis_type": "default_rate_by_region",
    "sql_template_path": "default_rate_by_region.sql",
    "view_name": "v_default_rate_by_region"
  }
]`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "analysis_manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_ValidManifest(t *testing.T) {
	loader := NewLoader(writeManifest(t, validManifest), zerolog.Nop())

	require.NoError(t, loader.Load())

	entries := loader.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "late_payment_trend", entries[0].AnalysisType)
	assert.Equal(t, "late_payment_trend.sql", entries[0].SQLTemplatePath)
	assert.Equal(t, "v_late_payment_trend", entries[0].ViewName)

	assert.Contains(t, loader.JSON(), `"analysis_type": "late_payment_trend"`)
}

func TestLoad_MissingFileUsesEmptyManifest(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "nope.json"), zerolog.Nop())

	require.NoError(t, loader.Load())

	assert.Empty(t, loader.Entries())
	assert.Equal(t, "[]", loader.JSON())
}

func TestLoad_InvalidJSON(t *testing.T) {
	loader := NewLoader(writeManifest(t, "{not json"), zerolog.Nop())
	assert.ErrorContains(t, loader.Load(), "failed to parse manifest JSON")
}

func TestLoad_SchemaViolations(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not an array", `{"analysis_type": "x"}`},
		{"missing analysis_type", `[{"sql_template_path": "x.sql"}]`},
		{"missing sql_template_path", `[{"analysis_type": "x"}]`},
		{"empty analysis_type", `[{"analysis_type": "", "sql_template_path": "x.sql"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := NewLoader(writeManifest(t, tt.content), zerolog.Nop())
			assert.Error(t, loader.Load())
		})
	}
}

func TestLoad_FailureKeepsPreviousManifest(t *testing.T) {
	path := writeManifest(t, validManifest)
	loader := NewLoader(path, zerolog.Nop())
	require.NoError(t, loader.Load())

	require.NoError(t, os.WriteFile(path, []byte("broken"), 0o644))
	assert.Error(t, loader.Load())

	assert.Len(t, loader.Entries(), 2)
}

func TestEntryFor(t *testing.T) {
	loader := NewLoader(writeManifest(t, validManifest), zerolog.Nop())
	require.NoError(t, loader.Load())

	entry, ok := loader.EntryFor("default_rate_by_region")
	require.True(t, ok)
	assert.Equal(t, "default_rate_by_region.sql", entry.SQLTemplatePath)

	_, ok = loader.EntryFor("unknown_analysis")
	assert.False(t, ok)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeManifest(t, "[]")
	loader := NewLoader(path, zerolog.Nop())
	require.NoError(t, loader.Load())

	reloaded := make(chan struct{}, 1)
	watcher, err := NewWatcher(loader, 50*time.Millisecond, func() {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, watcher.Start())
	defer watcher.Stop()

	require.NoError(t, os.WriteFile(path, []byte(validManifest), 0o644))

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for manifest reload")
	}

	assert.Len(t, loader.Entries(), 2)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	loader := NewLoader(writeManifest(t, "[]"), zerolog.Nop())
	watcher, err := NewWatcher(loader, 0, nil, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, watcher.Start())

	assert.NoError(t, watcher.Stop())
	assert.NoError(t, watcher.Stop())
}
