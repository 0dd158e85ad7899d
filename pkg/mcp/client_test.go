package mcp

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("stdio", func(t *testing.T) {
		c, err := New("ch", "stdio", "", "mcp-clickhouse", []string{"--stdio"}, zerolog.Nop())
		require.NoError(t, err)
		assert.IsType(t, &StdioClient{}, c)
	})

	t.Run("sse", func(t *testing.T) {
		c, err := New("ch", "sse", "http://127.0.0.1:8000/sse/", "", nil, zerolog.Nop())
		require.NoError(t, err)
		assert.IsType(t, &SSEClient{}, c)
	})

	t.Run("stdio without command", func(t *testing.T) {
		_, err := New("ch", "stdio", "", "", nil, zerolog.Nop())
		assert.Error(t, err)
	})

	t.Run("sse without url", func(t *testing.T) {
		_, err := New("ch", "sse", "", "", nil, zerolog.Nop())
		assert.Error(t, err)
	})

	t.Run("unknown transport", func(t *testing.T) {
		_, err := New("ch", "websocket", "", "", nil, zerolog.Nop())
		assert.Error(t, err)
	})
}

func TestDecodeToolList(t *testing.T) {
	raw := json.RawMessage(`{
		"tools": [
			{"name": "run_select_query", "description": "Run a SELECT query", "inputSchema": {"type": "object"}},
			{"name": "list_databases", "description": "List databases"}
		]
	}`)

	tools, err := decodeToolList(raw)
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "run_select_query", tools[0].Name)
	assert.JSONEq(t, `{"type":"object"}`, string(tools[0].InputSchema))
}

func TestDecodeToolContent(t *testing.T) {
	t.Run("concatenates text blocks", func(t *testing.T) {
		raw := json.RawMessage(`{"content": [
			{"type": "text", "text": "412"},
			{"type": "text", "text": " events"}
		]}`)

		text, err := decodeToolContent(raw)
		require.NoError(t, err)
		assert.Equal(t, "412 events", text)
	})

	t.Run("surfaces tool errors", func(t *testing.T) {
		raw := json.RawMessage(`{"isError": true, "content": [{"type": "text", "text": "table missing"}]}`)

		_, err := decodeToolContent(raw)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "table missing")
	})

	t.Run("ignores non-text content", func(t *testing.T) {
		raw := json.RawMessage(`{"content": [{"type": "image", "text": "ignored-by-type"}, {"type": "text", "text": "ok"}]}`)

		text, err := decodeToolContent(raw)
		require.NoError(t, err)
		assert.Equal(t, "ok", text)
	})
}
