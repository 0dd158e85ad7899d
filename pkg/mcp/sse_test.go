package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSSEServer serves an SSE stream that announces a message endpoint
// and answers JSON-RPC POSTs directly with JSON bodies.
func fakeSSEServer(t *testing.T, handle func(method string, params json.RawMessage) (interface{}, *rpcError)) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/sse/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)

		fmt.Fprintf(w, "event: endpoint\ndata: /message\n\n")
		flusher.Flush()

		<-r.Context().Done()
	})

	mux.HandleFunc("/message", func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		params, _ := json.Marshal(req.Params)
		result, rpcErr := handle(req.Method, params)

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSSEClient(t *testing.T) {
	handle := func(method string, params json.RawMessage) (interface{}, *rpcError) {
		switch method {
		case "initialize":
			return map[string]interface{}{"protocolVersion": protocolVersion}, nil
		case "tools/list":
			return map[string]interface{}{
				"tools": []map[string]interface{}{
					{"name": "run_select_query", "description": "Run a SELECT query"},
				},
			}, nil
		case "tools/call":
			var call struct {
				Name      string                 `json:"name"`
				Arguments map[string]interface{} `json:"arguments"`
			}
			if err := json.Unmarshal(params, &call); err != nil {
				return nil, &rpcError{Code: -32602, Message: "bad params"}
			}
			if call.Name != "run_select_query" {
				return nil, &rpcError{Code: -32601, Message: "unknown tool"}
			}
			return map[string]interface{}{
				"content": []map[string]interface{}{{"type": "text", "text": "412 events"}},
			}, nil
		default:
			return nil, &rpcError{Code: -32601, Message: "unknown method"}
		}
	}

	t.Run("lists and calls tools over a running server", func(t *testing.T) {
		srv := fakeSSEServer(t, handle)
		c := NewSSEClient("clickhouse", srv.URL+"/sse/", zerolog.Nop())
		defer c.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		tools, err := c.ListTools(ctx)
		require.NoError(t, err)
		require.Len(t, tools, 1)
		assert.Equal(t, "run_select_query", tools[0].Name)

		out, err := c.CallTool(ctx, "run_select_query", map[string]interface{}{
			"query": "SELECT count() FROM events",
		})
		require.NoError(t, err)
		assert.Equal(t, "412 events", out)
	})

	t.Run("surfaces rpc errors", func(t *testing.T) {
		srv := fakeSSEServer(t, handle)
		c := NewSSEClient("clickhouse", srv.URL+"/sse/", zerolog.Nop())
		defer c.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, err := c.CallTool(ctx, "drop_table", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown tool")
	})

	t.Run("start is idempotent", func(t *testing.T) {
		srv := fakeSSEServer(t, handle)
		c := NewSSEClient("clickhouse", srv.URL+"/sse/", zerolog.Nop())
		defer c.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		require.NoError(t, c.Start(ctx))
		require.NoError(t, c.Start(ctx))
	})

	t.Run("close is idempotent and calls after close fail", func(t *testing.T) {
		srv := fakeSSEServer(t, handle)
		c := NewSSEClient("clickhouse", srv.URL+"/sse/", zerolog.Nop())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		require.NoError(t, c.Start(ctx))
		require.NoError(t, c.Close())
		require.NoError(t, c.Close())

		_, err := c.CallTool(ctx, "run_select_query", nil)
		assert.Error(t, err)
	})

	t.Run("unreachable server fails start", func(t *testing.T) {
		c := NewSSEClient("clickhouse", "http://127.0.0.1:1/sse/", zerolog.Nop())
		defer c.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		assert.Error(t, c.Start(ctx))
	})
}
