// Package mcp implements a minimal Model Context Protocol client used to
// reach the SQL tool servers the specialist agents call. Two transports
// are supported: stdio (a spawned server process) and sse (a running
// HTTP server).
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
)

const protocolVersion = "2024-11-05"

// Tool describes a callable operation exposed by a tool server.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Client is a connection to one MCP tool server. Close must be called
// on every exit path; it is idempotent.
type Client interface {
	// Start establishes the connection and performs the initialize
	// handshake. Calling Start on a started client is a no-op.
	Start(ctx context.Context) error

	// ListTools fetches the tool definitions from the server.
	ListTools(ctx context.Context) ([]Tool, error)

	// CallTool executes a named tool and returns its text content.
	CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error)

	// Close releases the connection and any spawned process.
	Close() error
}

// New creates a client for the given transport. Supported transports
// are "stdio" (command + args) and "sse" (url).
func New(serverID, transport, url, command string, args []string, logger zerolog.Logger) (Client, error) {
	switch transport {
	case "stdio":
		if command == "" {
			return nil, fmt.Errorf("stdio transport requires a command")
		}
		return NewStdioClient(serverID, command, args, logger), nil
	case "sse":
		if url == "" {
			return nil, fmt.Errorf("sse transport requires a url")
		}
		return NewSSEClient(serverID, url, logger), nil
	default:
		return nil, fmt.Errorf("unknown MCP transport %q", transport)
	}
}

// JSON-RPC messages
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      interface{} `json:"id,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      interface{}     `json:"id"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func initializeParams() map[string]interface{} {
	return map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]interface{}{
			"name":    "Sleuth",
			"version": "0.1.0",
		},
	}
}

// decodeToolList parses a tools/list result.
func decodeToolList(result json.RawMessage) ([]Tool, error) {
	var listResult struct {
		Tools []Tool `json:"tools"`
	}
	if err := json.Unmarshal(result, &listResult); err != nil {
		return nil, fmt.Errorf("failed to decode tool list: %w", err)
	}
	return listResult.Tools, nil
}

// decodeToolContent flattens a tools/call result into its text content.
func decodeToolContent(result json.RawMessage) (string, error) {
	var callResult struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(result, &callResult); err != nil {
		return "", fmt.Errorf("failed to decode tool result: %w", err)
	}

	text := ""
	for _, c := range callResult.Content {
		if c.Type == "text" {
			text += c.Text
		}
	}

	if callResult.IsError {
		return "", fmt.Errorf("tool execution failed: %s", text)
	}
	return text, nil
}
