package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// StdioClient talks to an MCP server spawned as a child process,
// newline-delimited JSON-RPC over its pipes.
type StdioClient struct {
	serverID string
	command  string
	args     []string
	logger   zerolog.Logger

	mu      sync.Mutex
	process *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Scanner
	id      int
	pending map[int]chan *rpcResponse
	closed  bool
}

// NewStdioClient creates a client for a stdio MCP server.
func NewStdioClient(serverID, command string, args []string, logger zerolog.Logger) *StdioClient {
	return &StdioClient{
		serverID: serverID,
		command:  command,
		args:     args,
		logger:   logger.With().Str("component", "mcp").Str("server", serverID).Logger(),
		pending:  make(map[int]chan *rpcResponse),
	}
}

// Start spawns the server process and performs the initialize handshake.
func (c *StdioClient) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("mcp client is closed")
	}
	if c.process != nil {
		c.mu.Unlock()
		return nil
	}

	cmd := exec.Command(c.command, c.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		c.mu.Unlock()
		return err
	}

	if err := cmd.Start(); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to start MCP server %q: %w", c.serverID, err)
	}

	c.process = cmd
	c.stdin = stdin
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	c.stdout = scanner
	c.mu.Unlock()

	go c.listen()

	if _, err := c.call(ctx, "initialize", initializeParams()); err != nil {
		return fmt.Errorf("initialize handshake failed: %w", err)
	}

	c.logger.Info().Msg("MCP server started")
	return nil
}

func (c *StdioClient) listen() {
	for c.stdout.Scan() {
		var resp rpcResponse
		if err := json.Unmarshal(c.stdout.Bytes(), &resp); err != nil {
			c.logger.Error().Err(err).Msg("Failed to unmarshal MCP response")
			continue
		}

		if id, ok := resp.ID.(float64); ok {
			c.mu.Lock()
			ch, exists := c.pending[int(id)]
			if exists {
				delete(c.pending, int(id))
				ch <- &resp
			}
			c.mu.Unlock()
		}
	}
}

func (c *StdioClient) call(ctx context.Context, method string, params interface{}) (*rpcResponse, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("mcp client is closed")
	}
	c.id++
	id := c.id
	ch := make(chan *rpcResponse, 1)
	c.pending[id] = ch
	stdin := c.stdin
	c.mu.Unlock()

	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      id,
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	if _, err := io.WriteString(stdin, string(data)+"\n"); err != nil {
		return nil, fmt.Errorf("failed to write MCP request: %w", err)
	}

	select {
	case resp := <-ch:
		if resp == nil {
			return nil, fmt.Errorf("mcp client is closed")
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("MCP error (%d): %s", resp.Error.Code, resp.Error.Message)
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(60 * time.Second):
		return nil, fmt.Errorf("MCP request timeout")
	}
}

// ListTools fetches the tool definitions from the server.
func (c *StdioClient) ListTools(ctx context.Context) ([]Tool, error) {
	if err := c.Start(ctx); err != nil {
		return nil, err
	}

	resp, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	return decodeToolList(resp.Result)
}

// CallTool executes a named tool and returns its text content.
func (c *StdioClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	if err := c.Start(ctx); err != nil {
		return "", err
	}

	resp, err := c.call(ctx, "tools/call", map[string]interface{}{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return "", err
	}
	return decodeToolContent(resp.Result)
}

// Close terminates the server process. Safe to call more than once.
func (c *StdioClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.stdin != nil {
		c.stdin.Close()
	}
	if c.process != nil {
		if err := c.process.Process.Kill(); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to kill MCP server process")
		}
		c.process.Wait()
		c.process = nil
	}

	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}

	c.logger.Info().Msg("MCP server stopped")
	return nil
}
