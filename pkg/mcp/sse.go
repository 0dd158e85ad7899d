package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SSEClient talks to a running MCP server over HTTP: an SSE stream
// carries responses, requests are POSTed to the message endpoint the
// server announces on connect.
type SSEClient struct {
	serverID string
	baseURL  string
	httpc    *http.Client
	logger   zerolog.Logger

	mu         sync.Mutex
	stream     io.Closer
	messageURL string
	endpointCh chan string
	id         int
	pending    map[int]chan *rpcResponse
	started    bool
	closed     bool
}

// NewSSEClient creates a client for a running SSE MCP server.
func NewSSEClient(serverID, baseURL string, logger zerolog.Logger) *SSEClient {
	return &SSEClient{
		serverID:   serverID,
		baseURL:    baseURL,
		httpc:      &http.Client{},
		logger:     logger.With().Str("component", "mcp").Str("server", serverID).Logger(),
		endpointCh: make(chan string, 1),
		pending:    make(map[int]chan *rpcResponse),
	}
}

// Start opens the SSE stream, waits for the message endpoint
// announcement and performs the initialize handshake.
func (c *SSEClient) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("mcp client is closed")
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to MCP server %q: %w", c.serverID, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("MCP server %q returned status %d", c.serverID, resp.StatusCode)
	}

	c.mu.Lock()
	c.stream = resp.Body
	c.mu.Unlock()

	go c.listen(resp.Body)

	select {
	case endpoint := <-c.endpointCh:
		messageURL, err := c.resolveEndpoint(endpoint)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.messageURL = messageURL
		c.mu.Unlock()
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(15 * time.Second):
		return fmt.Errorf("timed out waiting for MCP endpoint announcement")
	}

	if _, err := c.call(ctx, "initialize", initializeParams()); err != nil {
		return fmt.Errorf("initialize handshake failed: %w", err)
	}

	c.logger.Info().Str("url", c.baseURL).Msg("Connected to MCP server")
	return nil
}

// resolveEndpoint resolves the announced message path against the base URL.
func (c *SSEClient) resolveEndpoint(endpoint string) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	ref, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint announcement %q: %w", endpoint, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// listen reads SSE events off the stream. The endpoint event carries
// the message URL; message events carry JSON-RPC responses.
func (c *SSEClient) listen(body io.Reader) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	event := ""
	var data bytes.Buffer

	dispatch := func() {
		defer func() {
			event = ""
			data.Reset()
		}()

		switch event {
		case "endpoint":
			select {
			case c.endpointCh <- strings.TrimSpace(data.String()):
			default:
			}
		case "message", "":
			if data.Len() == 0 {
				return
			}
			var resp rpcResponse
			if err := json.Unmarshal(data.Bytes(), &resp); err != nil {
				c.logger.Error().Err(err).Msg("Failed to unmarshal MCP response")
				return
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

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			dispatch()
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
}

func (c *SSEClient) call(ctx context.Context, method string, params interface{}) (*rpcResponse, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("mcp client is closed")
	}
	c.id++
	id := c.id
	ch := make(chan *rpcResponse, 1)
	c.pending[id] = ch
	messageURL := c.messageURL
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

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, messageURL, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to post MCP request: %w", err)
	}
	defer httpResp.Body.Close()

	// Some servers answer the POST directly instead of over the stream.
	if httpResp.StatusCode == http.StatusOK &&
		strings.HasPrefix(httpResp.Header.Get("Content-Type"), "application/json") {
		var resp rpcResponse
		if err := json.NewDecoder(httpResp.Body).Decode(&resp); err == nil && resp.ID != nil {
			c.mu.Lock()
			delete(c.pending, id)
			c.mu.Unlock()
			if resp.Error != nil {
				return nil, fmt.Errorf("MCP error (%d): %s", resp.Error.Code, resp.Error.Message)
			}
			return &resp, nil
		}
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
func (c *SSEClient) ListTools(ctx context.Context) ([]Tool, error) {
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
func (c *SSEClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
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

// Close tears down the SSE stream. Safe to call more than once.
func (c *SSEClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.stream != nil {
		c.stream.Close()
		c.stream = nil
	}

	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}

	c.logger.Info().Msg("Disconnected from MCP server")
	return nil
}
