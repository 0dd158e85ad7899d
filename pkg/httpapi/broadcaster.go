package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/maulida/sleuth/pkg/audit"
	"github.com/rs/zerolog"
)

// RunEvent is one websocket frame describing a batch run outcome.
type RunEvent struct {
	Type      string        `json:"type"`
	RunID     string        `json:"run_id"`
	Outcome   audit.Outcome `json:"outcome"`
	Timestamp int64         `json:"timestamp"`
	Seq       int64         `json:"seq"`
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// RunBroadcaster fans batch run outcomes out to websocket subscribers.
// A slow or broken subscriber is dropped; it never blocks the run.
type RunBroadcaster struct {
	upgrader websocket.Upgrader
	logger   zerolog.Logger
	seq      uint64

	mu      sync.RWMutex
	clients map[string]*wsClient
}

// NewRunBroadcaster creates a broadcaster with no subscribers.
func NewRunBroadcaster(logger zerolog.Logger) *RunBroadcaster {
	return &RunBroadcaster{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger.With().Str("component", "run-broadcaster").Logger(),
		clients: make(map[string]*wsClient),
	}
}

// ServeHTTP upgrades the connection and subscribes it until it closes.
func (b *RunBroadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	client := &wsClient{id: uuid.New().String(), conn: conn}

	b.mu.Lock()
	b.clients[client.id] = client
	b.mu.Unlock()

	b.logger.Debug().Str("client_id", client.id).Msg("Run stream client connected")

	// Drain the read side so pings and close frames are processed.
	go func() {
		defer b.remove(client.id)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					b.logger.Debug().Err(err).Str("client_id", client.id).Msg("Run stream client error")
				}
				return
			}
		}
	}()
}

// Observer adapts the broadcaster to the batch runner's outcome hook.
func (b *RunBroadcaster) Observer() audit.Observer {
	return func(runID string, outcome audit.Outcome) {
		b.broadcast(RunEvent{
			Type:      "outcome",
			RunID:     runID,
			Outcome:   outcome,
			Timestamp: time.Now().UnixMilli(),
			Seq:       int64(atomic.AddUint64(&b.seq, 1)),
		})
	}
}

func (b *RunBroadcaster) broadcast(event RunEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to marshal run event")
		return
	}

	b.mu.RLock()
	clients := make([]*wsClient, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, client := range clients {
		if err := client.write(data); err != nil {
			b.logger.Warn().Err(err).Str("client_id", client.id).Msg("Dropping run stream client")
			b.remove(client.id)
		}
	}
}

func (b *RunBroadcaster) remove(id string) {
	b.mu.Lock()
	client, ok := b.clients[id]
	if ok {
		delete(b.clients, id)
	}
	b.mu.Unlock()

	if ok {
		client.conn.Close()
	}
}

// Close disconnects all subscribers.
func (b *RunBroadcaster) Close() {
	b.mu.Lock()
	clients := b.clients
	b.clients = make(map[string]*wsClient)
	b.mu.Unlock()

	for _, client := range clients {
		client.conn.Close()
	}
}
