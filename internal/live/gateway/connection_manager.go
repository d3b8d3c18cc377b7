package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/pitchside/livematch/internal/live/protocol"
)

// CommandRouter receives decoded client commands and disconnect
// notifications. The room manager implements it; the split exists so
// the transport layer never touches room state directly.
type CommandRouter interface {
	HandleCommand(conn *Connection, env protocol.Envelope)
	HandleDisconnect(conn *Connection, matchIDs []string)
}

// ConnectionManager manages WebSocket connections for live match reporting
type ConnectionManager struct {
	// Connection pools organized by match ID; the map value carries the
	// team the connection joined the room with, for team-scoped fan-out
	rooms map[string]map[*Connection]string
	// All live connections, joined to a room or not
	connections map[*Connection]bool
	mu          sync.RWMutex

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	// Connection configuration
	config ConnectionConfig

	// Inbound command routing, set once before Start
	router CommandRouter

	// Event broadcasting
	broadcastCh chan BroadcastMessage

	metrics MetricsCollector
}

// Connection represents a WebSocket connection to a reporter's client
type Connection struct {
	ID       string
	UserID   string
	Username string
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	// stop is closed exactly once when the connection is torn down; the
	// write pump exits on it instead of on a closed Send channel, so a
	// broadcast racing a teardown can never panic
	stop     chan struct{}
	stopOnce sync.Once

	// Connection metadata
	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage represents a message to fan out to room connections
type BroadcastMessage struct {
	MatchID string
	Env     protocol.Envelope
	// UserID, if set, restricts delivery to that reporter only
	UserID string
	// TeamID, if set, restricts delivery to reporters who joined the
	// room for that team
	TeamID string
	// ExcludeUserID, if set, skips that reporter (typing relays never
	// echo to their sender)
	ExcludeUserID string
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, metrics MetricsCollector) *ConnectionManager {
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}
	cm := &ConnectionManager{
		rooms:       make(map[string]map[*Connection]string),
		connections: make(map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, 1000), // Buffer for high throughput
		metrics:     metrics,
	}

	return cm
}

// SetRouter wires the command router. Must be called before the first
// connection is accepted.
func (cm *ConnectionManager) SetRouter(router CommandRouter) {
	cm.router = router
}

// Start begins processing broadcast messages
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and starts
// its pumps. The connection joins match rooms later via join_match
// commands.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID, username string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		Username:    username,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		stop:        make(chan struct{}),
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", userID).
		Str("username", username).
		Msg("WebSocket connection established")

	return nil
}

// registerConnection adds a connection to the manager
func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	cm.connections[conn] = true
	total := len(cm.connections)
	cm.mu.Unlock()

	cm.metrics.RecordConnectionOpened()

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", total).
		Msg("connection registered")
}

// unregisterConnection removes a connection from the manager and every
// room it joined, then notifies the router exactly once so the rooms
// can emit reporter_left for it.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	if !cm.connections[conn] {
		cm.mu.Unlock()
		return
	}
	delete(cm.connections, conn)

	var matchIDs []string
	for matchID, members := range cm.rooms {
		if _, ok := members[conn]; ok {
			delete(members, conn)
			matchIDs = append(matchIDs, matchID)
			if len(members) == 0 {
				delete(cm.rooms, matchID)
			}
		}
	}
	cm.mu.Unlock()

	conn.close()
	cm.metrics.RecordConnectionClosed()

	log.Info().
		Str("connection_id", conn.ID).
		Str("user_id", conn.UserID).
		Strs("match_ids", matchIDs).
		Msg("connection unregistered")

	if cm.router != nil {
		cm.router.HandleDisconnect(conn, matchIDs)
	}
}

// JoinRoom adds the connection to a match room pool with its team. It
// reports false when the connection was already torn down.
func (cm *ConnectionManager) JoinRoom(conn *Connection, matchID, teamID string) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.connections[conn] {
		return false
	}
	if cm.rooms[matchID] == nil {
		cm.rooms[matchID] = make(map[*Connection]string)
	}
	cm.rooms[matchID][conn] = teamID
	return true
}

// LeaveRoom removes the connection from a match room pool.
func (cm *ConnectionManager) LeaveRoom(conn *Connection, matchID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	members, ok := cm.rooms[matchID]
	if !ok {
		return
	}
	delete(members, conn)
	if len(members) == 0 {
		delete(cm.rooms, matchID)
	}
}

// Broadcast queues a message for fan-out to a match room.
func (cm *ConnectionManager) Broadcast(message BroadcastMessage) {
	select {
	case cm.broadcastCh <- message:
	default:
		cm.metrics.RecordBroadcastDropped(string(message.Env.Type))
		log.Warn().Str("match_id", message.MatchID).Msg("broadcast channel full, dropping message")
	}
}

// handleBroadcast processes a broadcast message
func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	cm.mu.RLock()
	members, exists := cm.rooms[message.MatchID]
	if !exists {
		cm.mu.RUnlock()
		return
	}

	// Create a snapshot of connections to avoid holding lock during broadcast
	var targets []*Connection
	for conn, teamID := range members {
		if message.UserID != "" && conn.UserID != message.UserID {
			continue
		}
		if message.ExcludeUserID != "" && conn.UserID == message.ExcludeUserID {
			continue
		}
		if message.TeamID != "" && teamID != message.TeamID {
			continue
		}
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	// Marshal the envelope once
	data, err := json.Marshal(message.Env)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal envelope for broadcast")
		return
	}

	for _, conn := range targets {
		select {
		case conn.Send <- data:
		default:
			// Connection is slow/dead, close it
			log.Warn().
				Str("connection_id", conn.ID).
				Str("user_id", conn.UserID).
				Msg("connection send buffer full, closing connection")
			cm.metrics.RecordBroadcastDropped(string(message.Env.Type))
			cm.unregisterConnection(conn)
		}
	}

	cm.metrics.RecordBroadcast(string(message.Env.Type), len(targets))

	log.Debug().
		Str("message_type", string(message.Env.Type)).
		Str("match_id", message.MatchID).
		Int("connections", len(targets)).
		Msg("message broadcasted")
}

// closeAll tears down every connection, used on shutdown.
func (cm *ConnectionManager) closeAll() {
	cm.mu.Lock()
	conns := make([]*Connection, 0, len(cm.connections))
	for conn := range cm.connections {
		conns = append(conns, conn)
	}
	cm.mu.Unlock()

	for _, conn := range conns {
		cm.unregisterConnection(conn)
	}
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	roomCounts := make(map[string]int)
	for matchID, members := range cm.rooms {
		roomCounts[matchID] = len(members)
	}

	return map[string]interface{}{
		"total_connections": len(cm.connections),
		"active_matches":    len(cm.rooms),
		"match_connections": roomCounts,
	}
}

// close releases the connection's transport exactly once.
func (c *Connection) close() {
	c.stopOnce.Do(func() {
		close(c.stop)
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case <-c.stop:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage decodes one inbound frame and routes it. A frame
// that fails to decode is logged and dropped; the connection stays up.
func (c *Connection) handleClientMessage(message []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		log.Warn().
			Err(err).
			Str("connection_id", c.ID).
			Str("user_id", c.UserID).
			Msg("dropping undecodable client message")
		return
	}
	if err := env.Validate(); err != nil {
		log.Warn().
			Err(err).
			Str("connection_id", c.ID).
			Str("user_id", c.UserID).
			Msg("dropping invalid client message")
		return
	}

	c.Manager.metrics.RecordCommand(string(env.Type))

	if c.Manager.router != nil {
		c.Manager.router.HandleCommand(c, env)
	}
}
