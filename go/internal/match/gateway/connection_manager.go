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
	"github.com/mcdev12/arena/go/internal/match/events"
	"github.com/rs/zerolog/log"
)

// AllMatches is the pool key for spectators that watch every match.
var AllMatches = uuid.Nil

// ConnectionManager manages WebSocket connections for match notifications
type ConnectionManager struct {
	// Connection pools organized by match ID
	matchConnections map[uuid.UUID]map[*Connection]bool
	mu               sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan BroadcastMessage

	// last match-wide notification per match, replayed to late joiners
	latest   map[uuid.UUID][]byte
	latestMu sync.Mutex
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID      string
	UserID  string
	MatchID uuid.UUID
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

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

// BroadcastMessage represents a notification to fan out
type BroadcastMessage struct {
	MatchID uuid.UUID
	Event   events.Notification
	UserID  string // Optional: if set, only send to this user
}

// ConnectionStats summarises the open connections
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveMatches    int            `json:"active_matches"`
	PerMatch         map[string]int `json:"match_connections"`
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = DefaultConnectionConfig().SendBufferSize
	}
	return &ConnectionManager{
		matchConnections: make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, 1000),
		latest:      make(map[uuid.UUID][]byte),
	}
}

// Start processes broadcast messages until ctx is done
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			cm.closeAll()
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// Observe forwards a bus notification to the match's watchers.
func (cm *ConnectionManager) Observe(n events.Notification) {
	cm.BroadcastToMatch(n.MatchID, n)
}

// UpgradeConnection upgrades an HTTP connection to WebSocket
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID string, matchID uuid.UUID) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		MatchID:     matchID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", userID).
		Str("match_id", matchID.String()).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.matchConnections[conn.MatchID] == nil {
		cm.matchConnections[conn.MatchID] = make(map[*Connection]bool)
	}
	cm.matchConnections[conn.MatchID][conn] = true

	if data, ok := cm.latestFor(conn.MatchID); ok {
		conn.Send <- data
	}

	log.Debug().
		Str("connection_id", conn.ID).
		Str("match_id", conn.MatchID.String()).
		Int("total_connections", len(cm.matchConnections[conn.MatchID])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	connections, exists := cm.matchConnections[conn.MatchID]
	if !exists {
		return
	}
	if _, exists := connections[conn]; !exists {
		return
	}

	delete(connections, conn)
	close(conn.Send)
	if len(connections) == 0 {
		delete(cm.matchConnections, conn.MatchID)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("user_id", conn.UserID).
		Str("match_id", conn.MatchID.String()).
		Msg("connection unregistered")
}

func (cm *ConnectionManager) latestFor(matchID uuid.UUID) ([]byte, bool) {
	if matchID == AllMatches {
		return nil, false
	}
	cm.latestMu.Lock()
	defer cm.latestMu.Unlock()
	data, ok := cm.latest[matchID]
	return data, ok
}

func (cm *ConnectionManager) remember(message BroadcastMessage, data []byte) {
	if message.UserID != "" || message.MatchID == AllMatches {
		return
	}
	cm.latestMu.Lock()
	defer cm.latestMu.Unlock()
	switch message.Event.Type {
	case events.EventTypeMatchCompleted, events.EventTypeMatchCancelled, events.EventTypeMatchForfeited:
		delete(cm.latest, message.MatchID)
	default:
		cm.latest[message.MatchID] = data
	}
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	var all []*Connection
	for _, connections := range cm.matchConnections {
		for conn := range connections {
			all = append(all, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range all {
		cm.unregisterConnection(conn)
	}
}

// BroadcastToMatch sends a notification to every connection watching matchID
func (cm *ConnectionManager) BroadcastToMatch(matchID uuid.UUID, event events.Notification) {
	select {
	case cm.broadcastCh <- BroadcastMessage{MatchID: matchID, Event: event}:
	default:
		log.Warn().Str("match_id", matchID.String()).Msg("broadcast channel full, dropping message")
	}
}

// BroadcastToUser sends a notification to one user's connections for matchID
func (cm *ConnectionManager) BroadcastToUser(matchID uuid.UUID, userID string, event events.Notification) {
	select {
	case cm.broadcastCh <- BroadcastMessage{MatchID: matchID, Event: event, UserID: userID}:
	default:
		log.Warn().
			Str("match_id", matchID.String()).
			Str("user_id", userID).
			Msg("broadcast channel full, dropping user message")
	}
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	eventData, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}
	cm.remember(message, eventData)

	// Sends happen under the read lock so unregisterConnection cannot close
	// a Send channel mid-broadcast.
	var slow []*Connection
	delivered := 0
	cm.mu.RLock()
	pools := []uuid.UUID{message.MatchID}
	if message.MatchID != AllMatches && message.UserID == "" {
		pools = append(pools, AllMatches)
	}
	for _, id := range pools {
		for conn := range cm.matchConnections[id] {
			if message.UserID != "" && conn.UserID != message.UserID {
				continue
			}
			select {
			case conn.Send <- eventData:
				delivered++
			default:
				slow = append(slow, conn)
			}
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("user_id", conn.UserID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("match_id", message.MatchID.String()).
		Int("connections", delivered).
		Msg("event broadcasted")
}

// Stats returns statistics about active connections
func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{PerMatch: make(map[string]int)}
	for matchID, connections := range cm.matchConnections {
		stats.TotalConnections += len(connections)
		stats.PerMatch[matchID.String()] = len(connections)
	}
	stats.ActiveMatches = len(cm.matchConnections)
	return stats
}

func (c *Connection) write(messageType int, data []byte) error {
	c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
	return c.Conn.WriteMessage(messageType, data)
}

// writePump drains Send onto the socket and keeps the connection alive with pings
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		var err error
		select {
		case message, ok := <-c.Send:
			if !ok {
				c.write(websocket.CloseMessage, []byte{})
				return
			}
			err = c.write(websocket.TextMessage, message)
		case <-ticker.C:
			err = c.write(websocket.PingMessage, nil)
		}
		if err != nil {
			log.Error().Err(err).Str("connection_id", c.ID).Msg("websocket write failed")
			return
		}
	}
}

// readPump discards client frames; it exists so pongs and close frames are processed
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	extend := func() {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	extend()
	c.Conn.SetPongHandler(func(string) error {
		c.LastPing = time.Now()
		extend()
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("connection_id", c.ID).Msg("websocket closed unexpectedly")
			}
			return
		}
		extend()
	}
}
