// Package websocket implements the live-update channel of the development
// server: a hub that fans out JSON messages to every connected browser.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/pagesmith/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	readWait   = 60 * time.Second
	pingPeriod = (readWait * 9) / 10
)

// Manager handles connection management and broadcasting.
//
// Invariants:
//   - clients map access always protected by clientsMutex
//   - channels are never closed; shutdown is signalled through ctx
type Manager struct {
	clients      map[*websocket.Conn]*Client
	clientsMutex sync.RWMutex

	broadcast  chan []byte
	register   chan *Client
	unregister chan *websocket.Conn

	originValidator OriginValidator
	logger          logging.Logger

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	done         chan struct{}
}

// NewManager creates a manager and starts its hub goroutine. A nil
// validator accepts every origin.
func NewManager(originValidator OriginValidator, logger logging.Logger) *Manager {
	if originValidator == nil {
		originValidator = OriginValidatorFunc(func(string) bool { return true })
	}
	if logger == nil {
		logger = logging.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	manager := &Manager{
		clients:         make(map[*websocket.Conn]*Client),
		broadcast:       make(chan []byte, 256),
		register:        make(chan *Client, 32),
		unregister:      make(chan *websocket.Conn, 32),
		originValidator: originValidator,
		logger:          logger.WithComponent("websocket"),
		ctx:             ctx,
		cancel:          cancel,
		done:            make(chan struct{}),
	}

	go manager.runHub()

	return manager
}

// HandleWebSocket upgrades the request and registers the client.
func (m *Manager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if m.ctx.Err() != nil {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	origin := r.Header.Get("Origin")
	if origin != "" && !m.originValidator.IsAllowedOrigin(origin) {
		m.logger.Warn(r.Context(), nil, "WebSocket connection rejected", "origin", origin)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// origin already checked above
		InsecureSkipVerify: true,
		CompressionMode:    websocket.CompressionDisabled,
	})
	if err != nil {
		m.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "remote", r.RemoteAddr)
		return
	}

	client := &Client{
		conn:         conn,
		send:         make(chan []byte, 64),
		lastActivity: time.Now(),
	}

	select {
	case m.register <- client:
	case <-m.ctx.Done():
		_ = conn.Close(websocket.StatusServiceRestart, "server shutting down")
		return
	}

	hello, _ := json.Marshal(UpdateMessage{Type: MessageConnected, Timestamp: time.Now()})
	select {
	case client.send <- hello:
	default:
	}

	m.handleClient(client)
}

func (m *Manager) runHub() {
	defer close(m.done)
	for {
		select {
		case client := <-m.register:
			m.clientsMutex.Lock()
			m.clients[client.conn] = client
			count := len(m.clients)
			m.clientsMutex.Unlock()
			m.logger.Debug(m.ctx, "WebSocket client connected", "clients", count)

		case conn := <-m.unregister:
			m.unregisterClient(conn)

		case message := <-m.broadcast:
			m.broadcastToClients(message)

		case <-m.ctx.Done():
			m.clientsMutex.Lock()
			for conn := range m.clients {
				_ = conn.Close(websocket.StatusGoingAway, "server shutdown")
			}
			m.clients = make(map[*websocket.Conn]*Client)
			m.clientsMutex.Unlock()
			return
		}
	}
}

func (m *Manager) unregisterClient(conn *websocket.Conn) {
	m.clientsMutex.Lock()
	_, exists := m.clients[conn]
	delete(m.clients, conn)
	count := len(m.clients)
	m.clientsMutex.Unlock()

	if exists {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		m.logger.Debug(m.ctx, "WebSocket client disconnected", "clients", count)
	}
}

func (m *Manager) broadcastToClients(message []byte) {
	m.clientsMutex.RLock()
	clients := make([]*Client, 0, len(m.clients))
	for _, client := range m.clients {
		clients = append(clients, client)
	}
	m.clientsMutex.RUnlock()

	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			// slow consumer
			go func(c *Client) {
				select {
				case m.unregister <- c.conn:
				case <-m.ctx.Done():
				}
			}(client)
		}
	}
}

// handleClient runs the write pump and blocks on the read pump.
func (m *Manager) handleClient(client *Client) {
	ctx, cancel := context.WithCancel(m.ctx)
	defer cancel()

	go m.writeToClient(ctx, client)
	m.readFromClient(ctx, client)

	select {
	case m.unregister <- client.conn:
	case <-m.ctx.Done():
	}
}

func (m *Manager) readFromClient(ctx context.Context, client *Client) {
	for {
		readCtx, cancel := context.WithTimeout(ctx, readWait)
		_, _, err := client.conn.Read(readCtx)
		cancel()
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure &&
				websocket.CloseStatus(err) != websocket.StatusGoingAway {
				m.logger.Debug(ctx, "WebSocket read ended", "error", err.Error())
			}
			return
		}
		client.lastActivity = time.Now()
	}
}

func (m *Manager) writeToClient(ctx context.Context, client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message := <-client.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := client.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := client.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// Send broadcasts msg to every connected client. Fire-and-forget: there is
// no acknowledgment and the message is dropped when the hub is saturated.
func (m *Manager) Send(msg UpdateMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		m.logger.Error(m.ctx, err, "Failed to marshal broadcast message")
		return
	}

	select {
	case m.broadcast <- data:
	case <-m.ctx.Done():
	default:
		m.logger.Warn(m.ctx, nil, "Broadcast channel full, dropping message", "type", msg.Type)
	}
}

// ConnectedClients returns the number of connected clients
func (m *Manager) ConnectedClients() int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()
	return len(m.clients)
}

// Shutdown stops the hub and closes every connection.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.shutdownOnce.Do(m.cancel)

	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
