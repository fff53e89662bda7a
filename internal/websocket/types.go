package websocket

import (
	"time"

	"github.com/coder/websocket"
)

// Message types understood by the browser client.
const (
	MessageConnected  = "connected"
	MessageFullReload = "full-reload"
	MessageError      = "error"
)

// Client represents a WebSocket client connection
type Client struct {
	conn         *websocket.Conn
	send         chan []byte
	lastActivity time.Time
}

// UpdateMessage represents a message sent to the browser
type UpdateMessage struct {
	Type      string    `json:"type"`
	Message   string    `json:"message,omitempty"`
	Source    string    `json:"source,omitempty"`
	Path      string    `json:"path,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// OriginValidator interface for WebSocket origin validation
type OriginValidator interface {
	IsAllowedOrigin(origin string) bool
}

// OriginValidatorFunc adapts a function to OriginValidator.
type OriginValidatorFunc func(origin string) bool

// IsAllowedOrigin implements OriginValidator.
func (f OriginValidatorFunc) IsAllowedOrigin(origin string) bool {
	return f(origin)
}
