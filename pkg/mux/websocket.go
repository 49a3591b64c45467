package mux

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gorilla/websocket"
)

// defaultWsHandshakeTimeout is the default duration to wait for the
// WebSocket handshake to complete.
const defaultWsHandshakeTimeout = 5 * time.Second

var ErrDialingWebsocket = fmt.Errorf("error dialing websocket server")

// WebsocketConfig contains configuration options for the websocket
// duplex channel.
type WebsocketConfig struct {
	// HandshakeTimeout is the duration to wait for the WebSocket
	// handshake to complete (default: 5s).
	HandshakeTimeout time.Duration
	// EnableCompression enables per-message compression negotiation.
	EnableCompression bool
}

// DefaultWebsocketConfig provides sensible defaults for WebSocket
// connections.
var DefaultWebsocketConfig = WebsocketConfig{
	HandshakeTimeout:  defaultWsHandshakeTimeout,
	EnableCompression: true,
}

// WebsocketDuplex implements Duplex over a WebSocket connection. It is
// the physical channel used when the wallet process is reached over the
// network rather than an in-process pipe.
type WebsocketDuplex struct {
	conn *websocket.Conn
}

var _ Duplex = (*WebsocketDuplex)(nil)

// DialWebsocket establishes a WebSocket connection to the given URL and
// wraps it as a Duplex.
func DialWebsocket(ctx context.Context, url string, cfg WebsocketConfig) (*WebsocketDuplex, error) {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultWsHandshakeTimeout
	}

	dialer := websocket.Dialer{
		HandshakeTimeout:  cfg.HandshakeTimeout,
		EnableCompression: cfg.EnableCompression,
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDialingWebsocket, err)
	}

	return &WebsocketDuplex{conn: conn}, nil
}

// NewWebsocketDuplex wraps an already-established WebSocket connection.
func NewWebsocketDuplex(conn *websocket.Conn) *WebsocketDuplex {
	return &WebsocketDuplex{conn: conn}
}

// ReadMessage reads the next message. A normal close from the peer is
// reported as io.EOF so the multiplexer can classify the shutdown as
// remote-initiated.
func (d *WebsocketDuplex) ReadMessage() ([]byte, error) {
	_, data, err := d.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		return nil, err
	}
	return data, nil
}

// WriteMessage writes a text message to the connection.
func (d *WebsocketDuplex) WriteMessage(data []byte) error {
	return d.conn.WriteMessage(websocket.TextMessage, data)
}

// Close closes the underlying connection.
func (d *WebsocketDuplex) Close() error {
	return d.conn.Close()
}
