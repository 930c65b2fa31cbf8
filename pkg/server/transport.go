package server

import (
	"bufio"
	"fmt"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NicolasHaas/campus/pkg/protocol"
)

// Transport moves whole envelopes over one client connection. ReadMessage is
// only called from the connection's own goroutine; writes are serialised by
// the caller.
type Transport interface {
	ReadMessage() (*protocol.Message, error)
	WriteMessage(msg *protocol.Message) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() string
	Close() error
}

// streamTransport frames envelopes on a byte stream (TCP or TLS).
type streamTransport struct {
	conn net.Conn
	r    *bufio.Reader
}

// NewStreamTransport wraps a stream connection in length-prefixed framing.
func NewStreamTransport(conn net.Conn) Transport {
	return &streamTransport{conn: conn, r: bufio.NewReader(conn)}
}

func (t *streamTransport) ReadMessage() (*protocol.Message, error) {
	return protocol.ReadMessage(t.r)
}

func (t *streamTransport) WriteMessage(msg *protocol.Message) error {
	return protocol.WriteMessage(t.conn, msg)
}

func (t *streamTransport) SetReadDeadline(d time.Time) error  { return t.conn.SetReadDeadline(d) }
func (t *streamTransport) SetWriteDeadline(d time.Time) error { return t.conn.SetWriteDeadline(d) }
func (t *streamTransport) RemoteAddr() string                 { return t.conn.RemoteAddr().String() }
func (t *streamTransport) Close() error                       { return t.conn.Close() }

// wsTransport carries one envelope per WebSocket data frame.
type wsTransport struct {
	ws *websocket.Conn
}

// NewWebSocketTransport wraps an upgraded WebSocket connection.
func NewWebSocketTransport(ws *websocket.Conn) Transport {
	ws.SetReadLimit(protocol.MaxMessageSize)
	return &wsTransport{ws: ws}
}

func (t *wsTransport) ReadMessage() (*protocol.Message, error) {
	// Control frames are handled inside the library; only data frames arrive here.
	_, data, err := t.ws.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("protocol: websocket read: %w", err)
	}
	return protocol.Unmarshal(data)
}

func (t *wsTransport) WriteMessage(msg *protocol.Message) error {
	data, err := protocol.Marshal(msg)
	if err != nil {
		return err
	}
	if err := t.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("protocol: websocket write: %w", err)
	}
	return nil
}

func (t *wsTransport) SetReadDeadline(d time.Time) error  { return t.ws.SetReadDeadline(d) }
func (t *wsTransport) SetWriteDeadline(d time.Time) error { return t.ws.SetWriteDeadline(d) }
func (t *wsTransport) RemoteAddr() string                 { return t.ws.RemoteAddr().String() }
func (t *wsTransport) Close() error                       { return t.ws.Close() }
