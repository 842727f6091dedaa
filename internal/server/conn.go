package server

import (
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"go-chat-broker/internal/protocol"
)

const writeWait = 10 * time.Second

// Conn is one client transport. Both transports carry the same frames and
// run the same handshake and reader loop.
type Conn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(payload []byte) error
	Close() error
	RemoteAddr() string
}

// tcpConn frames a byte stream with a 4-byte length prefix.
type tcpConn struct {
	conn net.Conn
	r    *protocol.FrameReader
	w    *protocol.FrameWriter
}

func newTCPConn(c net.Conn, maxFrameSize int) *tcpConn {
	return &tcpConn{
		conn: c,
		r:    protocol.NewFrameReader(c, maxFrameSize),
		w:    protocol.NewFrameWriter(c),
	}
}

func (c *tcpConn) ReadFrame() ([]byte, error)      { return c.r.ReadFrame() }
func (c *tcpConn) WriteFrame(payload []byte) error { return c.w.WriteFrame(payload) }
func (c *tcpConn) Close() error                    { return c.conn.Close() }
func (c *tcpConn) RemoteAddr() string              { return c.conn.RemoteAddr().String() }

// wsConn carries one frame per WebSocket text message.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newWSConn(c *websocket.Conn, maxFrameSize int) *wsConn {
	if maxFrameSize <= 0 {
		maxFrameSize = protocol.DefaultMaxFrameSize
	}
	c.SetReadLimit(int64(maxFrameSize))
	return &wsConn{conn: c}
}

func (c *wsConn) ReadFrame() ([]byte, error) {
	for {
		kind, payload, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return payload, nil
		}
	}
}

// WriteFrame is serialized because gorilla connections allow one writer.
func (c *wsConn) WriteFrame(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *wsConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }
