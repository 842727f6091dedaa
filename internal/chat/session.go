package chat

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"go-chat-broker/internal/protocol"
)

var (
	ErrSessionClosed  = errors.New("session closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// FrameWriter is the outbound half of a client connection.
type FrameWriter interface {
	WriteFrame(payload []byte) error
}

// Session binds an authenticated username to a connection. Outbound frames
// are queued on a buffered channel and written by a single WritePump, so a
// connection never has two concurrent writers.
type Session struct {
	ID         uuid.UUID
	Username   string
	RemoteAddr string

	// presence is guarded by the owning Registry's lock.
	presence protocol.State

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func NewSession(username, remoteAddr string, buffer int) *Session {
	if buffer <= 0 {
		buffer = 256
	}
	return &Session{
		ID:         uuid.New(),
		Username:   username,
		RemoteAddr: remoteAddr,
		presence:   protocol.Available,
		send:       make(chan []byte, buffer),
	}
}

// Send queues a frame without blocking. A full queue closes the session:
// a peer that stopped reading is dropped rather than stalling dispatch.
func (s *Session) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	select {
	case s.send <- frame:
		return nil
	default:
		s.closed = true
		close(s.send)
		return ErrSendBufferFull
	}
}

// Close stops the write pump once queued frames are flushed. Safe to call
// more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
}

// Outbound exposes the queue for callers that drain it themselves.
func (s *Session) Outbound() <-chan []byte {
	return s.send
}

// WritePump writes queued frames until the session is closed or a write
// fails. The caller owns closing the underlying connection afterwards.
func (s *Session) WritePump(w FrameWriter, logger *slog.Logger) {
	for frame := range s.send {
		if err := w.WriteFrame(frame); err != nil {
			logger.Debug("write failed", "username", s.Username, "session_id", s.ID, "error", err)
			s.Close()
			// Discard whatever was queued before the close.
			for range s.send {
			}
			return
		}
	}
}
