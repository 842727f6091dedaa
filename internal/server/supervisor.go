package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"syscall"
	"time"

	"go-chat-broker/internal/chat"
	"go-chat-broker/internal/protocol"
	"go-chat-broker/internal/user"
)

var (
	ErrNotLogin        = errors.New("first frame is not a login")
	ErrTooManyAttempts = errors.New("too many failed login attempts")
	ErrServerOnlyKind  = errors.New("message kind is reserved for the server")
)

const (
	loggedInNotice      = "you are logged in."
	wrongPasswordNotice = "your password is wrong"

	maxAcceptDelay = time.Second
)

// ServeTCP accepts chat clients on ln until ctx is cancelled. Each
// connection gets its own goroutine; a failing connection never reaches the
// accept loop. Temporary accept failures such as running out of file
// descriptors are retried with backoff.
func (s *Server) ServeTCP(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.logger.Info("tcp listener started", "addr", ln.Addr().String())
	var tempDelay time.Duration
	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.closeConns()
				return nil
			}
			if !temporaryAcceptError(err) {
				return fmt.Errorf("accept: %w", err)
			}
			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay *= 2
			}
			if tempDelay > maxAcceptDelay {
				tempDelay = maxAcceptDelay
			}
			s.logger.Warn("accept failed, retrying", "error", err, "delay", tempDelay)
			select {
			case <-time.After(tempDelay):
			case <-ctx.Done():
			}
			continue
		}
		tempDelay = 0
		s.serve(ctx, newTCPConn(c, s.cfg.MaxFrameSize))
	}
}

func temporaryAcceptError(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	for _, errno := range []syscall.Errno{syscall.EMFILE, syscall.ENFILE, syscall.ECONNABORTED, syscall.ECONNRESET, syscall.ENOBUFS, syscall.ENOMEM} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}

// serve runs conn in a tracked goroutine so shutdown can close it. After
// shutdown began the connection is closed straight away.
func (s *Server) serve(ctx context.Context, conn Conn) {
	s.mu.Lock()
	if s.closed || ctx.Err() != nil {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
		}()
		s.handleConn(ctx, conn)
	}()
}

// closeConns closes every tracked connection and refuses new ones.
func (s *Server) closeConns() {
	s.mu.Lock()
	s.closed = true
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
}

// handleConn drives one connection through login, the reader loop and
// teardown.
func (s *Server) handleConn(ctx context.Context, conn Conn) {
	logger := s.logger.With("remote_addr", conn.RemoteAddr())
	defer conn.Close()

	username, err := s.login(ctx, conn, logger)
	if err != nil {
		logger.Info("login rejected", "error", err)
		return
	}

	sess := chat.NewSession(username, conn.RemoteAddr(), s.cfg.SendBuffer)
	logger = logger.With("username", username, "session_id", sess.ID)
	s.engine.Register(sess)
	logger.Info("client connected")

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		sess.WritePump(conn, logger)
		conn.Close()
	}()
	defer func() {
		s.engine.Release(sess)
		sess.Close()
		<-pumpDone
		logger.Info("client disconnected")
	}()

	if err := s.engine.Dispatch(ctx, &protocol.Response{
		Receiver: username, Status: protocol.StatusOK, Content: loggedInNotice, Time: protocol.Now(),
	}); err != nil {
		logger.Warn("login response not delivered", "error", err)
	}
	history, err := s.engine.PrivateHistory(ctx, username)
	if err != nil {
		logger.Error("failed to load private history", "error", err)
	} else if err := s.engine.Dispatch(ctx, history); err != nil {
		logger.Warn("private history not delivered", "error", err)
	}

	s.readLoop(ctx, conn, username, logger)
}

// login reads Login frames until one verifies. Wrong passwords get a FAIL
// response written straight to conn, at most MaxLoginAttempts times.
func (s *Server) login(ctx context.Context, conn Conn, logger *slog.Logger) (string, error) {
	for attempt := 1; ; attempt++ {
		frame, err := conn.ReadFrame()
		if err != nil {
			return "", err
		}
		m, err := protocol.Decode(frame)
		if err != nil {
			return "", err
		}
		req, ok := m.(*protocol.Login)
		if !ok {
			return "", fmt.Errorf("%w: got %s", ErrNotLogin, m.Kind())
		}
		if err := user.ValidateUsername(req.Username); err != nil {
			return "", err
		}

		created, err := s.users.Login(ctx, req.Username, req.Password)
		if err == nil {
			if created {
				logger.Info("registered new user", "username", req.Username)
			}
			return req.Username, nil
		}
		if !errors.Is(err, user.ErrPasswordMismatch) {
			return "", err
		}

		logger.Info("wrong password", "username", req.Username, "attempt", attempt)
		reply := &protocol.Response{
			Receiver: req.Username, Status: protocol.StatusFail, Content: wrongPasswordNotice, Time: protocol.Now(),
		}
		if err := writeMessage(conn, reply); err != nil {
			return "", err
		}
		if attempt >= s.cfg.MaxLoginAttempts {
			return "", ErrTooManyAttempts
		}
	}
}

// readLoop dispatches frames until the peer goes away or sends something
// undecodable. A busy user's messages other than presence changes are
// diverted into a BusyState notice.
func (s *Server) readLoop(ctx context.Context, conn Conn, username string, logger *slog.Logger) {
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Debug("read failed", "error", err)
			}
			return
		}
		m, err := protocol.Decode(frame)
		if err != nil {
			logger.Warn("closing connection on undecodable frame", "error", err)
			return
		}
		if serverOnly(m.Kind()) {
			logger.Warn("dropped message", "kind", m.Kind(), "error", ErrServerOnlyKind)
			continue
		}

		m = protocol.WithSender(m, username)
		if s.engine.Busy(username) && m.Kind() != protocol.KindState {
			m = &protocol.BusyState{Sender: username}
		}
		if err := s.engine.Dispatch(ctx, m); err != nil {
			logger.Warn("dispatch failed", "kind", m.Kind(), "error", err)
		}
	}
}

func serverOnly(k protocol.Kind) bool {
	switch k {
	case protocol.KindResponse, protocol.KindPrivateHistory, protocol.KindPublicHistory:
		return true
	}
	return false
}

func writeMessage(conn Conn, m protocol.Message) error {
	frame, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	return conn.WriteFrame(frame)
}
