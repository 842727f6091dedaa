package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

const (
	listCommand       = "list"
	unknownCommand    = "unknown command."
	maxUDPRequestSize = 1024
)

// ServeUDP answers presence queries on pc until ctx is cancelled. The
// channel is unauthenticated: "list" returns the online usernames one per
// line, anything else gets a fixed reply.
func (s *Server) ServeUDP(ctx context.Context, pc net.PacketConn) error {
	go func() {
		<-ctx.Done()
		pc.Close()
	}()

	s.logger.Info("udp listener started", "addr", pc.LocalAddr().String())
	buf := make([]byte, maxUDPRequestSize)
	for {
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("udp read: %w", err)
		}

		reply := s.presenceReply(string(buf[:n]))
		if _, err := pc.WriteTo([]byte(reply), addr); err != nil {
			s.logger.Warn("udp reply failed", "remote_addr", addr.String(), "error", err)
		}
	}
}

func (s *Server) presenceReply(command string) string {
	if command != listCommand {
		return unknownCommand
	}
	return strings.Join(s.engine.Registry().AllUsernames(), "\n")
}
