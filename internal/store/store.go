// Package store holds the broker's persistence port and its backends.
package store

import (
	"context"
	"errors"

	"go-chat-broker/internal/protocol"
)

var ErrUserNotFound = errors.New("user not found")

// User is a stored credential. Password holds a one-way hash, never the
// plain text.
type User struct {
	Username string
	Password string
}

// Store is the persistence port consumed by the dispatch engine and the
// login handshake. Writes are synchronous: a nil error means the record is
// durable in the backend.
type Store interface {
	SaveMessage(ctx context.Context, m protocol.Message) error
	GetUser(ctx context.Context, username string) (*User, error)
	SaveUser(ctx context.Context, username, passwordHash string) error
	// GetPrivateHistory returns every private message sent or received by
	// username, oldest first.
	GetPrivateHistory(ctx context.Context, username string) ([]*protocol.Private, error)
	GetGroupHistory(ctx context.Context, groupID string) ([]*protocol.Group, error)
	GetRoomHistory(ctx context.Context, roomID string) ([]*protocol.Public, error)
	CheckGroupID(ctx context.Context, groupID string) (bool, error)
	SaveGroupID(ctx context.Context, groupID string) error
	Close() error
}
