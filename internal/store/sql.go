package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go-chat-broker/internal/db"
	"go-chat-broker/internal/protocol"
)

// SQLStore persists to postgres or sqlite through database/sql. Each message
// row keeps its encoded frame so history reads decode exactly what was sent.
type SQLStore struct {
	db *db.Database
}

func NewSQLStore(database *db.Database) *SQLStore {
	return &SQLStore{db: database}
}

func (s *SQLStore) SaveMessage(ctx context.Context, m protocol.Message) error {
	frame, err := protocol.Encode(m)
	if err != nil {
		return err
	}

	target, content, sentAt := messageColumns(m)
	query := "INSERT INTO messages (kind, sender, target, content, frame, sent_at) VALUES ($1, $2, $3, $4, $5, $6)"
	_, err = s.db.Conn.ExecContext(ctx, query, string(m.Kind()), m.Origin(), target, content, string(frame), sentAt)
	return err
}

func (s *SQLStore) GetUser(ctx context.Context, username string) (*User, error) {
	u := &User{}
	query := "SELECT username, password FROM users WHERE username = $1"

	err := s.db.Conn.QueryRowContext(ctx, query, username).Scan(&u.Username, &u.Password)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

func (s *SQLStore) SaveUser(ctx context.Context, username, passwordHash string) error {
	query := "INSERT INTO users (username, password) VALUES ($1, $2)"
	_, err := s.db.Conn.ExecContext(ctx, query, username, passwordHash)
	return err
}

func (s *SQLStore) GetPrivateHistory(ctx context.Context, username string) ([]*protocol.Private, error) {
	query := `
		SELECT frame FROM messages
		WHERE kind = $1 AND (sender = $2 OR target = $3)
		ORDER BY id ASC
	`
	var out []*protocol.Private
	err := s.scanFrames(ctx, query, func(m protocol.Message) {
		if p, ok := m.(*protocol.Private); ok {
			out = append(out, p)
		}
	}, string(protocol.KindPrivate), username, username)
	return out, err
}

func (s *SQLStore) GetGroupHistory(ctx context.Context, groupID string) ([]*protocol.Group, error) {
	var out []*protocol.Group
	err := s.scanFrames(ctx, targetHistoryQuery, func(m protocol.Message) {
		if g, ok := m.(*protocol.Group); ok {
			out = append(out, g)
		}
	}, string(protocol.KindGroup), groupID)
	return out, err
}

func (s *SQLStore) GetRoomHistory(ctx context.Context, roomID string) ([]*protocol.Public, error) {
	var out []*protocol.Public
	err := s.scanFrames(ctx, targetHistoryQuery, func(m protocol.Message) {
		if p, ok := m.(*protocol.Public); ok {
			out = append(out, p)
		}
	}, string(protocol.KindPublic), roomID)
	return out, err
}

func (s *SQLStore) CheckGroupID(ctx context.Context, groupID string) (bool, error) {
	var n int
	query := "SELECT COUNT(*) FROM chat_groups WHERE group_id = $1"
	if err := s.db.Conn.QueryRowContext(ctx, query, groupID).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLStore) SaveGroupID(ctx context.Context, groupID string) error {
	query := "INSERT INTO chat_groups (group_id) VALUES ($1) ON CONFLICT (group_id) DO NOTHING"
	_, err := s.db.Conn.ExecContext(ctx, query, groupID)
	return err
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

const targetHistoryQuery = `
	SELECT frame FROM messages
	WHERE kind = $1 AND target = $2
	ORDER BY id ASC
`

func (s *SQLStore) scanFrames(ctx context.Context, query string, fn func(protocol.Message), args ...any) error {
	rows, err := s.db.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var frame string
		if err := rows.Scan(&frame); err != nil {
			return err
		}
		m, err := protocol.Decode([]byte(frame))
		if err != nil {
			continue
		}
		fn(m)
	}
	return rows.Err()
}

// messageColumns extracts the indexed columns of a message row.
func messageColumns(m protocol.Message) (target, content string, sentAt time.Time) {
	sentAt = protocol.Now()
	switch v := m.(type) {
	case *protocol.Private:
		return v.Receiver, v.Content, v.Time
	case *protocol.Public:
		return v.RoomID, v.Content, v.Time
	case *protocol.Group:
		return v.GroupID, v.Content, v.Time
	case *protocol.JoinRoom:
		target = v.RoomID
	case *protocol.LeaveRoom:
		target = v.RoomID
	case *protocol.JoinGroup:
		target = v.GroupID
	case *protocol.CheckGroupID:
		target = v.GroupID
	case *protocol.Response:
		content = v.Content
	}
	return target, content, sentAt
}
