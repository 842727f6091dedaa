package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"go-chat-broker/internal/protocol"
)

const (
	redisUsersKey  = "chat:users"
	redisGroupsKey = "chat:groups"
)

// RedisStore keeps users in a hash, known group ids in a set and each
// conversation as a list of encoded frames.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func privateKey(username string) string { return "chat:private:" + username }
func groupKey(groupID string) string    { return "chat:group:" + groupID }
func roomKey(roomID string) string      { return "chat:room:" + roomID }
func eventsKey() string                 { return "chat:events" }

func (s *RedisStore) SaveMessage(ctx context.Context, m protocol.Message) error {
	frame, err := protocol.Encode(m)
	if err != nil {
		return err
	}

	switch v := m.(type) {
	case *protocol.Private:
		// Both parties read their own list; one transaction keeps them aligned.
		pipe := s.rdb.TxPipeline()
		pipe.RPush(ctx, privateKey(v.Sender), frame)
		if v.Receiver != v.Sender {
			pipe.RPush(ctx, privateKey(v.Receiver), frame)
		}
		_, err = pipe.Exec(ctx)
	case *protocol.Group:
		err = s.rdb.RPush(ctx, groupKey(v.GroupID), frame).Err()
	case *protocol.Public:
		err = s.rdb.RPush(ctx, roomKey(v.RoomID), frame).Err()
	default:
		err = s.rdb.RPush(ctx, eventsKey(), frame).Err()
	}
	return err
}

func (s *RedisStore) GetUser(ctx context.Context, username string) (*User, error) {
	hash, err := s.rdb.HGet(ctx, redisUsersKey, username).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &User{Username: username, Password: hash}, nil
}

func (s *RedisStore) SaveUser(ctx context.Context, username, passwordHash string) error {
	return s.rdb.HSet(ctx, redisUsersKey, username, passwordHash).Err()
}

func (s *RedisStore) GetPrivateHistory(ctx context.Context, username string) ([]*protocol.Private, error) {
	var out []*protocol.Private
	err := s.readList(ctx, privateKey(username), func(m protocol.Message) {
		if p, ok := m.(*protocol.Private); ok {
			out = append(out, p)
		}
	})
	return out, err
}

func (s *RedisStore) GetGroupHistory(ctx context.Context, groupID string) ([]*protocol.Group, error) {
	var out []*protocol.Group
	err := s.readList(ctx, groupKey(groupID), func(m protocol.Message) {
		if g, ok := m.(*protocol.Group); ok {
			out = append(out, g)
		}
	})
	return out, err
}

func (s *RedisStore) GetRoomHistory(ctx context.Context, roomID string) ([]*protocol.Public, error) {
	var out []*protocol.Public
	err := s.readList(ctx, roomKey(roomID), func(m protocol.Message) {
		if p, ok := m.(*protocol.Public); ok {
			out = append(out, p)
		}
	})
	return out, err
}

func (s *RedisStore) CheckGroupID(ctx context.Context, groupID string) (bool, error) {
	return s.rdb.SIsMember(ctx, redisGroupsKey, groupID).Result()
}

func (s *RedisStore) SaveGroupID(ctx context.Context, groupID string) error {
	return s.rdb.SAdd(ctx, redisGroupsKey, groupID).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) readList(ctx context.Context, key string, fn func(protocol.Message)) error {
	frames, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	for _, frame := range frames {
		m, err := protocol.Decode([]byte(frame))
		if err != nil {
			continue
		}
		fn(m)
	}
	return nil
}
