package store

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"go-chat-broker/internal/protocol"
)

const (
	DefaultFilePath = "./data.txt"

	userTag    = "user"
	groupIDTag = "groupId"
)

var (
	lineEscaper   = strings.NewReplacer("%", "%25", "\n", "%0A", "\r", "%0D")
	lineUnescaper = strings.NewReplacer("%25", "%", "%0A", "\n", "%0D", "\r")
)

// FileStore appends every record as one line of a text file. Messages are
// stored as their encoded frames; users and group ids use their own tags.
// Line breaks and % are escaped so multi-line content stays on one line.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		path = DefaultFilePath
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open store file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) SaveMessage(_ context.Context, m protocol.Message) error {
	frame, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	return s.appendLine(string(frame))
}

func (s *FileStore) GetUser(_ context.Context, username string) (*User, error) {
	var found *User
	err := s.scan(func(fields []string) {
		if fields[0] == userTag && len(fields) == 3 && fields[1] == username {
			found = &User{Username: fields[1], Password: fields[2]}
		}
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrUserNotFound
	}
	return found, nil
}

func (s *FileStore) SaveUser(_ context.Context, username, passwordHash string) error {
	return s.appendLine(strings.Join([]string{userTag, username, passwordHash}, protocol.FieldDelimiter))
}

func (s *FileStore) GetPrivateHistory(_ context.Context, username string) ([]*protocol.Private, error) {
	var out []*protocol.Private
	err := s.scanMessages(func(m protocol.Message) {
		if p, ok := m.(*protocol.Private); ok && (p.Sender == username || p.Receiver == username) {
			out = append(out, p)
		}
	})
	return out, err
}

func (s *FileStore) GetGroupHistory(_ context.Context, groupID string) ([]*protocol.Group, error) {
	var out []*protocol.Group
	err := s.scanMessages(func(m protocol.Message) {
		if g, ok := m.(*protocol.Group); ok && g.GroupID == groupID {
			out = append(out, g)
		}
	})
	return out, err
}

func (s *FileStore) GetRoomHistory(_ context.Context, roomID string) ([]*protocol.Public, error) {
	var out []*protocol.Public
	err := s.scanMessages(func(m protocol.Message) {
		if p, ok := m.(*protocol.Public); ok && p.RoomID == roomID {
			out = append(out, p)
		}
	})
	return out, err
}

func (s *FileStore) CheckGroupID(_ context.Context, groupID string) (bool, error) {
	exists := false
	err := s.scan(func(fields []string) {
		if fields[0] == groupIDTag && len(fields) == 2 && fields[1] == groupID {
			exists = true
		}
	})
	return exists, err
}

func (s *FileStore) SaveGroupID(_ context.Context, groupID string) error {
	return s.appendLine(groupIDTag + protocol.FieldDelimiter + groupID)
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) appendLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(lineEscaper.Replace(line) + "\n"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *FileStore) scan(fn func(fields []string)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*protocol.DefaultMaxFrameSize)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		fn(strings.Split(lineUnescaper.Replace(line), protocol.FieldDelimiter))
	}
	return sc.Err()
}

// scanMessages skips user and group-id lines and anything that no longer
// decodes.
func (s *FileStore) scanMessages(fn func(protocol.Message)) error {
	return s.scan(func(fields []string) {
		if fields[0] == userTag || fields[0] == groupIDTag {
			return
		}
		m, err := protocol.Decode([]byte(strings.Join(fields, protocol.FieldDelimiter)))
		if err != nil {
			return
		}
		fn(m)
	})
}
