package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"go-chat-broker/internal/db"
	"go-chat-broker/internal/protocol"
)

var base = time.Date(2024, 3, 9, 14, 0, 0, 0, time.UTC)

func at(minute int) time.Time { return base.Add(time.Duration(minute) * time.Minute) }

// testStore runs the persistence contract against one backend.
func testStore(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("users", func(t *testing.T) {
		if _, err := s.GetUser(ctx, "alice"); !errors.Is(err, ErrUserNotFound) {
			t.Fatalf("GetUser before save: err = %v, want ErrUserNotFound", err)
		}
		if err := s.SaveUser(ctx, "alice", "hash-1"); err != nil {
			t.Fatalf("SaveUser: %v", err)
		}
		u, err := s.GetUser(ctx, "alice")
		if err != nil {
			t.Fatalf("GetUser: %v", err)
		}
		if u.Username != "alice" || u.Password != "hash-1" {
			t.Errorf("GetUser = %#v", u)
		}
	})

	t.Run("private history", func(t *testing.T) {
		msgs := []protocol.Message{
			&protocol.Private{Sender: "alice", Receiver: "bob", Content: "hi", Time: at(1)},
			&protocol.Private{Sender: "carol", Receiver: "dave", Content: "unrelated", Time: at(2)},
			&protocol.Private{Sender: "bob", Receiver: "alice", Content: "hey #1", Time: at(3)},
			&protocol.JoinRoom{Sender: "alice", RoomID: protocol.PublicChatroomID},
		}
		for _, m := range msgs {
			if err := s.SaveMessage(ctx, m); err != nil {
				t.Fatalf("SaveMessage(%T): %v", m, err)
			}
		}

		got, err := s.GetPrivateHistory(ctx, "alice")
		if err != nil {
			t.Fatal(err)
		}
		want := []*protocol.Private{msgs[0].(*protocol.Private), msgs[2].(*protocol.Private)}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("GetPrivateHistory(alice)\n got %#v\nwant %#v", got, want)
		}
	})

	t.Run("group and room history", func(t *testing.T) {
		msgs := []protocol.Message{
			&protocol.Group{Sender: "alice", GroupID: "g1", Content: "one", Time: at(4)},
			&protocol.Public{Sender: "bob", RoomID: "lobby", Content: "pub", Time: at(5)},
			&protocol.Group{Sender: "bob", GroupID: "g2", Content: "other", Time: at(6)},
			&protocol.Group{Sender: "bob", GroupID: "g1", Content: "two", Time: at(7)},
		}
		for _, m := range msgs {
			if err := s.SaveMessage(ctx, m); err != nil {
				t.Fatal(err)
			}
		}

		groups, err := s.GetGroupHistory(ctx, "g1")
		if err != nil {
			t.Fatal(err)
		}
		if len(groups) != 2 || groups[0].Content != "one" || groups[1].Content != "two" {
			t.Errorf("GetGroupHistory(g1) = %#v", groups)
		}

		rooms, err := s.GetRoomHistory(ctx, "lobby")
		if err != nil {
			t.Fatal(err)
		}
		if len(rooms) != 1 || rooms[0].Content != "pub" {
			t.Errorf("GetRoomHistory(lobby) = %#v", rooms)
		}
	})

	t.Run("group ids", func(t *testing.T) {
		ok, err := s.CheckGroupID(ctx, "g1")
		if err != nil || ok {
			t.Fatalf("CheckGroupID before save = %v, %v", ok, err)
		}
		for i := 0; i < 2; i++ {
			if err := s.SaveGroupID(ctx, "g1"); err != nil {
				t.Fatalf("SaveGroupID: %v", err)
			}
		}
		ok, err = s.CheckGroupID(ctx, "g1")
		if err != nil || !ok {
			t.Errorf("CheckGroupID after save = %v, %v", ok, err)
		}
	})
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "data.txt"))
	if err != nil {
		t.Fatal(err)
	}
	testStore(t, s)
}

func TestFileStoreKeepsLineBreaks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.txt")
	s, err := NewFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	msgs := []*protocol.Private{
		{Sender: "alice", Receiver: "bob", Content: "line1\nline2", Time: at(1)},
		{Sender: "bob", Receiver: "alice", Content: "crlf\r\n100% literal %0A", Time: at(2)},
	}
	for _, m := range msgs {
		if err := s.SaveMessage(ctx, m); err != nil {
			t.Fatalf("SaveMessage: %v", err)
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(raw), "\n"); n != len(msgs) {
		t.Errorf("file has %d lines, want one per record", n)
	}

	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	got, err := reopened.GetPrivateHistory(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, msgs) {
		t.Errorf("GetPrivateHistory\n got %#v\nwant %#v", got, msgs)
	}
}

func TestSQLiteStore(t *testing.T) {
	database, err := db.NewDatabase(db.SQLite, filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatal(err)
	}
	if err := database.AutoMigrate(); err != nil {
		t.Fatal(err)
	}
	s := NewSQLStore(database)
	defer s.Close()
	testStore(t, s)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}
	database, err := db.NewDatabase(db.Postgres, dsn)
	if err != nil {
		t.Fatal(err)
	}
	if err := database.AutoMigrate(); err != nil {
		t.Fatal(err)
	}
	for _, table := range []string{"messages", "users", "chat_groups"} {
		if _, err := database.Conn.Exec("DELETE FROM " + table); err != nil {
			t.Fatal(err)
		}
	}
	s := NewSQLStore(database)
	defer s.Close()
	testStore(t, s)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	if err := rdb.FlushDB(context.Background()).Err(); err != nil {
		t.Fatal(err)
	}
	s := NewRedisStore(rdb)
	defer s.Close()
	testStore(t, s)
}
