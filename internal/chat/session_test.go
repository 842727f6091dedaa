package chat

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
)

type recordingWriter struct {
	mu     sync.Mutex
	frames []string
	failAt int
}

func (w *recordingWriter) WriteFrame(p []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failAt > 0 && len(w.frames)+1 == w.failAt {
		return io.ErrClosedPipe
	}
	w.frames = append(w.frames, string(p))
	return nil
}

func TestSessionSendBufferFull(t *testing.T) {
	s := NewSession("alice", "test", 2)
	for i := 0; i < 2; i++ {
		if err := s.Send([]byte("x")); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if err := s.Send([]byte("x")); !errors.Is(err, ErrSendBufferFull) {
		t.Fatalf("err = %v, want ErrSendBufferFull", err)
	}
	if err := s.Send([]byte("x")); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("err = %v, want ErrSessionClosed", err)
	}
	s.Close()
}

func TestWritePumpFlushesInOrder(t *testing.T) {
	s := NewSession("alice", "test", 8)
	for _, f := range []string{"a", "b", "c"} {
		if err := s.Send([]byte(f)); err != nil {
			t.Fatal(err)
		}
	}
	s.Close()

	w := &recordingWriter{}
	s.WritePump(w, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if got := len(w.frames); got != 3 || w.frames[0] != "a" || w.frames[2] != "c" {
		t.Errorf("frames = %q", w.frames)
	}
}

func TestWritePumpStopsOnWriteError(t *testing.T) {
	s := NewSession("alice", "test", 8)
	for _, f := range []string{"a", "b", "c"} {
		if err := s.Send([]byte(f)); err != nil {
			t.Fatal(err)
		}
	}

	w := &recordingWriter{failAt: 2}
	done := make(chan struct{})
	go func() {
		s.WritePump(w, slog.New(slog.NewTextHandler(io.Discard, nil)))
		close(done)
	}()
	<-done

	if len(w.frames) != 1 {
		t.Errorf("frames = %q, want only the first", w.frames)
	}
	if err := s.Send([]byte("d")); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("send after failed write: err = %v", err)
	}
}
