package protocol

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"
)

var t1 = time.Date(2024, 3, 9, 14, 5, 30, 123000000, time.UTC)

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"login", &Login{Username: "alice", Password: "s3cret"}},
		{"private", &Private{Sender: "alice", Receiver: "bob", Content: "hi", Time: t1}},
		{"private with hashes inside", &Private{Sender: "alice", Receiver: "bob", Content: "a#b##c", Time: t1}},
		{"join", &JoinRoom{Sender: "alice", RoomID: PublicChatroomID}},
		{"leave", &LeaveRoom{Sender: "alice", RoomID: PublicChatroomID}},
		{"public", &Public{Sender: "alice", RoomID: "lobby", Content: "hello all", Time: t1}},
		{"join group", &JoinGroup{Sender: "alice", GroupID: "g1", Participants: []string{"bob", "carol"}}},
		{"join group alone", &JoinGroup{Sender: "alice", GroupID: "g1"}},
		{"group", &Group{Sender: "alice", GroupID: "g1", Content: "yo", Time: t1}},
		{"state", &StateChange{Sender: "alice", State: Busy}},
		{"busy", &BusyState{Sender: "alice"}},
		{"check group", &CheckGroupID{Sender: "alice", GroupID: "g1"}},
		{"response", &Response{Receiver: "alice", Status: StatusOK, Content: "message sent.", Time: t1}},
		{"private history", &PrivateHistory{Target: "alice", Entries: []HistoryEntry{
			{Sender: "alice", Target: "bob", Content: "hi #1", Time: t1},
			{Sender: "bob", Target: "alice", Content: "", Time: t1.Add(time.Second)},
			{Sender: "bob", Target: "alice", Content: "100%#", Time: t1.Add(2 * time.Second)},
		}}},
		{"empty private history", &PrivateHistory{Target: "alice"}},
		{"public history", &PublicHistory{Receiver: "carol", GroupID: "g1", Entries: []HistoryEntry{
			{Sender: "alice", Target: "g1", Content: "first", Time: t1},
			{Sender: "bob", Target: "g1", Content: "second##", Time: t1.Add(time.Minute)},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Encode(tt.msg)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := Decode(frame)
			if err != nil {
				t.Fatalf("Decode(%q): %v", frame, err)
			}
			if !reflect.DeepEqual(got, tt.msg) {
				t.Errorf("round trip mismatch\n got: %#v\nwant: %#v", got, tt.msg)
			}
		})
	}
}

func TestEncodeLayout(t *testing.T) {
	frame, err := Encode(&Private{Sender: "alice", Receiver: "bob", Content: "hi", Time: t1})
	if err != nil {
		t.Fatal(err)
	}
	want := "private###alice###bob###hi###2024-03-09T14:05:30.123Z"
	if string(frame) != want {
		t.Errorf("frame = %q, want %q", frame, want)
	}
}

func TestEncodeRejectsReservedSequence(t *testing.T) {
	tests := []Message{
		&Private{Sender: "alice", Receiver: "bob", Content: "a###b", Time: t1},
		&Public{Sender: "alice", RoomID: "r", Content: "trailing#", Time: t1},
		&Group{Sender: "alice", GroupID: "#g", Content: "x", Time: t1},
		&JoinGroup{Sender: "alice", GroupID: "g", Participants: []string{"bob,carol"}},
	}
	for _, m := range tests {
		if _, err := Encode(m); !errors.Is(err, ErrReservedSequence) {
			t.Errorf("Encode(%#v) error = %v, want ErrReservedSequence", m, err)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		frame string
		want  error
	}{
		{"hello###alice", ErrUnknownType},
		{"", ErrUnknownType},
		{"private###alice###bob###hi", ErrMalformed},
		{"private###alice###bob###hi###not-a-time", ErrMalformed},
		{"state###alice###SLEEPY", ErrMalformed},
		{"response###alice###MAYBE###x###2024-03-09T14:05:30Z", ErrMalformed},
		{"login###alice", ErrMalformed},
	}
	for _, tt := range tests {
		_, err := Decode([]byte(tt.frame))
		if !errors.Is(err, tt.want) {
			t.Errorf("Decode(%q) error = %v, want %v", tt.frame, err, tt.want)
		}
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Errorf("Decode(%q) error %T is not *DecodeError", tt.frame, err)
		}
	}
}

func TestDecodeSkipsMalformedHistoryTuples(t *testing.T) {
	good := "alice#bob#hi#2024-03-09T14:05:30Z"
	frame := strings.Join([]string{
		"pvHistory", "alice",
		good + "##only#three#fields##bob#alice#bad-time#yesterday##" + good,
	}, FieldDelimiter)

	m, err := Decode([]byte(frame))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	h := m.(*PrivateHistory)
	if len(h.Entries) != 2 {
		t.Fatalf("got %d entries, want 2: %#v", len(h.Entries), h.Entries)
	}
	for _, e := range h.Entries {
		if e.Sender != "alice" || e.Target != "bob" || e.Content != "hi" {
			t.Errorf("unexpected entry %#v", e)
		}
	}
}

func TestJoinGroupParticipantsTrimmed(t *testing.T) {
	m, err := Decode([]byte("joinGroup###alice###g1### bob , carol ,"))
	if err != nil {
		t.Fatal(err)
	}
	got := m.(*JoinGroup).Participants
	if !reflect.DeepEqual(got, []string{"bob", "carol"}) {
		t.Errorf("participants = %q", got)
	}
}

func TestWithSender(t *testing.T) {
	p := WithSender(&Private{Sender: "mallory", Receiver: "bob"}, "alice").(*Private)
	if p.Sender != "alice" {
		t.Errorf("sender = %q, want alice", p.Sender)
	}
	r := WithSender(&Response{Receiver: "bob"}, "alice").(*Response)
	if r.Receiver != "bob" {
		t.Errorf("response receiver rewritten to %q", r.Receiver)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)
	for _, p := range []string{"first", "", "third###frame"} {
		if err := fw.WriteFrame([]byte(p)); err != nil {
			t.Fatal(err)
		}
	}

	fr := NewFrameReader(&buf, 0)
	for _, want := range []string{"first", "", "third###frame"} {
		got, err := fr.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if string(got) != want {
			t.Errorf("frame = %q, want %q", got, want)
		}
	}
	if _, err := fr.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Errorf("final ReadFrame error = %v, want io.EOF", err)
	}
}

func TestFrameReaderLimits(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFrameWriter(&buf).WriteFrame(make([]byte, 32)); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFrameReader(&buf, 16).ReadFrame(); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("error = %v, want ErrFrameTooLarge", err)
	}

	truncated := bytes.NewReader([]byte{0, 0, 0, 10, 'a', 'b'})
	if _, err := NewFrameReader(truncated, 0).ReadFrame(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("error = %v, want io.ErrUnexpectedEOF", err)
	}
}
