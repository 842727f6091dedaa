package chat

import (
	"reflect"
	"testing"

	"go-chat-broker/internal/protocol"
)

func TestRegistrySessions(t *testing.T) {
	r := NewRegistry()
	alice := NewSession("alice", "test", 1)

	if prev := r.Register(alice); prev != nil {
		t.Fatalf("first register returned %v", prev)
	}
	if state, ok := r.Presence("alice"); !ok || state != protocol.Available {
		t.Errorf("presence = %q %v, want AVAILABLE", state, ok)
	}
	if !r.SetPresence("alice", protocol.Busy) {
		t.Fatal("SetPresence on a live session failed")
	}
	if _, ok := r.Available("alice"); ok {
		t.Error("busy session reported available")
	}
	if r.SetPresence("ghost", protocol.Busy) {
		t.Error("SetPresence on an unknown user succeeded")
	}

	again := NewSession("alice", "test", 1)
	if prev := r.Register(again); prev != alice {
		t.Error("re-register did not return the replaced session")
	}
	if state, _ := r.Presence("alice"); state != protocol.Available {
		t.Errorf("new session presence = %q, want AVAILABLE", state)
	}

	if got := r.Unregister("alice"); got != again {
		t.Error("Unregister returned the wrong session")
	}
	if got := r.Unregister("alice"); got != nil {
		t.Error("second Unregister returned a session")
	}
	if got := r.AllUsernames(); len(got) != 0 {
		t.Errorf("online = %q", got)
	}
}

func TestRegistryMembership(t *testing.T) {
	r := NewRegistry()

	if got := r.RoomMembers(protocol.PublicChatroomID); len(got) != 0 {
		t.Errorf("public room starts with %q", got)
	}

	tests := []struct {
		name string
		ops  func()
		want []string
	}{
		{"join twice", func() { r.JoinRoom("lobby", "alice"); r.JoinRoom("lobby", "alice") }, []string{"alice"}},
		{"join then leave", func() { r.JoinRoom("lobby", "bob"); r.LeaveRoom("lobby", "bob") }, []string{"alice"}},
		{"leave absent", func() { r.LeaveRoom("lobby", "carol"); r.LeaveRoom("nowhere", "carol") }, []string{"alice"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.ops()
			if got := r.RoomMembers("lobby"); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("members = %q, want %q", got, tt.want)
			}
		})
	}

	if r.GroupExists("g1") {
		t.Fatal("group exists before first join")
	}
	r.JoinGroup("g1")
	if !r.GroupExists("g1") || len(r.GroupMembers("g1")) != 0 {
		t.Error("empty JoinGroup should create an empty group")
	}
	r.JoinGroup("g1", "bob", "alice", "bob")
	if got := r.GroupMembers("g1"); !reflect.DeepEqual(got, []string{"alice", "bob"}) {
		t.Errorf("group members = %q", got)
	}
}
