package chat

import (
	"sort"
	"sync"

	"go-chat-broker/internal/protocol"
)

// Registry is the single source of truth for who is online, their presence,
// and room and group membership. Every method runs under one lock, so each
// call observes and leaves a consistent state.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	rooms    map[string]map[string]struct{}
	groups   map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		rooms: map[string]map[string]struct{}{
			protocol.PublicChatroomID: {},
		},
		groups: make(map[string]map[string]struct{}),
	}
}

// Register installs s as the live session for its username, presence
// AVAILABLE. The last login wins: a previous session for the same username
// is returned but left open.
func (r *Registry) Register(s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.sessions[s.Username]
	s.presence = protocol.Available
	r.sessions[s.Username] = s
	return prev
}

// Unregister removes whatever session is live for username.
func (r *Registry) Unregister(username string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.sessions[username]
	delete(r.sessions, username)
	return s
}

// Release removes s only if it is still the live session for its username,
// so tearing down a replaced connection leaves the newer login in place.
func (r *Registry) Release(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessions[s.Username] != s {
		return false
	}
	delete(r.sessions, s.Username)
	return true
}

func (r *Registry) Lookup(username string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[username]
	return s, ok
}

func (r *Registry) SetPresence(username string, state protocol.State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[username]
	if !ok {
		return false
	}
	s.presence = state
	return true
}

func (r *Registry) Presence(username string) (protocol.State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[username]
	if !ok {
		return "", false
	}
	return s.presence, true
}

// Available returns the live session for username if its presence is
// AVAILABLE.
func (r *Registry) Available(username string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[username]
	if !ok || s.presence != protocol.Available {
		return nil, false
	}
	return s, true
}

// JoinRoom is idempotent; rooms are created on first join.
func (r *Registry) JoinRoom(roomID, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	addMember(r.rooms, roomID, username)
}

func (r *Registry) LeaveRoom(roomID, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if members, ok := r.rooms[roomID]; ok {
		delete(members, username)
	}
}

func (r *Registry) RoomMembers(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.rooms[roomID])
}

// JoinGroup adds usernames to groupID, creating the group on first use.
func (r *Registry) JoinGroup(groupID string, usernames ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[groupID]; !ok {
		r.groups[groupID] = make(map[string]struct{})
	}
	for _, u := range usernames {
		addMember(r.groups, groupID, u)
	}
}

func (r *Registry) GroupMembers(groupID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.groups[groupID])
}

func (r *Registry) GroupExists(groupID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.groups[groupID]
	return ok
}

// AllUsernames lists every registered username in sorted order.
func (r *Registry) AllUsernames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func addMember(sets map[string]map[string]struct{}, id, username string) {
	members, ok := sets[id]
	if !ok {
		members = make(map[string]struct{})
		sets[id] = members
	}
	members[username] = struct{}{}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
