package protocol

import "time"

// ---------------------------------------------
// Message kinds (field 0 of every frame)
// ---------------------------------------------

type Kind string

const (
	KindLogin          Kind = "login"
	KindPrivate        Kind = "private"
	KindJoinRoom       Kind = "join"
	KindLeaveRoom      Kind = "leave"
	KindPublic         Kind = "public"
	KindJoinGroup      Kind = "joinGroup"
	KindGroup          Kind = "group"
	KindState          Kind = "state"
	KindBusyState      Kind = "busyState"
	KindResponse       Kind = "response"
	KindPrivateHistory Kind = "pvHistory"
	KindPublicHistory  Kind = "publicHistory"
	KindCheckGroupID   Kind = "checkGroupId"
)

// PublicChatroomID is the room every server starts with.
const PublicChatroomID = "public"

// ServerName is the sender of every Response.
const ServerName = "server"

type State string

const (
	Available State = "AVAILABLE"
	Busy      State = "BUSY"
)

func (s State) Valid() bool { return s == Available || s == Busy }

type Status string

const (
	StatusOK   Status = "OK"
	StatusFail Status = "FAIL"
)

func (s Status) Valid() bool { return s == StatusOK || s == StatusFail }

// Message is the closed set of frames the broker understands.
// Only types in this package implement it.
type Message interface {
	Kind() Kind
	// Origin is the username in field 1: the sender, or the addressee for
	// server-originated kinds.
	Origin() string
	isMessage()
}

// Now returns a frame timestamp. Timestamps are assigned when a message is
// created, never when it is persisted.
func Now() time.Time {
	return time.Now().UTC()
}

// ---------------------------------------------
// Client-originated variants
// ---------------------------------------------

type Login struct {
	Username string
	Password string
}

type Private struct {
	Sender   string
	Receiver string
	Content  string
	Time     time.Time
}

type JoinRoom struct {
	Sender string
	RoomID string
}

type LeaveRoom struct {
	Sender string
	RoomID string
}

type Public struct {
	Sender  string
	RoomID  string
	Content string
	Time    time.Time
}

type JoinGroup struct {
	Sender       string
	GroupID      string
	Participants []string
}

type Group struct {
	Sender  string
	GroupID string
	Content string
	Time    time.Time
}

type StateChange struct {
	Sender string
	State  State
}

// BusyState stands in for any non-presence message sent by a busy user.
type BusyState struct {
	Sender string
}

type CheckGroupID struct {
	Sender  string
	GroupID string
}

// ---------------------------------------------
// Server-originated variants
// ---------------------------------------------

type Response struct {
	Receiver string
	Status   Status
	Content  string
	Time     time.Time
}

// HistoryEntry is one (sender, target, content, time) tuple of a history push.
// Target is the receiver for private chat and the group id for group chat.
type HistoryEntry struct {
	Sender  string
	Target  string
	Content string
	Time    time.Time
}

type PrivateHistory struct {
	Target  string
	Entries []HistoryEntry
}

type PublicHistory struct {
	Receiver string
	GroupID  string
	Entries  []HistoryEntry
}

func (*Login) Kind() Kind          { return KindLogin }
func (*Private) Kind() Kind        { return KindPrivate }
func (*JoinRoom) Kind() Kind       { return KindJoinRoom }
func (*LeaveRoom) Kind() Kind      { return KindLeaveRoom }
func (*Public) Kind() Kind         { return KindPublic }
func (*JoinGroup) Kind() Kind      { return KindJoinGroup }
func (*Group) Kind() Kind          { return KindGroup }
func (*StateChange) Kind() Kind    { return KindState }
func (*BusyState) Kind() Kind      { return KindBusyState }
func (*CheckGroupID) Kind() Kind   { return KindCheckGroupID }
func (*Response) Kind() Kind       { return KindResponse }
func (*PrivateHistory) Kind() Kind { return KindPrivateHistory }
func (*PublicHistory) Kind() Kind  { return KindPublicHistory }

func (m *Login) Origin() string          { return m.Username }
func (m *Private) Origin() string        { return m.Sender }
func (m *JoinRoom) Origin() string       { return m.Sender }
func (m *LeaveRoom) Origin() string      { return m.Sender }
func (m *Public) Origin() string         { return m.Sender }
func (m *JoinGroup) Origin() string      { return m.Sender }
func (m *Group) Origin() string          { return m.Sender }
func (m *StateChange) Origin() string    { return m.Sender }
func (m *BusyState) Origin() string      { return m.Sender }
func (m *CheckGroupID) Origin() string   { return m.Sender }
func (m *Response) Origin() string       { return m.Receiver }
func (m *PrivateHistory) Origin() string { return m.Target }
func (m *PublicHistory) Origin() string  { return m.Receiver }

func (*Login) isMessage()          {}
func (*Private) isMessage()        {}
func (*JoinRoom) isMessage()       {}
func (*LeaveRoom) isMessage()      {}
func (*Public) isMessage()         {}
func (*JoinGroup) isMessage()      {}
func (*Group) isMessage()          {}
func (*StateChange) isMessage()    {}
func (*BusyState) isMessage()      {}
func (*CheckGroupID) isMessage()   {}
func (*Response) isMessage()       {}
func (*PrivateHistory) isMessage() {}
func (*PublicHistory) isMessage()  {}

// WithSender rewrites the sender of a client-originated message. Kinds whose
// field 1 is an addressee (Response and the history pushes) are returned as is.
func WithSender(m Message, username string) Message {
	switch v := m.(type) {
	case *Login:
		v.Username = username
	case *Private:
		v.Sender = username
	case *JoinRoom:
		v.Sender = username
	case *LeaveRoom:
		v.Sender = username
	case *Public:
		v.Sender = username
	case *JoinGroup:
		v.Sender = username
	case *Group:
		v.Sender = username
	case *StateChange:
		v.Sender = username
	case *BusyState:
		v.Sender = username
	case *CheckGroupID:
		v.Sender = username
	}
	return m
}

// Readable renders a conversational message the way a chat log shows it.
func Readable(m Message) string {
	switch v := m.(type) {
	case *Private:
		return v.Sender + " says: " + v.Content
	case *Public:
		return v.Sender + " says: " + v.Content
	case *Group:
		return v.Sender + " says: " + v.Content
	case *Response:
		return ServerName + " says: " + v.Content
	}
	return string(m.Kind())
}
