// Package protocol encodes and decodes the broker's delimited text frames.
//
// A frame is a list of fields joined by FieldDelimiter. Field 0 is the kind
// tag and field 1 is the username the frame is about. History pushes pack
// their entries into a single field using EntryDelimiter between tuples and
// TupleDelimiter between tuple fields.
package protocol

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	FieldDelimiter = "###"
	EntryDelimiter = "##"
	TupleDelimiter = "#"

	participantSeparator = ","
	emptyTupleField      = "%0"
	timeLayout           = time.RFC3339Nano
)

var (
	ErrUnknownType      = errors.New("unknown message type")
	ErrMalformed        = errors.New("malformed frame")
	ErrReservedSequence = errors.New("field contains reserved delimiter")
)

// DecodeError reports which tag failed to decode and why.
type DecodeError struct {
	Tag string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %q: %v", e.Tag, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

var (
	tupleEscaper   = strings.NewReplacer("%", "%25", "#", "%23")
	tupleUnescaper = strings.NewReplacer("%25", "%", "%23", "#")
)

// Encode renders m as a frame. It fails with ErrReservedSequence when a field
// would collide with the delimiters.
func Encode(m Message) ([]byte, error) {
	var fields []string
	switch v := m.(type) {
	case *Login:
		fields = []string{string(KindLogin), v.Username, v.Password}
	case *Private:
		fields = []string{string(KindPrivate), v.Sender, v.Receiver, v.Content, formatTime(v.Time)}
	case *JoinRoom:
		fields = []string{string(KindJoinRoom), v.Sender, v.RoomID}
	case *LeaveRoom:
		fields = []string{string(KindLeaveRoom), v.Sender, v.RoomID}
	case *Public:
		fields = []string{string(KindPublic), v.Sender, v.RoomID, v.Content, formatTime(v.Time)}
	case *JoinGroup:
		for _, p := range v.Participants {
			if strings.Contains(p, participantSeparator) {
				return nil, fmt.Errorf("participant %q: %w", p, ErrReservedSequence)
			}
		}
		fields = []string{string(KindJoinGroup), v.Sender, v.GroupID, strings.Join(v.Participants, participantSeparator)}
	case *Group:
		fields = []string{string(KindGroup), v.Sender, v.GroupID, v.Content, formatTime(v.Time)}
	case *StateChange:
		fields = []string{string(KindState), v.Sender, string(v.State)}
	case *BusyState:
		fields = []string{string(KindBusyState), v.Sender}
	case *CheckGroupID:
		fields = []string{string(KindCheckGroupID), v.Sender, v.GroupID}
	case *Response:
		fields = []string{string(KindResponse), v.Receiver, string(v.Status), v.Content, formatTime(v.Time)}
	case *PrivateHistory:
		fields = []string{string(KindPrivateHistory), v.Target, encodeEntries(v.Entries)}
	case *PublicHistory:
		fields = []string{string(KindPublicHistory), v.Receiver, v.GroupID, encodeEntries(v.Entries)}
	default:
		return nil, fmt.Errorf("encode %T: %w", m, ErrUnknownType)
	}

	for i, f := range fields {
		if err := checkField(f); err != nil {
			return nil, fmt.Errorf("encode %s field %d: %w", fields[0], i, err)
		}
	}
	return []byte(strings.Join(fields, FieldDelimiter)), nil
}

// Decode parses a frame. Unknown tags yield ErrUnknownType and a wrong field
// count or unparsable value yields ErrMalformed, both wrapped in *DecodeError.
func Decode(frame []byte) (Message, error) {
	fields := strings.Split(string(frame), FieldDelimiter)
	tag := fields[0]

	want, ok := fieldCounts[Kind(tag)]
	if !ok {
		return nil, &DecodeError{Tag: tag, Err: ErrUnknownType}
	}
	if len(fields) != want {
		return nil, &DecodeError{Tag: tag, Err: fmt.Errorf("%w: want %d fields, got %d", ErrMalformed, want, len(fields))}
	}

	m, err := decodeFields(Kind(tag), fields)
	if err != nil {
		return nil, &DecodeError{Tag: tag, Err: err}
	}
	return m, nil
}

var fieldCounts = map[Kind]int{
	KindLogin:          3,
	KindPrivate:        5,
	KindJoinRoom:       3,
	KindLeaveRoom:      3,
	KindPublic:         5,
	KindJoinGroup:      4,
	KindGroup:          5,
	KindState:          3,
	KindBusyState:      2,
	KindCheckGroupID:   3,
	KindResponse:       5,
	KindPrivateHistory: 3,
	KindPublicHistory:  4,
}

func decodeFields(kind Kind, f []string) (Message, error) {
	switch kind {
	case KindLogin:
		return &Login{Username: f[1], Password: f[2]}, nil
	case KindPrivate:
		t, err := parseTime(f[4])
		if err != nil {
			return nil, err
		}
		return &Private{Sender: f[1], Receiver: f[2], Content: f[3], Time: t}, nil
	case KindJoinRoom:
		return &JoinRoom{Sender: f[1], RoomID: f[2]}, nil
	case KindLeaveRoom:
		return &LeaveRoom{Sender: f[1], RoomID: f[2]}, nil
	case KindPublic:
		t, err := parseTime(f[4])
		if err != nil {
			return nil, err
		}
		return &Public{Sender: f[1], RoomID: f[2], Content: f[3], Time: t}, nil
	case KindJoinGroup:
		return &JoinGroup{Sender: f[1], GroupID: f[2], Participants: splitParticipants(f[3])}, nil
	case KindGroup:
		t, err := parseTime(f[4])
		if err != nil {
			return nil, err
		}
		return &Group{Sender: f[1], GroupID: f[2], Content: f[3], Time: t}, nil
	case KindState:
		s := State(f[2])
		if !s.Valid() {
			return nil, fmt.Errorf("%w: state %q", ErrMalformed, f[2])
		}
		return &StateChange{Sender: f[1], State: s}, nil
	case KindBusyState:
		return &BusyState{Sender: f[1]}, nil
	case KindCheckGroupID:
		return &CheckGroupID{Sender: f[1], GroupID: f[2]}, nil
	case KindResponse:
		s := Status(f[2])
		if !s.Valid() {
			return nil, fmt.Errorf("%w: status %q", ErrMalformed, f[2])
		}
		t, err := parseTime(f[4])
		if err != nil {
			return nil, err
		}
		return &Response{Receiver: f[1], Status: s, Content: f[3], Time: t}, nil
	case KindPrivateHistory:
		return &PrivateHistory{Target: f[1], Entries: decodeEntries(f[2])}, nil
	case KindPublicHistory:
		return &PublicHistory{Receiver: f[1], GroupID: f[2], Entries: decodeEntries(f[3])}, nil
	}
	return nil, ErrUnknownType
}

// checkField rejects values that would split differently on decode.
func checkField(f string) error {
	if strings.Contains(f, FieldDelimiter) || strings.HasPrefix(f, TupleDelimiter) || strings.HasSuffix(f, TupleDelimiter) {
		return ErrReservedSequence
	}
	return nil
}

func splitParticipants(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, participantSeparator) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func encodeEntries(entries []HistoryEntry) string {
	tuples := make([]string, 0, len(entries))
	for _, e := range entries {
		tuples = append(tuples, strings.Join([]string{
			escapeTupleField(e.Sender),
			escapeTupleField(e.Target),
			escapeTupleField(e.Content),
			formatTime(e.Time),
		}, TupleDelimiter))
	}
	return strings.Join(tuples, EntryDelimiter)
}

// decodeEntries skips tuples with the wrong arity or a bad timestamp instead
// of failing the whole history.
func decodeEntries(raw string) []HistoryEntry {
	if raw == "" {
		return nil
	}
	var entries []HistoryEntry
	for _, tuple := range strings.Split(raw, EntryDelimiter) {
		parts := strings.Split(tuple, TupleDelimiter)
		if len(parts) != 4 {
			continue
		}
		t, err := parseTime(parts[3])
		if err != nil {
			continue
		}
		entries = append(entries, HistoryEntry{
			Sender:  unescapeTupleField(parts[0]),
			Target:  unescapeTupleField(parts[1]),
			Content: unescapeTupleField(parts[2]),
			Time:    t,
		})
	}
	return entries
}

func escapeTupleField(s string) string {
	if s == "" {
		return emptyTupleField
	}
	return tupleEscaper.Replace(s)
}

func unescapeTupleField(s string) string {
	if s == emptyTupleField {
		return ""
	}
	return tupleUnescaper.Replace(s)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: time %q", ErrMalformed, s)
	}
	return t.UTC(), nil
}
