// Package chat routes decoded messages between live sessions.
//
// The Engine is the only writer of routing state. Dispatch holds a single
// lock for the whole routing decision, including any messages it
// synthesizes, so a broadcast never interleaves with a join or leave.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go-chat-broker/internal/protocol"
	"go-chat-broker/internal/store"
)

var (
	ErrUnknownRecipient   = errors.New("unknown recipient")
	ErrUnknownMessageKind = errors.New("unknown message kind")
)

const (
	joinedNotice = "I have joined."
	leftNotice   = "I have left."
	busyNotice   = "You are busy."
	sentNotice   = "message sent."
)

type Engine struct {
	mu       sync.Mutex
	registry *Registry
	store    store.Store
	logger   *slog.Logger
}

func NewEngine(registry *Registry, st store.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		registry: registry,
		store:    st,
		logger:   logger,
	}
}

func (e *Engine) Registry() *Registry { return e.registry }

// Register makes s the live session for its username.
func (e *Engine) Register(s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if prev := e.registry.Register(s); prev != nil && prev != s {
		e.logger.Warn("session replaced by newer login",
			"username", s.Username, "old_session_id", prev.ID, "session_id", s.ID)
	}
}

// Release tears down s's registry entry if it is still current. Room and
// group memberships are kept.
func (e *Engine) Release(s *Session) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Release(s)
}

// Busy reports whether username's presence is BUSY.
func (e *Engine) Busy(username string) bool {
	state, ok := e.registry.Presence(username)
	return ok && state == protocol.Busy
}

// Dispatch routes one message. Errors are per-message: the caller logs them
// and carries on with the connection.
func (e *Engine) Dispatch(ctx context.Context, m protocol.Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dispatch(ctx, m)
}

// PrivateHistory loads every private message of username as a history push.
func (e *Engine) PrivateHistory(ctx context.Context, username string) (*protocol.PrivateHistory, error) {
	msgs, err := e.store.GetPrivateHistory(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("load private history of %q: %w", username, err)
	}
	h := &protocol.PrivateHistory{Target: username}
	for _, p := range msgs {
		h.Entries = append(h.Entries, protocol.HistoryEntry{
			Sender: p.Sender, Target: p.Receiver, Content: p.Content, Time: p.Time,
		})
	}
	return h, nil
}

// dispatch must be called with e.mu held. Synthesized messages recurse here
// rather than through Dispatch.
func (e *Engine) dispatch(ctx context.Context, m protocol.Message) error {
	switch v := m.(type) {
	case *protocol.BusyState:
		return e.reply(ctx, v.Sender, protocol.StatusFail, busyNotice)
	case *protocol.Private:
		return e.dispatchPrivate(ctx, v)
	case *protocol.JoinRoom:
		return e.dispatchJoinRoom(ctx, v)
	case *protocol.LeaveRoom:
		return e.dispatchLeaveRoom(ctx, v)
	case *protocol.Public:
		return e.broadcast(ctx, v, e.registry.RoomMembers(v.RoomID))
	case *protocol.JoinGroup:
		return e.dispatchJoinGroup(ctx, v)
	case *protocol.Group:
		return e.broadcast(ctx, v, e.registry.GroupMembers(v.GroupID))
	case *protocol.StateChange:
		if !e.registry.SetPresence(v.Sender, v.State) {
			return fmt.Errorf("state of %q: %w", v.Sender, ErrUnknownRecipient)
		}
		e.logger.Debug("presence changed", "username", v.Sender, "state", v.State)
		return nil
	case *protocol.CheckGroupID:
		return e.dispatchCheckGroupID(ctx, v)
	case *protocol.Response:
		return e.deliverTo(v.Receiver, v)
	case *protocol.PrivateHistory:
		return e.deliverTo(v.Target, v)
	case *protocol.PublicHistory:
		return e.deliverTo(v.Receiver, v)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownMessageKind, m)
	}
}

func (e *Engine) dispatchPrivate(ctx context.Context, v *protocol.Private) error {
	receiver, ok := e.registry.Lookup(v.Receiver)
	if !ok {
		err := fmt.Errorf("private to %q: %w", v.Receiver, ErrUnknownRecipient)
		return errors.Join(err, e.reply(ctx, v.Sender, protocol.StatusFail, v.Receiver+" is not online."))
	}
	if _, ok := e.registry.Available(v.Receiver); !ok {
		return e.reply(ctx, v.Sender, protocol.StatusFail, v.Receiver+" is busy.")
	}

	if err := e.deliver(receiver, v); err != nil {
		return errors.Join(err, e.reply(ctx, v.Sender, protocol.StatusFail, v.Receiver+" is not reachable."))
	}
	if err := e.store.SaveMessage(ctx, v); err != nil {
		err = fmt.Errorf("save private message: %w", err)
		return errors.Join(err, e.reply(ctx, v.Sender, protocol.StatusFail, "message could not be saved."))
	}
	return e.reply(ctx, v.Sender, protocol.StatusOK, sentNotice)
}

func (e *Engine) dispatchJoinRoom(ctx context.Context, v *protocol.JoinRoom) error {
	notice := &protocol.Public{Sender: v.Sender, RoomID: v.RoomID, Content: joinedNotice, Time: protocol.Now()}
	errNotice := e.dispatch(ctx, notice)
	e.registry.JoinRoom(v.RoomID, v.Sender)
	return errors.Join(errNotice, e.save(ctx, v))
}

func (e *Engine) dispatchLeaveRoom(ctx context.Context, v *protocol.LeaveRoom) error {
	notice := &protocol.Public{Sender: v.Sender, RoomID: v.RoomID, Content: leftNotice, Time: protocol.Now()}
	errNotice := e.dispatch(ctx, notice)
	e.registry.LeaveRoom(v.RoomID, v.Sender)
	return errors.Join(errNotice, e.save(ctx, v))
}

func (e *Engine) dispatchJoinGroup(ctx context.Context, v *protocol.JoinGroup) error {
	e.registry.JoinGroup(v.GroupID, append([]string{v.Sender}, v.Participants...)...)

	var errs []error
	known, err := e.store.CheckGroupID(ctx, v.GroupID)
	if err != nil {
		errs = append(errs, fmt.Errorf("check group id: %w", err))
	} else if !known {
		if err := e.store.SaveGroupID(ctx, v.GroupID); err != nil {
			errs = append(errs, fmt.Errorf("save group id: %w", err))
		}
	}

	notice := &protocol.Group{Sender: v.Sender, GroupID: v.GroupID, Content: joinedNotice, Time: protocol.Now()}
	errs = append(errs, e.dispatch(ctx, notice), e.save(ctx, v))
	return errors.Join(errs...)
}

func (e *Engine) dispatchCheckGroupID(ctx context.Context, v *protocol.CheckGroupID) error {
	exists, err := e.store.CheckGroupID(ctx, v.GroupID)
	if err != nil {
		err = fmt.Errorf("check group id: %w", err)
		return errors.Join(err, e.reply(ctx, v.Sender, protocol.StatusFail, "group lookup failed."))
	}
	if !exists {
		return e.reply(ctx, v.Sender, protocol.StatusFail, "group "+v.GroupID+" does not exist.")
	}

	e.registry.JoinGroup(v.GroupID, v.Sender)
	if err := e.reply(ctx, v.Sender, protocol.StatusOK, "group "+v.GroupID+" exists."); err != nil {
		return err
	}

	msgs, err := e.store.GetGroupHistory(ctx, v.GroupID)
	if err != nil {
		return fmt.Errorf("load group history: %w", err)
	}
	h := &protocol.PublicHistory{Receiver: v.Sender, GroupID: v.GroupID}
	for _, g := range msgs {
		h.Entries = append(h.Entries, protocol.HistoryEntry{
			Sender: g.Sender, Target: g.GroupID, Content: g.Content, Time: g.Time,
		})
	}
	return e.dispatch(ctx, h)
}

// broadcast delivers m to every AVAILABLE member and persists it once.
// Offline and busy members are skipped, not errors.
func (e *Engine) broadcast(ctx context.Context, m protocol.Message, members []string) error {
	frame, err := protocol.Encode(m)
	if err != nil {
		return err
	}

	delivered := 0
	for _, name := range members {
		s, ok := e.registry.Available(name)
		if !ok {
			continue
		}
		if err := s.Send(frame); err != nil {
			e.logger.Warn("dropped broadcast delivery",
				"kind", m.Kind(), "username", name, "session_id", s.ID, "error", err)
			continue
		}
		delivered++
	}
	e.logger.Debug("broadcast", "kind", m.Kind(), "sender", m.Origin(), "members", len(members), "delivered", delivered)

	return e.save(ctx, m)
}

func (e *Engine) reply(ctx context.Context, receiver string, status protocol.Status, content string) error {
	return e.dispatch(ctx, &protocol.Response{
		Receiver: receiver,
		Status:   status,
		Content:  content,
		Time:     protocol.Now(),
	})
}

func (e *Engine) deliverTo(username string, m protocol.Message) error {
	s, ok := e.registry.Lookup(username)
	if !ok {
		return fmt.Errorf("%s to %q: %w", m.Kind(), username, ErrUnknownRecipient)
	}
	return e.deliver(s, m)
}

func (e *Engine) deliver(s *Session, m protocol.Message) error {
	frame, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	if err := s.Send(frame); err != nil {
		return fmt.Errorf("%s to %q: %w", m.Kind(), s.Username, err)
	}
	return nil
}

func (e *Engine) save(ctx context.Context, m protocol.Message) error {
	if err := e.store.SaveMessage(ctx, m); err != nil {
		return fmt.Errorf("save %s: %w", m.Kind(), err)
	}
	return nil
}
