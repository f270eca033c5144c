package client

import (
	"time"

	"github.com/itray25/neogen/internal/game"
	"github.com/itray25/neogen/internal/proto"
	"github.com/itray25/neogen/internal/state"
)

// Public surface of the engine. Every method here is safe to call from any
// goroutine: reads go through store snapshots, writes are posted into the
// engine loop.

// Subscribe registers a state listener. The callback fires immediately with
// the current snapshot and again after every mutation. The returned function
// cancels the subscription.
func (e *Engine) Subscribe(fn func(state.State)) func() {
	return e.store.Subscribe(fn)
}

// SubscribeMessages registers a listener for discrete inbound messages, for
// events that are not naturally a stored field.
func (e *Engine) SubscribeMessages(fn func(proto.Message)) func() {
	return e.store.SubscribeMessages(fn)
}

// State returns the current snapshot.
func (e *Engine) State() state.State {
	return e.store.Snapshot()
}

// Channel returns the ordered log for a channel id.
func (e *Engine) Channel(id string) []state.ChatEntry {
	return e.router.Channel(id)
}

// SetIdentity installs the logged-in account. It must be set before Connect.
func (e *Engine) SetIdentity(id state.Identity) {
	e.store.Apply(func(s *state.State) {
		copied := id
		s.Identity = &copied
	})
}

// ClearIdentity forgets the account, for logout flows. It does not touch an
// established connection; callers disconnect first.
func (e *Engine) ClearIdentity() {
	e.store.Apply(func(s *state.State) { s.Identity = nil })
}

// SendChat posts a chat line to a room, or to the global channel when room is
// empty.
func (e *Engine) SendChat(room proto.RoomID, content string) error {
	if room == "" {
		room = proto.GlobalRoom
	}
	return e.post(proto.NewChat(room, content))
}

// JoinRoom enters a room, leaving the current one first when the player is
// already in a game room. The join itself is deferred by the refresh grace
// period so the server observes the leave before the join.
func (e *Engine) JoinRoom(room proto.RoomID, password string) error {
	snapshot := e.store.Snapshot()
	if snapshot.Identity == nil {
		return ErrNoIdentity
	}
	playerName := snapshot.Identity.DisplayName

	ok := e.call(func() bool {
		current := e.store.Snapshot().CurrentRoomID
		if current != "" && current != state.GlobalChannel && current != room.String() {
			if !e.send(proto.NewLeaveRoom(proto.RoomID(current))) {
				return false
			}
			epoch := e.epoch
			time.AfterFunc(e.cfg.RefreshGrace, func() {
				e.do(func() {
					if epoch != e.epoch {
						return
					}
					e.send(proto.NewJoinRoom(room, playerName, password))
				})
			})
			return true
		}
		return e.send(proto.NewJoinRoom(room, playerName, password))
	})
	if !ok {
		return ErrNotConnected
	}
	return nil
}

// LeaveRoom exits the current game room back to the global channel.
func (e *Engine) LeaveRoom() error {
	snapshot := e.store.Snapshot()
	room := snapshot.CurrentRoomID
	if room == "" || room == state.GlobalChannel {
		return nil
	}
	return e.post(proto.NewLeaveRoom(proto.RoomID(room)))
}

// ChangeName requests a display-name change. The local identity is updated
// optimistically so group derivation keeps working once the server's snapshot
// reflects the new name.
func (e *Engine) ChangeName(newName string) error {
	if err := e.post(proto.NewChangeName(newName)); err != nil {
		return err
	}
	e.store.Apply(func(s *state.State) {
		if s.Identity != nil {
			s.Identity.DisplayName = newName
		}
	})
	return nil
}

// ChangeGroup requests assignment to a group in the current room. Group 8 is
// the observer bench.
func (e *Engine) ChangeGroup(groupID int) error {
	room := e.store.Snapshot().CurrentRoomID
	if room == "" || room == state.GlobalChannel {
		return ErrNoRoom
	}
	return e.post(proto.NewChangeGroup(proto.RoomID(room), groupID))
}

// SetReady toggles this player's force-start vote in the current room.
func (e *Engine) SetReady(ready bool) error {
	room := e.store.Snapshot().CurrentRoomID
	if room == "" || room == state.GlobalChannel {
		return ErrNoRoom
	}
	return e.post(proto.NewReady(proto.RoomID(room), ready))
}

// RequestRoomInfo asks for a fresh authoritative snapshot of the current
// room.
func (e *Engine) RequestRoomInfo() error {
	room := e.store.Snapshot().CurrentRoomID
	if room == "" || room == state.GlobalChannel {
		return ErrNoRoom
	}
	return e.post(proto.NewGetRoomInfo(proto.RoomID(room)))
}

// QueueMove enqueues a single-step movement intent and returns its
// correlation id. Only adjacency is checked here; ownership and terrain are
// validated against the latest snapshot right before transmission.
func (e *Engine) QueueMove(fromX, fromY, toX, toY int) (int64, error) {
	if !game.Adjacent(fromX, fromY, toX, toY) {
		return 0, ErrNotAdjacent
	}
	var id int64
	ok := e.call(func() bool {
		id = e.queue.Enqueue(fromX, fromY, toX, toY).ID
		return true
	})
	if !ok {
		return 0, ErrEngineStopped
	}
	return id, nil
}

// ClearMoves discards every queued movement intent.
func (e *Engine) ClearMoves() {
	e.do(func() { e.queue.Clear() })
}

// PendingMoves reports queued (unconfirmed) intents and tracks.
func (e *Engine) PendingMoves() (moves, tracks int) {
	e.call(func() bool {
		moves = e.queue.Pending()
		tracks = e.queue.Len()
		return true
	})
	return moves, tracks
}

// post transmits msg through the loop, mapping the transport's yes/no onto
// the error taxonomy.
func (e *Engine) post(msg any) error {
	delivered := e.call(func() bool { return e.send(msg) })
	if !delivered {
		return ErrNotConnected
	}
	return nil
}
